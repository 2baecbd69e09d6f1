package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreSetGetRoundTrip(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set("k", []byte("v"), 0))

	value, found, err := store.Get("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), value)
}

func TestStoreGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, found, err := store.Get("absent")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreTTLWindow(t *testing.T) {
	store := openTestStore(t)

	base := time.Now()
	now := base
	store.SetNow(func() time.Time { return now })

	ttl := 5 * time.Minute
	require.NoError(t, store.Set("catalog", []byte("data"), ttl))

	// Just inside the window the entry is still served.
	now = base.Add(ttl - time.Millisecond)
	_, found, err := store.Get("catalog")
	require.NoError(t, err)
	assert.True(t, found)

	// Past the window it is treated as absent and removed.
	now = base.Add(ttl + time.Millisecond)
	_, found, err = store.Get("catalog")
	require.NoError(t, err)
	assert.False(t, found)

	// The lazy delete is persistent: an earlier clock no longer finds it.
	now = base
	_, found, err = store.Get("catalog")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStoreZeroTTLNeverExpires(t *testing.T) {
	store := openTestStore(t)

	base := time.Now()
	now := base
	store.SetNow(func() time.Time { return now })

	require.NoError(t, store.Set("menu_collapsed", []byte("true"), 0))

	now = base.Add(1000 * time.Hour)
	_, found, err := store.Get("menu_collapsed")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestStoreOverwriteResetsTTL(t *testing.T) {
	store := openTestStore(t)

	base := time.Now()
	now := base
	store.SetNow(func() time.Time { return now })

	require.NoError(t, store.Set("k", []byte("old"), time.Minute))

	now = base.Add(50 * time.Second)
	require.NoError(t, store.Set("k", []byte("new"), time.Minute))

	now = base.Add(100 * time.Second)
	value, found, err := store.Get("k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("new"), value)
}

func TestStoreJSONRoundTrip(t *testing.T) {
	store := openTestStore(t)

	type payload struct {
		URL string `json:"url"`
	}
	require.NoError(t, store.SetJSON("thumb_Inception_2010", payload{URL: "http://img/1.jpg"}, time.Hour))

	var got payload
	found, err := store.GetJSON("thumb_Inception_2010", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "http://img/1.jpg", got.URL)
}

func TestStoreCorruptJSONIsMissAndDeleted(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Set("k", []byte("{not-json"), time.Hour))

	var got map[string]string
	found, err := store.GetJSON("k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	// Entry was dropped, not just skipped.
	_, found, err = store.Get("k")
	require.NoError(t, err)
	assert.False(t, found)
}
