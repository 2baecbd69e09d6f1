package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"media-optimizer/internal/domain"
)

// ErrNotFound is returned when the server has no artwork for a lookup.
var ErrNotFound = errors.New("not found")

// Client is a typed HTTP client for the media server's JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// BaseURL returns the configured server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// GetMovies fetches the categorized catalog; refresh asks the server to
// rebuild its own cache first.
func (c *Client) GetMovies(ctx context.Context, refresh bool) (domain.Catalog, error) {
	path := "/api/movies"
	if refresh {
		path += "?refresh=true"
	}

	var catalog domain.Catalog
	if err := c.getJSON(ctx, path, &catalog); err != nil {
		return domain.Catalog{}, err
	}
	return catalog, nil
}

// MovieThumbnail resolves the thumbnail URL for a movie title. The optional
// year narrows the lookup and filename enables the server's local fallback.
func (c *Client) MovieThumbnail(ctx context.Context, title, year, filename string) (string, error) {
	query := url.Values{}
	query.Set("title", title)
	if year != "" {
		query.Set("year", year)
	}
	if filename != "" {
		query.Set("filename", filename)
	}

	var resp struct {
		Thumbnail string `json:"thumbnail"`
	}
	if err := c.getJSON(ctx, "/api/movie-thumbnail?"+query.Encode(), &resp); err != nil {
		return "", err
	}
	if resp.Thumbnail == "" {
		return "", ErrNotFound
	}
	return resp.Thumbnail, nil
}

// SeriePoster resolves the poster URL for a series name.
func (c *Client) SeriePoster(ctx context.Context, name string) (string, error) {
	query := url.Values{}
	query.Set("name", name)

	var resp struct {
		Poster string `json:"poster"`
	}
	if err := c.getJSON(ctx, "/api/serie-poster?"+query.Encode(), &resp); err != nil {
		return "", err
	}
	if resp.Poster == "" {
		return "", ErrNotFound
	}
	return resp.Poster, nil
}

// Profiles fetches the server's transcoding profiles keyed by profile key.
func (c *Client) Profiles(ctx context.Context) (map[string]domain.Profile, error) {
	var profiles map[string]domain.Profile
	if err := c.getJSON(ctx, "/optimizer/profiles", &profiles); err != nil {
		return nil, err
	}
	for key, profile := range profiles {
		profile.Key = key
		profiles[key] = profile
	}
	return profiles, nil
}

// Estimate asks the server to project the optimized size of an uploaded file
// under the given profile.
func (c *Client) Estimate(ctx context.Context, filename, profile string) (domain.Estimate, error) {
	body := map[string]string{
		"filepath": filename,
		"profile":  profile,
	}

	var estimate domain.Estimate
	if err := c.postJSON(ctx, "/optimizer/estimate", body, &estimate); err != nil {
		return domain.Estimate{}, err
	}
	return estimate, nil
}

// Status fetches one transcode job-status snapshot.
func (c *Client) Status(ctx context.Context) (domain.JobStatus, error) {
	var status domain.JobStatus
	if err := c.getJSON(ctx, "/status", &status); err != nil {
		return domain.JobStatus{}, err
	}
	return status, nil
}

// CancelProcess asks the server to abort the running transcode job.
func (c *Client) CancelProcess(ctx context.Context) error {
	return c.postJSON(ctx, "/cancel-process", nil, nil)
}

// getJSON performs a GET and decodes the JSON response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	return c.do(req, out)
}

// postJSON performs a POST with an optional JSON body and decodes into out.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, serverError(resp.Body, resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

// serverError extracts the server's {"error": ...} message when present.
func serverError(body io.Reader, statusCode int) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return http.StatusText(statusCode)
}
