package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Request describes one file submission to the server's processing queue.
type Request struct {
	ServerURL string
	FilePath  string
	Profile   string

	// OnProgress receives the sent percentage, strictly increasing per upload.
	OnProgress func(percent int)
}

// Result is the server's acceptance response.
type Result struct {
	Message       string `json:"message"`
	Status        string `json:"status"`
	File          string `json:"file"`
	Profile       string `json:"profile"`
	QueuePosition int    `json:"queue_position"`
}

// Error is a phase-aware upload failure with a user-presentable message.
type Error struct {
	Phase   string
	Message string
	Err     error
}

// Error formats upload failures for logs and UI.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Phase, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

const (
	// perRequestFloor tolerates handshake and server-side save overhead.
	perRequestFloor = 5 * time.Minute
	// perGigabyte budgets transfer time per gigabyte of payload.
	perGigabyte = time.Minute
	// timeoutCeiling bounds how long a stalled upload may hang.
	timeoutCeiling = 2 * time.Hour
)

// TimeoutFor scales the request timeout with payload size so large uploads
// are tolerated without letting a dead connection hang forever.
func TimeoutFor(size int64) time.Duration {
	gigabytes := float64(size) / float64(1<<30)
	timeout := time.Duration(gigabytes*float64(perGigabyte)) + perRequestFloor
	if timeout > timeoutCeiling {
		timeout = timeoutCeiling
	}
	return timeout
}

// Uploader streams media files to /process-file as multipart form data.
type Uploader struct {
	httpClient *http.Client
	open       func(string) (*os.File, error)
	stat       func(string) (os.FileInfo, error)
}

// NewUploader constructs the production uploader. The HTTP client carries no
// global timeout; each request gets a size-scaled deadline instead.
func NewUploader() *Uploader {
	return &Uploader{
		httpClient: &http.Client{},
		open:       os.Open,
		stat:       os.Stat,
	}
}

// Upload streams the file and selected profile to the server, reporting sent
// progress along the way. Cancelling ctx aborts the transfer immediately.
func (u *Uploader) Upload(ctx context.Context, req Request) (Result, error) {
	info, err := u.stat(req.FilePath)
	if err != nil {
		return Result{}, &Error{Phase: "open", Message: fmt.Sprintf("cannot access file: %s", req.FilePath), Err: err}
	}

	file, err := u.open(req.FilePath)
	if err != nil {
		return Result{}, &Error{Phase: "open", Message: fmt.Sprintf("cannot open file: %s", req.FilePath), Err: err}
	}
	defer file.Close()

	ctx, cancel := context.WithTimeout(ctx, TimeoutFor(info.Size()))
	defer cancel()

	bodyReader, contentType := u.multipartBody(file, info, req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.ServerURL+"/process-file", bodyReader)
	if err != nil {
		return Result{}, &Error{Phase: "send", Message: "cannot build upload request", Err: err}
	}
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := u.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, classifySendError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{}, &Error{
			Phase:   "send",
			Message: serverError(resp.Body, resp.StatusCode),
		}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// An accepted upload with an unreadable body is still a success.
		return Result{Status: "queued"}, nil
	}
	return result, nil
}

// multipartBody streams the form through a pipe so the file is never fully
// buffered in memory; progress is counted on the file part reads.
func (u *Uploader) multipartBody(file *os.File, info os.FileInfo, req Request) (io.Reader, string) {
	pipeReader, pipeWriter := io.Pipe()
	writer := multipart.NewWriter(pipeWriter)

	counting := &countingReader{
		reader: file,
		total:  info.Size(),
		report: req.OnProgress,
	}

	go func() {
		part, err := writer.CreateFormFile("video", filepath.Base(req.FilePath))
		if err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, counting); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
		if err := writer.WriteField("profile", req.Profile); err != nil {
			pipeWriter.CloseWithError(err)
			return
		}
		pipeWriter.CloseWithError(writer.Close())
	}()

	return pipeReader, writer.FormDataContentType()
}

// classifySendError maps transport failures onto presentable phases.
func classifySendError(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, context.Canceled):
		return &Error{Phase: "cancel", Message: "upload cancelled", Err: context.Canceled}
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Phase: "timeout", Message: "upload timed out", Err: context.DeadlineExceeded}
	default:
		return &Error{Phase: "send", Message: "connection failed during upload", Err: err}
	}
}

// serverError extracts the server's {"error": ...} message when present.
func serverError(body io.Reader, statusCode int) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return fmt.Sprintf("upload rejected (%s)", http.StatusText(statusCode))
}

// countingReader reports round(sent/total*100), never repeating a value.
type countingReader struct {
	reader io.Reader
	total  int64
	sent   int64
	last   int
	report func(percent int)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.sent += int64(n)
		if r.report != nil && r.total > 0 {
			percent := int(float64(r.sent)/float64(r.total)*100 + 0.5)
			if percent > 100 {
				percent = 100
			}
			if percent > r.last {
				r.last = percent
				r.report(percent)
			}
		}
	}
	return n, err
}
