package downloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/artur/mediasaver/internal/platform"
)

// Format selects what the user receives for a link.
type Format string

const (
	FormatVideo Format = "video"
	FormatAudio Format = "audio"
)

// Request describes a single download job.
type Request struct {
	Link   platform.Link
	Format Format
}

// Result is a finished download on local disk. The caller owns the file
// and removes it after delivery.
type Result struct {
	Path  string
	Title string
	Size  int64
}

// Downloader fetches media for a request. Implementations cover one
// route (direct YouTube client, Cobalt API, yt-dlp).
type Downloader interface {
	Download(ctx context.Context, req Request) (*Result, error)
}

var (
	// ErrClosed is returned for jobs submitted after shutdown began.
	ErrClosed = errors.New("downloader is shutting down")
	// ErrTimedOut is returned when a download exceeds its time budget.
	ErrTimedOut = errors.New("download timed out")
)

// SizeError reports a file larger than the delivery cap.
type SizeError struct {
	Size int64
	Max  int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("file size %d exceeds limit of %d bytes", e.Size, e.Max)
}

// Chain tries each downloader in order until one succeeds. A later
// route can recover from a size rejection when it selects a smaller
// rendition, so only context cancellation stops the chain early.
type Chain []Downloader

// Download implements Downloader.
func (c Chain) Download(ctx context.Context, req Request) (*Result, error) {
	if len(c) == 0 {
		return nil, fmt.Errorf("no download route for %s", req.Link.Platform)
	}

	var lastErr error
	for _, d := range c {
		res, err := d.Download(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, lastErr
		}
	}

	return nil, lastErr
}
