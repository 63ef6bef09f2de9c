package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/wader/goutubedl"
)

// YTDLP downloads media by driving the yt-dlp binary. It is the
// fallback route for every platform.
type YTDLP struct {
	dir         string
	maxSize     int64
	cookiesFile string
}

// NewYTDLP creates a yt-dlp route writing files into dir. cookiesFile
// may be empty.
func NewYTDLP(dir string, maxSize int64, cookiesFile string) *YTDLP {
	return &YTDLP{
		dir:         dir,
		maxSize:     maxSize,
		cookiesFile: cookiesFile,
	}
}

// Download implements Downloader.
func (d *YTDLP) Download(ctx context.Context, req Request) (*Result, error) {
	opts := goutubedl.Options{
		Type: goutubedl.TypeSingle,
	}
	// goutubedl takes cookie contents, not a path; reading per download
	// picks up rotated cookies without a restart.
	if d.cookiesFile != "" {
		if data, err := os.ReadFile(d.cookiesFile); err == nil {
			opts.Cookies = string(data)
		}
	}

	result, err := goutubedl.New(ctx, req.Link.Normalized, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to probe media: %w", err)
	}

	filter, ext := d.filter(req.Format)

	stream, err := result.Download(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to download media: %w", err)
	}
	defer stream.Close()

	path := filepath.Join(d.dir, uuid.NewString()+ext)
	size, err := writeCapped(path, stream, d.maxSize)
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:  path,
		Title: result.Info.Title,
		Size:  size,
	}, nil
}

// filter builds the yt-dlp format selector: capped 720p for video,
// m4a-preferred for audio.
func (d *YTDLP) filter(format Format) (filter, ext string) {
	if format == FormatAudio {
		return "bestaudio[ext=m4a]/bestaudio", ".m4a"
	}

	maxMB := d.maxSize / (1024 * 1024)
	return fmt.Sprintf("best[height<=720][filesize<%dM]/best[height<=720]/best", maxMB), ".mp4"
}
