package downloader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/kkdai/youtube/v2"
)

var youtubeIDPattern = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/shorts/)([a-zA-Z0-9_-]{11})`)

// YouTube downloads videos through the YouTube API directly, without
// shelling out. It only handles youtube.com and youtu.be links.
type YouTube struct {
	client  youtube.Client
	dir     string
	maxSize int64
}

// NewYouTube creates a YouTube route writing files into dir.
func NewYouTube(dir string, maxSize int64) *YouTube {
	return &YouTube{
		client:  youtube.Client{},
		dir:     dir,
		maxSize: maxSize,
	}
}

// Download implements Downloader.
func (d *YouTube) Download(ctx context.Context, req Request) (*Result, error) {
	// Shorts and share links carry the same 11-character ID.
	target := req.Link.Normalized
	if id := extractYouTubeID(target); id != "" {
		target = id
	}

	video, err := d.client.GetVideoContext(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("failed to get video info: %w", err)
	}

	var (
		format *youtube.Format
		ext    string
	)
	switch req.Format {
	case FormatAudio:
		format = pickAudioFormat(video.Formats)
		ext = ".m4a"
	default:
		format = pickVideoFormat(video.Formats, d.maxSize)
		ext = ".mp4"
	}
	if format == nil {
		return nil, fmt.Errorf("no suitable format found")
	}

	if format.ContentLength > d.maxSize {
		return nil, &SizeError{Size: format.ContentLength, Max: d.maxSize}
	}

	stream, _, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("failed to get stream: %w", err)
	}
	defer stream.Close()

	path := filepath.Join(d.dir, uuid.NewString()+ext)
	size, err := writeCapped(path, stream, d.maxSize)
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:  path,
		Title: video.Title,
		Size:  size,
	}, nil
}

// pickVideoFormat chooses an mp4 format with audio: the best quality
// not above 720p whose reported size fits the cap, falling back to the
// smallest quality available.
func pickVideoFormat(formats youtube.FormatList, maxSize int64) *youtube.Format {
	withAudio := formats.WithAudioChannels()
	if len(withAudio) == 0 {
		withAudio = formats
	}

	var candidates []youtube.Format
	for _, f := range withAudio {
		if !strings.Contains(f.MimeType, "video/mp4") {
			continue
		}
		if f.QualityLabel == "" {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return nil
	}

	var best *youtube.Format
	for i := range candidates {
		f := &candidates[i]
		q := parseQualityNum(f.QualityLabel)
		if q > 720 {
			continue
		}
		if f.ContentLength > maxSize {
			continue
		}
		if best == nil || q > parseQualityNum(best.QualityLabel) {
			best = f
		}
	}
	if best != nil {
		return best
	}

	// Nothing fits the preferred window; take the smallest rendition
	// and let the size cap decide.
	smallest := &candidates[0]
	for i := range candidates {
		f := &candidates[i]
		if parseQualityNum(f.QualityLabel) < parseQualityNum(smallest.QualityLabel) {
			smallest = f
		}
	}
	return smallest
}

// pickAudioFormat chooses the highest-bitrate mp4 audio stream.
func pickAudioFormat(formats youtube.FormatList) *youtube.Format {
	var best *youtube.Format
	for i := range formats {
		f := &formats[i]
		if !strings.Contains(f.MimeType, "audio/mp4") {
			continue
		}
		if best == nil || f.Bitrate > best.Bitrate {
			best = f
		}
	}
	return best
}

func extractYouTubeID(text string) string {
	matches := youtubeIDPattern.FindStringSubmatch(text)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

func parseQualityNum(quality string) int {
	var num int
	fmt.Sscanf(quality, "%dp", &num)
	return num
}

// writeCapped copies stream to path, failing with a SizeError once more
// than maxSize bytes arrive. The partial file is removed on any error.
func writeCapped(path string, stream io.Reader, maxSize int64) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := io.Copy(file, io.LimitReader(stream, maxSize+1))
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to download media: %w", err)
	}
	if n > maxSize {
		os.Remove(path)
		return 0, &SizeError{Size: n, Max: maxSize}
	}

	return n, nil
}
