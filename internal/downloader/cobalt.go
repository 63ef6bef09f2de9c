package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Some CDNs refuse requests without a browser user agent.
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Cobalt downloads media through a Cobalt API instance. It is the
// primary route for TikTok, Instagram and Twitter links.
type Cobalt struct {
	apiURL  string
	client  *http.Client
	dir     string
	maxSize int64
}

// NewCobalt creates a Cobalt route against apiURL writing files into dir.
func NewCobalt(apiURL, dir string, maxSize int64) *Cobalt {
	return &Cobalt{
		apiURL:  apiURL,
		client:  &http.Client{},
		dir:     dir,
		maxSize: maxSize,
	}
}

type cobaltRequest struct {
	URL           string `json:"url"`
	VideoQuality  string `json:"videoQuality"`
	AudioFormat   string `json:"audioFormat"`
	DownloadMode  string `json:"downloadMode"`
	FilenameStyle string `json:"filenameStyle"`
}

type cobaltResponse struct {
	Status   string `json:"status"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
	Picker   []struct {
		URL string `json:"url"`
	} `json:"picker"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

// Download implements Downloader.
func (d *Cobalt) Download(ctx context.Context, req Request) (*Result, error) {
	mode, ext := "auto", ".mp4"
	if req.Format == FormatAudio {
		mode, ext = "audio", ".mp3"
	}

	payload, err := json.Marshal(cobaltRequest{
		URL:           req.Link.Normalized,
		VideoQuality:  "1080",
		AudioFormat:   "mp3",
		DownloadMode:  mode,
		FilenameStyle: "basic",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode cobalt request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.apiURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build cobalt request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach cobalt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("cobalt returned %d", resp.StatusCode)
	}

	var cr cobaltResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, fmt.Errorf("failed to decode cobalt response: %w", err)
	}

	var streamURL string
	switch cr.Status {
	case "redirect", "tunnel":
		streamURL = cr.URL
	case "picker":
		// Carousels and slideshows: deliver the first item.
		if len(cr.Picker) > 0 {
			streamURL = cr.Picker[0].URL
		}
	case "error":
		return nil, fmt.Errorf("cobalt error: %s", cr.Error.Code)
	}
	if streamURL == "" {
		return nil, fmt.Errorf("cobalt returned no download url (status %q)", cr.Status)
	}

	path := filepath.Join(d.dir, uuid.NewString()+ext)
	size, err := fetchFile(ctx, d.client, streamURL, path, d.maxSize)
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:  path,
		Title: strings.TrimSuffix(cr.Filename, filepath.Ext(cr.Filename)),
		Size:  size,
	}, nil
}

// fetchFile streams url to path, enforcing the size cap both from the
// Content-Length header and during the copy.
func fetchFile(ctx context.Context, client *http.Client, url, path string, maxSize int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build download request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("media fetch returned %d", resp.StatusCode)
	}

	if resp.ContentLength > maxSize {
		return 0, &SizeError{Size: resp.ContentLength, Max: maxSize}
	}

	return writeCapped(path, resp.Body, maxSize)
}
