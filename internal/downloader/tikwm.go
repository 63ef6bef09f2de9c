package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/google/uuid"
)

const tikwmAPIURL = "https://www.tikwm.com/api/"

// TikWM is a video-only fallback for TikTok links used when Cobalt is
// down or rejects the video.
type TikWM struct {
	apiURL  string
	client  *http.Client
	dir     string
	maxSize int64
}

// NewTikWM creates a TikWM route writing files into dir.
func NewTikWM(dir string, maxSize int64) *TikWM {
	return &TikWM{
		apiURL:  tikwmAPIURL,
		client:  &http.Client{},
		dir:     dir,
		maxSize: maxSize,
	}
}

type tikwmResponse struct {
	Code int `json:"code"`
	Data struct {
		Title  string `json:"title"`
		Play   string `json:"play"`
		HDPlay string `json:"hdplay"`
	} `json:"data"`
}

// Download implements Downloader.
func (d *TikWM) Download(ctx context.Context, req Request) (*Result, error) {
	if req.Format == FormatAudio {
		return nil, fmt.Errorf("tikwm does not serve audio")
	}

	apiURL := d.apiURL + "?url=" + url.QueryEscape(req.Link.Normalized) + "&hd=1"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tikwm request: %w", err)
	}
	httpReq.Header.Set("User-Agent", browserUserAgent)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach tikwm: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tikwm returned %d", resp.StatusCode)
	}

	var tr tikwmResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode tikwm response: %w", err)
	}
	if tr.Code != 0 {
		return nil, fmt.Errorf("tikwm error code %d", tr.Code)
	}

	streamURL := tr.Data.HDPlay
	if streamURL == "" {
		streamURL = tr.Data.Play
	}
	if streamURL == "" {
		return nil, fmt.Errorf("tikwm returned no video url")
	}

	path := filepath.Join(d.dir, uuid.NewString()+".mp4")
	size, err := fetchFile(ctx, d.client, streamURL, path, d.maxSize)
	if err != nil {
		return nil, err
	}

	return &Result{
		Path:  path,
		Title: tr.Data.Title,
		Size:  size,
	}, nil
}
