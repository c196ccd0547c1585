// Copyright 2024-2026 Aiku AI

package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
)

// MaxDownloadSize caps files fetched by HTTPDownloader. Telegram rejects
// photo uploads above 10 MB.
const MaxDownloadSize = 10 * 1000 * 1000

// HTTPDownloader downloads files over HTTP.
type HTTPDownloader struct {
	Client *http.Client
}

var _ Downloader = (*HTTPDownloader)(nil)

// NewHTTPDownloader creates a downloader using client, or
// http.DefaultClient if client is nil.
func NewHTTPDownloader(client *http.Client) *HTTPDownloader {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPDownloader{Client: client}
}

func (d *HTTPDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, url)
	}
	if resp.ContentLength > MaxDownloadSize {
		return nil, fmt.Errorf("file too large (%s)", humanize.Bytes(uint64(resp.ContentLength)))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(data) > MaxDownloadSize {
		return nil, fmt.Errorf("file too large (over %s)", humanize.Bytes(MaxDownloadSize))
	}
	return data, nil
}
