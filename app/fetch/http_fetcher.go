package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		client:    client,
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, r ByteRange) (io.ReadCloser, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Range", r.Header())
	// An explicit encoding disables transparent gzip, so byte positions
	// in the body are positions in the document.
	req.Header.Set("Accept-Encoding", "identity")
	req.Header.Set("Accept", "application/rss+xml, application/xml, text/xml, */*")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch range: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		return nil, fmt.Errorf("%s of %s: %w", r.Header(), url, ErrRangeNotSatisfiable)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}

	// A 200 carries the whole document from byte 0, so the body is moved
	// to r.Start before the caller sees it.
	if resp.StatusCode == http.StatusOK && r.Start > 0 {
		slog.Warn("Server ignored range request",
			"url", url,
			"range", r.Header(),
			"content_length", resp.ContentLength)

		if _, err := io.CopyN(io.Discard, resp.Body, r.Start); err != nil {
			resp.Body.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%s of %s: %w", r.Header(), url, ErrRangeNotSatisfiable)
			}
			return nil, fmt.Errorf("failed to skip to range start: %w", err)
		}
	}

	return &rangeBody{Reader: io.LimitReader(resp.Body, r.Len()), Closer: resp.Body}, nil
}

// rangeBody never yields more than the requested range, whatever the
// server sent.
type rangeBody struct {
	io.Reader
	io.Closer
}
