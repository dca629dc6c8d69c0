package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rudderlabs/rudder-go-kit/config"
)

// httpRangeReader satisfies io.ReaderAt with HTTP Range requests, so a multi
// gigabyte attachment export can be walked without staging it on disk.
type httpRangeReader struct {
	ctx    context.Context
	url    string
	client *retryablehttp.Client
	header http.Header
}

// OpenHTTPRange probes the url for its size and returns a ZipStream backed by
// range requests against it. The server must support byte ranges. Extra
// headers (authorization, typically) ride on every request.
func OpenHTTPRange(ctx context.Context, conf *config.Config, url string, header http.Header) (*ZipStream, error) {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = conf.GetInt("Stream.httpRetryMax", 3)
	client.HTTPClient.Timeout = conf.GetDuration("Stream.httpTimeout", 60, time.Second)

	r := &httpRangeReader{ctx: ctx, url: url, client: client, header: header}
	size, err := r.probeSize()
	if err != nil {
		return nil, err
	}
	return New(r, size), nil
}

func (r *httpRangeReader) probeSize() (int64, error) {
	req, err := retryablehttp.NewRequestWithContext(r.ctx, http.MethodHead, r.url, nil)
	if err != nil {
		return 0, fmt.Errorf("building size probe: %w", err)
	}
	r.applyHeader(req)

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", r.url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("size probe of %s returned %d", r.url, resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("%s does not advertise its size", r.url)
	}
	return resp.ContentLength, nil
}

func (r *httpRangeReader) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	req, err := retryablehttp.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return 0, fmt.Errorf("building range request: %w", err)
	}
	r.applyHeader(req)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1))

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("range read of %s at %d: %w", r.url, off, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusPartialContent:
	case http.StatusRequestedRangeNotSatisfiable:
		return 0, io.EOF
	default:
		return 0, fmt.Errorf("range read of %s returned %d", r.url, resp.StatusCode)
	}

	n, err := io.ReadFull(resp.Body, p)
	if err == io.ErrUnexpectedEOF {
		// server returned a shorter range than requested, the stream layer
		// deals with short reads
		return n, io.EOF
	}
	return n, err
}

func (r *httpRangeReader) applyHeader(req *retryablehttp.Request) {
	for k, vals := range r.header {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}
}
