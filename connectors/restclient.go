package connectors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/jsonrs"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/model"
)

// AuthorizeFunc mutates an outgoing request with the connector's auth scheme.
type AuthorizeFunc func(req *http.Request)

// BearerAuth authorizes with a bearer token.
func BearerAuth(token string) AuthorizeFunc {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// BasicAuth authorizes with username/password (Jira cloud email + API token).
func BasicAuth(user, token string) AuthorizeFunc {
	return func(req *http.Request) {
		req.SetBasicAuth(user, token)
	}
}

// TokenHeaderAuth authorizes with a raw token header (ClickUp style).
func TokenHeaderAuth(header, token string) AuthorizeFunc {
	return func(req *http.Request) {
		req.Header.Set(header, token)
	}
}

// RESTClient is the shared HTTP plumbing for REST/GraphQL connectors and the
// target API: transient failures are retried transparently, while auth
// failures, rate limits and other 4xx responses surface as typed import
// errors for the importer to act on.
type RESTClient struct {
	baseURL   string
	client    *retryablehttp.Client
	authorize AuthorizeFunc
	log       logger.Logger
}

func NewRESTClient(conf *config.Config, log logger.Logger, baseURL string, authorize AuthorizeFunc) *RESTClient {
	client := retryablehttp.NewClient()
	client.Logger = nil
	client.RetryMax = conf.GetInt("Connector.httpRetryMax", 3)
	client.RetryWaitMin = conf.GetDuration("Connector.httpRetryWaitMin", 1, time.Second)
	client.RetryWaitMax = conf.GetDuration("Connector.httpRetryWaitMax", 30, time.Second)
	client.HTTPClient.Timeout = conf.GetDuration("Connector.httpTimeout", 30, time.Second)
	// Rate limits and auth errors must reach the importer, only transport
	// errors and 5xx are retried here.
	client.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		return resp.StatusCode >= http.StatusInternalServerError, nil
	}

	return &RESTClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		client:    client,
		authorize: authorize,
		log:       log,
	}
}

// GetJSON fetches path with query params and decodes the JSON response into
// out. Returns the response header for pagination token extraction.
func (c *RESTClient) GetJSON(ctx context.Context, path string, query url.Values, out any) (http.Header, error) {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON posts body as JSON and decodes the response into out.
func (c *RESTClient) PostJSON(ctx context.Context, path string, body, out any) (http.Header, error) {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

// PatchJSON patches with body as JSON and decodes the response into out.
func (c *RESTClient) PatchJSON(ctx context.Context, path string, body, out any) (http.Header, error) {
	return c.doJSON(ctx, http.MethodPatch, path, nil, body, out)
}

func (c *RESTClient) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		raw, err := jsonrs.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling %s %s body: %w", method, path, err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authorize != nil {
		c.authorize(req.Request)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &model.ImportError{Kind: model.ErrTimeout, Message: fmt.Sprintf("%s %s deadline exceeded", method, path), Err: err}
		}
		return nil, model.FetchError(fmt.Sprintf("%s %s failed", method, path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := ClassifyStatus(resp); err != nil {
		return nil, err
	}

	if out != nil {
		if err := jsonrs.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, model.FetchError(fmt.Sprintf("decoding %s %s response", method, path), err)
		}
	} else {
		_, _ = io.Copy(io.Discard, resp.Body)
	}
	return resp.Header, nil
}

// ClassifyStatus maps a non-2xx response onto the import error taxonomy:
// 401/403 auth, 429 rate limited with the suggested backoff, remaining 4xx
// permanent, 5xx transient.
func ClassifyStatus(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return model.AuthError(fmt.Sprintf("source returned %d: %s", resp.StatusCode, snippet), nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return model.RateLimitedError(RetryAfterHint(resp.Header))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return model.PermanentFetchError(fmt.Sprintf("source returned %d: %s", resp.StatusCode, snippet), nil)
	default:
		return model.FetchError(fmt.Sprintf("source returned %d: %s", resp.StatusCode, snippet), nil)
	}
}

// RetryAfterHint reads the backoff a rate-limiting source suggested.
// Defaults to a minute when the header is absent or unparsable.
func RetryAfterHint(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := time.Until(at); d > 0 {
				return d
			}
		}
	}
	if v := h.Get("X-RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Until(time.Unix(epoch, 0)); d > 0 {
				return d
			}
		}
	}
	return time.Minute
}
