// Package fetch performs the proxy's outbound HTTP requests: opportunistic
// HTTPS upgrade, bounded redirects, streamed size caps and optional SOCKS
// routing.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/openxiino/dataserver/internal/config"
)

var (
	// ErrTooLarge is returned once the streamed body passes the caller's cap.
	ErrTooLarge = errors.New("fetch: response body too large")
	// ErrTimeout is returned when the upstream request ran out of time.
	ErrTimeout = errors.New("fetch: upstream timeout")
)

// StatusError reports a non-success upstream status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: upstream status %d for %s", e.Code, e.URL)
}

// upgradeTimeout bounds the opportunistic HTTPS attempt; failures fall back
// to plain http without charging the full request timeout.
const upgradeTimeout = 2 * time.Second

// Request describes one outbound fetch.
type Request struct {
	URL    string
	Method string
	Header http.Header
	Body   io.Reader
	// Jar carries the session's upstream cookies; may be nil.
	Jar http.CookieJar
	// MaxBytes caps the streamed body. Reads abort with ErrTooLarge once
	// the cap is passed; Content-Length is never trusted.
	MaxBytes int
}

// Response is a fully read, size-capped upstream response.
type Response struct {
	Status      int
	Header      http.Header
	Body        []byte
	FinalURL    *url.URL
	ContentType string
}

// Client issues upstream requests on behalf of Xiino devices.
type Client struct {
	cfg       *config.Config
	transport http.RoundTripper
	log       hclog.Logger
}

// New builds a client from the configuration. The SOCKS transport, if
// configured, is shared across all requests.
func New(cfg *config.Config, log hclog.Logger) (*Client, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, transport: transport, log: log}, nil
}

// Fetch performs the request. http URLs are first tried as https with a
// short timeout when the upgrade policy is on; a transport failure or a
// 5xx answer falls back to the original URL, while a 4xx answer or an
// oversized body from the https attempt is returned as is.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch: parsing %q: %w", req.URL, err)
	}

	if u.Scheme == "http" && c.cfg.Security.AttemptHTTPSUpgrade {
		upgraded := *u
		upgraded.Scheme = "https"
		upCtx, cancel := context.WithTimeout(ctx, upgradeTimeout)
		resp, err := c.do(upCtx, req, upgraded.String())
		cancel()
		// Fall back to plain http only on transport failures and 5xx; a
		// 4xx or an oversized body would repeat over http.
		var se *StatusError
		switch {
		case err == nil:
			c.log.Debug("https upgrade succeeded", "url", req.URL)
			return resp, nil
		case errors.As(err, &se) && se.Code < 500:
			return resp, err
		case errors.Is(err, ErrTooLarge):
			return resp, err
		default:
			c.log.Debug("https upgrade failed, falling back", "url", req.URL, "error", err)
		}
	}

	return c.do(ctx, req, req.URL)
}

func (c *Client) do(ctx context.Context, req Request, rawURL string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.HTTPTimeout())
	defer cancel()

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	hr, err := http.NewRequestWithContext(ctx, method, rawURL, req.Body)
	if err != nil {
		return nil, fmt.Errorf("fetch: building request: %w", err)
	}
	for k, vs := range req.Header {
		hr.Header[k] = vs
	}
	if hr.Header.Get("User-Agent") == "" {
		hr.Header.Set("User-Agent", c.cfg.HTTP.UserAgent)
	}

	client := &http.Client{
		Transport:     c.transport,
		Jar:           req.Jar,
		CheckRedirect: c.checkRedirect,
	}

	resp, err := client.Do(hr)
	if err != nil {
		if ctx.Err() != nil || isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, rawURL)
		}
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	body, bodyErr := readCapped(resp.Body, req.MaxBytes)
	if bodyErr != nil && !errors.Is(bodyErr, ErrTooLarge) {
		return nil, bodyErr
	}

	out := &Response{
		Status:      resp.StatusCode,
		Header:      resp.Header,
		Body:        body,
		FinalURL:    resp.Request.URL,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if bodyErr != nil {
		// The capped prefix travels with the error so document handlers
		// can truncate instead of failing outright.
		return out, bodyErr
	}
	if resp.StatusCode >= 400 {
		return out, &StatusError{Code: resp.StatusCode, URL: rawURL}
	}
	return out, nil
}

// checkRedirect enforces the redirect policy: disabled entirely, capped at
// MaxRedirects, and Authorization never crosses origins.
func (c *Client) checkRedirect(req *http.Request, via []*http.Request) error {
	if !c.cfg.Security.AllowRedirects {
		return http.ErrUseLastResponse
	}
	if len(via) >= c.cfg.Security.MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", c.cfg.Security.MaxRedirects)
	}
	if req.URL.Host != via[0].URL.Host {
		req.Header.Del("Authorization")
	}
	return nil
}

// readCapped streams the body into memory, aborting once max bytes have
// been read. The reader sees at most max+1 bytes; on overflow the capped
// prefix is returned together with ErrTooLarge.
func readCapped(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, int64(max)+1))
	if err != nil {
		return nil, fmt.Errorf("fetch: reading body: %w", err)
	}
	if len(body) > max {
		return body[:max], fmt.Errorf("%w: over %d bytes", ErrTooLarge, max)
	}
	return body, nil
}

func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return strings.Contains(err.Error(), "Client.Timeout")
}
