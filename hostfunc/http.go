package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caffeineduck/runjs/bridge"
	"github.com/caffeineduck/runjs/value"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second

	// MaxRedirects bounds how many redirects a single fetch follows.
	MaxRedirects = 10
)

// AnyHost in AllowedHosts permits every host.
const AnyHost = "*"

// HTTPConfig controls the fetch capability. An empty AllowedHosts denies
// every request.
type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
	Transport      http.RoundTripper
}

// HTTP implements fetch. Every redirect hop passes the same scheme and host
// checks as the original URL.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	h := &HTTP{cfg: cfg}
	h.client = &http.Client{
		Timeout:       cfg.RequestTimeout,
		Transport:     cfg.Transport,
		CheckRedirect: h.checkRedirect,
	}
	return h
}

// redirectError carries a denied redirect through http.Client.Do.
type redirectError struct{ reason string }

func (e *redirectError) Error() string { return e.reason }

func (h *HTTP) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= MaxRedirects {
		return &redirectError{reason: fmt.Sprintf("stopped after %d redirects", MaxRedirects)}
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return &redirectError{reason: "redirect scheme must be http or https"}
	}
	if host := req.URL.Hostname(); !h.isHostAllowed(host) {
		return &redirectError{reason: "redirect to host not allowed: " + host}
	}
	return nil
}

// PrepareFetch checks a fetch call and returns its operation. A non-2xx
// response rejects with HttpError carrying the status code.
func (h *HTTP) PrepareFetch(capability, rawURL string) (bridge.Operation, error) {
	if len(rawURL) > h.cfg.MaxURLLength {
		return nil, newError(Denied, capability, "url exceeds max length")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, newError(Denied, capability, "invalid url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, newError(Denied, capability, "scheme must be http or https")
	}
	if len(h.cfg.AllowedHosts) == 0 {
		return nil, newError(Denied, capability, "network access not enabled")
	}
	host := parsed.Hostname()
	if !h.isHostAllowed(host) {
		return nil, newError(Denied, capability, "host not allowed: %s", host)
	}

	return func(ctx context.Context) (value.Value, error) {
		if ce := cancelled(ctx, capability); ce != nil {
			return value.Value{}, ce
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return value.Value{}, newError(Denied, capability, "invalid url")
		}

		resp, err := h.client.Do(req)
		if err != nil {
			var re *redirectError
			if errors.As(err, &re) {
				ce := newError(Denied, capability, "%s", re.reason)
				ce.Err = err
				return value.Value{}, ce
			}
			return value.Value{}, h.transportError(ctx, capability, host, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			ce := newError(HttpError, capability, "%s returned %d", host, resp.StatusCode)
			ce.Status = resp.StatusCode
			return value.Value{}, ce
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize+1))
		if err != nil {
			return value.Value{}, h.transportError(ctx, capability, host, err)
		}
		if int64(len(body)) > h.cfg.MaxBodySize {
			return value.Value{}, newError(Denied, capability, "response body exceeds max size (%d bytes)", h.cfg.MaxBodySize)
		}
		return value.String(string(body)), nil
	}, nil
}

func (h *HTTP) transportError(ctx context.Context, capability, host string, err error) *CapabilityError {
	if ce := cancelled(ctx, capability); ce != nil {
		return ce
	}
	var ce *CapabilityError
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		ce = newError(Timeout, capability, "request to %s timed out", host)
	} else {
		ce = newError(NetworkError, capability, "request to %s failed", host)
	}
	ce.Err = err
	return ce
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func (h *HTTP) isHostAllowed(host string) bool {
	for _, allowed := range h.cfg.AllowedHosts {
		if allowed == AnyHost || host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
