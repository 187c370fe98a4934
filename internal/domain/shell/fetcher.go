package shell

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

const maxRedirects = 5

// HTTPFetcher fetches over the network and classifies responses against origin.
type HTTPFetcher struct {
	client *http.Client
	origin *url.URL
}

// NewHTTPFetcher creates a network fetcher. A zero timeout means none.
func NewHTTPFetcher(origin string, timeout time.Duration) (*HTTPFetcher, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	return &HTTPFetcher{
		client: &http.Client{Timeout: timeout},
		origin: u,
	}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	target := f.origin.ResolveReference(req.URL)
	httpReq, err := http.NewRequestWithContext(ctx, req.method(), target.String(), req.Body)
	if err != nil {
		return nil, err
	}
	for key, values := range req.Header {
		for _, value := range values {
			httpReq.Header.Add(key, value)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	out := &Response{
		Status: resp.StatusCode,
		Type:   TypeBasic,
		Header: resp.Header.Clone(),
		Body:   body,
	}
	if !sameOrigin(f.origin, resp.Request.URL) {
		if resp.Header.Get("Access-Control-Allow-Origin") != "" {
			out.Type = TypeCORS
		} else {
			out.Type = TypeOpaque
		}
	}
	return out, nil
}

// HandlerFetcher answers requests for origin from an in-process handler and
// hands every other host to next.
type HandlerFetcher struct {
	handler http.Handler
	origin  *url.URL
	next    Fetcher
}

// NewHandlerFetcher wires handler as the origin server. next may be nil, in
// which case cross-origin fetches fail.
func NewHandlerFetcher(origin string, handler http.Handler, next Fetcher) (*HandlerFetcher, error) {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", origin)
	}
	return &HandlerFetcher{handler: handler, origin: u, next: next}, nil
}

func (f *HandlerFetcher) Fetch(ctx context.Context, req *Request) (*Response, error) {
	target := f.origin.ResolveReference(req.URL)
	if !sameOrigin(f.origin, target) {
		if f.next == nil {
			return nil, fmt.Errorf("no network fetcher for %s", target.Host)
		}
		return f.next.Fetch(ctx, &Request{Method: req.method(), URL: target, Header: req.Header, Body: req.Body})
	}

	method := req.method()
	body := req.Body
	for hop := 0; ; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		httpReq := httptest.NewRequest(method, target.String(), body).WithContext(ctx)
		for key, values := range req.Header {
			httpReq.Header[key] = append([]string(nil), values...)
		}

		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, httpReq)
		result := rec.Result()

		location := result.Header.Get("Location")
		if isRedirect(result.StatusCode) && location != "" && hop < maxRedirects {
			next, err := target.Parse(location)
			if err != nil {
				return nil, err
			}
			if !sameOrigin(f.origin, next) {
				return nil, fmt.Errorf("redirect to foreign origin %s", next.Host)
			}
			target = next
			method = http.MethodGet
			body = nil
			continue
		}

		return &Response{
			Status: result.StatusCode,
			Type:   TypeBasic,
			Header: result.Header.Clone(),
			Body:   rec.Body.Bytes(),
		}, nil
	}
}

// NewStaticOrigin serves dir as the app shell origin.
func NewStaticOrigin(dir string) http.Handler {
	engine := gin.New()
	engine.Use(static.Serve("/", static.LocalFile(dir, false)))
	engine.NoRoute(func(c *gin.Context) {
		c.String(http.StatusNotFound, "404 page not found")
	})
	return engine
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
