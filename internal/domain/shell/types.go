package shell

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"plantid-server-go/internal/domain/shell/store"
)

// ResponseType mirrors the fetch response classification the cache cares about.
type ResponseType string

const (
	TypeBasic  ResponseType = "basic"
	TypeCORS   ResponseType = "cors"
	TypeOpaque ResponseType = "opaque"
)

// Source records how a response was produced.
type Source string

const (
	SourceCache   Source = "hit"
	SourceNetwork Source = "miss"
	SourceBypass  Source = "bypass"
)

// Request is an intercepted fetch. URL may be relative; it is resolved
// against the configured origin.
type Request struct {
	Method string
	URL    *url.URL
	Header http.Header
	Body   io.Reader
}

// NewRequest builds a request from a raw URL.
func NewRequest(method, rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Request{Method: method, URL: u, Header: http.Header{}}, nil
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Response is what a fetch yields, whether from the cache or the network.
type Response struct {
	Status int
	Type   ResponseType
	Header http.Header
	Body   []byte
	Source Source
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

func (r *Response) entry(key string) store.Entry {
	return store.Entry{
		Key:    key,
		Status: r.Status,
		Type:   string(r.Type),
		Header: map[string][]string(r.Header),
		Body:   r.Body,
	}.Clone()
}

func responseFromEntry(entry store.Entry) *Response {
	return &Response{
		Status: entry.Status,
		Type:   ResponseType(entry.Type),
		Header: http.Header(entry.Header),
		Body:   entry.Body,
		Source: SourceCache,
	}
}

// Fetcher performs network fetches for the worker.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *Request) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Worker is the lifecycle of one shell cache generation.
type Worker interface {
	OnInstall(ctx context.Context) error
	OnActivate(ctx context.Context) error
	OnFetch(ctx context.Context, req *Request) (*Response, error)
}

// Config is the worker's injected configuration.
type Config struct {
	Generation  string
	ShellFiles  []string
	BypassHosts []string
	Origin      string
}

// DefaultShellFiles is the shell resource list used when none is configured.
var DefaultShellFiles = []string{"/", "/index.html", "/manifest.json"}

// CacheKey is the method-less absolute URL identifying a cached response.
func CacheKey(u *url.URL) string {
	clone := *u
	clone.Fragment = ""
	clone.RawFragment = ""
	return clone.String()
}
