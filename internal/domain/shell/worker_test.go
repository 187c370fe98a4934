package shell

import (
	"context"
	stdErrors "errors"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"plantid-server-go/internal/domain/eventbus"
	"plantid-server-go/internal/domain/shell/store"
)

const testOrigin = "http://localhost:8080"

type fakeNetwork struct {
	mu      sync.Mutex
	calls   atomic.Int64
	paths   []string
	routes  map[string]*Response
	failAll error
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{routes: map[string]*Response{
		testOrigin + "/":              {Status: 200, Type: TypeBasic, Body: []byte("<html>root</html>")},
		testOrigin + "/index.html":    {Status: 200, Type: TypeBasic, Body: []byte("<html>index</html>")},
		testOrigin + "/manifest.json": {Status: 200, Type: TypeBasic, Header: http.Header{"Content-Type": {"application/json"}}, Body: []byte(`{"name":"PlantID"}`)},
	}}
}

func (n *fakeNetwork) Fetch(_ context.Context, req *Request) (*Response, error) {
	n.calls.Add(1)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.paths = append(n.paths, req.URL.String())
	if n.failAll != nil {
		return nil, n.failAll
	}
	resp, ok := n.routes[req.URL.String()]
	if !ok {
		return &Response{Status: 404, Type: TypeBasic, Body: []byte("not found")}, nil
	}
	out := *resp
	out.Header = resp.Header.Clone()
	out.Body = append([]byte(nil), resp.Body...)
	return &out, nil
}

func (n *fakeNetwork) set(url string, resp *Response) {
	n.mu.Lock()
	n.routes[url] = resp
	n.mu.Unlock()
}

type spyStore struct {
	store.Store
	calls atomic.Int64
}

func (s *spyStore) Match(ctx context.Context, generation, key string) (store.Entry, bool, error) {
	s.calls.Add(1)
	return s.Store.Match(ctx, generation, key)
}

func (s *spyStore) Put(ctx context.Context, generation string, entry store.Entry) error {
	s.calls.Add(1)
	return s.Store.Put(ctx, generation, entry)
}

type brokenStore struct {
	store.Store
}

func (brokenStore) Match(context.Context, string, string) (store.Entry, bool, error) {
	return store.Entry{}, false, stdErrors.New("store offline")
}

func testConfig(generation string) Config {
	return Config{
		Generation:  generation,
		ShellFiles:  []string{"/", "/index.html", "/manifest.json"},
		BypassHosts: []string{"api.anthropic.com"},
		Origin:      testOrigin,
	}
}

func newTestWorker(t *testing.T, cfg Config, st store.Store, fetcher Fetcher, opts ...Option) *CacheWorker {
	t.Helper()
	w, err := NewCacheWorker(cfg, st, fetcher, opts...)
	if err != nil {
		t.Fatalf("NewCacheWorker: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func flush(t *testing.T, w *CacheWorker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Writeback().Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestNewCacheWorkerValidates(t *testing.T) {
	st := store.NewMemory()
	net := newFakeNetwork()

	cases := map[string]Config{
		"missing generation": {Origin: testOrigin},
		"relative origin":    {Generation: "plantid-v2", Origin: "/app"},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewCacheWorker(cfg, st, net); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	w := newTestWorker(t, Config{Generation: "plantid-v2", Origin: testOrigin}, st, net)
	if !slices.Equal(w.ShellFiles(), DefaultShellFiles) {
		t.Fatalf("expected default shell files, got %v", w.ShellFiles())
	}
}

func TestInstallThenServeOffline(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	net := newFakeNetwork()
	w := newTestWorker(t, testConfig("plantid-v2"), st, net)

	if err := w.OnInstall(ctx); err != nil {
		t.Fatalf("OnInstall: %v", err)
	}
	if !w.SkipWaiting() {
		t.Fatal("expected install to request skip waiting")
	}
	if err := w.OnActivate(ctx); err != nil {
		t.Fatalf("OnActivate: %v", err)
	}

	net.failAll = stdErrors.New("offline")
	before := net.calls.Load()

	for _, path := range []string{"/", "/index.html", "/manifest.json"} {
		req, _ := NewRequest(http.MethodGet, path)
		resp, err := w.OnFetch(ctx, req)
		if err != nil {
			t.Fatalf("OnFetch %s offline: %v", path, err)
		}
		if resp.Source != SourceCache || resp.Status != 200 {
			t.Fatalf("%s: expected cached 200, got %s %d", path, resp.Source, resp.Status)
		}
	}

	req, _ := NewRequest(http.MethodGet, testOrigin+"/manifest.json")
	resp, _ := w.OnFetch(ctx, req)
	if string(resp.Body) != `{"name":"PlantID"}` || resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("unexpected cached manifest: %q %v", resp.Body, resp.Header)
	}

	if got := net.calls.Load() - before; got != 0 {
		t.Fatalf("expected zero network calls for cached shell, got %d", got)
	}
}

func TestInstallIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	net := newFakeNetwork()
	net.set(testOrigin+"/manifest.json", &Response{Status: 500, Type: TypeBasic})
	w := newTestWorker(t, testConfig("plantid-v2"), st, net)

	if err := w.OnInstall(ctx); err == nil {
		t.Fatal("expected install failure")
	}
	if w.SkipWaiting() {
		t.Fatal("failed install must not skip waiting")
	}
	keys, _ := st.Keys(ctx, "plantid-v2")
	if len(keys) != 0 {
		t.Fatalf("expected no entries after failed install, got %v", keys)
	}
}

func TestInstallNetworkError(t *testing.T) {
	net := newFakeNetwork()
	net.failAll = stdErrors.New("dns failure")
	w := newTestWorker(t, testConfig("plantid-v2"), store.NewMemory(), net)

	err := w.OnInstall(context.Background())
	if err == nil || !stdErrors.Is(err, net.failAll) {
		t.Fatalf("expected wrapped network error, got %v", err)
	}
}

func TestActivateRemovesStaleGenerations(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	net := newFakeNetwork()

	v2 := newTestWorker(t, testConfig("plantid-v2"), st, net)
	if err := v2.OnInstall(ctx); err != nil {
		t.Fatalf("install v2: %v", err)
	}
	if err := v2.OnActivate(ctx); err != nil {
		t.Fatalf("activate v2: %v", err)
	}

	bus := eventbus.New()
	var deleted []string
	_ = bus.Subscribe(eventbus.EventShellGenerationDeleted, func(data eventbus.ShellEventData) {
		deleted = append(deleted, data.Generation)
	})

	v3 := newTestWorker(t, testConfig("plantid-v3"), st, net, WithEvents(bus))
	if err := v3.OnInstall(ctx); err != nil {
		t.Fatalf("install v3: %v", err)
	}
	if err := v3.OnActivate(ctx); err != nil {
		t.Fatalf("activate v3: %v", err)
	}
	if !v3.Claimed() {
		t.Fatal("expected clients to be claimed")
	}

	names, _ := st.Generations(ctx)
	if !slices.Equal(names, []string{"plantid-v3"}) {
		t.Fatalf("expected only plantid-v3, got %v", names)
	}
	if !slices.Equal(deleted, []string{"plantid-v2"}) {
		t.Fatalf("expected deletion event for plantid-v2, got %v", deleted)
	}
}

func TestBypassHostNeverTouchesCache(t *testing.T) {
	ctx := context.Background()
	spy := &spyStore{Store: store.NewMemory()}
	net := newFakeNetwork()
	apiURL := "https://api.anthropic.com/v1/messages"
	net.set(apiURL, &Response{Status: 200, Type: TypeCORS, Body: []byte(`{}`)})
	w := newTestWorker(t, testConfig("plantid-v2"), spy, net)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req, _ := NewRequest(method, apiURL)
		resp, err := w.OnFetch(ctx, req)
		if err != nil {
			t.Fatalf("OnFetch %s: %v", method, err)
		}
		if resp.Source != SourceBypass {
			t.Fatalf("expected bypass, got %s", resp.Source)
		}
	}
	flush(t, w)

	if spy.calls.Load() != 0 {
		t.Fatalf("bypass host touched the cache %d times", spy.calls.Load())
	}
	if net.calls.Load() != 2 {
		t.Fatalf("expected 2 network calls, got %d", net.calls.Load())
	}
}

func TestMissWritesBackBasicOK(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	net := newFakeNetwork()
	net.set(testOrigin+"/app.js", &Response{Status: 200, Type: TypeBasic, Body: []byte("console.log(1)")})
	net.set("https://cdn.example.com/lib.js", &Response{Status: 200, Type: TypeCORS, Body: []byte("lib")})
	w := newTestWorker(t, testConfig("plantid-v2"), st, net)
	if err := st.Open(ctx, "plantid-v2"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, target := range []string{"/app.js", "https://cdn.example.com/lib.js", "/missing.png"} {
		req, _ := NewRequest(http.MethodGet, target)
		resp, err := w.OnFetch(ctx, req)
		if err != nil {
			t.Fatalf("OnFetch %s: %v", target, err)
		}
		if resp.Source != SourceNetwork {
			t.Fatalf("%s: expected network miss, got %s", target, resp.Source)
		}
	}
	flush(t, w)

	keys, _ := st.Keys(ctx, "plantid-v2")
	if !slices.Equal(keys, []string{testOrigin + "/app.js"}) {
		t.Fatalf("only the basic 200 response should be cached, got %v", keys)
	}

	before := net.calls.Load()
	req, _ := NewRequest(http.MethodGet, "/app.js")
	resp, err := w.OnFetch(ctx, req)
	if err != nil || resp.Source != SourceCache || string(resp.Body) != "console.log(1)" {
		t.Fatalf("expected cache hit, got %+v %v", resp, err)
	}
	if net.calls.Load() != before {
		t.Fatal("cache hit must not touch the network")
	}
}

func TestNonGetSkipsCache(t *testing.T) {
	ctx := context.Background()
	spy := &spyStore{Store: store.NewMemory()}
	net := newFakeNetwork()
	net.set(testOrigin+"/form", &Response{Status: 200, Type: TypeBasic})
	w := newTestWorker(t, testConfig("plantid-v2"), spy, net)

	req, _ := NewRequest(http.MethodPost, "/form")
	if _, err := w.OnFetch(ctx, req); err != nil {
		t.Fatalf("OnFetch: %v", err)
	}
	flush(t, w)
	if spy.calls.Load() != 0 {
		t.Fatalf("POST touched the cache %d times", spy.calls.Load())
	}
}

func TestNetworkErrorPropagates(t *testing.T) {
	net := newFakeNetwork()
	net.failAll = stdErrors.New("connection refused")
	w := newTestWorker(t, testConfig("plantid-v2"), store.NewMemory(), net)

	req, _ := NewRequest(http.MethodGet, "/photo.jpg")
	_, err := w.OnFetch(context.Background(), req)
	if err != net.failAll {
		t.Fatalf("expected the network error unchanged, got %v", err)
	}
}

func TestLookupFailureFallsBackToNetwork(t *testing.T) {
	net := newFakeNetwork()
	w := newTestWorker(t, testConfig("plantid-v2"), brokenStore{Store: store.NewMemory()}, net)

	req, _ := NewRequest(http.MethodGet, "/index.html")
	resp, err := w.OnFetch(context.Background(), req)
	if err != nil || resp.Status != 200 || resp.Source != SourceNetwork {
		t.Fatalf("expected network response, got %+v %v", resp, err)
	}
}

func TestCacheKey(t *testing.T) {
	req, _ := NewRequest(http.MethodGet, "http://localhost:8080/index.html?v=1#top")
	if got := CacheKey(req.URL); got != "http://localhost:8080/index.html?v=1" {
		t.Fatalf("CacheKey = %q", got)
	}
}

type gatedStore struct {
	store.Store
	gate    chan struct{}
	entered chan struct{}
}

func (s *gatedStore) Put(ctx context.Context, generation string, entry store.Entry) error {
	s.entered <- struct{}{}
	<-s.gate
	return s.Store.Put(ctx, generation, entry)
}

func TestLateWritebackDoesNotReviveRetiredGeneration(t *testing.T) {
	ctx := context.Background()
	st := &gatedStore{Store: store.NewMemory(), gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	net := newFakeNetwork()
	net.set(testOrigin+"/late.js", &Response{Status: 200, Type: TypeBasic, Body: []byte("late")})

	pool, err := NewWriteback(st, 1, 8, nil)
	if err != nil {
		t.Fatalf("NewWriteback: %v", err)
	}
	t.Cleanup(pool.Close)

	c := NewController(nil, nil, nil)
	v2 := newTestWorker(t, testConfig("plantid-v2"), st, net, WithWriteback(pool))
	if err := c.Register(ctx, "plantid-v2", v2); err != nil {
		t.Fatalf("register v2: %v", err)
	}

	req, _ := NewRequest(http.MethodGet, "/late.js")
	if _, err := v2.OnFetch(ctx, req); err != nil {
		t.Fatalf("OnFetch: %v", err)
	}
	// the write is now parked inside Put for plantid-v2
	<-st.entered

	v3 := newTestWorker(t, testConfig("plantid-v3"), st, net, WithWriteback(pool))
	if err := c.Register(ctx, "plantid-v3", v3); err != nil {
		t.Fatalf("register v3: %v", err)
	}
	close(st.gate)

	flushCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := pool.Flush(flushCtx); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	names, _ := st.Generations(ctx)
	if !slices.Equal(names, []string{"plantid-v3"}) {
		t.Fatalf("expected only plantid-v3, got %v", names)
	}
	if _, ok, _ := st.Match(ctx, "plantid-v2", testOrigin+"/late.js"); ok {
		t.Fatal("late write landed in the retired generation")
	}
}
