package shell

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"plantid-server-go/internal/domain/shell/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func writeShell(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"index.html":    "<html>plantid</html>",
		"manifest.json": `{"name":"PlantID"}`,
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestHandlerFetcherServesStaticShell(t *testing.T) {
	fetcher, err := NewHandlerFetcher(testOrigin, NewStaticOrigin(writeShell(t)), nil)
	if err != nil {
		t.Fatalf("NewHandlerFetcher: %v", err)
	}

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{"/", 200, "<html>plantid</html>"},
		{"/index.html", 200, "<html>plantid</html>"},
		{"/manifest.json", 200, `{"name":"PlantID"}`},
		{"/nope.css", 404, ""},
	}
	for _, tc := range cases {
		req, _ := NewRequest(http.MethodGet, tc.path)
		resp, err := fetcher.Fetch(context.Background(), req)
		if err != nil {
			t.Fatalf("Fetch %s: %v", tc.path, err)
		}
		if resp.Status != tc.status || resp.Type != TypeBasic {
			t.Fatalf("%s: status %d type %s", tc.path, resp.Status, resp.Type)
		}
		if tc.body != "" && string(resp.Body) != tc.body {
			t.Fatalf("%s: body %q", tc.path, resp.Body)
		}
	}

	req, _ := NewRequest(http.MethodGet, "https://elsewhere.example/x")
	if _, err := fetcher.Fetch(context.Background(), req); err == nil {
		t.Fatal("expected error for foreign origin without next fetcher")
	}
}

func TestWorkerInstallsFromStaticDir(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	fetcher, _ := NewHandlerFetcher(testOrigin, NewStaticOrigin(writeShell(t)), nil)
	w := newTestWorker(t, testConfig("plantid-v2"), st, fetcher)

	if err := w.OnInstall(ctx); err != nil {
		t.Fatalf("OnInstall: %v", err)
	}
	keys, _ := st.Keys(ctx, "plantid-v2")
	if len(keys) != 3 {
		t.Fatalf("expected 3 cached shell files, got %v", keys)
	}
}

func TestHTTPFetcherClassifiesResponses(t *testing.T) {
	same := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("same"))
	}))
	defer same.Close()
	cors := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Write([]byte("cors"))
	}))
	defer cors.Close()
	opaque := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("opaque"))
	}))
	defer opaque.Close()

	fetcher, err := NewHTTPFetcher(same.URL, 0)
	if err != nil {
		t.Fatalf("NewHTTPFetcher: %v", err)
	}

	cases := []struct {
		target string
		want   ResponseType
	}{
		{"/page", TypeBasic},
		{cors.URL + "/lib.js", TypeCORS},
		{opaque.URL + "/img.png", TypeOpaque},
	}
	for _, tc := range cases {
		req, _ := NewRequest(http.MethodGet, tc.target)
		resp, err := fetcher.Fetch(context.Background(), req)
		if err != nil {
			t.Fatalf("Fetch %s: %v", tc.target, err)
		}
		if resp.Type != tc.want || resp.Status != 200 {
			t.Fatalf("%s: got %s %d, want %s", tc.target, resp.Type, resp.Status, tc.want)
		}
	}
}

func TestHTTPFetcherNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	fetcher, _ := NewHTTPFetcher(url, 0)
	req, _ := NewRequest(http.MethodGet, "/")
	if _, err := fetcher.Fetch(context.Background(), req); err == nil {
		t.Fatal("expected connection error")
	}
}
