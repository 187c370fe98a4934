package relay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"plantid-server-go/internal/platform/config"
)

func TestNewClientEndpoint(t *testing.T) {
	cfg := config.DefaultConfig().Relay
	cfg.BaseURL = "https://api.anthropic.com/ "
	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if client.Endpoint() != "https://api.anthropic.com/v1/messages" {
		t.Fatalf("Endpoint = %q", client.Endpoint())
	}

	cfg.BaseURL = ""
	if _, err := NewClient(cfg, nil); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestClientHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	cfg := config.DefaultConfig().Relay
	cfg.BaseURL = srv.URL
	client, _ := NewClient(cfg, srv.Client())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Identify(ctx, "sk-ant-x", "image/png", "AAAA"); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestClientReturnsErrorStatusAsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig().Relay
	cfg.BaseURL = srv.URL
	client, _ := NewClient(cfg, srv.Client())

	resp, err := client.Identify(context.Background(), "sk-ant-x", "image/png", "AAAA")
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if resp.OK() || resp.Status != http.StatusTooManyRequests {
		t.Fatalf("unexpected response %+v", resp)
	}
}
