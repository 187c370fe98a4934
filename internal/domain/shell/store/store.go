package store

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Entry is one cached response, keyed by request URL.
type Entry struct {
	Key      string              `json:"key"`
	Status   int                 `json:"status"`
	Type     string              `json:"type"`
	Header   map[string][]string `json:"header,omitempty"`
	Body     []byte              `json:"body,omitempty"`
	StoredAt time.Time           `json:"stored_at"`
}

// Clone returns a deep copy so callers never share header maps or body slices.
func (e Entry) Clone() Entry {
	out := e
	if e.Header != nil {
		out.Header = http.Header(e.Header).Clone()
	}
	if e.Body != nil {
		out.Body = append([]byte(nil), e.Body...)
	}
	return out
}

// ErrGenerationNotFound is returned by Put for a generation that does not exist.
var ErrGenerationNotFound = errors.New("cache generation not found")

// Store is generation-named cache storage. Each generation is an independent
// key/value namespace; generations are listed in creation order.
type Store interface {
	// Open creates generation if it does not exist yet.
	Open(ctx context.Context, generation string) error
	Match(ctx context.Context, generation, key string) (Entry, bool, error)
	// Put stores one entry into an existing generation. It returns
	// ErrGenerationNotFound when generation was never opened or was deleted.
	Put(ctx context.Context, generation string, entry Entry) error
	// PutAll stores every entry or none of them, creating generation on demand.
	PutAll(ctx context.Context, generation string, entries []Entry) error
	Keys(ctx context.Context, generation string) ([]string, error)
	Generations(ctx context.Context) ([]string, error)
	// Delete drops a generation with all its entries and reports whether it existed.
	Delete(ctx context.Context, generation string) (bool, error)
	Stats(ctx context.Context) (map[string]any, error)
	Close(ctx context.Context) error
}

// Config describes the store selection parameters.
type Config struct {
	Driver string
	Redis  *RedisConfig
	SQLite *SQLiteConfig
}

// SQLiteConfig provides the database location when no handle is injected.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
