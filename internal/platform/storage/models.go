package storage

import (
	"time"

	"gorm.io/datatypes"
)

// CacheGeneration is one named shell cache snapshot.
type CacheGeneration struct {
	Name      string    `gorm:"primaryKey;size:255"`
	CreatedAt time.Time `gorm:"not null"`
}

func (CacheGeneration) TableName() string { return "cache_generations" }

// CacheEntry is a stored response inside a generation, keyed by request URL.
type CacheEntry struct {
	ID         uint           `gorm:"primaryKey"`
	Generation string         `gorm:"size:255;not null;uniqueIndex:idx_cache_entries_generation_key"`
	CacheKey   string         `gorm:"size:2048;not null;uniqueIndex:idx_cache_entries_generation_key"`
	Status     int            `gorm:"not null"`
	Type       string         `gorm:"size:32;not null"`
	Header     datatypes.JSON `gorm:"not null"`
	Body       []byte
	StoredAt   time.Time `gorm:"not null"`
}

func (CacheEntry) TableName() string { return "cache_entries" }
