package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"plantid-server-go/internal/platform/storage"
)

type sqliteStore struct {
	db *gorm.DB
}

// NewSQLite builds a SQLite-backed store on a migrated database handle.
func NewSQLite(db *gorm.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db}, nil
}

func ensureGeneration(tx *gorm.DB, generation string) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&storage.CacheGeneration{Name: generation, CreatedAt: time.Now()}).
		Error
}

func (s *sqliteStore) Open(ctx context.Context, generation string) error {
	if generation == "" {
		return fmt.Errorf("generation name required")
	}
	return ensureGeneration(s.db.WithContext(ctx), generation)
}

func (s *sqliteStore) Match(ctx context.Context, generation, key string) (Entry, bool, error) {
	var records []storage.CacheEntry
	err := s.db.WithContext(ctx).
		Where("generation = ? AND cache_key = ?", generation, key).
		Limit(1).
		Find(&records).Error
	if err != nil {
		return Entry{}, false, err
	}
	if len(records) == 0 {
		return Entry{}, false, nil
	}

	record := records[0]
	entry := Entry{
		Key:      record.CacheKey,
		Status:   record.Status,
		Type:     record.Type,
		Body:     record.Body,
		StoredAt: record.StoredAt,
	}
	if len(record.Header) > 0 {
		if err := json.Unmarshal(record.Header, &entry.Header); err != nil {
			return Entry{}, false, fmt.Errorf("decode cached header %s: %w", key, err)
		}
	}
	return entry, true, nil
}

func (s *sqliteStore) Put(ctx context.Context, generation string, entry Entry) error {
	records, err := toRecords(generation, []Entry{entry})
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&storage.CacheGeneration{}).Where("name = ?", generation).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrGenerationNotFound
		}
		return upsert(tx, records)
	})
}

func (s *sqliteStore) PutAll(ctx context.Context, generation string, entries []Entry) error {
	if generation == "" {
		return fmt.Errorf("generation name required")
	}
	records, err := toRecords(generation, entries)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureGeneration(tx, generation); err != nil {
			return err
		}
		return upsert(tx, records)
	})
}

func upsert(tx *gorm.DB, records []storage.CacheEntry) error {
	if len(records) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "generation"}, {Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "type", "header", "body", "stored_at"}),
	}).Create(&records).Error
}

func toRecords(generation string, entries []Entry) ([]storage.CacheEntry, error) {
	now := time.Now()
	records := make([]storage.CacheEntry, 0, len(entries))
	for _, entry := range entries {
		if entry.Key == "" {
			return nil, fmt.Errorf("entry key required")
		}
		header := entry.Header
		if header == nil {
			header = map[string][]string{}
		}
		headerJSON, err := json.Marshal(header)
		if err != nil {
			return nil, err
		}
		storedAt := entry.StoredAt
		if storedAt.IsZero() {
			storedAt = now
		}
		records = append(records, storage.CacheEntry{
			Generation: generation,
			CacheKey:   entry.Key,
			Status:     entry.Status,
			Type:       entry.Type,
			Header:     headerJSON,
			Body:       entry.Body,
			StoredAt:   storedAt,
		})
	}
	return records, nil
}

func (s *sqliteStore) Keys(ctx context.Context, generation string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&storage.CacheEntry{}).
		Where("generation = ?", generation).
		Order("cache_key ASC").
		Pluck("cache_key", &keys).Error
	return keys, err
}

func (s *sqliteStore) Generations(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Model(&storage.CacheGeneration{}).
		Order("created_at ASC, name ASC").
		Pluck("name", &names).Error
	return names, err
}

func (s *sqliteStore) Delete(ctx context.Context, generation string) (bool, error) {
	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("generation = ?", generation).Delete(&storage.CacheEntry{}).Error; err != nil {
			return err
		}
		res := tx.Where("name = ?", generation).Delete(&storage.CacheGeneration{})
		removed = res.RowsAffected
		return res.Error
	})
	return removed > 0, err
}

func (s *sqliteStore) Stats(ctx context.Context) (map[string]any, error) {
	var generations, entries int64
	if err := s.db.WithContext(ctx).Model(&storage.CacheGeneration{}).Count(&generations).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&storage.CacheEntry{}).Count(&entries).Error; err != nil {
		return nil, err
	}
	return map[string]any{
		"type":        DriverSQLite,
		"generations": generations,
		"entries":     entries,
	}, nil
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}
