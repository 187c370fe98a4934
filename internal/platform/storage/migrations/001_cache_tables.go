package migrations

import (
	"gorm.io/gorm"
)

// Migration001CacheTables creates the shell cache schema.
type Migration001CacheTables struct{}

func (m *Migration001CacheTables) Version() string {
	return "001_cache_tables"
}

func (m *Migration001CacheTables) Description() string {
	return "Create cache_generations and cache_entries"
}

func (m *Migration001CacheTables) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_generations (
			name VARCHAR(255) PRIMARY KEY,
			created_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			generation VARCHAR(255) NOT NULL,
			cache_key VARCHAR(2048) NOT NULL,
			status INTEGER NOT NULL,
			type VARCHAR(32) NOT NULL,
			header JSON NOT NULL,
			body BLOB,
			stored_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return err
	}

	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_cache_entries_generation_key
		ON cache_entries (generation, cache_key)
	`).Error
}

func (m *Migration001CacheTables) Down(db *gorm.DB) error {
	if err := db.Exec(`DROP TABLE IF EXISTS cache_entries`).Error; err != nil {
		return err
	}
	return db.Exec(`DROP TABLE IF EXISTS cache_generations`).Error
}
