package quota

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/JillVernus/feature-gate/internal/database"
)

// DBQuotaStorage provides database-backed storage for feature quota
// states, on SQLite or PostgreSQL through the database package.
type DBQuotaStorage struct {
	db database.DB
}

// NewDBQuotaStorage creates a new database quota storage adapter.
func NewDBQuotaStorage(db database.DB) *DBQuotaStorage {
	return &DBQuotaStorage{db: db}
}

// MigrateFromJSONIfNeeded imports a legacy quota JSON file when the
// feature_quota table is still empty, then renames the file to a
// timestamped backup.
func (s *DBQuotaStorage) MigrateFromJSONIfNeeded(jsonPath string) error {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM feature_quota").Scan(&count); err != nil {
		return fmt.Errorf("failed to check feature_quota table: %w", err)
	}

	if count > 0 {
		log.Printf("📦 Database already has %d feature quota records, skipping JSON migration", count)
		return nil
	}

	if _, err := os.Stat(jsonPath); os.IsNotExist(err) {
		log.Printf("📦 No quota JSON found, starting fresh")
		return nil
	}

	log.Printf("📦 Migrating feature quota from %s to database...", jsonPath)

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("failed to read quota JSON: %w", err)
	}

	var file quotaFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse quota JSON: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, st := range file.Features {
		feature := st.Feature
		if feature == "" {
			feature = key
		}
		_, err = tx.Exec(`
			INSERT INTO feature_quota (feature_key, usage_count, cooldown_start, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		`, string(feature), st.UsageCount, st.CooldownStart)
		if err != nil {
			log.Printf("⚠️ Failed to migrate quota state for %s: %v", feature, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	// Backup JSON file
	backupPath := jsonPath + ".migrated-" + time.Now().Format("20060102-150405")
	if err := os.Rename(jsonPath, backupPath); err != nil {
		log.Printf("⚠️ Failed to backup quota JSON: %v", err)
	} else {
		log.Printf("✅ Feature quota migrated to database. Backup: %s", backupPath)
	}

	return nil
}

// Save implements Store with an update-then-insert write path.
func (s *DBQuotaStorage) Save(state *State) error {
	result, err := s.db.Exec(`
		UPDATE feature_quota
		SET usage_count = ?, cooldown_start = ?, updated_at = CURRENT_TIMESTAMP
		WHERE feature_key = ?
	`, state.UsageCount, state.CooldownStart, string(state.Feature))

	if err != nil {
		return fmt.Errorf("failed to update feature quota: %w", err)
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		_, err = s.db.Exec(`
			INSERT INTO feature_quota (feature_key, usage_count, cooldown_start, updated_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		`, string(state.Feature), state.UsageCount, state.CooldownStart)
		if err != nil {
			return fmt.Errorf("failed to insert feature quota: %w", err)
		}
	}

	return nil
}

// Load implements Store.
func (s *DBQuotaStorage) Load(feature Feature) (*State, error) {
	var (
		usageCount    int
		cooldownStart int64
	)

	err := s.db.QueryRow(`
		SELECT usage_count, cooldown_start FROM feature_quota
		WHERE feature_key = ?
	`, string(feature)).Scan(&usageCount, &cooldownStart)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query feature quota: %w", err)
	}

	return &State{
		Feature:       feature,
		UsageCount:    usageCount,
		CooldownStart: cooldownStart,
	}, nil
}

// LoadAll implements Store.
func (s *DBQuotaStorage) LoadAll() ([]*State, error) {
	rows, err := s.db.Query(`
		SELECT feature_key, usage_count, cooldown_start
		FROM feature_quota
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query feature_quota: %w", err)
	}
	defer rows.Close()

	var out []*State
	for rows.Next() {
		var (
			featureKey    string
			usageCount    int
			cooldownStart int64
		)

		if err := rows.Scan(&featureKey, &usageCount, &cooldownStart); err != nil {
			log.Printf("⚠️ Failed to scan feature quota row: %v", err)
			continue
		}

		out = append(out, &State{
			Feature:       Feature(featureKey),
			UsageCount:    usageCount,
			CooldownStart: cooldownStart,
		})
	}

	return out, rows.Err()
}

// GetDB returns the underlying database connection.
func (s *DBQuotaStorage) GetDB() database.DB {
	return s.db
}
