// dbtool repairs feature_quota rows that violate gate invariants:
// negative counters, cooldown starts written by a clock that was ahead,
// usage counts above the active tier's limit, and cooldowns on rows
// whose usage never reached the limit. Dry-run by default; --apply
// commits the repairs in one transaction.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/JillVernus/feature-gate/internal/database"
	"github.com/JillVernus/feature-gate/internal/limits"
	"github.com/JillVernus/feature-gate/internal/quota"
)

// Seconds of clock skew tolerated before a cooldown_start counts as
// written in the future.
const futureSkewTolerance = 60

type quotaRow struct {
	feature  string
	usage    int
	cooldown int64
}

type repair struct {
	row         quotaRow
	newUsage    int
	newCooldown int64
	reasons     []string
}

func main() {
	log.SetFlags(0)

	dbType := flag.String("db-type", "sqlite", "database type: sqlite or postgresql")
	dbURL := flag.String("db-url", ".config/feature-gate.db", "database connection string")
	limitsPath := flag.String("limits", ".config/limits.json", "path to limits.json")
	apply := flag.Bool("apply", false, "apply changes (default: dry-run)")
	limit := flag.Int("limit", 10, "rows to print in dry-run")
	flag.Parse()

	db, err := database.New(database.Config{Type: database.Dialect(*dbType), URL: *dbURL})
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := ensureSchema(db); err != nil {
		log.Fatalf("schema check: %v", err)
	}

	cfg := loadLimitsConfig(*limitsPath)
	tier := cfg.Tiers[cfg.ActiveTier]
	log.Printf("active tier: %s (unlimited=%v)", cfg.ActiveTier, tier.Unlimited)

	rows, err := loadRows(db)
	if err != nil {
		log.Fatalf("load rows: %v", err)
	}

	repairs := planRepairs(rows, tier, time.Now().Unix())
	log.Printf("rows: %d, repairs needed: %d", len(rows), len(repairs))

	if !*apply {
		if err := printTable(db, *limit); err != nil {
			log.Fatalf("print rows: %v", err)
		}
		for _, rep := range repairs {
			log.Printf("- %s: usage %d -> %d, cooldown_start %d -> %d (%v)",
				rep.row.feature, rep.row.usage, rep.newUsage,
				rep.row.cooldown, rep.newCooldown, rep.reasons)
		}
		log.Printf("dry-run complete (use --apply to update)")
		return
	}

	if len(repairs) == 0 {
		log.Printf("nothing to do")
		return
	}

	tx, err := db.Begin()
	if err != nil {
		log.Fatalf("begin: %v", err)
	}

	for _, rep := range repairs {
		_, err := tx.Exec(`
			UPDATE feature_quota
			SET usage_count = ?, cooldown_start = ?, updated_at = CURRENT_TIMESTAMP
			WHERE feature_key = ?
		`, rep.newUsage, rep.newCooldown, rep.row.feature)
		if err != nil {
			_ = tx.Rollback()
			log.Fatalf("update %s: %v", rep.row.feature, err)
		}
	}

	if err := tx.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}

	log.Printf("repaired rows: %d", len(repairs))
}

// ensureSchema verifies the quota table and its columns exist before
// touching anything.
func ensureSchema(db database.DB) error {
	exists, err := database.TableExists(db, "feature_quota")
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("table feature_quota does not exist (run the server once or dbmigrate first)")
	}

	for _, col := range []string{"feature_key", "usage_count", "cooldown_start", "updated_at"} {
		ok, err := database.ColumnExists(db, "feature_quota", col)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("missing column %q in feature_quota (schema out of date, run migrations)", col)
		}
	}
	return nil
}

// loadLimitsConfig reads limits.json, falling back to the built-in
// defaults when the file is absent or unreadable.
func loadLimitsConfig(path string) limits.Config {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("read %s: %v (using default limits)", path, err)
		}
		return limits.GetDefaultConfig()
	}

	var cfg limits.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Printf("parse %s: %v (using default limits)", path, err)
		return limits.GetDefaultConfig()
	}
	if cfg.ActiveTier == "" || len(cfg.Tiers) == 0 {
		log.Printf("incomplete config in %s (using default limits)", path)
		return limits.GetDefaultConfig()
	}
	return cfg
}

func loadRows(db database.DB) ([]quotaRow, error) {
	rows, err := db.Query("SELECT feature_key, usage_count, cooldown_start FROM feature_quota ORDER BY feature_key")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []quotaRow
	for rows.Next() {
		var r quotaRow
		if err := rows.Scan(&r.feature, &r.usage, &r.cooldown); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func printTable(db database.DB, limit int) error {
	if limit <= 0 {
		return nil
	}

	query := "SELECT feature_key, usage_count, cooldown_start FROM feature_quota ORDER BY feature_key"
	if clause := db.Helper().LimitOffset(limit, 0); clause != "" {
		query += " " + clause
	}

	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()

	log.Printf("current rows:")
	for rows.Next() {
		var r quotaRow
		if err := rows.Scan(&r.feature, &r.usage, &r.cooldown); err != nil {
			return err
		}
		log.Printf("- feature=%s usage_count=%d cooldown_start=%d", r.feature, r.usage, r.cooldown)
	}
	return rows.Err()
}

// planRepairs decides the fix for every invariant violation. It never
// touches rows that merely hold an expired cooldown: the server heals
// those lazily on the next read.
func planRepairs(rows []quotaRow, tier limits.TierLimits, now int64) []repair {
	var out []repair
	for _, row := range rows {
		newUsage, newCooldown := row.usage, row.cooldown
		var reasons []string

		if newUsage < 0 {
			newUsage = 0
			reasons = append(reasons, "negative usage_count")
		}
		if newCooldown < 0 {
			newCooldown = 0
			reasons = append(reasons, "negative cooldown_start")
		}
		if newCooldown > now+futureSkewTolerance {
			newCooldown = 0
			reasons = append(reasons, "cooldown_start in the future")
		}

		if !tier.Unlimited {
			if fl, ok := tier.Features[quota.Feature(row.feature)]; ok && fl.Limit > 0 {
				if newUsage > fl.Limit {
					newUsage = fl.Limit
					reasons = append(reasons, fmt.Sprintf("usage_count above limit %d", fl.Limit))
				}
				if newCooldown != 0 && newUsage < fl.Limit {
					newCooldown = 0
					reasons = append(reasons, "cooldown without exhausted usage")
				}
			}
		}

		if newUsage != row.usage || newCooldown != row.cooldown {
			out = append(out, repair{row: row, newUsage: newUsage, newCooldown: newCooldown, reasons: reasons})
		}
	}
	return out
}

func init() {
	if v := os.Getenv("DBTOOL_LOG_PREFIX"); v != "" {
		log.SetPrefix(v)
	}
}
