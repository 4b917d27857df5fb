// dbmigrate copies feature quota data between storage databases,
// typically when promoting a local SQLite file to a shared PostgreSQL
// instance. It can also report the schema migration status of a single
// database with -status.
package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/JillVernus/feature-gate/internal/database"
)

var (
	srcType = flag.String("src-type", "sqlite", "Source database type: sqlite or postgresql")
	srcURL  = flag.String("src-url", ".config/feature-gate.db", "Source database connection string")
	dstType = flag.String("dst-type", "postgresql", "Destination database type: sqlite or postgresql")
	dstURL  = flag.String("dst-url", "", "Destination database connection string")
	dryRun  = flag.Bool("dry-run", false, "Print SQL without executing")
	status  = flag.Bool("status", false, "Print migration status of the source database and exit")
)

// Table copy order. schema_migrations is intentionally absent: the
// destination gets its schema from RunMigrations, not from a copy.
var copyOrder = []string{
	"feature_quota",
}

func main() {
	flag.Parse()

	src, err := database.New(database.Config{Type: database.Dialect(*srcType), URL: *srcURL})
	if err != nil {
		log.Fatalf("Failed to open source database: %v", err)
	}
	defer src.Close()

	if *status {
		printStatus(src)
		return
	}

	if *dstURL == "" && !*dryRun {
		log.Fatal("--dst-url is required (or use --dry-run)")
	}

	if *dryRun {
		log.Println("=== DRY RUN MODE - SQL will be printed, not executed ===")
		if err := exportToSQL(src, database.Dialect(*dstType)); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		return
	}

	dst, err := database.New(database.Config{Type: database.Dialect(*dstType), URL: *dstURL})
	if err != nil {
		log.Fatalf("Failed to open destination database: %v", err)
	}
	defer dst.Close()

	log.Println("Running schema migrations on destination database...")
	if err := database.RunMigrations(dst); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	for _, table := range copyOrder {
		if err := copyTable(src, dst, table); err != nil {
			log.Printf("Warning: Failed to copy table %s: %v", table, err)
		}
	}

	log.Println("Migration completed successfully!")
}

// printStatus reports applied vs. pending schema migrations.
func printStatus(db database.DB) {
	current, available, pending, err := database.GetMigrationStatus(db)
	if err != nil {
		log.Fatalf("Failed to read migration status: %v", err)
	}

	fmt.Printf("Dialect:    %s\n", db.Dialect())
	fmt.Printf("Applied:    %d\n", current)
	fmt.Printf("Available:  %d\n", available)
	if len(pending) == 0 {
		fmt.Println("Schema is up to date.")
		return
	}
	fmt.Printf("Pending:    %d\n", len(pending))
	for _, m := range pending {
		fmt.Printf("  %03d %s\n", m.Version, m.Name)
	}
}

func copyTable(src, dst database.DB, table string) error {
	exists, err := database.TableExists(src, table)
	if err != nil {
		return err
	}
	if !exists {
		log.Printf("Skipping table %s (does not exist in source)", table)
		return nil
	}

	log.Printf("Copying table: %s", table)

	rows, err := src.Query(fmt.Sprintf("SELECT * FROM %s", table))
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	count := 0
	for rows.Next() {
		values := make([]interface{}, len(cols))
		valuePtrs := make([]interface{}, len(cols))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return err
		}

		if err := insertRow(dst, table, cols, values); err != nil {
			log.Printf("Warning: Failed to insert row into %s: %v", table, err)
		} else {
			count++
		}
	}

	log.Printf("Copied %d rows to %s", count, table)
	return rows.Err()
}

func insertRow(dst database.DB, table string, cols []string, values []interface{}) error {
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = dst.Helper().Placeholder(i + 1)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		table,
		strings.Join(cols, ", "),
		strings.Join(placeholders, ", "),
	)

	_, err := dst.Exec(query, values...)
	return err
}

// exportToSQL prints destination-dialect INSERT statements for piping
// into psql or the sqlite3 shell.
func exportToSQL(src database.DB, dstDialect database.Dialect) error {
	for _, table := range copyOrder {
		exists, err := database.TableExists(src, table)
		if err != nil {
			return err
		}
		if !exists {
			log.Printf("Skipping table %s (does not exist in source)", table)
			continue
		}

		log.Printf("-- Exporting table: %s", table)

		rows, err := src.Query(fmt.Sprintf("SELECT * FROM %s", table))
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", table, err)
		}

		cols, err := rows.Columns()
		if err != nil {
			rows.Close()
			return err
		}

		count := 0
		for rows.Next() {
			values := make([]interface{}, len(cols))
			valuePtrs := make([]interface{}, len(cols))
			for i := range values {
				valuePtrs[i] = &values[i]
			}

			if err := rows.Scan(valuePtrs...); err != nil {
				rows.Close()
				return err
			}

			fmt.Println(buildInsertSQL(table, cols, values, dstDialect))
			count++
		}
		rows.Close()

		log.Printf("-- Exported %d rows from %s", count, table)
	}

	return nil
}

func buildInsertSQL(table string, cols []string, values []interface{}, dialect database.Dialect) string {
	var valueStrs []string
	for _, v := range values {
		valueStrs = append(valueStrs, formatValue(v, dialect))
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING;",
		table,
		strings.Join(cols, ", "),
		strings.Join(valueStrs, ", "),
	)
}

func formatValue(v interface{}, dialect database.Dialect) string {
	if v == nil {
		return "NULL"
	}

	switch val := v.(type) {
	case bool:
		if dialect == database.DialectPostgreSQL {
			if val {
				return "TRUE"
			}
			return "FALSE"
		}
		if val {
			return "1"
		}
		return "0"
	case int, int64, float64:
		return fmt.Sprintf("%v", val)
	case time.Time:
		if dialect == database.DialectPostgreSQL {
			return fmt.Sprintf("'%s'", val.Format("2006-01-02 15:04:05.999999-07:00"))
		}
		return fmt.Sprintf("'%s'", val.Format("2006-01-02 15:04:05"))
	case []byte:
		return fmt.Sprintf("'%s'", escapeString(string(val)))
	case string:
		return fmt.Sprintf("'%s'", escapeString(val))
	default:
		return fmt.Sprintf("'%v'", escapeString(fmt.Sprintf("%v", v)))
	}
}

func escapeString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
