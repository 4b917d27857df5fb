package database

import "fmt"

// DialectHelper provides dialect-specific SQL helpers
type DialectHelper struct {
	dialect Dialect
}

// NewDialectHelper creates a new dialect helper
func NewDialectHelper(dialect Dialect) *DialectHelper {
	return &DialectHelper{dialect: dialect}
}

// Placeholder returns the placeholder for the nth parameter (1-indexed)
func (h *DialectHelper) Placeholder(n int) string {
	switch h.dialect {
	case DialectPostgreSQL:
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}

// AutoIncrementPK returns the primary key definition for auto-increment columns
func (h *DialectHelper) AutoIncrementPK() string {
	switch h.dialect {
	case DialectPostgreSQL:
		return "SERIAL PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

// DatetimeType returns the datetime type for the dialect
func (h *DialectHelper) DatetimeType() string {
	switch h.dialect {
	case DialectPostgreSQL:
		return "TIMESTAMP WITH TIME ZONE"
	default:
		return "DATETIME"
	}
}

// LimitOffset returns the LIMIT/OFFSET clause for pagination
func (h *DialectHelper) LimitOffset(limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	if offset > 0 {
		return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
	}
	return fmt.Sprintf("LIMIT %d", limit)
}

// ConvertQuery converts a query with ? placeholders to dialect-specific format
func (h *DialectHelper) ConvertQuery(query string) string {
	return ConvertPlaceholders(query, h.dialect)
}
