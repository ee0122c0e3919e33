package database

import (
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// connParams are applied to every connection: foreign keys so ShareLink rows
// cannot outlive their Item, and case-sensitive LIKE because SQLite's default
// LIKE ignores ASCII case and substring search must match exactly.
const connParams = "_foreign_keys=on&_case_sensitive_like=on"

// Connect opens the SQLite database at the given path. The path may already
// carry DSN parameters of its own.
func Connect(dsn string) (*gorm.DB, error) {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	db, err := gorm.Open(sqlite.Open(dsn+sep+connParams), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}
