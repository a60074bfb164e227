package sql

import (
	"embed"
)

// Content holds the schema files applied by database.Migrate, in name order.
//
//go:embed schema/*.sql
var Content embed.FS
