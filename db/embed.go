// Package db embeds the order service schema.
package db

import _ "embed"

// Schema contains the DDL for the orders table, its status constraints,
// and its indexes. It is idempotent and applied on every startup.
//
//go:embed migrations/001_schema.sql
var Schema string
