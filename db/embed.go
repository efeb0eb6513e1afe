// Package db embeds the database schema and the demo catalog.
package db

import _ "embed"

// Schema contains the idempotent DDL for all tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// Catalog is the demo catalog loaded by seed-db and by the in-memory store.
//
//go:embed seed/catalog.json
var Catalog []byte
