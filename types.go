package novasql

import "github.com/nova-storage/novasql/internal/engine"

// Package novasql is the top-level facade for NovaSQL engine. Fixing golangci-lint
type Database = engine.Database
