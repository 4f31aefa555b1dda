package storage

// Package storage persists popup reappearance records across page loads.
//
// It is a small string key/value store shaped like the browser's
// localStorage, with three drivers:
//   - "memory": process-local map (tests, single page session)
//   - "file":   JSON-lines journal + periodic snapshot
//   - "sqlite": SQLite database file (modernc, pure Go)
