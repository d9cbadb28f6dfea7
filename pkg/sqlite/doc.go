// Package sqlite opens a modernc.org/sqlite database carrying the same tables
// as the PostgreSQL migrations, for local development and tests.
//
//	db, err := sqlite.Open(ctx, sqlite.Config{Path: sqlite.MemoryPath})
//
// Timestamps are stored as Unix nanoseconds in INTEGER columns.
package sqlite
