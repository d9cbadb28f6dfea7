package sqlite

import "errors"

var (
	ErrFailedToOpenDB     = errors.New("failed to open sqlite database")
	ErrFailedToInitSchema = errors.New("failed to initialize sqlite schema")
	ErrHealthcheckFailed  = errors.New("sqlite healthcheck failed")
	ErrEmptyDatabasePath  = errors.New("empty sqlite path, use SQLITE_PATH env var")
)
