package sqlite

type Config struct {
	Path string `env:"SQLITE_PATH" envDefault:"data/paywall.db"` // Path is the database file, or ":memory:".
}
