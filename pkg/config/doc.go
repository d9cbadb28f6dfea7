// Package config loads typed configuration from the process environment.
//
// It combines github.com/joho/godotenv for optional .env files with
// github.com/caarlos0/env/v11 for struct tag parsing:
//
//	type Config struct {
//		StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
//		Postgres    pg.Config
//	}
//
//	cfg, err := config.Load[Config]()
//
// Nested structs are parsed recursively, so package level Config types such as
// pg.Config or httpserver.Config can be embedded in an application config.
//
// Failures wrap ErrParsingConfig or ErrLoadingEnvFile and can be checked with
// errors.Is.
package config
