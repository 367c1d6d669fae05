// Package config parses environment variables into typed structs.
//
// Struct fields are annotated with caarlos0/env tags. A .env file in the
// working directory is loaded once through godotenv before the first parse;
// values already present in the process environment win. Parsed structs are
// cached per type so components can call Load freely.
//
//	type Config struct {
//	    Workers int `env:"WEBHOOK_WORKERS" envDefault:"8"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
package config
