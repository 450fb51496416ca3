// Package config loads application configuration from environment
// variables into annotated structs.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11: the
// default .env file is loaded once per process, then env.Parse fills the
// struct from field tags. Load returns errors; MustLoad panics, for
// configuration the process cannot run without.
//
//	type PaymentConfig struct {
//		APIKey      string `env:"PADDLE_API_KEY,required"`
//		Environment string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
//	}
//
//	var cfg PaymentConfig
//	config.MustLoad(&cfg)
package config
