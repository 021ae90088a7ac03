package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/dmitrijs2005/keycatalog/internal/flagx"
	"github.com/joho/godotenv"
)

// EnvConfig mirrors Config for environment decoding. Pointer fields leave
// the current value alone when the variable is unset.
type EnvConfig struct {
	EndpointAddrHTTP            *string        `env:"HTTP_ADDR"`
	EndpointAddrGRPC            *string        `env:"GRPC_ADDR"`
	DatabaseDSN                 *string        `env:"DATABASE_DSN"`
	SecretKey                   *string        `env:"SECRET_KEY"`
	AccessTokenValidityDuration *time.Duration `env:"ACCESS_TOKEN_VALIDITY"`
	ArtifactBackend             *string        `env:"ARTIFACT_BACKEND"`
	ArtifactDir                 *string        `env:"ARTIFACT_DIR"`
	PublicURL                   *string        `env:"PUBLIC_URL"`
	S3RootUser                  *string        `env:"S3_ROOT_USER"`
	S3RootPassword              *string        `env:"S3_ROOT_PASSWORD"`
	S3Bucket                    *string        `env:"S3_BUCKET"`
	S3Region                    *string        `env:"S3_REGION"`
	S3BaseEndpoint              *string        `env:"S3_BASE_ENDPOINT"`
	KeyPageSize                 *int           `env:"KEY_PAGE_SIZE"`
	LinePageSize                *int           `env:"LINE_PAGE_SIZE"`
	LogLevel                    *string        `env:"LOG_LEVEL"`
	LogBackend                  *string        `env:"LOG_BACKEND"`
	Environment                 *string        `env:"ENVIRONMENT"`
}

const envPrefix = "KEYCATALOG_"

// parseEnv loads an optional dotenv file (-f/-envfile, or ./.env when
// present) into the process environment and overlays KEYCATALOG_* variables
// onto config. A malformed variable panics, like a malformed JSON file.
func parseEnv(config *Config) {
	if path := flagx.EnvFileFlags(); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	c := EnvConfig{}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: envPrefix}); err != nil {
		panic(err)
	}

	setIf(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setIf(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setIf(&config.DatabaseDSN, c.DatabaseDSN)
	setIf(&config.SecretKey, c.SecretKey)
	setIf(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setIf(&config.ArtifactBackend, c.ArtifactBackend)
	setIf(&config.ArtifactDir, c.ArtifactDir)
	setIf(&config.PublicURL, c.PublicURL)
	setIf(&config.S3RootUser, c.S3RootUser)
	setIf(&config.S3RootPassword, c.S3RootPassword)
	setIf(&config.S3Bucket, c.S3Bucket)
	setIf(&config.S3Region, c.S3Region)
	setIf(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setIf(&config.KeyPageSize, c.KeyPageSize)
	setIf(&config.LinePageSize, c.LinePageSize)
	setIf(&config.LogLevel, c.LogLevel)
	setIf(&config.LogBackend, c.LogBackend)
	setIf(&config.Environment, c.Environment)
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
