package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/keycatalog/internal/flagx"
	"github.com/dmitrijs2005/keycatalog/internal/timex"
)

// JsonConfig is the JSON file layout. Every field is optional; absent
// fields leave the current value untouched. Durations accept "720h" style
// strings or integer nanoseconds.
type JsonConfig struct {
	EndpointAddrHTTP            *string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC            *string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                 *string         `json:"database_dsn"`
	SecretKey                   *string         `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	ArtifactBackend             *string         `json:"artifact_backend"`
	ArtifactDir                 *string         `json:"artifact_dir"`
	PublicURL                   *string         `json:"public_url"`
	S3RootUser                  *string         `json:"s3_root_user"`
	S3RootPassword              *string         `json:"s3_root_password"`
	S3Bucket                    *string         `json:"s3_bucket"`
	S3Region                    *string         `json:"s3_region"`
	S3BaseEndpoint              *string         `json:"s3_base_endpoint"`
	KeyPageSize                 *int            `json:"key_page_size"`
	LinePageSize                *int            `json:"line_page_size"`
	LogLevel                    *string         `json:"log_level"`
	LogBackend                  *string         `json:"log_backend"`
	Environment                 *string         `json:"environment"`
}

// parseJson loads configuration values from the JSON file named by the -c
// or -config flag. Without the flag nothing is loaded. An unreadable file or
// invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setIf(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setIf(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setIf(&config.DatabaseDSN, c.DatabaseDSN)
	setIf(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration != nil {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
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
