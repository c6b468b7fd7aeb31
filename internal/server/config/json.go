package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/filevault/internal/flagx"
	"github.com/dmitrijs2005/filevault/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations accept
// "15m" style strings or integer nanoseconds. Omitted fields leave the
// corresponding Config value untouched.
type JsonConfig struct {
	HTTPAddr                     string         `json:"http_addr"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	PresignExpiry                timex.Duration `json:"presign_expiry"`
	MultipartMemory              int64          `json:"multipart_memory"`
	MaxUploadSize                int64          `json:"max_upload_size"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays config with the JSON file named by -c/-config in args.
// Without such a flag nothing happens. An unreadable file or invalid JSON
// panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.HTTPAddr, c.HTTPAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.AccessTokenValidityDuration.Duration > 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration > 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	if c.PresignExpiry.Duration > 0 {
		config.PresignExpiry = c.PresignExpiry.Duration
	}
	if c.MultipartMemory > 0 {
		config.MultipartMemory = c.MultipartMemory
	}
	if c.MaxUploadSize > 0 {
		config.MaxUploadSize = c.MaxUploadSize
	}
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
