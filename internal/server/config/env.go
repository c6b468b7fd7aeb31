package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "FILEVAULT_"

// parseEnv overlays Config with FILEVAULT_* environment variables. Variables
// from envFile are loaded first without overriding ones already set in the
// process environment; a missing file is not an error.
//
// A malformed duration or integer panics, like a broken JSON config does.
func parseEnv(config *Config, envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			panic(err)
		}
	}

	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				panic(err)
			}
			*dst = d
		}
	}
	i64 := func(name string, dst *int64) {
		if v, ok := os.LookupEnv(envPrefix + name); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				panic(err)
			}
			*dst = n
		}
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("SECRET_KEY", &config.SecretKey)
	dur("ACCESS_TOKEN_TTL", &config.AccessTokenValidityDuration)
	dur("REFRESH_TOKEN_TTL", &config.RefreshTokenValidityDuration)
	str("S3_ROOT_USER", &config.S3RootUser)
	str("S3_ROOT_PASSWORD", &config.S3RootPassword)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_REGION", &config.S3Region)
	str("S3_BASE_ENDPOINT", &config.S3BaseEndpoint)
	dur("PRESIGN_EXPIRY", &config.PresignExpiry)
	i64("MULTIPART_MEMORY", &config.MultipartMemory)
	i64("MAX_UPLOAD_SIZE", &config.MaxUploadSize)
	str("LOG_LEVEL", &config.LogLevel)
}
