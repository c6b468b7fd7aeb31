package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/filevault/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-t duration   access token validity
//	-r duration   refresh token validity
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint
//	-x duration   presigned URL expiry
//	-m int        max upload size in bytes
//	-l string     log level
//
// Arguments are filtered with flagx.FilterArgs first so the -c/-config flag
// and anything unknown are left alone. A malformed value panics.
func parseFlags(config *Config, args []string) {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-s", "-t", "-r", "-u", "-p", "-b", "-g", "-e", "-x", "-m", "-l"})

	fs := flag.NewFlagSet("filevault", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.AccessTokenValidityDuration, "t", config.AccessTokenValidityDuration, "access token validity")
	fs.DurationVar(&config.RefreshTokenValidityDuration, "r", config.RefreshTokenValidityDuration, "refresh token validity")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.DurationVar(&config.PresignExpiry, "x", config.PresignExpiry, "presigned URL expiry")
	fs.Int64Var(&config.MaxUploadSize, "m", config.MaxUploadSize, "max upload size in bytes")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
