package filestore

import (
	"strings"

	"github.com/koustreak/sqlscope/internal/errs"
)

// Provider identifies the file storage backend.
type Provider string

const (
	ProviderMinIO Provider = "minio"
)

// Config holds all settings needed to connect to a file storage backend.
type Config struct {
	// Provider is the storage backend (e.g. ProviderMinIO).
	Provider Provider

	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	// AccessKey is the access key ID (MinIO / S3 style).
	AccessKey string

	// SecretKey is the secret access key.
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends. Leave empty for MinIO.
	Region string

	// Bucket receives uploaded exports.
	Bucket string
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Provider:  ProviderMinIO,
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseSSL:    false,
	}
}

func (cfg *Config) Validate() error {
	if cfg.Provider == "" {
		cfg.Provider = ProviderMinIO
	}
	if cfg.Provider != ProviderMinIO {
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported storage provider %q", cfg.Provider)
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errs.New(errs.ErrKindInvalidInput, "storage endpoint is required")
	}
	if cfg.Bucket == "" {
		return errs.New(errs.ErrKindInvalidInput, "storage bucket is required")
	}
	return nil
}
