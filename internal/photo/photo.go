// Package photo stores the pictures attached to finished recipes, on the
// local filesystem or in an S3-compatible bucket.
package photo

import (
	"context"
	"fmt"
	"strings"

	"github.com/hammamikhairi/mealscribe/internal/domain"
	"github.com/hammamikhairi/mealscribe/internal/logger"
)

// Drivers accepted by Open.
const (
	DriverNone = "none"
	DriverFS   = "fs"
	DriverS3   = "s3"
)

// Checker is implemented by stores that can verify a recorded path.
type Checker interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Config selects and configures a photo driver.
type Config struct {
	Driver string `yaml:"driver"`
	Dir    string `yaml:"dir"`

	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
}

// Open builds the store named by cfg.Driver. DriverNone returns nil, which
// the engine treats as "photos disabled".
func Open(ctx context.Context, cfg Config, log *logger.Logger) (domain.PhotoStore, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverNone:
		return nil, nil
	case DriverFS:
		s, err := NewFSStore(cfg.Dir, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverS3:
		s, err := NewS3Store(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			PathStyle:       cfg.PathStyle,
		}, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%w: unknown photo driver %q", domain.ErrValidation, cfg.Driver)
	}
}
