package config

import (
	"errors"
	"fmt"
)

var ErrInvalidCacheConfig = errors.New("invalid cache configuration")

// Cache describes a remote download cache shared between machines. At most one of the bucket /
// host settings may be set. A lone PathPrefix denotes a shared filesystem location.
type Cache struct {
	PathPrefix string `yaml:"path_prefix"`

	GCSBucket string `yaml:"gcs_bucket"`
	HTTPSHost string `yaml:"https_host"`
	S3Bucket  string `yaml:"s3_bucket"`

	// Never upload newly fetched artifacts, only read from the cache.
	ReadOnly bool `yaml:"read_only"`
}

func (c *Cache) Validate() error {
	var hostCount int
	for _, h := range []string{c.GCSBucket, c.HTTPSHost, c.S3Bucket} {
		if h != "" {
			hostCount++
		}
	}
	switch {
	case hostCount > 1:
		return fmt.Errorf("%w: multiple remote hosts / buckets found", ErrInvalidCacheConfig)
	case hostCount == 0 && c.PathPrefix == "":
		return fmt.Errorf("%w: no remote host, bucket or path prefix specified", ErrInvalidCacheConfig)
	}
	return nil
}
