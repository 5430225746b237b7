package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/Helcaraxan/formulary/internal/config"
	"github.com/Helcaraxan/formulary/internal/logger"
)

// Storage is a location from which artifacts can be fetched and, unless it is read-only, to which
// they can be stored. Keys are slash-separated paths relative to the storage's root.
type Storage interface {
	fmt.Stringer
	Fetch(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, content []byte) error
}

var (
	// To guarantee that implementations remain compatible with the interface.
	_ Storage = &FileSystem{}
	_ Storage = &GCS{}
	_ Storage = &GitHub{}
	_ Storage = &HTTPS{}
	_ Storage = &S3{}
	_ Storage = &prefixed{}
)

var (
	// ErrFetchFailed wraps every failure to obtain an artifact's content.
	ErrFetchFailed = errors.New("failed to fetch artifact")
	// ErrNotExist is additionally wrapped when the storage does not hold the requested key.
	ErrNotExist = errors.New("no such artifact")
	ErrReadOnly = errors.New("storage is read-only")
)

type Options struct {
	// Used instead of api.github.com for 'github://' URLs.
	GitHubBaseURL string
	// Receives a progress bar for HTTP(S) downloads. Nil disables progress reporting.
	Progress io.Writer
}

// ForURL returns the storage that serves the given artifact URL together with the key of the
// artifact inside that storage. Supported schemes are 'https', 'http', 'github', 'gs', 's3' and
// 'file'. A URL without scheme is treated as a local path.
func ForURL(ctx context.Context, logBuilder *logger.Builder, rawURL string, opts Options) (Storage, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "" && len(u.Scheme) == 1) {
		// Not a URL or a Windows drive letter.
		return forPath(logBuilder, rawURL)
	}

	key := strings.TrimPrefix(u.EscapedPath(), "/")
	switch u.Scheme {
	case "":
		return forPath(logBuilder, rawURL)

	case "file":
		return forPath(logBuilder, filepath.FromSlash(u.Path))

	case "http", "https":
		if u.RawQuery != "" {
			key += "?" + u.RawQuery
		}
		return NewHTTPS(logBuilder, u.Scheme+"://"+u.Host, opts.Progress), key, nil

	case "github":
		parts := strings.Split(strings.TrimPrefix(u.Path, "/"), "/")
		if u.Host == "" || len(parts) != 3 {
			return nil, "", fmt.Errorf("%w: %q is not of the form github://<owner>/<repo>/<tag>/<asset>", ErrFetchFailed, rawURL)
		}
		gh, err := NewGitHub(logBuilder, u.Host, parts[0], opts.GitHubBaseURL)
		if err != nil {
			return nil, "", err
		}
		return gh, path.Join(parts[1], parts[2]), nil

	case "gs":
		gcs, err := NewGCS(ctx, logBuilder, u.Host)
		if err != nil {
			return nil, "", err
		}
		return gcs, key, nil

	case "s3":
		s3, err := NewS3(ctx, logBuilder, u.Host)
		if err != nil {
			return nil, "", err
		}
		return s3, key, nil

	default:
		return nil, "", fmt.Errorf("%w: unsupported URL scheme %q in %q", ErrFetchFailed, u.Scheme, rawURL)
	}
}

func forPath(logBuilder *logger.Builder, p string) (Storage, string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %q is not a usable path: %w", ErrFetchFailed, p, err)
	}
	return NewFileSystem(logBuilder, osfs.New(filepath.Dir(abs))), filepath.Base(abs), nil
}

// NewCache returns the remote download cache described by the configuration.
func NewCache(ctx context.Context, logBuilder *logger.Builder, c *config.Cache) (Storage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	var (
		s   Storage
		err error
	)
	switch {
	case c.GCSBucket != "":
		s, err = NewGCS(ctx, logBuilder, c.GCSBucket)
	case c.S3Bucket != "":
		s, err = NewS3(ctx, logBuilder, c.S3Bucket)
	case c.HTTPSHost != "":
		s = NewHTTPS(logBuilder, "https://"+c.HTTPSHost, nil)
	default:
		return NewFileSystem(logBuilder, osfs.New(c.PathPrefix)), nil
	}
	if err != nil {
		return nil, err
	}
	return WithPrefix(s, c.PathPrefix), nil
}

// WithPrefix places all keys of the given storage under the prefix.
func WithPrefix(s Storage, prefix string) Storage {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return s
	}
	return &prefixed{Storage: s, prefix: prefix}
}

type prefixed struct {
	Storage
	prefix string
}

func (p *prefixed) String() string {
	return p.Storage.String() + "/" + p.prefix
}

func (p *prefixed) Fetch(ctx context.Context, key string) ([]byte, error) {
	return p.Storage.Fetch(ctx, path.Join(p.prefix, key))
}

func (p *prefixed) Store(ctx context.Context, key string, content []byte) error {
	return p.Storage.Store(ctx, path.Join(p.prefix, key), content)
}

func fetchError(key string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrFetchFailed, key, err)
}
