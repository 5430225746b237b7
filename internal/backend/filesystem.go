package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/go-git/go-billy/v5"
	"go.uber.org/zap"

	"github.com/Helcaraxan/formulary/internal/logger"
)

type FileSystem struct {
	log     *zap.Logger
	storage billy.Filesystem
}

func NewFileSystem(logBuilder *logger.Builder, fs billy.Filesystem) *FileSystem {
	return &FileSystem{
		log:     logBuilder.Domain(logger.FileSystemDomain).With(zap.String("root", fs.Root())),
		storage: fs,
	}
}

func (s *FileSystem) String() string {
	return s.storage.Root()
}

// Path is the location at which the content for the given key is stored.
func (s *FileSystem) Path(key string) string {
	return s.storage.Join(s.storage.Root(), key)
}

func (s *FileSystem) Fetch(_ context.Context, key string) ([]byte, error) {
	log := s.log.With(zap.String("key", key))

	fd, err := s.storage.Open(key)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug("No file for key.")
		return nil, fetchError(key, ErrNotExist)
	} else if err != nil {
		log.Error("Failed to open file.", zap.Error(err))
		return nil, fetchError(key, err)
	}
	defer func() { _ = fd.Close() }()

	raw, err := io.ReadAll(fd)
	if err != nil {
		log.Error("Failed to read content of file.", zap.Error(err))
		return nil, fetchError(key, err)
	}
	log.Debug("Read file content.", zap.Int("size", len(raw)))
	return raw, nil
}

// Store atomically replaces any content already stored under the key.
func (s *FileSystem) Store(_ context.Context, key string, content []byte) (err error) {
	log := s.log.With(zap.String("key", key))

	dir := path.Dir(key)
	if err = s.storage.MkdirAll(dir, 0o755); err != nil {
		log.Error("Unable to create directory.", zap.Error(err))
		return fmt.Errorf("failed to create directory for %q: %w", key, err)
	}

	tmp, err := s.storage.TempFile(dir, ".pending-")
	if err != nil {
		log.Error("Unable to create temporary file.", zap.Error(err))
		return fmt.Errorf("failed to create temporary file for %q: %w", key, err)
	}
	defer func() {
		if err != nil {
			_ = s.storage.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(content); err != nil {
		_ = tmp.Close()
		log.Error("Failed to write content.", zap.Error(err))
		return fmt.Errorf("failed to write content for %q: %w", key, err)
	}
	if err = tmp.Close(); err != nil {
		log.Error("Failed to close temporary file.", zap.Error(err))
		return fmt.Errorf("failed to close temporary file for %q: %w", key, err)
	}
	if err = s.storage.Rename(tmp.Name(), key); err != nil {
		log.Error("Failed to move content into place.", zap.Error(err))
		return fmt.Errorf("failed to move content for %q into place: %w", key, err)
	}
	log.Debug("Stored content.", zap.Int("size", len(content)))
	return nil
}

// Remove deletes the content stored under the key. Removing an absent key is not an error.
func (s *FileSystem) Remove(key string) error {
	if err := s.storage.Remove(key); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.log.Error("Failed to remove file.", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}
