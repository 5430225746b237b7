package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Helcaraxan/formulary/internal/logger"
)

type HTTPS struct {
	log      *zap.Logger
	timeout  time.Duration
	client   *http.Client
	progress io.Writer

	BaseURL string
}

// NewHTTPS returns a storage rooted at the given base URL. When progress is not nil a progress bar
// is rendered to it for downloads with a known size, unless debug logs are emitted for this domain.
func NewHTTPS(logBuilder *logger.Builder, baseURL string, progress io.Writer) *HTTPS {
	if logBuilder.Enabled(logger.HTTPSDomain, zapcore.DebugLevel) {
		progress = nil
	}
	return &HTTPS{
		log:      logBuilder.Domain(logger.HTTPSDomain),
		timeout:  10 * time.Minute,
		client:   http.DefaultClient,
		progress: progress,
		BaseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *HTTPS) String() string {
	return s.BaseURL
}

func (s *HTTPS) url(key string) string {
	return s.BaseURL + "/" + strings.TrimPrefix(key, "/")
}

func (s *HTTPS) Fetch(ctx context.Context, key string) ([]byte, error) {
	target := s.url(key)
	log := s.log.With(zap.String("url", target))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		log.Error("Failed to create download request.", zap.Error(err))
		return nil, fetchError(target, err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		log.Error("Failed to download artifact.", zap.Error(err))
		return nil, fetchError(target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		log.Debug("Server does not have the requested artifact.")
		return nil, fetchError(target, ErrNotExist)
	case resp.StatusCode != http.StatusOK:
		log.Error("Unexpected response status.", zap.Int("status", resp.StatusCode))
		return nil, fetchError(target, fmt.Errorf("unexpected status %q", resp.Status))
	}

	var (
		buf bytes.Buffer
		dst io.Writer = &buf
	)
	if s.progress != nil && resp.ContentLength > 0 {
		bar := progressbar.NewOptions64(
			resp.ContentLength,
			progressbar.OptionSetWriter(s.progress),
			progressbar.OptionSetDescription("downloading "+key[strings.LastIndex(key, "/")+1:]),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(40),
		)
		defer func() { _ = bar.Finish() }()
		dst = io.MultiWriter(&buf, bar)
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		log.Error("Failed to read response body.", zap.Error(err))
		return nil, fetchError(target, err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		log.Error("Download was truncated.", zap.Int64("expected", resp.ContentLength), zap.Int64("received", n))
		return nil, fetchError(target, io.ErrUnexpectedEOF)
	}
	log.Debug("Finished download.", zap.Int64("size", n))
	return buf.Bytes(), nil
}

// Store uploads the content with a PUT request unless the server already serves the key.
func (s *HTTPS) Store(ctx context.Context, key string, content []byte) error {
	target := s.url(key)
	log := s.log.With(zap.String("url", target))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	head, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		log.Error("Failed to create request.", zap.Error(err))
		return err
	}
	resp, err := s.client.Do(head)
	if err != nil {
		log.Error("Unable to check for existing artifact.", zap.Error(err))
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		log.Debug("Artifact is already present.")
		return nil
	}

	put, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(content))
	if err != nil {
		log.Error("Failed to create upload request.", zap.Error(err))
		return err
	}
	put.Header.Set("Content-Type", "application/octet-stream")
	resp, err = s.client.Do(put)
	if err != nil {
		log.Error("Failed to upload artifact.", zap.Error(err))
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error("Upload was rejected.", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("failed to upload %q: unexpected status %q", target, resp.Status)
	}
	log.Debug("Finished uploading artifact.")
	return nil
}
