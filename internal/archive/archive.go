package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"go.uber.org/zap"
)

var ErrNotFound = errors.New("path not found in archive")

type Format string

const (
	FormatRaw    Format = "raw"
	FormatTar    Format = "tar"
	FormatTarGz  Format = "tar.gz"
	FormatTarXz  Format = "tar.xz"
	FormatTarZst Format = "tar.zst"
	FormatZip    Format = "zip"
)

// Detect determines the archive format from the name of an artifact. Names without a recognised
// archive suffix are considered to be the binary itself.
func Detect(name string) Format {
	name = strings.ToLower(name)
	switch {
	case strings.HasSuffix(name, ".zip"):
		return FormatZip
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		return FormatTarGz
	case strings.HasSuffix(name, ".tar.xz"), strings.HasSuffix(name, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(name, ".tar.zst"), strings.HasSuffix(name, ".tzst"):
		return FormatTarZst
	case strings.HasSuffix(name, ".tar"):
		return FormatTar
	default:
		return FormatRaw
	}
}

// Extract returns the content of each requested member of the archive, keyed by the requested path.
// The artifact name determines the archive format. For raw artifacts the content itself is returned
// for the single requested path. When every file in the archive sits under one top-level directory,
// requested paths are also looked up relative to that directory.
func Extract(log *zap.Logger, raw []byte, artifactName string, paths []string) (map[string][]byte, error) {
	format := Detect(artifactName)
	log = log.With(zap.String("artifact", artifactName), zap.String("format", string(format)))

	if len(paths) == 0 {
		return nil, errors.New("no paths to extract were specified")
	}

	var (
		members map[string][]byte
		err     error
	)
	switch format {
	case FormatRaw:
		if len(paths) != 1 {
			log.Error("A non-archive artifact can only provide a single file.", zap.Strings("paths", paths))
			return nil, fmt.Errorf("artifact %q is not an archive but %d files were requested", artifactName, len(paths))
		}
		log.Debug("Using the fetched content as the binary itself.")
		return map[string][]byte{paths[0]: raw}, nil

	case FormatZip:
		members, err = readZIP(log, raw)

	case FormatTar, FormatTarGz, FormatTarXz, FormatTarZst:
		var rc io.ReadCloser
		if rc, err = decompressor(log, format, raw); err != nil {
			return nil, err
		}
		members, err = readTAR(log, rc)
		_ = rc.Close()
	}
	if err != nil {
		return nil, err
	}

	root := commonRoot(members)
	found := make(map[string][]byte, len(paths))
	for _, p := range paths {
		n := normalise(p)
		content, ok := members[n]
		if !ok && root != "" {
			content, ok = members[path.Join(root, n)]
		}
		if !ok {
			log.Error("Path not found in archive.", zap.String("archive-path", n), zap.String("root", root))
			return nil, fmt.Errorf("%w: %q in %q", ErrNotFound, p, artifactName)
		}
		found[p] = content
	}
	log.Debug("Successfully read files from archive.", zap.Int("count", len(found)))
	return found, nil
}

// commonRoot returns the top-level directory shared by all members, if there is exactly one.
func commonRoot(members map[string][]byte) string {
	var root string
	for name := range members {
		dir, _, ok := strings.Cut(name, "/")
		if !ok || (root != "" && dir != root) {
			return ""
		}
		root = dir
	}
	return root
}

func decompressor(log *zap.Logger, format Format, raw []byte) (io.ReadCloser, error) {
	switch format {
	case FormatTarGz:
		log.Debug("Applying a GZIP decoder on the fetched content.")
		rd, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			log.Error("Failed to open fetched content with a GZIP reader.", zap.Error(err))
			return nil, fmt.Errorf("failed to open gzip reader for fetched content: %w", err)
		}
		return rd, nil

	case FormatTarXz:
		log.Debug("Applying an XZ decoder on the fetched content.")
		rd, err := xz.NewReader(bytes.NewReader(raw))
		if err != nil {
			log.Error("Failed to open fetched content with an XZ reader.", zap.Error(err))
			return nil, fmt.Errorf("failed to open xz reader for fetched content: %w", err)
		}
		return io.NopCloser(rd), nil

	case FormatTarZst:
		log.Debug("Applying a Zstandard decoder on the fetched content.")
		rd, err := zstd.NewReader(bytes.NewReader(raw), zstd.WithDecoderConcurrency(1))
		if err != nil {
			log.Error("Failed to open fetched content with a Zstandard reader.", zap.Error(err))
			return nil, fmt.Errorf("failed to open zstd reader for fetched content: %w", err)
		}
		// Closing releases the decoder.
		return rd.IOReadCloser(), nil

	default:
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
}

// readZIP returns the content of every regular file in the archive keyed by its normalised name.
func readZIP(log *zap.Logger, raw []byte) (map[string][]byte, error) {
	log.Debug("Reading the fetched content as a ZIP archive.")
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		log.Error("Failed to open content with a ZIP reader.", zap.Error(err))
		return nil, fmt.Errorf("failed to open fetched content as zip archive: %w", err)
	}

	members := map[string][]byte{}
	for _, f := range zr.File {
		if !f.FileInfo().Mode().IsRegular() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			log.Error("Failed to open archive member for reading.", zap.String("archive-path", f.Name), zap.Error(err))
			return nil, fmt.Errorf("failed to open %q inside fetched content: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			log.Error("Failed to read archive member.", zap.String("archive-path", f.Name), zap.Error(err))
			return nil, fmt.Errorf("failed to read %q inside fetched content: %w", f.Name, err)
		}
		members[normalise(f.Name)] = content
	}
	return members, nil
}

// readTAR returns the content of every regular file in the archive keyed by its normalised name.
func readTAR(log *zap.Logger, rd io.Reader) (map[string][]byte, error) {
	log.Debug("Reading the fetched content as a TAR archive.")
	tr := tar.NewReader(rd)

	members := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return members, nil
		} else if err != nil {
			log.Error("Failed to read archive.", zap.Error(err))
			return nil, fmt.Errorf("failed to read fetched content as tar archive: %w", err)
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			log.Error("Failed to read archive member.", zap.String("archive-path", hdr.Name), zap.Error(err))
			return nil, fmt.Errorf("failed to read %q inside fetched content: %w", hdr.Name, err)
		}
		members[normalise(hdr.Name)] = content
	}
}

func normalise(p string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(p, "\\", "/")), "/")
}
