package driver

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Helcaraxan/formulary/internal/backend"
	"github.com/Helcaraxan/formulary/internal/config"
	"github.com/Helcaraxan/formulary/internal/formula"
	"github.com/Helcaraxan/formulary/internal/install"
	"github.com/Helcaraxan/formulary/internal/logger"
	"github.com/Helcaraxan/formulary/internal/verify"
)

const (
	testTriple       = "x86_64-unknown-linux-gnu"
	testArtifactName = "mytool-1.0.0-" + testTriple + ".tar.gz"
	testArtifactPath = "/releases/1.0.0/" + testArtifactName
)

var testBinaryContent = []byte("#!/bin/sh\necho mytool\n")

type artifactServer struct {
	*httptest.Server

	mu      sync.Mutex
	content map[string][]byte
	gets    map[string]int
}

func newArtifactServer(t *testing.T) *artifactServer {
	s := &artifactServer{
		content: map[string][]byte{},
		gets:    map[string]int{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.gets[r.URL.Path]++
		b, ok := s.content[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(b)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *artifactServer) serve(path string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[path] = content
}

func (s *artifactServer) requests(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gets[path]
}

type testEnv struct {
	opts       *CommonOpts
	out        *bytes.Buffer
	server     *artifactServer
	formulaDir string
}

func newTestEnv(t *testing.T) *testEnv {
	root := t.TempDir()
	formulaDir := filepath.Join(root, "formulae")
	require.NoError(t, os.MkdirAll(formulaDir, 0o755))

	out := &bytes.Buffer{}
	logBuilder := logger.NewTestBuilder()
	return &testEnv{
		opts: &CommonOpts{
			LogBuilder: logBuilder,
			Log:        logBuilder.Domain(logger.CLIDomain),
			Config: &config.Global{
				Prefix:      filepath.Join(root, "prefix"),
				CacheDir:    filepath.Join(root, "cache"),
				FormulaDirs: []string{formulaDir},
				DisableTaps: true,
			},
			Out: out,
			Err: io.Discard,
		},
		out:        out,
		server:     newArtifactServer(t),
		formulaDir: formulaDir,
	}
}

// writeFormula declares the 'mytool' formula with the given artifact checksum. Any extra YAML is
// appended verbatim.
func (e *testEnv) writeFormula(t *testing.T, digest string, extra string) {
	content := fmt.Sprintf(`name: mytool
version: 1.0.0
description: A tool used in tests
url_template: %s/releases/{version}/{name}-{version}-{triple}.tar.gz
artifacts:
  %s:
    sha256: %s
install:
  - bin: mytool-1.0.0/bin/mytool
%s`, e.server.URL, testTriple, digest, extra)
	require.NoError(t, os.WriteFile(filepath.Join(e.formulaDir, "mytool.yaml"), []byte(content), 0o600))
}

func (e *testEnv) install(ctx context.Context, platform string, arch string) error {
	opts := &installOpts{
		CommonOpts: e.opts,
		target:     targetOpts{platform: platform, arch: arch},
		formulae:   []string{"mytool"},
	}
	return opts.install(ctx)
}

func (e *testEnv) binPath() string {
	return filepath.Join(e.opts.Config.BinDir(), "mytool")
}

func (e *testEnv) cachePath(digest string) string {
	return filepath.Join(e.opts.Config.DownloadCacheDir(), "sha256", digest, testArtifactName)
}

func testArtifact(t *testing.T) ([]byte, string) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range map[string][]byte{
		"mytool-1.0.0/bin/mytool": testBinaryContent,
		"mytool-1.0.0/README.md":  []byte("# mytool\n"),
	} {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(content)), Typeflag: tar.TypeReg}))
		_, err := tw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:])
}

func TestInstall(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	artifact, digest := testArtifact(t)
	e.server.serve(testArtifactPath, artifact)
	e.writeFormula(t, digest, "")

	require.NoError(t, e.install(context.Background(), "linux", "x86_64"))

	content, err := os.ReadFile(e.binPath())
	require.NoError(t, err)
	assert.Equal(t, testBinaryContent, content)
	assert.Contains(t, e.out.String(), "mytool 1.0.0 installed "+e.binPath())
	assert.Equal(t, 1, e.server.requests(testArtifactPath))

	cached, err := os.ReadFile(e.cachePath(digest))
	require.NoError(t, err)
	assert.Equal(t, artifact, cached)

	receipt, err := e.opts.installer().Receipt("mytool")
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", receipt.Version)
	assert.Equal(t, testTriple, receipt.Triple)
	assert.Equal(t, "sha256:"+digest, receipt.Checksum)
	assert.Equal(t, []string{e.binPath()}, receipt.Files)

	// Reinstalling is served from the download cache.
	require.NoError(t, e.install(context.Background(), "linux", "amd64"))
	assert.Equal(t, 1, e.server.requests(testArtifactPath))
}

func TestInstallChecksumMismatch(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	artifact, digest := testArtifact(t)
	e.server.serve(testArtifactPath, append(artifact, 0))
	e.writeFormula(t, digest, "")

	err := e.install(context.Background(), "linux", "x86_64")
	require.Error(t, err)
	assert.True(t, errors.Is(err, verify.ErrChecksumMismatch), err.Error())

	assert.NoFileExists(t, e.binPath())
	assert.NoFileExists(t, e.cachePath(digest))
	_, err = e.opts.installer().Receipt("mytool")
	assert.True(t, errors.Is(err, install.ErrNotInstalled))
}

func TestInstallUnsupportedPlatform(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	_, digest := testArtifact(t)
	e.writeFormula(t, digest, "")

	err := e.install(context.Background(), "darwin", "arm64")
	require.Error(t, err)
	assert.True(t, errors.Is(err, formula.ErrUnsupportedPlatform), err.Error())
	assert.Contains(t, err.Error(), testTriple)

	assert.Equal(t, 0, e.server.requests(testArtifactPath))
	assert.NoDirExists(t, e.opts.Config.BinDir())
	assert.NoDirExists(t, e.opts.Config.DownloadCacheDir())

	for _, target := range [][2]string{{"plan9", "x86_64"}, {"freebsd", "x86_64"}, {"linux", "riscv64"}} {
		err = e.install(context.Background(), target[0], target[1])
		require.Error(t, err, target)
		assert.True(t, errors.Is(err, formula.ErrUnsupportedPlatform), err.Error())
	}
	assert.Equal(t, 0, e.server.requests(testArtifactPath))
}

func TestInstallFetchFailure(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	_, digest := testArtifact(t)
	e.writeFormula(t, digest, "")

	err := e.install(context.Background(), "linux", "x86_64")
	require.Error(t, err)
	assert.True(t, errors.Is(err, backend.ErrFetchFailed), err.Error())
	assert.NoFileExists(t, e.binPath())
}

func TestInstallUnknownFormula(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	opts := &installOpts{
		CommonOpts: e.opts,
		target:     targetOpts{platform: "linux", arch: "x86_64"},
		formulae:   []string{"does-not-exist"},
	}
	err := opts.install(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, formula.ErrUnknownFormula), err.Error())
}

func TestInstallCorruptedCache(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	artifact, digest := testArtifact(t)
	e.server.serve(testArtifactPath, artifact)
	e.writeFormula(t, digest, "")

	require.NoError(t, e.install(context.Background(), "linux", "x86_64"))
	require.NoError(t, os.WriteFile(e.cachePath(digest), []byte("corrupted"), 0o600))

	require.NoError(t, e.install(context.Background(), "linux", "x86_64"))
	assert.Equal(t, 2, e.server.requests(testArtifactPath))

	cached, err := os.ReadFile(e.cachePath(digest))
	require.NoError(t, err)
	assert.Equal(t, artifact, cached)
}

func TestInstallRemoteCache(t *testing.T) {
	t.Parallel()

	remoteDir := t.TempDir()
	artifact, digest := testArtifact(t)
	remoteKey := filepath.Join(remoteDir, "sha256", digest, testArtifactName)

	first := newTestEnv(t)
	first.opts.Config.RemoteCache = &config.Cache{PathPrefix: remoteDir}
	first.server.serve(testArtifactPath, artifact)
	first.writeFormula(t, digest, "")

	require.NoError(t, first.install(context.Background(), "linux", "x86_64"))
	stored, err := os.ReadFile(remoteKey)
	require.NoError(t, err)
	assert.Equal(t, artifact, stored)

	// A machine with an empty local cache is served by the remote cache.
	second := newTestEnv(t)
	second.opts.Config.RemoteCache = &config.Cache{PathPrefix: remoteDir, ReadOnly: true}
	second.writeFormula(t, digest, "")

	require.NoError(t, second.install(context.Background(), "linux", "x86_64"))
	assert.Equal(t, 0, second.server.requests(testArtifactPath))
	assert.FileExists(t, second.cachePath(digest))

	// Read-only caches are never written to.
	third := newTestEnv(t)
	emptyRemote := t.TempDir()
	third.opts.Config.RemoteCache = &config.Cache{PathPrefix: emptyRemote, ReadOnly: true}
	third.server.serve(testArtifactPath, artifact)
	third.writeFormula(t, digest, "")

	require.NoError(t, third.install(context.Background(), "linux", "x86_64"))
	assert.NoFileExists(t, filepath.Join(emptyRemote, "sha256", digest, testArtifactName))
}

func TestInstallSignature(t *testing.T) {
	t.Parallel()

	artifact, digest := testArtifact(t)

	signer, err := openpgp.NewEntity("Formula Maintainer", "test", "maintainer@example.com", &packet.Config{
		Algorithm: packet.PubKeyAlgoEdDSA,
	})
	require.NoError(t, err)

	var publicKey bytes.Buffer
	w, err := armor.Encode(&publicKey, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, signer.Serialize(w))
	require.NoError(t, w.Close())

	var signature bytes.Buffer
	require.NoError(t, openpgp.ArmoredDetachSign(&signature, signer, bytes.NewReader(artifact), nil))

	signatureYAML := "signature:\n  url_template: " + "{SERVER}/releases/{version}/{name}-{triple}.asc\n" +
		"  public_key: |\n    " + strings.ReplaceAll(strings.TrimSpace(publicKey.String()), "\n", "\n    ") + "\n"
	signaturePath := "/releases/1.0.0/mytool-" + testTriple + ".asc"

	t.Run("Valid", func(t *testing.T) {
		t.Parallel()

		e := newTestEnv(t)
		e.server.serve(testArtifactPath, artifact)
		e.server.serve(signaturePath, signature.Bytes())
		e.writeFormula(t, digest, strings.ReplaceAll(signatureYAML, "{SERVER}", e.server.URL))

		require.NoError(t, e.install(context.Background(), "linux", "x86_64"))
		assert.FileExists(t, e.binPath())
		assert.Equal(t, 1, e.server.requests(signaturePath))
	})

	t.Run("Invalid", func(t *testing.T) {
		t.Parallel()

		e := newTestEnv(t)
		e.server.serve(testArtifactPath, artifact)
		var wrong bytes.Buffer
		require.NoError(t, openpgp.ArmoredDetachSign(&wrong, signer, bytes.NewReader([]byte("something else")), nil))
		e.server.serve(signaturePath, wrong.Bytes())
		e.writeFormula(t, digest, strings.ReplaceAll(signatureYAML, "{SERVER}", e.server.URL))

		err := e.install(context.Background(), "linux", "x86_64")
		require.Error(t, err)
		assert.True(t, errors.Is(err, verify.ErrSignatureInvalid), err.Error())
		assert.NoFileExists(t, e.binPath())
		assert.NoFileExists(t, e.cachePath(digest))
	})

	t.Run("Required", func(t *testing.T) {
		t.Parallel()

		e := newTestEnv(t)
		e.opts.Config.RequireSignatures = true
		e.server.serve(testArtifactPath, artifact)
		e.writeFormula(t, digest, "")

		err := e.install(context.Background(), "linux", "x86_64")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrSignatureRequired), err.Error())
		assert.Equal(t, 0, e.server.requests(testArtifactPath))
	})
}

func TestFetch(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	artifact, digest := testArtifact(t)
	e.server.serve(testArtifactPath, artifact)
	e.writeFormula(t, digest, "")

	opts := &fetchOpts{
		CommonOpts: e.opts,
		target:     targetOpts{platform: "linux", arch: "x86_64"},
		formula:    "mytool",
	}
	require.NoError(t, opts.fetch(context.Background()))

	assert.Equal(t, e.cachePath(digest), strings.TrimSpace(e.out.String()))
	assert.FileExists(t, e.cachePath(digest))
	assert.NoDirExists(t, e.opts.Config.BinDir())
}

func TestInfo(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	_, digest := testArtifact(t)
	e.writeFormula(t, digest, "")

	opts := &infoOpts{CommonOpts: e.opts, formula: "mytool"}
	require.NoError(t, opts.info())

	out := e.out.String()
	assert.Contains(t, out, "A tool used in tests")
	assert.Contains(t, out, testTriple)
	assert.Contains(t, out, e.server.URL+testArtifactPath)
	assert.Contains(t, out, "sha256:"+digest)
	assert.NotContains(t, out, "Installed")
}

func TestListAndUninstall(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	artifact, digest := testArtifact(t)
	e.server.serve(testArtifactPath, artifact)
	e.writeFormula(t, digest, "")
	require.NoError(t, e.install(context.Background(), "linux", "x86_64"))

	e.out.Reset()
	require.NoError(t, (&listOpts{CommonOpts: e.opts}).list())
	assert.Regexp(t, `mytool\s+1\.0\.0\s+`+testTriple, e.out.String())

	e.out.Reset()
	require.NoError(t, (&listOpts{CommonOpts: e.opts, available: true}).list())
	assert.Contains(t, e.out.String(), "mytool")
	assert.Contains(t, e.out.String(), "taru-bin")

	e.out.Reset()
	require.NoError(t, (&listOpts{CommonOpts: e.opts, available: true, pattern: "^taru"}).list())
	assert.NotContains(t, e.out.String(), "mytool")
	assert.Contains(t, e.out.String(), "taru-bin")

	assert.Error(t, (&listOpts{CommonOpts: e.opts, pattern: "("}).list())

	uninstall := &uninstallOpts{CommonOpts: e.opts, names: []string{"mytool"}}
	require.NoError(t, uninstall.uninstall(context.Background()))
	assert.NoFileExists(t, e.binPath())

	e.out.Reset()
	require.NoError(t, (&listOpts{CommonOpts: e.opts}).list())
	assert.NotContains(t, e.out.String(), "mytool")

	err := uninstall.uninstall(context.Background())
	assert.True(t, errors.Is(err, install.ErrNotInstalled))
}

func TestTapsDisabled(t *testing.T) {
	t.Parallel()

	e := newTestEnv(t)
	_, err := e.opts.tapManager()
	assert.True(t, errors.Is(err, ErrTapsDisabled))

	err = (&tapAddOpts{CommonOpts: e.opts, name: "acme", url: "https://example.com/acme.git"}).add(context.Background())
	assert.True(t, errors.Is(err, ErrTapsDisabled))
	assert.True(t, errors.Is((&tapListOpts{CommonOpts: e.opts}).list(), ErrTapsDisabled))
	assert.True(t, errors.Is((&tapUpdateOpts{CommonOpts: e.opts}).update(context.Background()), ErrTapsDisabled))
	assert.True(t, errors.Is((&tapRemoveOpts{CommonOpts: e.opts, name: "acme"}).remove(), ErrTapsDisabled))
	assert.Empty(t, e.out.String())

	var names []string
	for _, c := range Tap(e.opts).Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"add", "list", "update", "remove"}, names)

	e.opts.Config.DisableTaps = false
	m, err := e.opts.tapManager()
	require.NoError(t, err)
	assert.Equal(t, e.opts.Config.TapDir(), m.Dir())
}

func TestTargetOpts(t *testing.T) {
	t.Parallel()

	platform, arch := targetOpts{platform: "macos", arch: "aarch64"}.parse()
	assert.Equal(t, "darwin", string(platform))
	assert.Equal(t, "arm64", string(arch))

	platform, arch = targetOpts{platform: "linux", arch: "sparc"}.parse()
	assert.Equal(t, "linux", string(platform))
	assert.Equal(t, "sparc", string(arch))
}
