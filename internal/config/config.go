package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/davecgh/go-spew/spew"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

const (
	DriverName = "formulary"

	configFileName = DriverName + "_conf.yaml"
)

type Global struct {
	// Prefix under which binaries are installed in 'bin' and receipts are kept.
	Prefix string `yaml:"prefix"`
	// Local download cache.
	CacheDir string `yaml:"cache_dir"`
	// Extra directories searched for formula files before taps and built-in formulae.
	FormulaDirs []string `yaml:"formula_dirs"`

	DisableTaps       bool `yaml:"disable_taps"`
	RequireSignatures bool `yaml:"require_signatures"`

	// API endpoint of a GitHub Enterprise instance used for 'github://' artifact URLs.
	GitHubBaseURL string `yaml:"github_base_url"`

	RemoteCache *Cache `yaml:"remote_cache"`
}

// Parse decodes all configuration files that exist, in increasing order of priority, into conf.
func Parse(log *zap.Logger, conf *Global) error {
	if conf == nil {
		return errors.New("can not parse configuration into nil struct")
	}

	for _, p := range AllDirs() {
		path := filepath.Join(p, configFileName)
		if err := parseFile(conf, path); errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			log.Error("Failed to parse configuration file.", zap.String("path", path), zap.Error(err))
			return err
		}
		log.Debug("Parsed configuration file.", zap.String("path", path))
	}
	if err := conf.Validate(); err != nil {
		log.Error("Invalid configuration.", zap.Error(err))
		return err
	}
	log.Sugar().Debugf("Parsed configuration:\n%+v", spew.Sdump(conf))
	return nil
}

func parseFile(conf *Global, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw), yaml.Strict())
	if err = dec.Decode(conf); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (g *Global) Validate() error {
	if g.RemoteCache != nil {
		return g.RemoteCache.Validate()
	}
	return nil
}

// BinDir is where installed binaries are placed.
func (g *Global) BinDir() string {
	return filepath.Join(g.prefix(), "bin")
}

// ReceiptDir is where the package-manager bookkeeping for installed formulae lives.
func (g *Global) ReceiptDir() string {
	return filepath.Join(g.prefix(), "var", DriverName, "receipts")
}

func (g *Global) DownloadCacheDir() string {
	if g.CacheDir != "" {
		return g.CacheDir
	}
	return CacheDir()
}

func (g *Global) TapDir() string {
	return filepath.Join(DataDir(), "taps")
}

func (g *Global) prefix() string {
	if g.Prefix != "" {
		return g.Prefix
	}
	return DefaultPrefix()
}

func AllDirs() []string {
	// Lowest priority first, so that files can be decoded in order into the same struct with
	// later files overriding earlier ones.
	var dirs []string
	if p := UserDir(); p != "" {
		dirs = append(dirs, p)
	}
	if p := SystemDir(); p != "" {
		dirs = append(dirs, p)
	}
	return dirs
}

// The directory helpers below use the XDG layout under HOME for any platform other than darwin and
// windows.

func SystemDir() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("PROGRAMDATA"), DriverName)
	}
	return filepath.Join("/etc", DriverName)
}

func UserDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), ".config", DriverName)
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), DriverName)
	default:
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
}

func CacheDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Caches", DriverName)
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), DriverName, "cache")
	default:
		return xdgDir("XDG_CACHE_HOME", ".cache")
	}
}

func DataDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(os.Getenv("HOME"), "Library", "Application Support", DriverName)
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), DriverName, "data")
	default:
		return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
	}
}

func DefaultPrefix() string {
	switch runtime.GOOS {
	case "darwin":
		return "/usr/local"
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), DriverName)
	default:
		return filepath.Join(os.Getenv("HOME"), ".local")
	}
}

func xdgDir(env string, homeRelative string) string {
	if p, ok := os.LookupEnv(env); ok && p != "" {
		return filepath.Join(p, DriverName)
	}
	return filepath.Join(os.Getenv("HOME"), homeRelative, DriverName)
}
