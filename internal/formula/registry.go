package formula

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Helcaraxan/formulary/internal/tap"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Registry finds formulae by reference. References are either a path to a formula file, a
// '<tap>/<name>' pair or a bare name.
type Registry struct {
	log *zap.Logger

	dirs    []string
	tapsDir string
}

// NewRegistry returns a registry that searches the given formula directories, then the taps cloned
// under tapsDir, and finally the formulae shipped with this binary. An empty tapsDir disables taps.
func NewRegistry(log *zap.Logger, dirs []string, tapsDir string) *Registry {
	return &Registry{
		log:     log,
		dirs:    dirs,
		tapsDir: tapsDir,
	}
}

func (r *Registry) Lookup(ref string) (*Descriptor, error) {
	log := r.log.With(zap.String("formula", ref))

	if isFilePath(ref) {
		log.Debug("Loading formula from file.")
		return LoadFile(log, ref)
	}

	if tapName, name, ok := strings.Cut(ref, "/"); ok {
		if !namePattern.MatchString(tapName) || !namePattern.MatchString(name) {
			log.Error("Not a valid formula reference.")
			return nil, fmt.Errorf("%w: %q is not a valid reference", ErrUnknownFormula, ref)
		}
		if r.tapsDir == "" {
			log.Error("Taps are disabled in the configuration.")
			return nil, fmt.Errorf("%w: %q refers to a tap but taps are disabled", ErrUnknownFormula, ref)
		}
		return r.load(log, filepath.Join(r.tapsDir, tapName, tap.FormulaDir, name+".yaml"), name)
	}

	if !namePattern.MatchString(ref) {
		log.Error("Not a valid formula reference.")
		return nil, fmt.Errorf("%w: %q is not a valid reference", ErrUnknownFormula, ref)
	}

	for _, dir := range r.candidateDirs() {
		d, err := r.load(log, filepath.Join(dir, ref+".yaml"), ref)
		if errors.Is(err, ErrUnknownFormula) {
			continue
		}
		return d, err
	}

	raw, err := builtinFS.ReadFile("builtin/" + ref + ".yaml")
	if err == nil {
		log.Debug("Using built-in formula.")
		return Parse(log, raw, "builtin:"+ref)
	}

	log.Error("Could not find formula.", zap.Strings("searched", r.candidateDirs()))
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormula, ref)
}

// All returns every formula that a bare name can resolve to, ordered by name. Where several sources
// provide the same name only the one that Lookup would pick is returned.
func (r *Registry) All() ([]*Descriptor, error) {
	seen := map[string]bool{}
	var all []*Descriptor

	for _, dir := range r.candidateDirs() {
		paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			return nil, err
		}
		sort.Strings(paths)
		for _, p := range paths {
			name := strings.TrimSuffix(filepath.Base(p), ".yaml")
			if seen[name] {
				continue
			}
			d, err := r.load(r.log.With(zap.String("formula", name)), p, name)
			if err != nil {
				return nil, err
			}
			seen[name] = true
			all = append(all, d)
		}
	}

	entries, err := fs.ReadDir(builtinFS, "builtin")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".yaml")
		if seen[name] {
			continue
		}
		raw, err := builtinFS.ReadFile("builtin/" + e.Name())
		if err != nil {
			return nil, err
		}
		d, err := Parse(r.log, raw, "builtin:"+name)
		if err != nil {
			return nil, err
		}
		seen[name] = true
		all = append(all, d)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all, nil
}

func (r *Registry) load(log *zap.Logger, path string, name string) (*Descriptor, error) {
	d, err := LoadFile(log, path)
	if err != nil {
		return nil, err
	}
	if d.Name != name {
		log.Error("Formula file declares a different name.", zap.String("path", path), zap.String("declared", d.Name))
		return nil, fmt.Errorf("%w: %q declares name %q instead of %q", ErrInvalidFormula, path, d.Name, name)
	}
	return d, nil
}

func (r *Registry) candidateDirs() []string {
	dirs := append([]string{}, r.dirs...)
	if r.tapsDir == "" {
		return dirs
	}

	entries, err := os.ReadDir(r.tapsDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("Could not list taps.", zap.String("path", r.tapsDir), zap.Error(err))
		}
		return dirs
	}
	// ReadDir returns entries sorted by name.
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(r.tapsDir, e.Name(), tap.FormulaDir))
		}
	}
	return dirs
}

func isFilePath(ref string) bool {
	return strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml")
}
