// Package formula defines package descriptors, the declarative recipes from which a prebuilt binary
// is resolved, fetched, verified and installed.
package formula

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/Helcaraxan/formulary/internal/tool"
	"github.com/Helcaraxan/formulary/internal/verify"
)

var (
	ErrInvalidFormula      = errors.New("invalid formula")
	ErrUnknownFormula      = errors.New("unknown formula")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

var (
	namePattern    = regexp.MustCompile(`^[a-z0-9][a-z0-9+_.@-]*$`)
	versionPattern = regexp.MustCompile(`^v?[0-9]+(\.[0-9A-Za-z-]+)*([+-][0-9A-Za-z.-]+)?$`)
)

type Descriptor struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description"`
	Homepage    string `yaml:"homepage"`
	License     string `yaml:"license"`

	URLTemplate string                  `yaml:"url_template"`
	Mappings    TemplateMappings        `yaml:"template_mappings"`
	Artifacts   map[string]ArtifactSpec `yaml:"artifacts"`
	Signature   *SignatureSpec          `yaml:"signature"`

	// Only needed to produce the published artifacts. Never installed.
	BuildDependencies []string `yaml:"build_dependencies"`

	Install []InstallAction `yaml:"install"`

	// Where the descriptor was loaded from.
	Origin string `yaml:"-"`
}

type ArtifactSpec struct {
	// Overrides the formula's URL template for this target.
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256"`
	SHA512 string `yaml:"sha512"`
}

func (s ArtifactSpec) Checksum() (verify.Checksum, error) {
	switch {
	case s.SHA256 != "" && s.SHA512 != "":
		return verify.Checksum{}, errors.New("only one of sha256 and sha512 may be set")
	case s.SHA256 != "":
		return verify.ParseChecksum(string(verify.SHA256) + ":" + s.SHA256)
	case s.SHA512 != "":
		return verify.ParseChecksum(string(verify.SHA512) + ":" + s.SHA512)
	default:
		return verify.Checksum{}, errors.New("no checksum declared")
	}
}

type SignatureSpec struct {
	URLTemplate string `yaml:"url_template"`
	PublicKey   string `yaml:"public_key"`
}

// InstallAction copies the file at Bin inside the artifact into the binary directory, under the
// name As if set.
type InstallAction struct {
	Bin string `yaml:"bin"`
	As  string `yaml:"as"`
}

func (a InstallAction) Target() string {
	if a.As != "" {
		return a.As
	}
	return path.Base(strings.ReplaceAll(a.Bin, "\\", "/"))
}

func (d *Descriptor) String() string {
	return d.Name + "@" + d.Version
}

func (d *Descriptor) Validate() error {
	switch {
	case !namePattern.MatchString(d.Name):
		return fmt.Errorf("%w: name %q is not a valid formula name", ErrInvalidFormula, d.Name)
	case !versionPattern.MatchString(d.Version):
		return fmt.Errorf("%w: %q has version %q which is not version-like", ErrInvalidFormula, d.Name, d.Version)
	case len(d.Artifacts) == 0:
		return fmt.Errorf("%w: %q does not declare any artifacts", ErrInvalidFormula, d.Name)
	case len(d.Install) == 0:
		return fmt.Errorf("%w: %q does not declare any install actions", ErrInvalidFormula, d.Name)
	}

	for triple, spec := range d.Artifacts {
		tmpl := spec.URL
		if tmpl == "" {
			tmpl = d.URLTemplate
		}
		if tmpl == "" {
			return fmt.Errorf("%w: %q has no url template for %s", ErrInvalidFormula, d.Name, triple)
		}
		if _, err := url.Parse(tmpl); err != nil {
			return fmt.Errorf("%w: invalid url template %q - %v", ErrInvalidFormula, tmpl, err)
		}
		if _, err := spec.Checksum(); err != nil {
			return fmt.Errorf("%w: artifact for %s of %q: %v", ErrInvalidFormula, triple, d.Name, err)
		}
	}

	targets := map[string]bool{}
	for _, a := range d.Install {
		if a.Bin == "" {
			return fmt.Errorf("%w: %q has an install action without a file", ErrInvalidFormula, d.Name)
		}
		if strings.ContainsAny(a.As, `/\`) {
			return fmt.Errorf("%w: install target %q of %q must be a plain file name", ErrInvalidFormula, a.As, d.Name)
		}
		t := a.Target()
		if t == "" || t == "." || t == ".." {
			return fmt.Errorf("%w: install action for %q of %q has no usable target name", ErrInvalidFormula, a.Bin, d.Name)
		}
		if targets[t] {
			return fmt.Errorf("%w: %q installs more than one file as %q", ErrInvalidFormula, d.Name, t)
		}
		targets[t] = true
	}

	if d.Signature != nil && (d.Signature.URLTemplate == "" || d.Signature.PublicKey == "") {
		return fmt.Errorf("%w: signature of %q needs both a url template and a public key", ErrInvalidFormula, d.Name)
	}
	return nil
}

// Triples returns the target triples for which the formula publishes an artifact.
func (d *Descriptor) Triples() []string {
	var triples []string
	for t := range d.Artifacts {
		triples = append(triples, t)
	}
	sort.Strings(triples)
	return triples
}

// Binary describes the formula's binary for the given platform and architecture.
func (d *Descriptor) Binary(platform tool.Platform, arch tool.Arch) tool.Binary {
	return tool.Binary{
		Tool:     d.Name,
		Version:  d.Version,
		Platform: platform,
		Arch:     arch,
	}
}

// Resolve produces the artifact to fetch for the given platform and architecture. It performs no
// I/O whatsoever.
func (d *Descriptor) Resolve(platform tool.Platform, arch tool.Arch) (Artifact, error) {
	b := d.Binary(platform, arch)
	if d.Version == "" || !versionPattern.MatchString(d.Version) {
		return Artifact{}, fmt.Errorf("%w: %q has version %q which is not version-like", ErrInvalidFormula, d.Name, d.Version)
	}

	triple := b.Triple()
	spec, ok := d.Artifacts[triple]
	if triple == "" || !ok {
		return Artifact{}, fmt.Errorf(
			"%w: %s has no artifact for %s/%s, supported targets are %s",
			ErrUnsupportedPlatform, d, platform, arch, strings.Join(d.Triples(), ", "),
		)
	}

	checksum, err := spec.Checksum()
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: artifact for %s of %q: %v", ErrInvalidFormula, triple, d.Name, err)
	}

	tmpl := spec.URL
	if tmpl == "" {
		tmpl = d.URLTemplate
	}
	a := Artifact{
		Binary:   b,
		Triple:   triple,
		URL:      d.Mappings.instantiate(tmpl, b, triple),
		Checksum: checksum,
		Install:  d.Install,
	}
	if d.Signature != nil {
		a.SignatureURL = d.Mappings.instantiate(d.Signature.URLTemplate, b, triple)
		a.PublicKey = d.Signature.PublicKey
	}
	return a, nil
}

// Artifact is a formula resolved for one target.
type Artifact struct {
	Binary   tool.Binary
	Triple   string
	URL      string
	Checksum verify.Checksum

	SignatureURL string
	PublicKey    string

	Install []InstallAction
}

// FileName is the last element of the artifact URL's path.
func (a Artifact) FileName() string {
	p := a.URL
	if u, err := url.Parse(a.URL); err == nil && u.Path != "" {
		p = u.Path
	}
	return path.Base(strings.ReplaceAll(p, "\\", "/"))
}

// CacheKey identifies the artifact's content in a download cache.
func (a Artifact) CacheKey() string {
	return path.Join(string(a.Checksum.Algorithm), a.Checksum.Digest, a.FileName())
}

// Paths lists the files to extract from the artifact.
func (a Artifact) Paths() []string {
	var paths []string
	for _, i := range a.Install {
		paths = append(paths, i.Bin)
	}
	return paths
}
