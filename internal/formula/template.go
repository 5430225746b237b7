package formula

import (
	"strings"

	"github.com/Helcaraxan/formulary/internal/tool"
)

// TemplateMappings renames platforms and architectures for publishers that do not use the default
// names in their artifact URLs.
type TemplateMappings struct {
	// OS name mappings.
	Darwin  *string `yaml:"darwin"`
	Linux   *string `yaml:"linux"`
	Windows *string `yaml:"windows"`

	// Arch name mappings.
	ARM32 *string `yaml:"arm32"`
	ARM64 *string `yaml:"arm64"`
	X86   *string `yaml:"x86_32"`
	X8664 *string `yaml:"x86_64"`
}

func (m TemplateMappings) instantiate(tmpl string, b tool.Binary, triple string) string {
	return strings.NewReplacer(
		"{arch}", m.arch(b),
		"{bare_version}", strings.TrimPrefix(b.Version, "v"),
		"{exe}", exe(b),
		"{name}", b.Tool,
		"{platform}", m.platform(b),
		"{triple}", triple,
		"{version}", b.Version,
	).Replace(tmpl)
}

func (m TemplateMappings) platform(b tool.Binary) string {
	switch b.Platform {
	case tool.PlatformDarwin:
		if m.Darwin != nil {
			return *m.Darwin
		}
	case tool.PlatformLinux:
		if m.Linux != nil {
			return *m.Linux
		}
	case tool.PlatformWindows:
		if m.Windows != nil {
			return *m.Windows
		}
	}
	return string(b.Platform)
}

func (m TemplateMappings) arch(b tool.Binary) string {
	switch b.Arch {
	case tool.ArchARM32:
		if m.ARM32 != nil {
			return *m.ARM32
		}
	case tool.ArchARM64:
		if m.ARM64 != nil {
			return *m.ARM64
		}
	case tool.ArchX64:
		if m.X8664 != nil {
			return *m.X8664
		}
	case tool.ArchX86:
		if m.X86 != nil {
			return *m.X86
		}
	}
	return string(b.Arch)
}

func exe(b tool.Binary) string {
	if b.Platform == tool.PlatformWindows {
		return ".exe"
	}
	return ""
}
