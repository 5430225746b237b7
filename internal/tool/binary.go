package tool

import (
	"fmt"
	"runtime"
	"strings"
)

type Binary struct {
	Tool     string
	Version  string
	Platform Platform
	Arch     Arch
}

func (b Binary) String() string {
	return fmt.Sprintf("%s-%s-%s@%s", b.Tool, b.Platform, b.Arch, b.Version)
}

// Triple returns the target triple under which prebuilt artifacts for this binary are commonly
// published. Combinations without a conventional triple return an empty string.
func (b Binary) Triple() string {
	return triples[target{b.Platform, b.Arch}]
}

type Platform string

const (
	PlatformDarwin  Platform = "darwin"
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
)

// Platforms lists every known platform.
var Platforms = []Platform{PlatformDarwin, PlatformLinux, PlatformWindows}

type Arch string

const (
	ArchARM32 Arch = "arm32"
	ArchARM64 Arch = "arm64"
	ArchX86   Arch = "x86"
	ArchX64   Arch = "x86_64"
)

// Archs lists every known architecture.
var Archs = []Arch{ArchARM32, ArchARM64, ArchX86, ArchX64}

type target struct {
	platform Platform
	arch     Arch
}

var triples = map[target]string{
	{PlatformDarwin, ArchARM64}:  "aarch64-apple-darwin",
	{PlatformDarwin, ArchX64}:    "x86_64-apple-darwin",
	{PlatformLinux, ArchARM32}:   "armv7-unknown-linux-gnueabihf",
	{PlatformLinux, ArchARM64}:   "aarch64-unknown-linux-gnu",
	{PlatformLinux, ArchX86}:     "i686-unknown-linux-gnu",
	{PlatformLinux, ArchX64}:     "x86_64-unknown-linux-gnu",
	{PlatformWindows, ArchARM64}: "aarch64-pc-windows-msvc",
	{PlatformWindows, ArchX86}:   "i686-pc-windows-msvc",
	{PlatformWindows, ArchX64}:   "x86_64-pc-windows-msvc",
}

// CurrentPlatform returns the platform of the running process. Hosts that are not one of the known
// platforms are described by their GOOS value.
func CurrentPlatform() Platform {
	return ParsePlatform(runtime.GOOS)
}

// CurrentArch returns the architecture of the running process. Unknown architectures are described
// by their GOARCH value.
func CurrentArch() Arch {
	return ParseArch(runtime.GOARCH)
}

// ParsePlatform accepts both the names used by this package and the Go toolchain's GOOS values.
// Other names are kept as-is so that resolving an artifact for them reports an unsupported target.
func ParsePlatform(s string) Platform {
	switch s = strings.ToLower(s); s {
	case "darwin", "macos":
		return PlatformDarwin
	case "linux":
		return PlatformLinux
	case "windows":
		return PlatformWindows
	default:
		return Platform(s)
	}
}

// ParseArch accepts both the names used by this package and the Go toolchain's GOARCH values.
// Other names are kept as-is.
func ParseArch(s string) Arch {
	switch s = strings.ToLower(s); s {
	case "arm", "arm32":
		return ArchARM32
	case "arm64", "aarch64":
		return ArchARM64
	case "386", "x86", "i686":
		return ArchX86
	case "amd64", "x86_64":
		return ArchX64
	default:
		return Arch(s)
	}
}
