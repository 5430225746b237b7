package tool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTriple(t *testing.T) {
	t.Parallel()

	testcases := map[string]struct {
		platform Platform
		arch     Arch
		triple   string
	}{
		"DarwinARM64":   {platform: PlatformDarwin, arch: ArchARM64, triple: "aarch64-apple-darwin"},
		"DarwinX64":     {platform: PlatformDarwin, arch: ArchX64, triple: "x86_64-apple-darwin"},
		"LinuxX64":      {platform: PlatformLinux, arch: ArchX64, triple: "x86_64-unknown-linux-gnu"},
		"LinuxARM32":    {platform: PlatformLinux, arch: ArchARM32, triple: "armv7-unknown-linux-gnueabihf"},
		"WindowsX86":    {platform: PlatformWindows, arch: ArchX86, triple: "i686-pc-windows-msvc"},
		"DarwinARM32":   {platform: PlatformDarwin, arch: ArchARM32, triple: ""},
		"UnknownTarget": {platform: Platform("solaris"), arch: Arch("rv64i"), triple: ""},
	}

	for name := range testcases {
		tc := testcases[name]
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			b := Binary{Tool: "test-tool", Version: "v1.2.3", Platform: tc.platform, Arch: tc.arch}
			assert.Equal(t, tc.triple, b.Triple())
		})
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	b := Binary{Tool: "test-tool", Version: "v1.2.3", Platform: PlatformLinux, Arch: ArchX64}
	assert.Equal(t, "test-tool-linux-x86_64@v1.2.3", b.String())
}

func TestParse(t *testing.T) {
	t.Parallel()

	assert.Equal(t, PlatformDarwin, ParsePlatform("macos"))
	assert.Equal(t, PlatformLinux, ParsePlatform("Linux"))
	assert.Equal(t, Platform("plan9"), ParsePlatform("plan9"))

	assert.Equal(t, ArchX64, ParseArch("amd64"))
	assert.Equal(t, ArchARM64, ParseArch("aarch64"))
	assert.Equal(t, Arch("mips"), ParseArch("mips"))
}

func TestUnknownTargetHasNoTriple(t *testing.T) {
	t.Parallel()

	for _, tc := range [][2]string{{"freebsd", "x86_64"}, {"linux", "riscv64"}, {"plan9", "386"}} {
		b := Binary{Tool: "test-tool", Version: "v1.2.3", Platform: ParsePlatform(tc[0]), Arch: ParseArch(tc[1])}
		assert.Empty(t, b.Triple(), b.String())
	}
}

func TestCurrentTarget(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		assert.NotEmpty(t, CurrentPlatform())
		assert.NotEmpty(t, CurrentArch())
	})
}
