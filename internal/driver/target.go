package driver

import (
	"github.com/spf13/cobra"

	"github.com/Helcaraxan/formulary/internal/tool"
)

// targetOpts selects the platform and architecture for which an artifact is resolved. Both default
// to those of the running process.
type targetOpts struct {
	platform string
	arch     string
}

func registerTargetFlags(cmd *cobra.Command, opts *targetOpts) {
	cmd.Flags().StringVar(&opts.platform, "platform", string(tool.CurrentPlatform()), "The platform for which to resolve the artifact.")
	cmd.Flags().StringVar(&opts.arch, "arch", string(tool.CurrentArch()), "The architecture for which to resolve the artifact.")
}

func (o targetOpts) parse() (tool.Platform, tool.Arch) {
	return tool.ParsePlatform(o.platform), tool.ParseArch(o.arch)
}
