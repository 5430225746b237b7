package driver

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Helcaraxan/formulary/internal/config"
	"github.com/Helcaraxan/formulary/internal/logger"
)

func Root(opts *CommonOpts) *cobra.Command {
	rootCmd := &cobra.Command{
		Use: config.DriverName,
		Long: `Install prebuilt binaries from declarative formulae.

A formula names a tool, pins it to a version and lists, per target platform, the
URL of the published artifact together with its checksum. Artifacts are only
ever installed after their checksum has been verified, and are kept in a local
download cache so that reinstalling does not require network access.

Formulae are looked up in the configured formula directories, then in taps (git
repositories of formulae added with 'tap add') and finally among the formulae
built into this binary.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.Out = cmd.OutOrStdout()
			return opts.Parse()
		},
	}

	registerRootFlags(rootCmd, opts)

	rootCmd.AddCommand(
		Fetch(opts),
		Info(opts),
		Install(opts),
		List(opts),
		Tap(opts),
		Uninstall(opts),
	)

	return rootCmd
}

func registerRootFlags(cmd *cobra.Command, opts *CommonOpts) {
	cmd.PersistentFlags().StringSliceVarP(
		&opts.Verbose,
		"verbose",
		"v",
		nil,
		fmt.Sprintf("Verbose output for the given domains, one or more of: %s.", strings.Join(logger.Domains(), ", ")),
	)
	cmd.Flag("verbose").NoOptDefVal = "all"

	cmd.PersistentFlags().StringVar(&opts.Prefix, "prefix", "", "Install under this prefix instead of the configured one.")
}
