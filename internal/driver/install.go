package driver

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func Install(cOpts *CommonOpts) *cobra.Command {
	opts := &installOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "install <formula>... [--platform=<platform>] [--arch=<arch>]",
		Short: "Install the binaries of one or more formulae.",
		Long: `Resolve each formula to the artifact published for the target platform, download it unless it
is already cached, verify its checksum and install the binaries it declares into the prefix's 'bin'
directory.

A formula is referred to by its name, by '<tap>/<name>' or by the path to a formula file.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formulae = args
			return opts.install(cmd.Context())
		},
	}

	registerTargetFlags(cmd, &opts.target)

	return cmd
}

type installOpts struct {
	*CommonOpts

	target   targetOpts
	formulae []string
}

func (o *installOpts) install(ctx context.Context) error {
	platform, arch := o.target.parse()
	o.Log.Debug("Selected target.", zap.String("platform", string(platform)), zap.String("arch", string(arch)))

	p, err := newPipeline(ctx, o.CommonOpts)
	if err != nil {
		return err
	}

	for _, ref := range o.formulae {
		receipt, err := p.installFormula(ctx, ref, platform, arch)
		if err != nil {
			return fmt.Errorf("failed to install %s: %w", ref, err)
		}
		for _, f := range receipt.Files {
			fmt.Fprintf(o.Out, "%s %s installed %s\n", receipt.Name, receipt.Version, f)
		}
	}
	return nil
}

func Uninstall(cOpts *CommonOpts) *cobra.Command {
	opts := &uninstallOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:     "uninstall <name>...",
		Aliases: []string{"remove"},
		Short:   "Remove the binaries installed for one or more formulae.",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.names = args
			return opts.uninstall(cmd.Context())
		},
	}

	return cmd
}

type uninstallOpts struct {
	*CommonOpts

	names []string
}

func (o *uninstallOpts) uninstall(ctx context.Context) error {
	inst := o.installer()
	for _, name := range o.names {
		if err := inst.Uninstall(ctx, name); err != nil {
			return fmt.Errorf("failed to uninstall %s: %w", name, err)
		}
		fmt.Fprintf(o.Out, "%s uninstalled\n", name)
	}
	return nil
}
