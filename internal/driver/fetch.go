package driver

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func Fetch(cOpts *CommonOpts) *cobra.Command {
	opts := &fetchOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "fetch <formula> [--platform=<platform>] [--arch=<arch>]",
		Short: "Download and verify a formula's artifact without installing it.",
		Long: `Download the artifact of a formula to the local download cache and print its location. It is
possible to specify a platform and architecture different from the host's. This can for example be
used when mounting a binary into a docker container.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.formula = args[0]
			return opts.fetch(cmd.Context())
		},
	}

	registerTargetFlags(cmd, &opts.target)

	return cmd
}

type fetchOpts struct {
	*CommonOpts

	target  targetOpts
	formula string
}

func (o *fetchOpts) fetch(ctx context.Context) error {
	platform, arch := o.target.parse()
	o.Log.Debug("Selected target.", zap.String("platform", string(platform)), zap.String("arch", string(arch)))

	p, err := newPipeline(ctx, o.CommonOpts)
	if err != nil {
		return err
	}

	_, a, err := p.resolve(o.formula, platform, arch)
	if err != nil {
		return err
	}
	if _, err = p.fetch(ctx, a); err != nil {
		return err
	}

	fmt.Fprintln(o.Out, p.local.Path(a.CacheKey()))
	return nil
}
