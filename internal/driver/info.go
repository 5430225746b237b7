package driver

import (
	"fmt"
	"strings"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/Helcaraxan/formulary/internal/formula"
	"github.com/Helcaraxan/formulary/internal/tool"
)

func Info(cOpts *CommonOpts) *cobra.Command {
	opts := &infoOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "info <formula>",
		Short: "Show a formula and the artifacts it publishes.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			opts.formula = args[0]
			return opts.info()
		},
	}

	return cmd
}

type infoOpts struct {
	*CommonOpts

	formula string
}

func (o *infoOpts) info() error {
	d, err := o.registry().Lookup(o.formula)
	if err != nil {
		return err
	}

	rows := []string{
		"Name | " + d.Name,
		"Version | " + d.Version,
	}
	for _, field := range []struct{ name, value string }{
		{"Description", d.Description},
		{"Homepage", d.Homepage},
		{"License", d.License},
		{"Build dependencies", strings.Join(d.BuildDependencies, ", ")},
		{"Source", d.Origin},
	} {
		if field.value != "" {
			rows = append(rows, field.name+" | "+field.value)
		}
	}
	if receipt, err := o.installer().Receipt(d.Name); err == nil {
		rows = append(rows, "Installed | "+receipt.Version+" ("+receipt.Triple+")")
	}
	fmt.Fprintln(o.Out, columnize.SimpleFormat(rows))

	artifacts := []string{"TARGET | URL | CHECKSUM"}
	for _, a := range resolveAll(d) {
		artifacts = append(artifacts, strings.Join([]string{a.Triple, a.URL, a.Checksum.String()}, " | "))
	}
	fmt.Fprintln(o.Out)
	fmt.Fprintln(o.Out, columnize.SimpleFormat(artifacts))
	return nil
}

// resolveAll resolves the formula for every known target for which it publishes an artifact.
func resolveAll(d *formula.Descriptor) []formula.Artifact {
	var all []formula.Artifact
	for _, p := range tool.Platforms {
		for _, a := range tool.Archs {
			if artifact, err := d.Resolve(p, a); err == nil {
				all = append(all, artifact)
			}
		}
	}
	return all
}
