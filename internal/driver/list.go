package driver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func List(cOpts *CommonOpts) *cobra.Command {
	opts := &listOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "list [pattern] [--available]",
		Short: "List installed formulae.",
		Long: `List installed formulae, or with '--available' all formulae that can be installed by name. An
optional regular expression restricts the output to matching names.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.pattern = args[0]
			}
			return opts.list()
		},
	}

	cmd.Flags().BoolVar(&opts.available, "available", false, "List the formulae available for installation instead.")

	return cmd
}

type listOpts struct {
	*CommonOpts

	pattern   string
	available bool
}

func (o *listOpts) list() error {
	m := regexp.MustCompile(`^.*$`)
	if o.pattern != "" {
		var err error
		m, err = regexp.Compile(o.pattern)
		if err != nil {
			o.Log.Error("Invalid pattern.", zap.String("pattern", o.pattern), zap.Error(err))
			return err
		}
	}

	if o.available {
		return o.listAvailable(m)
	}

	receipts, err := o.installer().Receipts()
	if err != nil {
		return err
	}

	rows := []string{"NAME | VERSION | TARGET | FILES"}
	for _, r := range receipts {
		if m.MatchString(r.Name) {
			rows = append(rows, strings.Join([]string{r.Name, r.Version, r.Triple, strings.Join(r.Files, ", ")}, " | "))
		}
	}
	fmt.Fprintln(o.Out, columnize.SimpleFormat(rows))
	return nil
}

func (o *listOpts) listAvailable(m *regexp.Regexp) error {
	all, err := o.registry().All()
	if err != nil {
		return err
	}

	rows := []string{"NAME | VERSION | DESCRIPTION"}
	for _, d := range all {
		if m.MatchString(d.Name) {
			rows = append(rows, strings.Join([]string{d.Name, d.Version, d.Description}, " | "))
		}
	}
	fmt.Fprintln(o.Out, columnize.SimpleFormat(rows))
	return nil
}
