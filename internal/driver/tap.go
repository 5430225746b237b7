package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ryanuber/columnize"
	"github.com/spf13/cobra"

	"github.com/Helcaraxan/formulary/internal/logger"
	"github.com/Helcaraxan/formulary/internal/tap"
)

var ErrTapsDisabled = errors.New("taps are disabled in the configuration")

func Tap(cOpts *CommonOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tap",
		Short: "Manage the git repositories from which formulae are obtained.",
	}

	cmd.AddCommand(
		TapAdd(cOpts),
		TapList(cOpts),
		TapUpdate(cOpts),
		TapRemove(cOpts),
	)

	return cmd
}

func TapAdd(cOpts *CommonOpts) *cobra.Command {
	opts := &tapAddOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Clone a git repository as a new tap.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.name = args[0]
			opts.url = args[1]
			return opts.add(cmd.Context())
		},
	}

	return cmd
}

type tapAddOpts struct {
	*CommonOpts

	name string
	url  string
}

func (o *tapAddOpts) add(ctx context.Context) error {
	m, err := o.tapManager()
	if err != nil {
		return err
	}
	t, err := m.Add(ctx, o.name, o.url)
	if err != nil {
		return err
	}
	fmt.Fprintf(o.Out, "%s tapped at %s\n", t.Name, shortCommit(t.Commit))
	return nil
}

func TapList(cOpts *CommonOpts) *cobra.Command {
	opts := &tapListOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured taps.",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return opts.list()
		},
	}

	return cmd
}

type tapListOpts struct {
	*CommonOpts
}

func (o *tapListOpts) list() error {
	m, err := o.tapManager()
	if err != nil {
		return err
	}
	taps, err := m.List()
	if err != nil {
		return err
	}
	rows := []string{"NAME | URL | COMMIT"}
	for _, t := range taps {
		rows = append(rows, strings.Join([]string{t.Name, t.URL, shortCommit(t.Commit)}, " | "))
	}
	fmt.Fprintln(o.Out, columnize.SimpleFormat(rows))
	return nil
}

func TapUpdate(cOpts *CommonOpts) *cobra.Command {
	opts := &tapUpdateOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "update [name]...",
		Short: "Pull the latest formulae for the given taps, or all taps if none are named.",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.names = args
			return opts.update(cmd.Context())
		},
	}

	return cmd
}

type tapUpdateOpts struct {
	*CommonOpts

	names []string
}

func (o *tapUpdateOpts) update(ctx context.Context) error {
	m, err := o.tapManager()
	if err != nil {
		return err
	}

	names := o.names
	if len(names) == 0 {
		taps, err := m.List()
		if err != nil {
			return err
		}
		for _, t := range taps {
			names = append(names, t.Name)
		}
	}
	for _, name := range names {
		t, err := m.Update(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(o.Out, "%s updated to %s\n", t.Name, shortCommit(t.Commit))
	}
	return nil
}

func TapRemove(cOpts *CommonOpts) *cobra.Command {
	opts := &tapRemoveOpts{
		CommonOpts: cOpts,
	}

	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a tap and its formulae.",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			opts.name = args[0]
			return opts.remove()
		},
	}

	return cmd
}

type tapRemoveOpts struct {
	*CommonOpts

	name string
}

func (o *tapRemoveOpts) remove() error {
	m, err := o.tapManager()
	if err != nil {
		return err
	}
	if err = m.Remove(o.name); err != nil {
		return err
	}
	fmt.Fprintf(o.Out, "%s untapped\n", o.name)
	return nil
}

func (c *CommonOpts) tapManager() (*tap.Manager, error) {
	if c.Config.DisableTaps {
		c.Log.Error("Taps are disabled in the configuration.")
		return nil, ErrTapsDisabled
	}
	return tap.NewManager(c.LogBuilder.Domain(logger.TapDomain), c.Config.TapDir()), nil
}

func shortCommit(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
