package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/osbits/obtmon/internal/process"
	"github.com/osbits/obtmon/internal/registry"
)

func newListCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the assembled monitors and reporters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			sections := []struct {
				title string
				specs []registry.Spec
			}{
				{"monitors", a.engine.Monitors.Assemble("monitors", a.logger)},
				{"reporters", a.engine.Reporters.Assemble("reporters", a.logger)},
			}
			for _, s := range sections {
				fmt.Fprintf(out, "# %s\n", s.title)
				for _, spec := range s.specs {
					fmt.Fprintf(out, "%s: %s\n", spec.Name, process.CommandLine(spec.Command))
				}
			}
			return nil
		},
	}
	opts.register(cmd)
	return cmd
}
