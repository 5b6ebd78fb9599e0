package main

import (
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every monitor once and report failures",
		Long: `Run every monitor once. When any monitor exits non-zero the failure report is
written to the run log and fed to each reporter on stdin. The exit status is
1 when a monitor failed and 0 otherwise; reporter failures never change it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := a.engine.Run(cmd.Context())
			if out.ExitCode != exitOK {
				return &exitError{code: out.ExitCode}
			}
			return nil
		},
	}
	opts.register(cmd)
	return cmd
}
