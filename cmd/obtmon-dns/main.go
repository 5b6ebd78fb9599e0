// obtmon-dns is an obtmon monitor: it resolves NAME and fails on an error
// rcode, an empty answer or a missing expected value.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/osbits/obtmon/internal/helper"
	"github.com/osbits/obtmon/internal/probe"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	return helper.Execute(newCmd(stderr), args, stdout, stderr)
}

func newCmd(stderr io.Writer) *cobra.Command {
	logger := helper.Logger(stderr)
	var opts probe.DNSOptions
	cmd := &cobra.Command{
		Use:   "obtmon-dns [flags] NAME",
		Short: "Resolve NAME and fail when the answer is missing or unexpected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := probe.RecordType(opts.Type); err != nil {
				return err
			}
			name := args[0]
			answers, err := probe.LookupDNS(cmd.Context(), name, opts)
			if len(answers) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), name, strings.ToUpper(opts.Type), strings.Join(answers, " "))
			}
			if err != nil {
				logger.Error("dns check failed", "name", name, "resolver", opts.Resolver, "error", err)
				return helper.ErrFailed
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Type, "type", "A", "record type")
	f.StringVar(&opts.Resolver, "resolver", probe.DefaultResolver, "resolver HOST:PORT")
	f.StringArrayVar(&opts.Expect, "expect", nil, "value that must appear in the answer (repeatable, any match passes)")
	f.DurationVar(&opts.Timeout, "timeout", 0, "query timeout")
	return cmd
}
