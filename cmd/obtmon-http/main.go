// obtmon-http is an obtmon monitor: it fetches URL and fails on a transport
// error, an error status or a failed JSONPath assertion.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/osbits/obtmon/internal/config"
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
	var (
		opts        probe.HTTPOptions
		passwordRef string
	)
	cmd := &cobra.Command{
		Use:   "obtmon-http [flags] URL",
		Short: "Fetch URL and fail on an error response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if passwordRef != "" && opts.User == "" {
				return errors.New("--password-ref needs --authorize USER")
			}
			if opts.Expect != "" && opts.JSONPath == "" {
				return errors.New("--expect needs --jsonpath")
			}
			password, err := config.ResolveSecret(passwordRef)
			if err != nil {
				return fmt.Errorf("resolve password: %w", err)
			}
			opts.Password = password

			client, err := probe.NewHTTPClient(opts.Timeout)
			if err != nil {
				return err
			}
			target := probe.NormalizeURL(args[0])
			if err := probe.FetchHTTP(cmd.Context(), client, target, opts); err != nil {
				logger.Error(err.Error(), "url", target)
				return helper.ErrFailed
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opts.User, "authorize", "a", "", "basic auth USER")
	f.StringVar(&passwordRef, "password-ref", "", `basic auth password reference, e.g. "env:HTTP_PASSWORD" or "file:/run/secrets/http"`)
	f.IntVar(&opts.ExpectStatus, "status", 0, "require this exact status code")
	f.StringVar(&opts.JSONPath, "jsonpath", "", `JSONPath evaluated on the response body, e.g. "$.status"`)
	f.StringVar(&opts.Expect, "expect", "", "value the JSONPath result must equal")
	f.DurationVar(&opts.Timeout, "timeout", 0, "request timeout (default 30s)")
	return cmd
}
