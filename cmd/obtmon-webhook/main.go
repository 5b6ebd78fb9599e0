// obtmon-webhook is an obtmon reporter: it renders the report read from
// stdin into a request body and sends it to an HTTP endpoint.
package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/osbits/obtmon/internal/helper"
	"github.com/osbits/obtmon/internal/mailer"
	"github.com/osbits/obtmon/internal/render"
	"github.com/osbits/obtmon/internal/webhook"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return helper.Execute(newCmd(stdin, stderr), args, stdout, stderr)
}

func newCmd(stdin io.Reader, stderr io.Writer) *cobra.Command {
	logger := helper.Logger(stderr)
	var (
		cfg     webhook.Config
		headers []string
	)
	cmd := &cobra.Command{
		Use:   "obtmon-webhook --url URL [flags]",
		Short: "Send the report read from stdin to a webhook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := webhook.ParseHeaders(headers)
			if err != nil {
				return err
			}
			cfg.Headers = parsed
			sender, err := webhook.New(cfg, render.New())
			if err != nil {
				return err
			}
			report, err := mailer.ReadBody(stdin)
			if err != nil {
				return err
			}
			if err := sender.Send(cmd.Context(), report); err != nil {
				logger.Error("failed to send webhook", "url", cfg.URL, "error", err)
				return helper.ErrFailed
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.URL, "url", "", "endpoint URL")
	f.StringVar(&cfg.Method, "method", "POST", "HTTP method")
	f.StringArrayVarP(&headers, "header", "H", nil, `request header "KEY=VALUE", rendered as a template (repeatable)`)
	f.StringVar(&cfg.Template, "template", webhook.DefaultTemplate, "body template with .report, .hostname and .sent_at")
	f.DurationVar(&cfg.Timeout, "timeout", 0, "request timeout (default 10s)")
	return cmd
}
