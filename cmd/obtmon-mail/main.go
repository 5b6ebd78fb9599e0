// obtmon-mail is an obtmon reporter: it mails the report read from stdin to
// every ADDR, through the local MTA or an authenticated STARTTLS relay.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/osbits/obtmon/internal/config"
	"github.com/osbits/obtmon/internal/helper"
	"github.com/osbits/obtmon/internal/mailer"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, nil))
}

// run executes the reporter. A nil transport delivers over SMTP.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer, transport mailer.Transport) int {
	return helper.Execute(newCmd(stdin, stderr, transport), args, stdout, stderr)
}

func newCmd(stdin io.Reader, stderr io.Writer, transport mailer.Transport) *cobra.Command {
	logger := helper.Logger(stderr)
	var (
		cfg         mailer.Config
		passwordRef string
	)
	cmd := &cobra.Command{
		Use:   "obtmon-mail [flags] ADDR...",
		Short: "Mail the report read from stdin",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, to []string) error {
			if cfg.Username != "" && cfg.SMTPAddr == "" {
				return errors.New("--user needs --smtp")
			}
			password, err := config.ResolveSecret(passwordRef)
			if err != nil {
				return fmt.Errorf("resolve password: %w", err)
			}
			cfg.Password = password

			body, err := mailer.ReadBody(stdin)
			if err != nil {
				return err
			}
			m := mailer.New(cfg, transport)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, m.Describe(to))
			if err := m.Send(body, to); err != nil {
				logger.Error("failed to send e-mail", "error", err)
				return helper.ErrFailed
			}
			fmt.Fprintln(out, "finished sending e-mail")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&cfg.Subject, "subject", "s", mailer.DefaultSubject, "send an e-mail with this SUBJECT")
	f.StringVarP(&cfg.From, "from", "f", mailer.DefaultFrom, "send an e-mail from ADDRESS")
	f.StringVar(&cfg.SMTPAddr, "smtp", "", "STARTTLS relay HOST:PORT, e.g. smtp.gmail.com:587 (default: local MTA on "+mailer.LocalRelay+")")
	f.StringVarP(&cfg.Username, "user", "u", "", "relay user")
	f.StringVar(&passwordRef, "password-ref", "", `relay password reference, e.g. "env:SMTP_PASSWORD"`)
	return cmd
}
