package probe

import (
	"context"
	"fmt"
	"strings"
	"time"

	dnsclient "github.com/miekg/dns"
)

// DefaultResolver is queried when no resolver is given.
const DefaultResolver = "8.8.8.8:53"

// DNSOptions configures a DNS probe.
type DNSOptions struct {
	Type     string
	Resolver string
	// Expect passes when any answer equals any of the values.
	Expect  []string
	Timeout time.Duration
}

// RecordType maps a record type name to its wire value.
func RecordType(name string) (uint16, error) {
	if name == "" {
		return dnsclient.TypeA, nil
	}
	t, ok := dnsclient.StringToType[strings.ToUpper(name)]
	if !ok {
		return 0, fmt.Errorf("unknown record type %q", name)
	}
	return t, nil
}

// LookupDNS queries the resolver and checks the answers. It returns the
// answer values it saw.
func LookupDNS(ctx context.Context, name string, opts DNSOptions) ([]string, error) {
	qtype, err := RecordType(opts.Type)
	if err != nil {
		return nil, err
	}
	resolver := opts.Resolver
	if resolver == "" {
		resolver = DefaultResolver
	}
	client := &dnsclient.Client{Timeout: opts.Timeout}
	msg := new(dnsclient.Msg)
	msg.SetQuestion(dnsclient.Fqdn(name), qtype)

	resp, _, err := client.ExchangeContext(ctx, msg, resolver)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", resolver, err)
	}
	if resp.Rcode != dnsclient.RcodeSuccess {
		return nil, fmt.Errorf("dns error %s for %s", dnsclient.RcodeToString[resp.Rcode], name)
	}
	answers := answerValues(resp.Answer)
	if len(answers) == 0 {
		return nil, fmt.Errorf("no %s records for %s", dnsclient.TypeToString[qtype], name)
	}
	if len(opts.Expect) > 0 && !containsAny(answers, opts.Expect) {
		return answers, fmt.Errorf("expected any of %v, got %v", opts.Expect, answers)
	}
	return answers, nil
}

func answerValues(rrs []dnsclient.RR) []string {
	values := make([]string, 0, len(rrs))
	for _, rr := range rrs {
		switch v := rr.(type) {
		case *dnsclient.A:
			values = append(values, v.A.String())
		case *dnsclient.AAAA:
			values = append(values, v.AAAA.String())
		case *dnsclient.CNAME:
			values = append(values, v.Target)
		case *dnsclient.MX:
			values = append(values, v.Mx)
		case *dnsclient.NS:
			values = append(values, v.Ns)
		case *dnsclient.TXT:
			values = append(values, strings.Join(v.Txt, ""))
		default:
			values = append(values, rr.String())
		}
	}
	return values
}
