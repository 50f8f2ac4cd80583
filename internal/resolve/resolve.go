// Package resolve turns a domain controller host name into an IPv4 address.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/algohub/algohub/internal/model"
	"github.com/miekg/dns"
)

// Resolver queries the configured name server with github.com/miekg/dns,
// or the system resolver when none is configured. Targets inside an
// assessed domain are usually resolvable only through its domain controllers.
type Resolver struct {
	nameserver string
	client     *dns.Client
	system     *net.Resolver
}

func New(cfg model.DNS) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ns := cfg.Nameserver
	if ns != "" {
		if _, _, err := net.SplitHostPort(ns); err != nil {
			ns = net.JoinHostPort(ns, "53")
		}
	}
	return &Resolver{
		nameserver: ns,
		client:     &dns.Client{Timeout: timeout},
		system:     net.DefaultResolver,
	}
}

// Resolve returns host itself when it is an IPv4 literal, otherwise the
// first IPv4 address of host. Failures wrap model.ErrResolve.
func (r *Resolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if !addr.Is4() {
			return netip.Addr{}, fmt.Errorf("%w: %s: not an IPv4 address", model.ErrResolve, host)
		}
		return addr, nil
	}

	var addr netip.Addr
	var err error
	if r.nameserver != "" {
		addr, err = r.query(ctx, host)
	} else {
		addr, err = r.lookup(ctx, host)
	}
	if err != nil {
		return netip.Addr{}, err
	}
	slog.DebugContext(ctx, "resolved", "host", host, "addr", addr.String(), "nameserver", r.nameserver)
	return addr, nil
}

func (r *Resolver) query(ctx context.Context, host string) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, m, r.nameserver)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s: query %s: %w", model.ErrResolve, host, r.nameserver, err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("%w: %s: %s", model.ErrResolve, host, dns.RcodeToString[resp.Rcode])
	}
	for _, rr := range resp.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			return addr, nil
		}
	}
	return netip.Addr{}, fmt.Errorf("%w: %s: no A record", model.ErrResolve, host)
}

func (r *Resolver) lookup(ctx context.Context, host string) (netip.Addr, error) {
	addrs, err := r.system.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s: %w", model.ErrResolve, host, err)
	}
	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: %s: no address", model.ErrResolve, host)
	}
	return addrs[0].Unmap(), nil
}
