package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/algohub/algohub/internal/log"
	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/tools"
)

type Resolver interface {
	Resolve(ctx context.Context, host string) (netip.Addr, error)
}

// GrayBox is the authenticated enumeration of domain controllers. The LDAP
// dump, the certificate services audit and the BloodHound collection of a DC
// run concurrently.
type GrayBox struct {
	Layout   model.Layout
	Resolver Resolver
	Tools    tools.Toolbox
	Creds    model.Credentials
	SubScans int
}

func (g GrayBox) Pipeline(ctx context.Context, dc string, steps *Steps) error {
	var ip netip.Addr
	err := steps.Run(ctx, "resolve", func(ctx context.Context) error {
		var err error
		ip, err = g.Resolver.Resolve(ctx, dc)
		return err
	})
	if err != nil {
		return err
	}
	ctx = log.ContextAttrs(ctx, slog.String("dc_ip", ip.String()))

	scans := []SubScan{
		{Name: "ldeep", Run: func(ctx context.Context) error {
			_, err := g.Tools.Ldeep(ctx, g.Layout.LdeepDir(dc), ip, g.Creds)
			return err
		}},
		{Name: "certipy", Run: func(ctx context.Context) error {
			return g.Tools.Certipy(ctx, g.Layout.CertipyDir(dc), ip, g.Creds)
		}},
		{Name: "bloodhound", Run: func(ctx context.Context) error {
			_, err := g.Tools.Bloodhound(ctx, g.Layout.BloodhoundDir(dc), dc, ip, g.Creds)
			return err
		}},
	}

	failed := 0
	for _, r := range SubScans(ctx, g.SubScans, scans) {
		steps.add(Step{Name: r.Name, Err: r.Err, Elapsed: r.Elapsed})
		if r.Err != nil {
			failed++
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed == len(scans) {
		return fmt.Errorf("%w: all %d subscans of %s failed", ErrNothingCollected, failed, dc)
	}
	return nil
}
