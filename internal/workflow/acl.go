package workflow

import (
	"context"
	"log/slog"
	"net/netip"
	"time"

	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/tools"
	"golang.org/x/sync/errgroup"
)

// ACLHunt reads the DACL of every object of a domain and keeps the entries
// granting write or control rights. It is not resumable and has no per
// object failure isolation: an authentication failure stops the whole hunt.
type ACLHunt struct {
	Tools tools.Toolbox
	Creds model.Credentials
	Limit int
	// Trustees filters the entries by a case insensitive substring of the
	// trustee, empty keeps all of them
	Trustees []string
}

type ACLReport struct {
	BaseDN   string
	Objects  int
	Findings []tools.ACE
	Elapsed  time.Duration
}

// Run lists the objects under baseDN and reads their DACLs, at most Limit
// at once. Findings are ordered as the objects were listed. The first
// authentication failure cancels all the reads in flight and is returned.
func (h ACLHunt) Run(ctx context.Context, dcIP netip.Addr, baseDN string) (ACLReport, error) {
	start := time.Now()
	report := ACLReport{BaseDN: baseDN, Findings: []tools.ACE{}}

	dns, err := h.Tools.DistinguishedNames(ctx, dcIP, h.Creds, baseDN)
	if err != nil {
		return report, err
	}
	report.Objects = len(dns)
	slog.InfoContext(ctx, "objects found", "count", len(dns), "base_dn", baseDN)

	perDN := make([][]tools.ACE, len(dns))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(h.Limit, 1))
	for i, dn := range dns {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			aces, err := h.Tools.ReadDACL(gctx, dcIP, h.Creds, dn, h.Trustees)
			if err != nil {
				return err
			}
			for _, ace := range aces {
				slog.InfoContext(gctx, "interesting acl", "dn", ace.DN, "trustee", ace.Trustee, "rights", ace.Rights)
			}
			perDN[i] = aces
			return nil
		})
	}
	err = g.Wait()
	report.Elapsed = time.Since(start)
	if err != nil {
		return report, err
	}
	if ctx.Err() != nil {
		return report, ctx.Err()
	}

	for _, aces := range perDN {
		report.Findings = append(report.Findings, aces...)
	}
	return report, nil
}
