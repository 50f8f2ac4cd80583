package tools

import (
	"context"
	"net/netip"
	"path/filepath"
	"strings"

	"github.com/algohub/algohub/internal/model"
)

// Certipy looks for vulnerable certificate templates. The JSON report is
// written to dir as <DOMAIN>_Certipy.json, dots of the domain replaced by _.
func (t Toolbox) Certipy(ctx context.Context, dir string, dcIP netip.Addr, creds model.Credentials) error {
	if err := mkdir(dir); err != nil {
		return err
	}
	ip := dcIP.String()
	prefix := filepath.Join(dir, strings.ReplaceAll(creds.Domain, ".", "_"))
	res := t.run(ctx, "certipy", t.tools.Certipy, "", t.tools.Timeout,
		"find",
		"-u", creds.User+"@"+creds.Domain,
		"-p", creds.Password,
		"-vuln",
		"-dc-ip", ip,
		"-json",
		"-output", prefix,
		"-ns", ip,
	)
	return res.Err
}
