package tools

import (
	"context"
	"path/filepath"
)

// SMBSigning lists the hosts of subnet not requiring SMB signing into out,
// one IPv4 address per line.
func (t Toolbox) SMBSigning(ctx context.Context, subnet, out string) error {
	if err := mkdir(filepath.Dir(out)); err != nil {
		return err
	}
	res := t.run(ctx, "nxc", t.tools.Nxc, "", t.tools.Timeout,
		"smb", subnet,
		"--gen-relay-list", out,
	)
	return res.Err
}
