package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/algohub/algohub/internal/model"
	"github.com/algohub/algohub/internal/relay"
	"github.com/algohub/algohub/internal/tools"
)

type SubnetScanner interface {
	Scan(ctx context.Context, subnet, xmlPath, jsonPath string) ([]model.NmapHost, error)
}

// BlackBox is the unauthenticated discovery of subnets: port scan,
// screenshots of the web services and the SMB relay candidates.
type BlackBox struct {
	Layout  model.Layout
	Scanner SubnetScanner
	Tools   tools.Toolbox
	// DCHosts are added to the relay targets as LDAP(S) URLs
	DCHosts []string
}

// Pipeline fails only when nmap produced no report, the later steps are
// best-effort.
func (b BlackBox) Pipeline(ctx context.Context, subnet string, steps *Steps) error {
	dir := b.Layout.SubnetDir(subnet)
	xml := filepath.Join(dir, model.FileNmapXML)
	signing := filepath.Join(dir, model.FileSMBSigning)

	err := steps.Run(ctx, "nmap", func(ctx context.Context) error {
		_, err := b.Scanner.Scan(ctx, subnet, xml, filepath.Join(dir, model.FileNmapJSON))
		return err
	})
	if err != nil {
		if _, serr := os.Stat(xml); serr != nil {
			return fmt.Errorf("nmap produced no report: %w", err)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if _, err := os.Stat(xml); err != nil {
		steps.Skip(ctx, "gowitness", "no nmap report")
	} else {
		_ = steps.Run(ctx, "gowitness", func(ctx context.Context) error {
			return b.Tools.Screenshots(ctx, xml)
		})
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	_ = steps.Run(ctx, "nxc", func(ctx context.Context) error {
		return b.Tools.SMBSigning(ctx, subnet, signing)
	})
	_ = steps.Run(ctx, "relay", func(context.Context) error {
		urls, err := relay.Collect([]string{signing}, b.DCHosts)
		if werr := relay.WriteFile(filepath.Join(dir, model.FileRelay), urls); werr != nil {
			return werr
		}
		return err
	})
	return ctx.Err()
}

// GlobalRelay rebuilds <root>/relay.txt from the signing lists of every
// scanned subnet, including those of the previous runs.
func (b BlackBox) GlobalRelay(ctx context.Context) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(b.Layout.Root, "*", model.FileSMBSigning))
	if err != nil {
		return nil, err
	}
	urls, err := relay.Collect(files, b.DCHosts)
	if err != nil {
		slog.WarnContext(ctx, "some signing lists were not readable", "error", err)
	}
	path := b.Layout.GlobalRelay()
	if werr := relay.WriteFile(path, urls); werr != nil {
		return urls, werr
	}
	slog.InfoContext(ctx, "relay targets written", "path", path, "count", len(urls), "signing_lists", len(files))
	return urls, nil
}
