package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"

	"github.com/algohub/algohub/internal/model"
)

// Bloodhound runs the BloodHound CE collector in dir and renames the newest
// zip archive to <dc>_bloodhound.zip. It returns the path of the archive,
// empty when the collector produced none.
func (t Toolbox) Bloodhound(ctx context.Context, dir, dcHost string, dcIP netip.Addr, creds model.Credentials) (string, error) {
	if err := mkdir(dir); err != nil {
		return "", err
	}
	res := t.run(ctx, "bloodhound", t.tools.Bloodhound, dir, t.tools.Timeout,
		"--zip",
		"-c", "All",
		"-d", creds.Domain,
		"-u", creds.User,
		"-p", creds.Password,
		"-dc", dcHost,
		"-ns", dcIP.String(),
	)

	zip, err := renameNewestZip(dir, model.SafeName(dcHost)+"_bloodhound.zip")
	if err == nil && zip == "" {
		slog.WarnContext(ctx, "no bloodhound archive found", "dir", dir)
	}
	return zip, errors.Join(res.Err, err)
}

func renameNewestZip(dir, name string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.zip"))
	if err != nil {
		return "", err
	}

	var newest string
	var newestInfo os.FileInfo
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newestInfo == nil || info.ModTime().After(newestInfo.ModTime()) {
			newest, newestInfo = m, info
		}
	}
	if newest == "" {
		return "", nil
	}

	target := filepath.Join(dir, name)
	if newest == target {
		return target, nil
	}
	if err := os.Rename(newest, target); err != nil {
		return "", fmt.Errorf("renaming bloodhound archive: %w", err)
	}
	return target, nil
}
