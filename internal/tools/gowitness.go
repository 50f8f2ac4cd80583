package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
)

// Screenshots takes a screenshot of every open web port of an nmap XML
// report. The results are recorded in the shared gowitness database.
func (t Toolbox) Screenshots(ctx context.Context, nmapXML string) error {
	if !exists(nmapXML) {
		return fmt.Errorf("%w: nmap report %s does not exist", ErrMalformedOutput, nmapXML)
	}
	if err := mkdir(t.gowitness.ScreenshotsDir); err != nil {
		return err
	}
	db, err := filepath.Abs(t.gowitness.DBFile)
	if err != nil {
		return fmt.Errorf("gowitness database path: %w", err)
	}

	res := t.run(ctx, "gowitness", t.tools.Gowitness, "", t.tools.Timeout,
		"scan", "nmap",
		"-f", nmapXML,
		"-s", t.gowitness.ScreenshotsDir,
		"--write-db",
		"--write-db-uri", "sqlite://"+db,
		"--open-only",
		"-t", strconv.Itoa(t.gowitness.Threads),
	)
	return res.Err
}
