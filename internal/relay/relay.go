// Package relay builds the list of relay target URLs from the hosts
// without SMB signing and the domain controllers.
package relay

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ipSchemes are the relay protocols offered by a host without SMB signing
var ipSchemes = []string{"smb", "winrm", "http", "https", "mssql"}

// dcSchemes are the relay protocols offered by a domain controller
var dcSchemes = []string{"ldap", "ldaps"}

// Collect reads the signing scan files and returns the sorted, deduplicated
// relay URLs. A missing file contributes nothing. Files which can't be read
// are reported in the error, but the URLs of the other inputs are returned.
func Collect(signingFiles []string, dcHosts []string) ([]string, error) {
	urls := make(map[string]struct{})
	var errs []error

	for _, path := range signingFiles {
		ips, err := readIPs(path)
		if err != nil {
			errs = append(errs, err)
		}
		for _, ip := range ips {
			for _, s := range ipSchemes {
				urls[s+"://"+ip] = struct{}{}
			}
		}
	}

	for _, dc := range dcHosts {
		host := strings.TrimSpace(dc)
		if host == "" {
			continue
		}
		for _, s := range dcSchemes {
			urls[s+"://"+host] = struct{}{}
		}
	}

	ret := make([]string, 0, len(urls))
	for u := range urls {
		ret = append(ret, u)
	}
	slices.Sort(ret)
	return ret, errors.Join(errs...)
}

// readIPs returns the lines of a file which are a bare IPv4 address
func readIPs(path string) ([]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading signing list %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var ips []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		addr, err := netip.ParseAddr(line)
		if err != nil || !addr.Is4() {
			continue
		}
		ips = append(ips, line)
	}
	if err := scanner.Err(); err != nil {
		return ips, fmt.Errorf("reading signing list %s: %w", path, err)
	}
	return ips, nil
}

// WriteFile stores urls one per line. The file is always written, even
// for no urls, so consumers can tell an empty result from a missing run.
func WriteFile(path string, urls []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	var buf bytes.Buffer
	for _, u := range urls {
		buf.WriteString(u)
		buf.WriteByte('\n')
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing relay targets %s: %w", path, err)
	}
	return nil
}
