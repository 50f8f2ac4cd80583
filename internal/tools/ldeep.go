package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/algohub/algohub/internal/model"
)

type ldeepDump struct {
	file  string
	query []string
}

// ldeepDumps are executed one after another, in this order
var ldeepDumps = []ldeepDump{
	{file: "trusts.json", query: []string{"trusts"}},
	{file: "pkis.json", query: []string{"pkis"}},
	{file: "delegations.json", query: []string{"delegations"}},
	{file: "users.json", query: []string{"users", "enabled"}},
	{file: "machines-ip.json", query: []string{"computers", "--resolve"}},
}

type LdapExport struct {
	Metadata LdapMetadata `json:"metadata"`
	Data     LdapData     `json:"data"`
}

type LdapMetadata struct {
	Scanner    string `json:"scanner"`
	ExportType string `json:"export_type"`
}

type LdapData struct {
	Trusts           ItemSet `json:"trusts"`
	Pkis             ItemSet `json:"pkis"`
	Users            ItemSet `json:"users"`
	Delegations      ItemSet `json:"delegations"`
	ComputersResolve ItemSet `json:"computers_resolve"`
}

type ItemSet struct {
	Count int               `json:"count"`
	Items []json.RawMessage `json:"items"`
}

func newItemSet(items []json.RawMessage) ItemSet {
	if items == nil {
		items = []json.RawMessage{}
	}
	return ItemSet{Count: len(items), Items: items}
}

// Ldeep dumps the LDAP directory of a domain controller to dir, aggregates
// the dumps in ldap_results.json and exports the user names. A failing dump
// does not prevent the others.
func (t Toolbox) Ldeep(ctx context.Context, dir string, dcIP netip.Addr, creds model.Credentials) (LdapExport, error) {
	if err := mkdir(dir); err != nil {
		return LdapExport{}, err
	}

	var errs []error
	for _, d := range ldeepDumps {
		if ctx.Err() != nil {
			return LdapExport{}, ctx.Err()
		}
		args := []string{
			"--outfile", filepath.Join(dir, d.file),
			"ldap",
			"-s", "ldap://" + dcIP.String(),
			"-d", creds.Domain,
			"-u", creds.User,
			"-p", creds.Password,
		}
		args = append(args, d.query...)
		args = append(args, "-v")
		res := t.run(ctx, "ldeep", t.tools.Ldeep, "", t.tools.Timeout, args...)
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}

	export, err := AggregateLdeep(ctx, dir)
	if err != nil {
		errs = append(errs, err)
	}
	return export, errors.Join(errs...)
}

// AggregateLdeep reads the dumps of dir and writes dir/ldap_results.json and,
// if there is at least one user, dir/usernames.txt. A dump which is not a
// JSON array counts as empty and is reported in the returned error.
func AggregateLdeep(ctx context.Context, dir string) (LdapExport, error) {
	var errs []error
	read := func(name string) []json.RawMessage {
		items, err := ReadDump(filepath.Join(dir, name))
		if err != nil {
			slog.WarnContext(ctx, "ignoring ldeep dump", "file", name, "error", err)
			errs = append(errs, err)
		}
		return items
	}

	users := read("users.json")
	export := LdapExport{
		Metadata: LdapMetadata{
			Scanner:    "ldeep",
			ExportType: "structured_ldap_dump",
		},
		Data: LdapData{
			Trusts:           newItemSet(read("trusts.json")),
			Pkis:             newItemSet(read("pkis.json")),
			Users:            newItemSet(users),
			Delegations:      newItemSet(read("delegations.json")),
			ComputersResolve: newItemSet(read("machines-ip.json")),
		},
	}

	if err := writeJSON(filepath.Join(dir, model.FileLdapResults), export); err != nil {
		errs = append(errs, err)
	}

	names := Usernames(users)
	if len(names) == 0 {
		slog.InfoContext(ctx, "no sAMAccountName found, usernames not exported", "dir", dir)
	} else if err := writeLines(filepath.Join(dir, model.FileUsernames), names); err != nil {
		errs = append(errs, err)
	} else {
		slog.InfoContext(ctx, "usernames exported", "count", len(names))
	}

	return export, errors.Join(errs...)
}

// ReadDump reads an ldeep dump. A missing file is an empty dump.
func ReadDump(path string) ([]json.RawMessage, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if t := bytes.TrimSpace(b); len(t) == 0 || t[0] != '[' {
		return nil, fmt.Errorf("%w: %s: expected a JSON array", ErrMalformedOutput, path)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedOutput, path, err)
	}
	return items, nil
}

// Usernames returns sorted unique sAMAccountName values, machine
// accounts (ending with $) excluded.
func Usernames(users []json.RawMessage) []string {
	var names []string
	for _, raw := range users {
		var u struct {
			SAMAccountName string `json:"sAMAccountName"`
		}
		if err := json.Unmarshal(raw, &u); err != nil {
			continue
		}
		if u.SAMAccountName == "" || strings.HasSuffix(u.SAMAccountName, "$") {
			continue
		}
		names = append(names, u.SAMAccountName)
	}
	slices.Sort(names)
	return slices.Compact(names)
}

func writeJSON(path string, v any) error {
	return writeJSONIndent(path, v, "    ")
}

func writeJSONIndent(path string, v any, indent string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		_, _ = w.WriteString(l)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
