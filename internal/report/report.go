// Package report assembles everything the workflows left in the result
// tree into a single document for the dashboard. Any file may be missing
// or malformed, such a file is skipped.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/algohub/algohub/internal/model"
)

const unknownDomain = "Unknown"

// ldeepFiles are shown in this order
var ldeepFiles = []string{
	"users.json",
	"trusts.json",
	"delegations.json",
	"pkis.json",
	model.FileLdapResults,
	"machines-ip.json",
}

var dnDomainRe = regexp.MustCompile(`DC=([^,]+)`)

type Document struct {
	NmapSubnets   []NmapSubnet       `json:"nmap_subnets"`
	ADEnumeration []DomainController `json:"ad_enumeration"`
	FileAnalysis  FileAnalysis       `json:"file_analysis"`
	Screenshots   []Screenshot       `json:"screenshots"`
}

type NmapSubnet struct {
	ID    string           `json:"id"`
	Title string           `json:"title"`
	Hosts []model.NmapHost `json:"hosts"`
}

type DomainController struct {
	DCName  string         `json:"dc_name"`
	Domain  string         `json:"domain"`
	Certipy *CertipyReport `json:"certipy"`
	Ldeep   []DataFile     `json:"ldeep"`
}

type CertipyReport struct {
	Title string          `json:"title"`
	File  string          `json:"file"`
	Data  json.RawMessage `json:"data"`
}

type DataFile struct {
	File string          `json:"file"`
	Data json.RawMessage `json:"data"`
}

type FileAnalysis struct {
	Manspider []SpiderSubnet `json:"manspider"`
}

// SpiderSubnet carries the findings of one crawled network,
// Files and Creds are omitted when there are none.
type SpiderSubnet struct {
	Subnet string          `json:"subnet"`
	Files  json.RawMessage `json:"files,omitempty"`
	Creds  json.RawMessage `json:"creds,omitempty"`
}

// Build reads the result tree under root. An empty gowitnessDB or
// a missing database means no screenshots.
func Build(ctx context.Context, root, gowitnessDB string) (Document, error) {
	layout := model.Layout{Root: root}
	doc := Document{
		NmapSubnets:   nmapSubnets(ctx, layout),
		ADEnumeration: domainControllers(ctx, layout),
		FileAnalysis: FileAnalysis{
			Manspider: spiderSubnets(ctx, layout),
		},
		Screenshots: []Screenshot{},
	}
	if gowitnessDB != "" {
		shots, err := Screenshots(ctx, gowitnessDB)
		if err != nil {
			slog.WarnContext(ctx, "screenshots not available", "db", gowitnessDB, "error", err)
		} else {
			doc.Screenshots = shots
		}
	}
	return doc, ctx.Err()
}

func nmapSubnets(ctx context.Context, layout model.Layout) []NmapSubnet {
	ret := []NmapSubnet{}
	for _, name := range subdirs(ctx, layout.Root) {
		path := filepath.Join(layout.Root, name, model.FileNmapJSON)
		var hosts []model.NmapHost
		if !readArray(ctx, path, &hosts) || len(hosts) == 0 {
			continue
		}
		ret = append(ret, NmapSubnet{
			ID:    name,
			Title: "Subnet: " + subnetTitle(name),
			Hosts: hosts,
		})
	}
	return ret
}

// subnetTitle turns a subnet dir name back to CIDR, 10_0_0_0_24 is 10.0.0.0/24
func subnetTitle(dir string) string {
	i := strings.LastIndex(dir, "_")
	if i < 0 {
		return dir
	}
	return strings.ReplaceAll(dir[:i], "_", ".") + "/" + dir[i+1:]
}

func domainControllers(ctx context.Context, layout model.Layout) []DomainController {
	ret := []DomainController{}
	for _, dc := range subdirs(ctx, layout.LdeepRoot()) {
		obj := DomainController{
			DCName: dc,
			Domain: unknownDomain,
			Ldeep:  []DataFile{},
		}
		dir := filepath.Join(layout.LdeepRoot(), dc)
		for _, name := range ldeepFiles {
			data, ok := readData(ctx, filepath.Join(dir, name))
			if !ok {
				continue
			}
			obj.Ldeep = append(obj.Ldeep, DataFile{File: name, Data: data})
			if name == "users.json" && obj.Domain == unknownDomain {
				if d := domainOf(data); d != "" {
					obj.Domain = d
				}
			}
		}
		obj.Certipy = certipyReport(ctx, filepath.Join(layout.CertipyRoot(), dc))
		ret = append(ret, obj)
	}
	return ret
}

// domainOf guesses the domain from the distinguished name of the first user
func domainOf(users json.RawMessage) string {
	var list []struct {
		DN string `json:"distinguishedName"`
	}
	if err := json.Unmarshal(users, &list); err != nil || len(list) == 0 {
		return ""
	}
	var parts []string
	for _, m := range dnDomainRe.FindAllStringSubmatch(list[0].DN, -1) {
		parts = append(parts, m[1])
	}
	return strings.Join(parts, ".")
}

func certipyReport(ctx context.Context, dir string) *CertipyReport {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), model.CertipyResultSuffix) {
			continue
		}
		data, ok := readData(ctx, filepath.Join(dir, e.Name()))
		if !ok {
			continue
		}
		return &CertipyReport{Title: "Certipy", File: e.Name(), Data: data}
	}
	return nil
}

func spiderSubnets(ctx context.Context, layout model.Layout) []SpiderSubnet {
	ret := []SpiderSubnet{}
	for _, name := range subdirs(ctx, layout.ManspiderRoot()) {
		dir := filepath.Join(layout.ManspiderRoot(), name)
		s := SpiderSubnet{
			Subnet: subnetTitle(name),
			Files:  findings(ctx, filepath.Join(dir, model.FileManspiderFiles)),
			Creds:  findings(ctx, filepath.Join(dir, model.FileManspiderCreds)),
		}
		if s.Files == nil && s.Creds == nil {
			continue
		}
		ret = append(ret, s)
	}
	return ret
}

// findings returns a non empty array of host results, nil otherwise
func findings(ctx context.Context, path string) json.RawMessage {
	var hosts []json.RawMessage
	if !readArray(ctx, path, &hosts) || len(hosts) == 0 {
		return nil
	}
	b, err := json.Marshal(hosts)
	if err != nil {
		return nil
	}
	return b
}

// readArray decodes a JSON array stored in path into v
func readArray(ctx context.Context, path string, v any) bool {
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "skipping unreadable file", "path", path, "error", err)
		}
		return false
	}
	if t := bytes.TrimSpace(b); len(t) == 0 || t[0] != '[' {
		slog.WarnContext(ctx, "skipping file, expected a JSON array", "path", path)
		return false
	}
	if err := json.Unmarshal(b, v); err != nil {
		slog.WarnContext(ctx, "skipping malformed file", "path", path, "error", err)
		return false
	}
	return true
}

// readData returns the content of a JSON file, unless it is missing,
// malformed, null or an empty object or array
func readData(ctx context.Context, path string) (json.RawMessage, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "skipping unreadable file", "path", path, "error", err)
		}
		return nil, false
	}
	if !json.Valid(b) {
		slog.WarnContext(ctx, "skipping malformed file", "path", path)
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, false
	}
	switch buf.String() {
	case "null", "{}", "[]":
		return nil, false
	}
	return buf.Bytes(), true
}

func subdirs(ctx context.Context, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.WarnContext(ctx, "skipping unreadable directory", "path", dir, "error", err)
		}
		return nil
	}
	var ret []string
	for _, e := range entries {
		if e.IsDir() {
			ret = append(ret, e.Name())
		}
	}
	slices.Sort(ret)
	return ret
}
