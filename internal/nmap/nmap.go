package nmap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/algohub/algohub/internal/log"
	"github.com/algohub/algohub/internal/model"

	"github.com/Ullaakut/nmap/v3"
)

// Scanner is a wrapper on top of "github.com/Ullaakut/nmap/v3" Scanner
// running a service and default script scan of a subnet:
//
//	nmap <subnet> -p <ports> -sV -sC -Pn --min-rate 1000 -T5
type Scanner struct {
	nmap    string
	ports   []string
	minRate int
	timing  int
	timeout time.Duration
}

func New(cfg model.Nmap) (Scanner, error) {
	timing, err := cfg.TimingLevel()
	if err != nil {
		return Scanner{}, err
	}
	return Scanner{
		nmap:    cfg.Binary,
		ports:   splitPorts(cfg.Ports),
		minRate: cfg.MinRate,
		timing:  timing,
		timeout: cfg.Timeout,
	}, nil
}

func (s Scanner) WithNmapBinary(nmap string) Scanner {
	s.nmap = nmap
	return s
}

// Scan scans the subnet, stores nmap's XML report to xmlPath and the open
// ports of the hosts which are up to jsonPath.
func (s Scanner) Scan(ctx context.Context, subnet, xmlPath, jsonPath string) ([]model.NmapHost, error) {
	options := []nmap.Option{
		nmap.WithTargets(subnet),
		nmap.WithServiceInfo(),
		nmap.WithDefaultScript(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithTimingTemplate(nmap.Timing(s.timing)),
	}
	if s.nmap != "" {
		options = append(options, nmap.WithBinaryPath(s.nmap))
	}
	if len(s.ports) > 0 {
		options = append(options, nmap.WithPorts(s.ports...))
	}
	if s.minRate > 0 {
		options = append(options, nmap.WithMinRate(s.minRate))
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logCtx := log.ContextAttrs(
		ctx,
		slog.String("tool", "nmap"),
		slog.GroupAttrs(
			"options",
			slog.String("nmap", s.nmap),
			slog.Any("ports", s.ports),
			slog.Int("min_rate", s.minRate),
			slog.Int("timing", s.timing),
		),
	)
	run, err := scan(logCtx, options)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(xmlPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating directory for %s: %w", xmlPath, err)
	}
	if err := run.ToFile(xmlPath); err != nil {
		return nil, fmt.Errorf("storing nmap xml %s: %w", xmlPath, err)
	}

	hosts := OpenHosts(run)
	if err := WriteJSON(jsonPath, hosts); err != nil {
		return nil, err
	}
	slog.InfoContext(logCtx, "hosts with open ports", "count", len(hosts), "xml", xmlPath, "json", jsonPath)
	return hosts, nil
}

func scan(ctx context.Context, options []nmap.Option) (*nmap.Run, error) {
	scanner, err := nmap.NewScanner(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("creating nmap scanner: %w", err)
	}

	now := time.Now()
	slog.DebugContext(ctx, "scan started")
	run, warningsp, err := scanner.Run()
	if err != nil {
		slog.DebugContext(ctx, "scan failed", "error", err)
		return nil, fmt.Errorf("%w: nmap scan: %w", model.ErrToolFailed, err)
	}

	slog.DebugContext(ctx, "scan finished", "elapsed", time.Since(now).String(), "hosts", len(run.Hosts))

	if warningsp != nil {
		for _, warn := range *warningsp {
			slog.WarnContext(ctx, "scan", "warning", warn)
		}
	}

	return run, nil
}

// HostsFromXML parses nmap's XML report and returns its open hosts
func HostsFromXML(b []byte) ([]model.NmapHost, error) {
	var run nmap.Run
	if err := nmap.Parse(b, &run); err != nil {
		return nil, fmt.Errorf("parsing nmap xml: %w", err)
	}
	return OpenHosts(&run), nil
}

// OpenHosts keeps hosts which are up and have at least one open port,
// closed and filtered ports are dropped.
func OpenHosts(run *nmap.Run) []model.NmapHost {
	ret := make([]model.NmapHost, 0, len(run.Hosts))
	for _, host := range run.Hosts {
		if host.Status.State != "up" {
			continue
		}
		h := model.NmapHost{
			IP:     primaryAddr(host),
			Status: host.Status.State,
		}
		if len(host.Hostnames) > 0 {
			h.Hostname = host.Hostnames[0].Name
		}
		for _, port := range host.Ports {
			if port.State.State != "open" {
				continue
			}
			h.Ports = append(h.Ports, model.NmapPort{
				Port:      port.ID,
				Protocol:  port.Protocol,
				State:     port.State.State,
				Service:   port.Service.Name,
				Product:   port.Service.Product,
				Version:   port.Service.Version,
				ExtraInfo: port.Service.ExtraInfo,
				Banner:    banner(port.Service),
			})
		}
		if len(h.Ports) > 0 {
			ret = append(ret, h)
		}
	}
	return ret
}

// WriteJSON stores hosts as full_scan.json
func WriteJSON(path string, hosts []model.NmapHost) error {
	if hosts == nil {
		hosts = []model.NmapHost{}
	}
	b, err := json.MarshalIndent(hosts, "", "    ")
	if err != nil {
		return fmt.Errorf("encoding hosts: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("storing hosts %s: %w", path, err)
	}
	return nil
}

// primaryAddr prefers the IPv4 address of a host
func primaryAddr(host nmap.Host) string {
	for _, a := range host.Addresses {
		if a.AddrType == "ipv4" {
			return a.Addr
		}
	}
	if len(host.Addresses) > 0 {
		return host.Addresses[0].Addr
	}
	return "unknown"
}

// banner is a "product: X version: Y" summary of the detected service
func banner(s nmap.Service) string {
	var parts []string
	for _, kv := range [][2]string{
		{"product", s.Product},
		{"version", s.Version},
		{"extrainfo", s.ExtraInfo},
		{"ostype", s.OSType},
		{"hostname", s.Hostname},
	} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+": "+kv[1])
		}
	}
	return strings.Join(parts, " ")
}

func splitPorts(ports string) []string {
	var ret []string
	for p := range strings.SplitSeq(ports, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ret = append(ret, p)
		}
	}
	return ret
}
