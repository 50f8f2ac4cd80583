// Package manspider turns the human oriented log of the manspider share
// crawler into structured per host findings.
//
// Only lines prefixed by "[+]" matter. Each of them is claimed by the first
// matching rule: login, grep match, snippet, classic. A grep match opens an
// accumulator keyed by host and path, the following snippet lines are
// attached to the most recently opened one. Accumulators are flushed into
// their hosts' file lists after the last line.
package manspider

import (
	"regexp"
	"strings"
)

const (
	// MaxSnippets is the maximum number of code snippets kept per file
	MaxSnippets = 10

	marker = "[+]"
)

var (
	ansiRe    = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)
	keywordRe = regexp.MustCompile(`"([^"]+)"\s+(\d+)\s+times?`)
)

// Outcome classifies how a line was handled
type Outcome string

const (
	OutcomeSkipPrefix     Outcome = "skip_prefix"
	OutcomeSkipShort      Outcome = "skip_short"
	OutcomeLogin          Outcome = "login"
	OutcomeGrep           Outcome = "grep"
	OutcomeGrepNotLogged  Outcome = "grep_not_logged_in"
	OutcomeSnippet        Outcome = "snippet"
	OutcomeSnippetDropped Outcome = "snippet_dropped"
	OutcomeClassic        Outcome = "classic"
	OutcomeUnrecognized   Outcome = "unrecognized"
	OutcomeParseError     Outcome = "parse_error"
)

// TraceRecord describes the handling of one input line (1-based Index)
type TraceRecord struct {
	Index   int
	Raw     string
	Clean   string
	Outcome Outcome
	Detail  string
}

type Result struct {
	// Hosts in the order they were first logged in
	Hosts []HostResult
	Trace []TraceRecord
	// LoggedIn hosts in the login order
	LoggedIn []string
	// Accumulated is a number of files with keyword matches
	Accumulated int
}

type accumulator struct {
	ip    string
	match CredMatch
}

type parser struct {
	hosts    []*HostResult
	hostIdx  map[string]*HostResult
	loggedIn []string
	logged   map[string]bool
	acc      []*accumulator
	accIdx   map[string]*accumulator
}

type rule struct {
	claims func(content string) bool
	apply  func(p *parser, content string) (Outcome, string)
}

// rules are evaluated in order, the first one claiming a line handles it
var rules = []rule{
	{claims: isLogin, apply: (*parser).login},
	{claims: isGrep, apply: (*parser).grep},
	{claims: isSnippet, apply: (*parser).snippet},
	{claims: isClassic, apply: (*parser).classic},
}

// Parse splits text to lines and parses them.
func Parse(text string) Result {
	return ParseLines(splitLines(text))
}

// ParseLines normalizes manspider's output lines. It never fails, lines
// which can't be understood are reported in the trace only.
func ParseLines(lines []string) Result {
	p := &parser{
		hostIdx: make(map[string]*HostResult),
		logged:  make(map[string]bool),
		accIdx:  make(map[string]*accumulator),
	}

	trace := make([]TraceRecord, 0, len(lines))
	for i, raw := range lines {
		rec := TraceRecord{
			Index: i + 1,
			Raw:   raw,
			Clean: ansiRe.ReplaceAllString(raw, ""),
		}
		rec.Outcome, rec.Detail = p.line(strings.TrimSpace(rec.Clean))
		trace = append(trace, rec)
	}

	return Result{
		Hosts:       p.flush(),
		Trace:       trace,
		LoggedIn:    p.loggedIn,
		Accumulated: len(p.acc),
	}
}

func (p *parser) line(line string) (Outcome, string) {
	if !strings.HasPrefix(line, marker) {
		return OutcomeSkipPrefix, "no [+] prefix"
	}
	if len(line) < len(marker)+1 {
		return OutcomeSkipShort, "too short after [+]"
	}
	content := strings.TrimSpace(line[len(marker)+1:])

	for _, r := range rules {
		if r.claims(content) {
			return r.apply(p, content)
		}
	}
	return OutcomeUnrecognized, "no rule matched: " + content
}

func isLogin(content string) bool {
	return strings.Contains(content, `Successful login as "`) && strings.Contains(content, ": ")
}

func (p *parser) login(content string) (Outcome, string) {
	ip, _, _ := strings.Cut(content, ": ")
	ip = strings.TrimSpace(ip)
	if !p.logged[ip] {
		p.logged[ip] = true
		p.loggedIn = append(p.loggedIn, ip)
	}
	p.host(ip)
	return OutcomeLogin, "ip " + ip
}

func isGrep(content string) bool {
	return strings.Contains(content, ": matched ")
}

// grep handles `10.3.10.11\NETLOGON\script.ps1: matched "password" 2 times`
func (p *parser) grep(content string) (Outcome, string) {
	fullPath, info, _ := strings.Cut(content, ": matched ")

	var keyword, count string
	if m := keywordRe.FindStringSubmatch(info); m != nil {
		keyword, count = m[1], m[2]
	} else {
		keyword, count = "unknown", "unknown"
		if fields := strings.Fields(info); len(fields) > 0 {
			count = fields[0]
		}
	}

	var ip, path string
	collapsed := strings.ReplaceAll(fullPath, `\\`, `\`)
	if head, tail, ok := strings.Cut(collapsed, `\`); ok {
		ip, path = strings.TrimSpace(head), strings.TrimSpace(tail)
	} else {
		ip, path = strings.TrimSpace(collapsed), strings.TrimSpace(fullPath)
	}

	detail := "ip " + ip + ", path " + path + ", keyword " + keyword + ", count " + count
	if !p.logged[ip] {
		return OutcomeGrepNotLogged, detail
	}

	p.host(ip)
	key := ip + `\` + path
	a, ok := p.accIdx[key]
	if !ok {
		a = &accumulator{
			ip: ip,
			match: CredMatch{
				Path:     path,
				Matches:  []KeywordMatch{},
				Snippets: []string{},
			},
		}
		p.accIdx[key] = a
		p.acc = append(p.acc, a)
	}
	a.match.Matches = append(a.match.Matches, KeywordMatch{Keyword: keyword, Count: count})
	return OutcomeGrep, detail
}

func isSnippet(content string) bool {
	return !strings.Contains(content, ":") ||
		strings.HasPrefix(content, "$") ||
		strings.HasPrefix(content, "#") ||
		strings.HasPrefix(content, "//") ||
		strings.Contains(content, "=")
}

// snippet attaches content to the most recently opened accumulator
func (p *parser) snippet(content string) (Outcome, string) {
	if len(p.acc) == 0 {
		return OutcomeSnippetDropped, "no open file"
	}
	last := p.acc[len(p.acc)-1]
	if len(last.match.Snippets) >= MaxSnippets {
		return OutcomeSnippetDropped, "snippet limit reached for " + last.match.Path
	}
	last.match.Snippets = append(last.match.Snippets, content)
	return OutcomeSnippet, "attached to " + last.match.Path
}

func isClassic(content string) bool {
	return strings.Contains(content, ": ")
}

// classic handles `10.0.0.5: C$\Users\bob\id_rsa (2.17KB)`
func (p *parser) classic(content string) (Outcome, string) {
	ip, rest, _ := strings.Cut(content, ": ")
	ip = strings.TrimSpace(ip)
	rest = strings.TrimSpace(rest)

	if !p.logged[ip] || !strings.Contains(rest, "(") || !strings.HasSuffix(rest, ")") {
		return OutcomeUnrecognized, "not a listing or ip " + ip + " not logged in"
	}
	i := strings.LastIndex(rest, " (")
	if i < 0 {
		return OutcomeParseError, "missing \" (\" before size: " + rest
	}
	path := strings.TrimSpace(rest[:i])
	size := strings.TrimSpace(rest[i+2 : len(rest)-1])

	h := p.host(ip)
	h.Files = append(h.Files, FileEntry{Path: path, Size: size})
	return OutcomeClassic, "path " + path + ", size " + size
}

func (p *parser) host(ip string) *HostResult {
	if h, ok := p.hostIdx[ip]; ok {
		return h
	}
	h := &HostResult{IP: ip, Files: []Finding{}}
	p.hostIdx[ip] = h
	p.hosts = append(p.hosts, h)
	return h
}

func (p *parser) flush() []HostResult {
	for _, a := range p.acc {
		if h, ok := p.hostIdx[a.ip]; ok {
			h.Files = append(h.Files, a.match)
		}
	}
	ret := make([]HostResult, 0, len(p.hosts))
	for _, h := range p.hosts {
		ret = append(ret, *h)
	}
	return ret
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
