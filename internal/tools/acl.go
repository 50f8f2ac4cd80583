package tools

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/netip"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/algohub/algohub/internal/model"
)

// InterestingRights are the access mask names kept by ParseDACL, compared
// as case insensitive substrings.
var InterestingRights = []string{
	"FullControl",
	"GenericAll",
	"GenericWrite",
	"WriteDacl",
	"WriteOwner",
	"WriteProperty",
	"ExtendedRight",
	"Self",
	"ControlAccess",
}

var (
	aceHeaderRe  = regexp.MustCompile(`ACE\[\d+\] info`)
	accessMaskRe = regexp.MustCompile(`(?i)Access mask\s*:\s*(.*)`)
	trusteeRe    = regexp.MustCompile(`(?i)Trustee \(SID\)\s*:\s*(.*)`)
)

// ACE is an access control entry of an object's DACL
type ACE struct {
	DN      string `json:"dn"`
	Trustee string `json:"trustee"`
	Rights  string `json:"rights"`
}

type authMarker struct {
	marker string
	reason string
}

var ldapsearchAuth = []authMarker{
	{"data 52e", "invalid credentials"},
	{"Invalid credentials", "invalid credentials"},
	{"data 775", "account locked"},
	{"data 525", "user not found"},
}

var dacleditAuth = []authMarker{
	{"invalidCredentials", "invalid credentials"},
	{"data 52e", "invalid credentials"},
	{"Login failure", "invalid credentials"},
	{"data 775", "account locked"},
}

func authFailure(output string, markers []authMarker) error {
	for _, m := range markers {
		if strings.Contains(output, m.marker) {
			return fmt.Errorf("%w: %s", model.ErrAuthFailed, m.reason)
		}
	}
	return nil
}

// DistinguishedNames lists the DNs of all objects under baseDN. Failed
// binds are reported as model.ErrAuthFailed.
func (t Toolbox) DistinguishedNames(ctx context.Context, dcIP netip.Addr, creds model.Credentials, baseDN string) ([]string, error) {
	res := t.run(ctx, "ldapsearch", t.tools.Ldapsearch, "", t.tools.Timeout,
		"-x",
		"-H", "ldap://"+dcIP.String(),
		"-D", creds.User+"@"+creds.Domain,
		"-w", creds.Password,
		"-b", baseDN,
		"-E", "pr=1000/noprompt",
		"-o", "ldif-wrap=no",
		"(objectClass=*)", "distinguishedName",
	)
	if res.Err != nil {
		if err := authFailure(res.Combined(), ldapsearchAuth); err != nil {
			return nil, err
		}
		var stderr string
		if res.Stderr != nil {
			stderr = strings.TrimSpace(res.Stderr.String())
		}
		return nil, fmt.Errorf("listing objects of %s: %w: %s", baseDN, res.Err, stderr)
	}
	return ParseDistinguishedNames(res.Stdout.String()), nil
}

// ParseDistinguishedNames extracts distinguishedName values of a LDIF
// output. Folded lines are joined and base64 values decoded.
func ParseDistinguishedNames(ldif string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(ldif))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if strings.HasPrefix(line, " ") && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}

	ret := []string{}
	for _, line := range lines {
		if v, ok := strings.CutPrefix(line, "distinguishedName:: "); ok {
			b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(v))
			if err != nil {
				continue
			}
			ret = append(ret, string(b))
		} else if v, ok := strings.CutPrefix(line, "distinguishedName: "); ok {
			ret = append(ret, strings.TrimSpace(v))
		}
	}
	return ret
}

// ReadDACL returns the interesting entries of the DACL of dn. A read which
// fails for any other reason than authentication is logged and yields no
// entries, authentication failures are model.ErrAuthFailed.
func (t Toolbox) ReadDACL(ctx context.Context, dcIP netip.Addr, creds model.Credentials, dn string, trustees []string) ([]ACE, error) {
	res := t.run(ctx, "dacledit", t.tools.Dacledit, "", t.tools.DaclTimeout,
		creds.Domain+"/"+creds.User+":"+creds.Password,
		"-dc-ip", dcIP.String(),
		"-target-dn", dn,
		"-action", "read",
	)
	if res.Err != nil {
		if err := authFailure(res.Combined(), dacleditAuth); err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.DebugContext(ctx, "reading dacl failed", "dn", dn, "error", res.Err)
		return nil, nil
	}
	return ParseDACL(res.Stdout.String(), dn, trustees), nil
}

// ParseDACL parses dacledit's read output. Entries are kept when their
// access mask names an interesting right and, if trustees is not empty,
// the trustee contains one of them. Read only entries of Principal Self
// are dropped.
func ParseDACL(output, dn string, trustees []string) []ACE {
	var ret []ACE
	headers := aceHeaderRe.FindAllStringIndex(output, -1)
	for i, loc := range headers {
		end := len(output)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		block := output[loc[1]:end]
		if j := strings.Index(block, "Total ACEs"); j >= 0 {
			block = block[:j]
		}

		mask := accessMaskRe.FindStringSubmatch(block)
		trustee := trusteeRe.FindStringSubmatch(block)
		if mask == nil || trustee == nil {
			continue
		}
		rights := beforeParen(mask[1])
		who := beforeParen(trustee[1])

		if len(trustees) > 0 && !containsAnyFold(who, trustees) {
			continue
		}
		if strings.Contains(who, "Principal Self") && strings.Contains(rights, "Read") && !strings.Contains(rights, "Write") {
			continue
		}
		if containsAnyFold(rights, InterestingRights) {
			ret = append(ret, ACE{DN: dn, Trustee: who, Rights: rights})
		}
	}
	return ret
}

// WriteACL stores the entries as a JSON list
func WriteACL(path string, aces []ACE) error {
	if aces == nil {
		aces = []ACE{}
	}
	if err := mkdir(filepath.Dir(path)); err != nil {
		return err
	}
	return writeJSON(path, aces)
}

func beforeParen(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "(")
	return strings.TrimSpace(s)
}

func containsAnyFold(s string, subs []string) bool {
	s = strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(s, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
