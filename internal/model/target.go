package model

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

var cidrRe = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}/\d{1,2}$`)

// ParseTargets splits raw operator input on commas and white spaces. Empty
// entries are dropped and duplicates removed, first occurrence wins.
func ParseTargets(raw ...string) []string {
	seen := make(map[string]struct{})
	var ret []string
	for _, r := range raw {
		fields := strings.FieldsFunc(r, func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
		})
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			ret = append(ret, f)
		}
	}
	return ret
}

// ParseSubnets returns the valid IPv4 CIDR subnets (mask /1 to /30) and
// an error for every rejected one. Nothing should be scheduled while err != nil.
func ParseSubnets(subnets []string) ([]string, error) {
	var valid []string
	var errs []error
	for _, s := range subnets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if err := validateSubnet(s); err != nil {
			errs = append(errs, err)
			continue
		}
		valid = append(valid, s)
	}
	return valid, errors.Join(errs...)
}

func validateSubnet(subnet string) error {
	if !cidrRe.MatchString(subnet) {
		return fmt.Errorf("%w: %q: expected format X.X.X.X/Y", ErrInvalidTarget, subnet)
	}
	ip, maskPart, _ := strings.Cut(subnet, "/")
	mask, err := strconv.Atoi(maskPart)
	if err != nil {
		return fmt.Errorf("%w: %q: mask %q is not a number", ErrInvalidTarget, subnet, maskPart)
	}
	if mask < 1 || mask > 30 {
		return fmt.Errorf("%w: %q: mask /%d must be between /1 and /30", ErrInvalidTarget, subnet, mask)
	}
	for octet := range strings.SplitSeq(ip, ".") {
		n, err := strconv.Atoi(octet)
		if err != nil || n > 255 {
			return fmt.Errorf("%w: %q: octet %q must be between 0 and 255", ErrInvalidTarget, subnet, octet)
		}
	}
	return nil
}

// Credentials are the domain credentials of the authenticated workflows.
// They live only in memory and are never written to the config or the state.
type Credentials struct {
	Domain   string
	User     string
	Password string
}

func (c Credentials) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Domain) == "" {
		errs = append(errs, fmt.Errorf("%w: domain", ErrMissingCredential))
	}
	if strings.TrimSpace(c.User) == "" {
		errs = append(errs, fmt.Errorf("%w: user", ErrMissingCredential))
	}
	if c.Password == "" {
		errs = append(errs, fmt.Errorf("%w: password", ErrMissingCredential))
	}
	return errors.Join(errs...)
}

// String never discloses the password
func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s", c.User, c.Domain)
}

func (c Credentials) LogValue() slog.Value {
	return slog.StringValue(c.String())
}

// SafeName makes a target usable as a single directory name, colons are
// dropped and slashes replaced.
func SafeName(target string) string {
	return strings.NewReplacer(":", "", "/", "_", `\`, "_").Replace(target)
}

// SubnetDirName is a directory name of a subnet under the output root,
// 10.0.0.0/24 is stored in 10_0_0_0_24.
func SubnetDirName(subnet string) string {
	return strings.NewReplacer("/", "_", ".", "_").Replace(subnet)
}

// BaseDN is the naming context of a domain, corp.local is DC=corp,DC=local.
func BaseDN(domain string) string {
	var parts []string
	for label := range strings.SplitSeq(strings.Trim(strings.TrimSpace(domain), "."), ".") {
		if label != "" {
			parts = append(parts, "DC="+label)
		}
	}
	return strings.Join(parts, ",")
}
