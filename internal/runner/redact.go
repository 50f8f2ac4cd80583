package runner

import (
	"slices"
	"strings"
)

const masked = "*****"

// flags whose following argument is a secret
var secretFlags = []string{"-p", "-P", "-ap", "-w"}

// keys of -key=value arguments carrying a secret, compared without
// leading dashes and case insensitive
var secretKeys = []string{"p", "ap", "password", "pass", "passwd", "pwd"}

// Redact returns a copy of args suitable for logging. The value following
// -p, -P, -ap or -w is masked, as is the value of a -password=value style
// argument and the password of an impacket domain/user:password target.
func Redact(args []string) []string {
	ret := make([]string, len(args))
	skipNext := false
	for i, arg := range args {
		if skipNext {
			skipNext = false
			ret[i] = masked
			continue
		}
		if slices.Contains(secretFlags, arg) {
			ret[i] = arg
			skipNext = true
			continue
		}
		if len(arg) > 2 && arg[0] == '-' {
			if key, _, ok := strings.Cut(arg, "="); ok {
				if slices.Contains(secretKeys, strings.ToLower(strings.TrimLeft(key, "-"))) {
					ret[i] = key + "=" + masked
					continue
				}
			}
		}
		if masked, ok := redactTarget(arg); ok {
			ret[i] = masked
			continue
		}
		ret[i] = arg
	}
	return ret
}

// redactTarget masks the password of domain/user:password, the rest of
// the argument is dropped as the password may contain any character
func redactTarget(arg string) (string, bool) {
	if arg == "" || arg[0] == '-' {
		return "", false
	}
	slash := strings.IndexByte(arg, '/')
	colon := strings.IndexByte(arg, ':')
	if slash <= 0 || colon <= slash+1 {
		return "", false
	}
	return arg[:colon+1] + masked, true
}
