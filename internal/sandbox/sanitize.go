package sandbox

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxArgumentLength is the longest argument accepted after cleaning, in characters.
const MaxArgumentLength = 1000

// ErrSanitization matches every *SanitizationError.
var ErrSanitization = errors.New("sanitization failure")

// SanitizationError names the offending argument by position only, never by value:
// arguments may carry signing keys.
type SanitizationError struct {
	Position int
	Reason   string
}

func (e *SanitizationError) Error() string {
	return fmt.Sprintf("sanitization failure: argument %d %s", e.Position, e.Reason)
}

func (e *SanitizationError) Is(target error) bool { return target == ErrSanitization }

// ShellMetacharacters are stripped from plain arguments.
const ShellMetacharacters = ";&|`${}<>'\""

var (
	// name(type,type) with an optional return group, e.g. balanceOf(address)(uint256).
	signaturePattern = regexp.MustCompile(
		`^\s*[A-Za-z_][A-Za-z0-9_]*\s*` + typeList + `(\s*` + typeList + `)?\s*$`)
	whitespace = regexp.MustCompile(`\s+`)
)

const typeList = `\(\s*(?:[A-Za-z0-9_\[\]]+\s*(?:,\s*[A-Za-z0-9_\[\]]+\s*)*)?\)`

// IsSignature reports whether arg has the shape of a call signature.
func IsSignature(arg string) bool {
	return signaturePattern.MatchString(arg)
}

// Sanitize cleans every argument independently and returns a new slice.
// Sanitize(Sanitize(x)) == Sanitize(x) for any x that does not fail.
func Sanitize(args []string) ([]string, error) {
	out := make([]string, len(args))
	for i, arg := range args {
		cleaned, err := sanitizeOne(arg)
		if err != nil {
			return nil, &SanitizationError{Position: i, Reason: err.Error()}
		}
		out[i] = cleaned
	}
	return out, nil
}

func sanitizeOne(arg string) (string, error) {
	var cleaned string
	if IsSignature(arg) {
		cleaned = normalizeSignature(arg)
	} else {
		cleaned = cleanPlain(arg)
		// Stripping can leave a signature behind; normalize it so a second pass is a no-op.
		if IsSignature(cleaned) {
			cleaned = normalizeSignature(cleaned)
		}
	}

	if cleaned == "" {
		return "", errors.New("is empty after cleaning")
	}
	if utf8.RuneCountInString(cleaned) > MaxArgumentLength {
		return "", fmt.Errorf("exceeds %d characters", MaxArgumentLength)
	}
	return cleaned, nil
}

func normalizeSignature(arg string) string {
	return whitespace.ReplaceAllString(arg, "")
}

func cleanPlain(arg string) string {
	stripped := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || strings.ContainsRune(ShellMetacharacters, r) {
			return -1
		}
		return r
	}, arg)
	return strings.TrimSpace(whitespace.ReplaceAllString(stripped, " "))
}

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// reservedEnv may not be set by callers.
var reservedEnv = map[string]struct{}{
	"PATH":            {},
	"LD_PRELOAD":      {},
	"LD_LIBRARY_PATH": {},
	"IFS":             {},
	"BASH_ENV":        {},
	"ENV":             {},
}

// SanitizeEnv validates caller-supplied environment entries and returns them as
// sorted KEY=VALUE pairs. Keys must be identifiers and not reserved; values are
// cleaned like plain arguments but may be empty.
func SanitizeEnv(env map[string]string) ([]string, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for i, k := range keys {
		if !envKeyPattern.MatchString(k) {
			return nil, &SanitizationError{Position: i, Reason: "has an invalid environment variable name"}
		}
		if _, reserved := reservedEnv[strings.ToUpper(k)]; reserved || strings.HasPrefix(strings.ToUpper(k), "DYLD_") {
			return nil, &SanitizationError{Position: i, Reason: fmt.Sprintf("sets reserved environment variable %s", k)}
		}
		v := cleanPlain(env[k])
		if utf8.RuneCountInString(v) > MaxArgumentLength {
			return nil, &SanitizationError{Position: i, Reason: fmt.Sprintf("exceeds %d characters", MaxArgumentLength)}
		}
		out = append(out, k+"="+v)
	}
	return out, nil
}
