// Package version wraps semantic-version handling for npm-style version
// strings, which carry no "v" prefix.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

func canonical(v string) string {
	return "v" + strings.TrimPrefix(strings.TrimSpace(v), "v")
}

// IsValid reports whether v is a well-formed semantic version.
func IsValid(v string) bool {
	return semver.IsValid(canonical(v))
}

// Compare orders two versions under semantic-version precedence. Invalid
// versions sort before valid ones, matching semver.Compare.
func Compare(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// Max returns the highest version in the list, or "" for an empty list.
func Max(versions []string) string {
	highest := ""
	for _, v := range versions {
		if !IsValid(v) {
			continue
		}
		if highest == "" || Compare(v, highest) > 0 {
			highest = v
		}
	}
	return highest
}

// NextPatch returns the next patch release after v, dropping any prerelease
// and build suffix.
func NextPatch(v string) (string, error) {
	c := canonical(v)
	if !semver.IsValid(c) {
		return "", fmt.Errorf("invalid version %q", v)
	}
	base := strings.TrimPrefix(c, "v")
	if i := strings.IndexAny(base, "-+"); i >= 0 {
		base = base[:i]
	}
	parts := strings.Split(base, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", fmt.Errorf("invalid patch component in %q", v)
	}
	return fmt.Sprintf("%s.%s.%d", parts[0], parts[1], patch+1), nil
}

// NextFree walks patch releases upward from base until it finds a version not
// present in burned. It gives up after a bounded number of steps.
func NextFree(base string, burned map[string]struct{}) string {
	candidate := base
	for i := 0; i < 1000; i++ {
		next, err := NextPatch(candidate)
		if err != nil {
			return ""
		}
		candidate = next
		if _, taken := burned[candidate]; !taken {
			return candidate
		}
	}
	return ""
}
