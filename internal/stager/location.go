// Package stager moves sample input files between storage backends and
// local task directories. Inputs referenced by s3:// URIs are
// downloaded before execution; produced files can be staged back out.
package stager

import "strings"

// Supported URI schemes for sample file locations.
const (
	SchemeFile = "file"
	SchemeS3   = "s3"
)

// ParseScheme extracts the scheme from a location URI.
// Returns ("", raw) for bare paths with no scheme.
func ParseScheme(location string) (scheme, path string) {
	if i := strings.Index(location, "://"); i > 0 {
		scheme = strings.ToLower(location[:i])
		path = location[i+3:]
		if scheme == SchemeFile {
			path = "/" + strings.TrimLeft(path, "/")
		}
		return scheme, path
	}
	return "", location
}

// BuildLocation constructs a scheme://path URI.
func BuildLocation(scheme, path string) string {
	if scheme == SchemeFile {
		return "file://" + path
	}
	return scheme + "://" + path
}
