// Package routepath normalizes request paths and redirect targets.
package routepath

import (
	"errors"
	"strings"
)

// Path errors.
var (
	ErrInvalidPath          = errors.New("invalid path")
	ErrBackslashInPath      = errors.New("path contains backslash")
	ErrNullByteInPath       = errors.New("path contains null byte")
	ErrInvalidPercentEscape = errors.New("invalid percent escape sequence")
	ErrPathEscapesRoot      = errors.New("path escapes root via ..")
)

// Clean normalizes a path and returns it with its query string, if any.
//
//   - duplicate slashes collapse (/client//docs → /client/docs)
//   - "." segments are dropped and ".." segments resolved
//   - a trailing slash is removed, except for "/"
//
// Backslashes, NUL bytes, malformed percent escapes and ".." above the root
// are rejected. The query string is kept as is.
func Clean(input string) (string, error) {
	path, query, hasQuery := strings.Cut(input, "?")
	if path == "" {
		path = "/"
	}

	if strings.Contains(path, "\\") {
		return "", ErrBackslashInPath
	}
	if strings.Contains(path, "\x00") || strings.Contains(strings.ToUpper(path), "%00") {
		return "", ErrNullByteInPath
	}
	if strings.Contains(path, "%") && !validEscapes(path) {
		return "", ErrInvalidPercentEscape
	}

	var out []string
	for _, seg := range strings.Split(path, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) == 0 {
				return "", ErrPathEscapesRoot
			}
			out = out[:len(out)-1]
		default:
			out = append(out, seg)
		}
	}

	cleaned := "/" + strings.Join(out, "/")
	if hasQuery && query != "" {
		cleaned += "?" + query
	}
	return cleaned, nil
}

// Local validates a redirect target supplied by a client. Only same-site
// absolute paths are accepted; full URLs and scheme-relative "//host" forms
// are rejected.
func Local(target string) (string, error) {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return "", ErrInvalidPath
	}
	return Clean(target)
}

// SafeRedirect returns target when it is a valid local path and fallback
// otherwise.
func SafeRedirect(target, fallback string) string {
	if target == "" {
		return fallback
	}
	cleaned, err := Local(target)
	if err != nil {
		return fallback
	}
	return cleaned
}

// HasPrefix reports whether path is prefix itself or lies below it.
func HasPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func validEscapes(path string) bool {
	for i := 0; i < len(path); i++ {
		if path[i] != '%' {
			continue
		}
		if i+2 >= len(path) || !isHex(path[i+1]) || !isHex(path[i+2]) {
			return false
		}
		i += 2
	}
	return true
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
