package clip

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Platforms whose clipboard library only speaks text carry file references
// as a text/uri-list: one file:// URI per line.

// parseURIList returns the local paths in s if every non-comment line is a
// file:// URI, or nil otherwise.
func parseURIList(s string) []string {
	var paths []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || u.Scheme != "file" || u.Path == "" {
			return nil
		}
		if u.Host != "" && u.Host != "localhost" {
			return nil
		}
		p := u.Path
		if len(p) >= 3 && p[0] == '/' && p[2] == ':' {
			p = p[1:] // /C:/x -> C:/x
		}
		paths = append(paths, filepath.FromSlash(p))
	}
	return paths
}

// fileURI formats path as a file:// URI.
func fileURI(path string) string {
	p := filepath.ToSlash(path)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p // Windows drive paths: C:/x -> /C:/x
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
