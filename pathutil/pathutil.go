// Package pathutil validates local paths and normalizes remote repository paths.
package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// IsPathWithinBase reports whether abs lies inside baseDir once both are cleaned.
// filepath.Rel is used instead of a prefix check so "/app/ws2" is not inside "/app/ws".
func IsPathWithinBase(abs, baseDir string) bool {
	relPath, err := filepath.Rel(filepath.Clean(baseDir), filepath.Clean(abs))
	if err != nil {
		// different volumes on Windows
		return false
	}
	return relPath != ".." && !strings.HasPrefix(relPath, ".."+string(filepath.Separator))
}

// SafeJoin joins rel under base and fails when the result escapes base.
func SafeJoin(base, rel string) (string, bool) {
	joined := filepath.Join(base, filepath.FromSlash(rel))
	if !IsPathWithinBase(joined, base) {
		return "", false
	}
	return joined, true
}

// NormalizeSlashes converts backslashes to "/", collapses duplicate separators and
// trims leading and trailing "/". "." and ".." segments are resolved.
func NormalizeSlashes(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return ""
	}
	return strings.TrimPrefix(cleaned, "/")
}

// StripRepoPrefix removes a leading "<repo>/" segment, or the whole path when it equals
// the repository name. Matching is exact.
func StripRepoPrefix(p, repoName string) string {
	if repoName == "" {
		return p
	}
	if p == repoName {
		return ""
	}
	return strings.TrimPrefix(p, repoName+"/")
}

// WithinScope reports whether the normalized path p lies under the normalized scope.
// An empty scope contains everything.
func WithinScope(p, scope string) bool {
	if scope == "" {
		return true
	}
	return p == scope || strings.HasPrefix(p, scope+"/")
}

// RemotePath renders a normalized relative path as a repository destination ("/a/b").
func RemotePath(p string) string {
	return "/" + p
}
