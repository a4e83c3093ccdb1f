package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	errPathEscapes    = errors.New("path escapes base directory")
	errPathNotFound   = errors.New("path does not exist")
	errPathNotAFile   = errors.New("path is not a regular file")
	errPathUnreadable = errors.New("path is not readable")

	errBadFilename = errors.New("invalid filename")
)

// canonicalizeBaseDir resolves the directory the server is rooted at.
// Called once at startup; every later validation compares against the
// returned canonical form.
func canonicalizeBaseDir(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("invalid directory: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absDir)
	if err != nil {
		return "", fmt.Errorf("directory does not exist: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("cannot stat directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", dir)
	}
	return resolved, nil
}

// validateFilePath resolves an untrusted relative path against baseDir and
// proves it names an existing regular file inside baseDir. baseDir must
// already be canonical (see canonicalizeBaseDir). The result is only
// trustworthy at the moment of return; the filesystem may change between
// this check and any subsequent use, so callers validate again on every
// operation instead of caching results across requests.
func validateFilePath(baseDir, relPath string) (string, error) {
	if relPath == "" {
		return "", errPathNotFound
	}
	if strings.ContainsRune(relPath, 0) {
		return "", errPathEscapes
	}

	// Join cleans the path, collapsing "." and ".." segments lexically.
	joined := filepath.Join(baseDir, relPath)

	// Resolve symlinks so containment is judged on the real location.
	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errPathNotFound, err)
	}

	if !isWithinBase(baseDir, canonical) {
		return "", errPathEscapes
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errPathNotFound, err)
	}
	if !info.Mode().IsRegular() {
		return "", errPathNotAFile
	}

	return canonical, nil
}

// validateDirPath is the directory-flavored variant used when creating
// files: the relative path must resolve to a directory inside baseDir.
// An empty relative path means baseDir itself.
func validateDirPath(baseDir, relPath string) (string, error) {
	if strings.ContainsRune(relPath, 0) {
		return "", errPathEscapes
	}
	if relPath == "" {
		return baseDir, nil
	}

	joined := filepath.Join(baseDir, relPath)

	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errPathNotFound, err)
	}

	if !isWithinBase(baseDir, canonical) {
		return "", errPathEscapes
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errPathNotFound, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: not a directory", errPathNotFound)
	}

	return canonical, nil
}

// isWithinBase reports whether target equals base or sits under it.
// The trailing separator makes this a path-component comparison: a plain
// prefix check would accept a sibling like /data-other as inside /data.
func isWithinBase(base, target string) bool {
	return target == base || strings.HasPrefix(target, base+string(filepath.Separator))
}

// relativeToBase converts a validated absolute path back to the form used
// in URLs and audit records.
func relativeToBase(baseDir, absPath string) string {
	rel, err := filepath.Rel(baseDir, absPath)
	if err != nil {
		return filepath.Base(absPath)
	}
	return filepath.ToSlash(rel)
}

// readValidatedFile reads a path that already passed validateFilePath.
// Read failures map to errPathUnreadable; like every other path error they
// surface to HTTP clients as a plain not-found.
func readValidatedFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errPathUnreadable, err)
	}
	return content, nil
}

// normalizeMarkdownFilename turns user input from the new-file form into
// a safe markdown filename: trim, strip one trailing .md/.markdown, and
// require a git-friendly ASCII stem before appending ".md".
func normalizeMarkdownFilename(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: filename is required", errBadFilename)
	}

	stem := trimmed
	lower := strings.ToLower(stem)
	if strings.HasSuffix(lower, ".markdown") {
		stem = stem[:len(stem)-len(".markdown")]
	} else if strings.HasSuffix(lower, ".md") {
		stem = stem[:len(stem)-len(".md")]
	}
	stem = strings.TrimSpace(stem)

	if !isGitCompatibleStem(stem) {
		return "", fmt.Errorf("%w: use only ASCII letters, numbers, '-', '_', or '.'", errBadFilename)
	}

	return stem + ".md", nil
}

// isGitCompatibleStem accepts ASCII alphanumerics plus '-', '_' and '.',
// with no leading or trailing dot and no ".." sequence.
func isGitCompatibleStem(stem string) bool {
	if stem == "" || strings.HasPrefix(stem, ".") || strings.HasSuffix(stem, ".") {
		return false
	}
	if strings.Contains(stem, "..") {
		return false
	}
	for _, c := range stem {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '.':
		default:
			return false
		}
	}
	return true
}
