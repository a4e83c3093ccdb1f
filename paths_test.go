package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// escapeTestTree builds a root with a serving base inside it and targets
// outside the base, so escape attempts resolve to real files and the
// rejection is provably the containment check, not a missing path.
//
//	root/
//	  outside.md
//	  data/          <- base
//	    test.md
//	    docs/
//	      guide.md
//	  data-other/
//	    file.md
func escapeTestTree(t *testing.T) (root, base string) {
	t.Helper()

	canonical, err := canonicalizeBaseDir(t.TempDir())
	if err != nil {
		t.Fatalf("failed to canonicalize root: %v", err)
	}
	root = canonical

	base = createTestDir(t, root, "data")
	createTestDir(t, base, "docs")
	createTestDir(t, root, "data-other")

	createTestMarkdownFile(t, root, "outside.md", testMarkdownSimple)
	createTestMarkdownFile(t, base, "test.md", testMarkdownSimple)
	createTestMarkdownFile(t, filepath.Join(base, "docs"), "guide.md", testMarkdownSimple)
	createTestMarkdownFile(t, filepath.Join(root, "data-other"), "file.md", testMarkdownSimple)

	return root, base
}

func TestValidateFilePathAccepts(t *testing.T) {
	_, base := escapeTestTree(t)

	tests := []struct {
		name string
		rel  string
		want string
	}{
		{"top level file", "test.md", filepath.Join(base, "test.md")},
		{"nested file", "docs/guide.md", filepath.Join(base, "docs", "guide.md")},
		{"dot segment", "./test.md", filepath.Join(base, "test.md")},
		{"internal updir", "docs/../test.md", filepath.Join(base, "test.md")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateFilePath(base, tt.rel)
			if err != nil {
				t.Fatalf("validateFilePath(%q) failed: %v", tt.rel, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateFilePathRejects(t *testing.T) {
	_, base := escapeTestTree(t)

	tests := []struct {
		name    string
		rel     string
		wantErr error
	}{
		{"empty path", "", errPathNotFound},
		{"null byte", testPathNullByte, errPathEscapes},
		{"parent escape to real file", "../outside.md", errPathEscapes},
		{"obfuscated escape", "docs/../../outside.md", errPathEscapes},
		{"sibling with shared prefix", "../data-other/file.md", errPathEscapes},
		{"deep traversal", testPathTraversal, errPathEscapes},
		{"missing file", "nope.md", errPathNotFound},
		{"missing nested", "docs/nope.md", errPathNotFound},
		{"directory not file", "docs", errPathNotAFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := validateFilePath(base, tt.rel)
			if err == nil {
				t.Fatalf("validateFilePath(%q) succeeded, want error", tt.rel)
			}
			if tt.name == "deep traversal" {
				// Resolution of /etc/passwd depends on the host; any
				// rejection is acceptable as long as it is a path error.
				if !errors.Is(err, errPathEscapes) && !errors.Is(err, errPathNotFound) {
					t.Errorf("got %v, want a path error", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFilePathSymlinks(t *testing.T) {
	root, base := escapeTestTree(t)

	// A symlink that stays inside the base resolves and passes.
	inside := filepath.Join(base, "alias.md")
	if err := os.Symlink(filepath.Join(base, "test.md"), inside); err != nil {
		t.Skipf("cannot create symlinks: %v", err)
	}
	got, err := validateFilePath(base, "alias.md")
	if err != nil {
		t.Errorf("internal symlink rejected: %v", err)
	}
	if got != filepath.Join(base, "test.md") {
		t.Errorf("symlink resolved to %q, want the real target", got)
	}

	// A symlink pointing outside the base is an escape even though the
	// requested path has no ".." in it.
	sneaky := filepath.Join(base, "sneaky.md")
	if err := os.Symlink(filepath.Join(root, "outside.md"), sneaky); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}
	_, err = validateFilePath(base, "sneaky.md")
	if !errors.Is(err, errPathEscapes) {
		t.Errorf("escaping symlink: got %v, want errPathEscapes", err)
	}

	// Same for directory symlinks crossed mid-path.
	sneakyDir := filepath.Join(base, "docs", "ext")
	if err := os.Symlink(filepath.Join(root, "data-other"), sneakyDir); err != nil {
		t.Fatalf("failed to create symlink: %v", err)
	}
	_, err = validateFilePath(base, "docs/ext/file.md")
	if !errors.Is(err, errPathEscapes) {
		t.Errorf("escaping directory symlink: got %v, want errPathEscapes", err)
	}
}

func TestValidateDirPath(t *testing.T) {
	_, base := escapeTestTree(t)

	tests := []struct {
		name    string
		rel     string
		want    string
		wantErr error
	}{
		{"empty means base", "", base, nil},
		{"subdirectory", "docs", filepath.Join(base, "docs"), nil},
		{"escape", "..", "", errPathEscapes},
		{"file not dir", "test.md", "", errPathNotFound},
		{"missing", "nope", "", errPathNotFound},
		{"null byte", "docs\x00", "", errPathEscapes},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validateDirPath(base, tt.rel)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("validateDirPath(%q) failed: %v", tt.rel, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsWithinBase(t *testing.T) {
	sep := string(filepath.Separator)
	base := filepath.Join(sep, "srv", "data")

	tests := []struct {
		name   string
		target string
		want   bool
	}{
		{"base itself", base, true},
		{"direct child", filepath.Join(base, "a.md"), true},
		{"nested child", filepath.Join(base, "docs", "a.md"), true},
		{"parent", filepath.Join(sep, "srv"), false},
		{"sibling", filepath.Join(sep, "srv", "other"), false},
		{"sibling sharing name prefix", base + "-other", false},
		{"sibling prefix child", filepath.Join(base+"-other", "a.md"), false},
		{"root", sep, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isWithinBase(base, tt.target); got != tt.want {
				t.Errorf("isWithinBase(%q, %q) = %v, want %v", base, tt.target, got, tt.want)
			}
		})
	}
}

func TestRelativeToBase(t *testing.T) {
	_, base := escapeTestTree(t)

	if got := relativeToBase(base, filepath.Join(base, "docs", "guide.md")); got != "docs/guide.md" {
		t.Errorf("got %q, want docs/guide.md", got)
	}
	if got := relativeToBase(base, filepath.Join(base, "test.md")); got != "test.md" {
		t.Errorf("got %q, want test.md", got)
	}
}

func TestReadValidatedFile(t *testing.T) {
	_, base := escapeTestTree(t)

	content, err := readValidatedFile(filepath.Join(base, "test.md"))
	if err != nil {
		t.Fatalf("readValidatedFile failed: %v", err)
	}
	if string(content) != testMarkdownSimple {
		t.Errorf("got %q, want %q", content, testMarkdownSimple)
	}

	_, err = readValidatedFile(filepath.Join(base, "gone.md"))
	if !errors.Is(err, errPathUnreadable) {
		t.Errorf("got %v, want errPathUnreadable", err)
	}
}

func TestCanonicalizeBaseDir(t *testing.T) {
	dir := t.TempDir()

	canonical, err := canonicalizeBaseDir(dir)
	if err != nil {
		t.Fatalf("canonicalizeBaseDir failed: %v", err)
	}
	if !filepath.IsAbs(canonical) {
		t.Errorf("result %q is not absolute", canonical)
	}

	if _, err := canonicalizeBaseDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing directory accepted")
	}

	file := createTestMarkdownFile(t, dir, "file.md", testMarkdownSimple)
	if _, err := canonicalizeBaseDir(file); err == nil {
		t.Error("regular file accepted as base directory")
	}
}

func TestNormalizeMarkdownFilename(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain stem", "notes", "notes.md", false},
		{"already md", "notes.md", "notes.md", false},
		{"markdown extension", "post.markdown", "post.md", false},
		{"uppercase extension", "Readme.MD", "Readme.md", false},
		{"surrounding spaces", "  notes  ", "notes.md", false},
		{"space before extension", "notes .md", "notes.md", false},
		{"other extension kept", "notes.txt", "notes.txt.md", false},
		{"hyphens and underscores", "my-file_v2", "my-file_v2.md", false},
		{"inner dot", "v1.2-notes", "v1.2-notes.md", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"extension only", ".md", "", true},
		{"space inside", "two words", "", true},
		{"leading dot", ".hidden", "", true},
		{"trailing dot", "name.", "", true},
		{"dotdot", "bad..name", "", true},
		{"slash", "dir/name", "", true},
		{"backslash", `dir\name`, "", true},
		{"non-ascii", "ünïcode", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeMarkdownFilename(tt.input)
			if tt.wantErr {
				if !errors.Is(err, errBadFilename) {
					t.Errorf("got %v, want errBadFilename", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeMarkdownFilename(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
