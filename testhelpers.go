package main

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/time/rate"
)

// testState captures the globals a test swaps so cleanup can restore them
type testState struct {
	oldBaseDir string
	oldSecret  []byte
	oldWatch   bool
	oldAudit   *auditLog
	oldLimiter *rate.Limiter
}

// setupTestState points the server globals at a test directory with
// automatic cleanup. The directory is canonicalized the same way startup
// does, so tests survive tmpdir symlinks like macOS /var -> /private/var.
// Returns the canonical directory path.
func setupTestState(t *testing.T, dir string) string {
	t.Helper()

	canonical, err := canonicalizeBaseDir(dir)
	if err != nil {
		t.Fatalf("failed to canonicalize test dir %s: %v", dir, err)
	}

	secret, err := newSecret()
	if err != nil {
		t.Fatalf("failed to generate test secret: %v", err)
	}

	state := &testState{
		oldBaseDir: baseDir,
		oldSecret:  csrfSecret,
		oldWatch:   watchEnabled,
		oldAudit:   globalAuditLog,
		oldLimiter: mutateLimiter,
	}
	baseDir = canonical
	csrfSecret = secret
	watchEnabled = false
	globalAuditLog = nil
	mutateLimiter = rate.NewLimiter(rate.Limit(10), 30)

	t.Cleanup(func() {
		baseDir = state.oldBaseDir
		csrfSecret = state.oldSecret
		watchEnabled = state.oldWatch
		globalAuditLog = state.oldAudit
		mutateLimiter = state.oldLimiter
	})

	return canonical
}

// createTestMarkdownFile creates a markdown file with specified content
func createTestMarkdownFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create test file %s: %v", path, err)
	}
	return path
}

// createTestDir creates a subdirectory inside a test directory
func createTestDir(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("failed to create test dir %s: %v", path, err)
	}
	return path
}

// getPage runs a GET request through the read-only middleware chain
func getPage(handler http.HandlerFunc, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	withReadGuards(handler)(rec, req)
	return rec
}

// postForm runs a POST request through the full mutation middleware chain
func postForm(handler http.HandlerFunc, target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	withMutationGuards("127.0.0.1:5420", handler)(rec, req)
	return rec
}

// mutationForm builds form values carrying a freshly minted token
func mutationForm(path string) url.Values {
	return url.Values{
		"csrf_token": {generateCSRFToken(csrfSecret)},
		"path":       {path},
	}
}

// assertValidHTML checks for required HTML structure elements
func assertValidHTML(t *testing.T, html string) {
	t.Helper()
	required := []string{
		"<!DOCTYPE html>",
		"<html",
		"<head>",
		"<body>",
		"</body>",
		"</html>",
	}
	for _, tag := range required {
		if !strings.Contains(html, tag) {
			t.Errorf("HTML missing required tag: %s", tag)
		}
	}
}

// assertContains is a helper for checking string containment with clear error messages
func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected string to contain %q, got: %s", substr, s)
	}
}

// assertNotContains is a helper for checking string non-containment
func assertNotContains(t *testing.T, s, substr string) {
	t.Helper()
	if strings.Contains(s, substr) {
		t.Errorf("expected string NOT to contain %q, but it does", substr)
	}
}

// assertStatusCode checks HTTP status code with clear error message
func assertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("expected status code %d, got %d", want, got)
	}
}
