package main

// Test markdown content constants
// These eliminate magic values scattered throughout test files

const (
	// Basic markdown
	testMarkdownSimple = "# Test"
	testMarkdownHeader = "# Hello World\n\nThis is a **test**."

	// GFM features
	testMarkdownTable = "| A | B |\n|---|---|\n| 1 | 2 |"
	testMarkdownCode  = "```go\nfunc main() {}\n```"

	// Content variations
	testMarkdownFileContent = "# File Content\n\nThis is the content."
	testMarkdownModified    = "# Modified Content"

	// Frontmatter variations
	testFrontmatterDraftYAML = "---\ndraft: true\n---\n\n# Draft Post"
	testFrontmatterDraftJSON = "{\"draft\": true}\n# Draft Post"
	testFrontmatterPublished = "---\ndraft: false\n---\n\n# Published Post"

	// Security test paths
	testPathTraversal  = "../../../etc/passwd"
	testPathObfuscated = "docs/../../outside.md"
	testPathNullByte   = "safe.md\x00../../etc/passwd"
)
