package main

import (
	"path/filepath"
	"strings"
)

// fileCategory drives every content-serving decision. Classification uses
// only the final filename extension, lower-cased, so "report.md.sh" is
// executable, never markdown.
type fileCategory int

const (
	categoryUnknown fileCategory = iota
	categoryExecutable
	categoryMarkdown
	categoryImage
	categoryIframeSafe
)

func (c fileCategory) String() string {
	switch c {
	case categoryExecutable:
		return "executable"
	case categoryMarkdown:
		return "markdown"
	case categoryImage:
		return "image"
	case categoryIframeSafe:
		return "file"
	default:
		return "unknown"
	}
}

// The four extension sets are a compatibility contract: links in the
// listing, the serving handlers, and any external docs must agree on them
// bit-for-bit.
var (
	executableExtensions = map[string]bool{
		"exe": true, "bat": true, "cmd": true, "com": true, "scr": true,
		"msi": true, "sh": true, "ps1": true, "vbs": true, "app": true,
		"dmg": true, "pkg": true, "deb": true, "rpm": true,
	}

	markdownExtensions = map[string]bool{
		"md": true, "markdown": true,
	}

	imageExtensions = map[string]bool{
		"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
		"svg": true, "bmp": true, "tiff": true, "tif": true,
	}

	iframeSafeExtensions = map[string]bool{
		"txt": true, "html": true, "htm": true, "css": true, "js": true,
		"json": true, "xml": true, "pdf": true, "csv": true, "log": true,
		"yml": true, "yaml": true, "toml": true, "ini": true, "conf": true,
		"cfg": true,
	}
)

// classifyFilename maps a filename to its category. The precedence order
// is fixed: executable first, then markdown, image, iframe-safe. Anything
// unmatched is unknown and is never rendered or served.
func classifyFilename(name string) fileCategory {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" {
		return categoryUnknown
	}
	switch {
	case executableExtensions[ext]:
		return categoryExecutable
	case markdownExtensions[ext]:
		return categoryMarkdown
	case imageExtensions[ext]:
		return categoryImage
	case iframeSafeExtensions[ext]:
		return categoryIframeSafe
	default:
		return categoryUnknown
	}
}

// servable reports whether a category may flow through a content-serving
// endpoint at all.
func (c fileCategory) servable() bool {
	return c == categoryMarkdown || c == categoryImage || c == categoryIframeSafe
}

func isMarkdownFilename(name string) bool {
	return classifyFilename(name) == categoryMarkdown
}

// imageContentType maps a validated image filename to its MIME type.
func imageContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	case "svg":
		return "image/svg+xml"
	case "bmp":
		return "image/bmp"
	case "tiff", "tif":
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// textContentType maps an iframe-safe filename to the MIME type used when
// streaming it. Everything defaults to text/plain rather than sniffing.
func textContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "html", "htm":
		return "text/html; charset=utf-8"
	case "css":
		return "text/css; charset=utf-8"
	case "js":
		return "application/javascript; charset=utf-8"
	case "json":
		return "application/json; charset=utf-8"
	case "xml":
		return "application/xml; charset=utf-8"
	case "pdf":
		return "application/pdf"
	case "csv":
		return "text/csv; charset=utf-8"
	case "yml", "yaml":
		return "text/yaml; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
