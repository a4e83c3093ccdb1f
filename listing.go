package main

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Directories that never show up in listings or get watched (build
// artifacts and dependency trees).
var excludedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"venv":         true,
	"env":          true,
	"virtualenv":   true,
}

// listingEntry is one row in the directory listing.
type listingEntry struct {
	Name      string
	RelPath   string
	IsDir     bool
	Category  fileCategory
	SizeLabel string
	Draft     bool
}

// breadcrumb is one segment of the navigation trail above a listing.
type breadcrumb struct {
	Name    string
	RelPath string
}

// buildListing reads one directory level under baseDir. dir must already
// be validated (see validateDirPath). Subdirectories sort before files,
// both alphabetically. Hidden entries and excluded directories are
// skipped. Markdown files are probed for a draft frontmatter flag.
func buildListing(baseDir, dir string) ([]listingEntry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}

	var dirs, files []listingEntry
	for _, de := range dirEntries {
		name := de.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		full := filepath.Join(dir, name)
		rel := relativeToBase(baseDir, full)

		if de.IsDir() {
			if excludedDirs[name] {
				continue
			}
			dirs = append(dirs, listingEntry{Name: name, RelPath: rel, IsDir: true})
			continue
		}

		info, err := de.Info()
		if err != nil {
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		entry := listingEntry{
			Name:      name,
			RelPath:   rel,
			Category:  classifyFilename(name),
			SizeLabel: formatFileSize(info.Size()),
		}
		if entry.Category == categoryMarkdown {
			if content, err := os.ReadFile(full); err == nil {
				entry.Draft = hasDraftFrontmatter(string(content))
			}
		}
		files = append(files, entry)
	}

	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	return append(dirs, files...), nil
}

// buildBreadcrumbs splits a relative directory path into navigable
// segments, starting at the listing root.
func buildBreadcrumbs(relDir string) []breadcrumb {
	crumbs := []breadcrumb{{Name: "root", RelPath: ""}}
	if relDir == "" || relDir == "." {
		return crumbs
	}

	var soFar string
	for _, part := range strings.Split(path.Clean(filepath.ToSlash(relDir)), "/") {
		if part == "" || part == "." {
			continue
		}
		soFar = path.Join(soFar, part)
		crumbs = append(crumbs, breadcrumb{Name: part, RelPath: soFar})
	}
	return crumbs
}

// parentBrowseURL returns the listing URL for the directory containing
// relPath.
func parentBrowseURL(relPath string) string {
	parent := path.Dir(filepath.ToSlash(relPath))
	if parent == "." || parent == "/" || parent == "" {
		return "/"
	}
	return "/browse?path=" + url.QueryEscape(parent)
}

// formatFileSize renders a byte count for the listing: exact bytes below
// 1 KB, one decimal above.
func formatFileSize(size int64) string {
	const unit = 1024.0
	units := []string{"B", "KB", "MB", "GB", "TB"}

	value := float64(size)
	idx := 0
	for value >= unit && idx < len(units)-1 {
		value /= unit
		idx++
	}

	if idx == 0 {
		return fmt.Sprintf("%d B", size)
	}
	return fmt.Sprintf("%.1f %s", value, units[idx])
}

// formatTimeAgo renders an event timestamp for the recent-activity block.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		m := int(d.Minutes())
		if m == 1 {
			return "1m ago"
		}
		return fmt.Sprintf("%dm ago", m)
	case d < 24*time.Hour:
		h := int(d.Hours())
		if h == 1 {
			return "1h ago"
		}
		return fmt.Sprintf("%dh ago", h)
	case d < 48*time.Hour:
		return "yesterday"
	default:
		return t.Format("Jan 2")
	}
}
