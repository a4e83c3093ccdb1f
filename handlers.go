package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// queryPath pulls the relative path parameter every file endpoint takes.
func queryPath(r *http.Request) string {
	return r.URL.Query().Get("path")
}

// respondPathError converts any validation failure into the same plain
// not-found response. Clients cannot tell an escape attempt from a missing
// file; the distinction only goes to the log.
func respondPathError(w http.ResponseWriter, r *http.Request, err error) {
	log.Printf("path rejected: %s %s: %v", r.Method, r.URL.RequestURI(), err)
	http.Error(w, "Not found", http.StatusNotFound)
}

// respondCategoryBlocked rejects executable and unknown file types. The
// decision is made from the requested name alone, before any filesystem
// access, so the response reveals nothing about what exists on disk.
func respondCategoryBlocked(w http.ResponseWriter, r *http.Request, category fileCategory) {
	log.Printf("category blocked: %s %s (%s)", r.Method, r.URL.RequestURI(), category)
	http.Error(w, "File type not allowed", http.StatusForbidden)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write JSON response: %v", err)
	}
}

// redirectForCategory sends a page request for the wrong file type to the
// handler that owns it. Returns false when the category is blocked.
func redirectForCategory(w http.ResponseWriter, r *http.Request, rel string, category fileCategory) bool {
	switch category {
	case categoryMarkdown:
		http.Redirect(w, r, "/view?path="+url.QueryEscape(rel), http.StatusFound)
	case categoryImage:
		http.Redirect(w, r, "/image?path="+url.QueryEscape(rel), http.StatusFound)
	case categoryIframeSafe:
		http.Redirect(w, r, "/file?path="+url.QueryEscape(rel), http.StatusFound)
	default:
		respondCategoryBlocked(w, r, category)
		return false
	}
	return true
}

// handleIndex serves the root listing and the catch-all 404 page.
func handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		data := notFoundPageData{basePageData: newBasePageData(), Title: "Not Found - mdtend"}
		renderPageStatus(w, notFoundTmpl, data, http.StatusNotFound)
		return
	}
	renderListing(w, r, "")
}

// handleBrowse serves subdirectory listings.
func handleBrowse(w http.ResponseWriter, r *http.Request) {
	renderListing(w, r, queryPath(r))
}

func renderListing(w http.ResponseWriter, r *http.Request, relDir string) {
	dir, err := validateDirPath(baseDir, relDir)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	entries, err := buildListing(baseDir, dir)
	if err != nil {
		log.Printf("Failed to build listing for %s: %v", dir, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rel := relativeToBase(baseDir, dir)
	if rel == "." {
		rel = ""
	}

	title := "mdtend"
	if rel != "" {
		title = rel + " - mdtend"
	}

	data := listingPageData{
		basePageData: newBasePageData(),
		Title:        title,
		RelPath:      rel,
		Breadcrumbs:  buildBreadcrumbs(rel),
		Entries:      entries,
		NewFileURL:   "/new?path=" + url.QueryEscape(rel),
	}

	if rel == "" && globalAuditLog != nil {
		for _, evt := range globalAuditLog.recent(8) {
			data.Recent = append(data.Recent, activityItem{
				Action:  evt.Action,
				Path:    evt.Path,
				TimeAgo: formatTimeAgo(evt.Timestamp),
			})
		}
	}

	renderPage(w, listingTmpl, data)
}

// handleView renders a markdown file as a page.
func handleView(w http.ResponseWriter, r *http.Request) {
	rel := queryPath(r)
	if rel == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}
	if category := classifyFilename(rel); category != categoryMarkdown {
		redirectForCategory(w, r, rel, category)
		return
	}

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	content, err := readValidatedFile(validated)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	rendered, err := renderMarkdown(content)
	if err != nil {
		log.Printf("Failed to render %s: %v", rel, err)
		http.Error(w, "Failed to render markdown", http.StatusInternalServerError)
		return
	}

	data := viewPageData{
		basePageData: newBasePageData(),
		Title:        filepath.Base(rel) + " - mdtend",
		RelPath:      rel,
		EncodedPath:  url.QueryEscape(rel),
		ContentHTML:  rendered,
		BackURL:      parentBrowseURL(rel),
	}
	renderPage(w, viewTmpl, data)
}

// handleEdit serves the editor form for a markdown file.
func handleEdit(w http.ResponseWriter, r *http.Request) {
	rel := queryPath(r)
	if rel == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}
	if category := classifyFilename(rel); category != categoryMarkdown {
		redirectForCategory(w, r, rel, category)
		return
	}

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	content, err := readValidatedFile(validated)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	preview, err := renderMarkdown(content)
	if err != nil {
		log.Printf("Failed to render preview for %s: %v", rel, err)
		preview = ""
	}

	data := editorPageData{
		basePageData: newBasePageData(),
		Title:        "Edit " + filepath.Base(rel) + " - mdtend",
		RelPath:      rel,
		EncodedPath:  url.QueryEscape(rel),
		Content:      string(content),
		PreviewHTML:  preview,
		CSRFToken:    generateCSRFToken(csrfSecret),
		BackURL:      parentBrowseURL(rel),
	}
	renderPage(w, editorTmpl, data)
}

// handleSave persists editor submissions. The CSRF token was already
// checked by the middleware chain; the path is validated fresh here, and
// the write is skipped entirely when the content has not changed.
func handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := r.PostFormValue("path")
	content := r.PostFormValue("content")

	if !isMarkdownFilename(rel) {
		http.Error(w, "File is not a markdown file", http.StatusBadRequest)
		return
	}

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	existing, err := readValidatedFile(validated)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	if string(existing) == content {
		log.Printf("File content unchanged, skipping write: %s", rel)
		renderStatusPage(w, statusPageData{
			Title:      "File Unchanged - mdtend",
			Heading:    "No Changes to Save",
			FilePath:   rel,
			DetailText: "content is unchanged.",
			ShowEdit:   true,
			EditURL:    "/edit?path=" + url.QueryEscape(rel),
			BackURL:    parentBrowseURL(rel),
		})
		return
	}

	if err := atomicWriteFile(validated, content); err != nil {
		log.Printf("Failed to save %s: %v", rel, err)
		http.Error(w, "Failed to save file", http.StatusInternalServerError)
		return
	}

	log.Printf("File saved: %s", rel)
	recordAudit("save", rel)

	renderStatusPage(w, statusPageData{
		Title:      "File Saved - mdtend",
		Heading:    "File Saved Successfully",
		FilePath:   rel,
		DetailText: "has been saved.",
		ShowEdit:   true,
		EditURL:    "/edit?path=" + url.QueryEscape(rel),
		BackURL:    parentBrowseURL(rel),
	})
}

// atomicWriteFile writes content to a temp file in the target directory
// and renames it into place.
func atomicWriteFile(path, content string) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".mdtend-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer os.Remove(tmpPath)

	if _, err := tmpFile.WriteString(content); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

// handleDelete removes a file after fresh validation.
func handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rel := r.PostFormValue("path")

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	if err := os.Remove(validated); err != nil {
		log.Printf("Failed to delete %s: %v", rel, err)
		http.Error(w, "Failed to delete file", http.StatusInternalServerError)
		return
	}

	log.Printf("File deleted: %s", rel)
	recordAudit("delete", rel)

	renderStatusPage(w, statusPageData{
		Title:      "File Deleted - mdtend",
		Heading:    "File Deleted",
		FilePath:   rel,
		DetailText: "has been deleted.",
		BackURL:    parentBrowseURL(rel),
	})
}

// handleNewFile shows the creation form on GET and creates the file on
// POST. Filenames are normalized to a git-friendly ASCII stem with a .md
// extension; the target directory is validated like any other path.
func handleNewFile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rel := queryPath(r)
		if _, err := validateDirPath(baseDir, rel); err != nil {
			respondPathError(w, r, err)
			return
		}
		backURL := "/"
		if rel != "" {
			backURL = "/browse?path=" + url.QueryEscape(rel)
		}
		data := newFilePageData{
			basePageData: newBasePageData(),
			Title:        "New File - mdtend",
			RelPath:      rel,
			CSRFToken:    generateCSRFToken(csrfSecret),
			BackURL:      backURL,
		}
		renderPage(w, newFileTmpl, data)

	case http.MethodPost:
		dirRel := r.PostFormValue("path")
		dir, err := validateDirPath(baseDir, dirRel)
		if err != nil {
			respondPathError(w, r, err)
			return
		}

		filename, err := normalizeMarkdownFilename(r.PostFormValue("filename"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		target := filepath.Join(dir, filename)
		if _, err := os.Stat(target); err == nil {
			http.Error(w, "File already exists", http.StatusBadRequest)
			return
		} else if !os.IsNotExist(err) {
			log.Printf("Failed to stat %s: %v", target, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		if err := os.WriteFile(target, []byte{}, 0644); err != nil {
			log.Printf("Failed to create %s: %v", target, err)
			http.Error(w, "Failed to create file", http.StatusInternalServerError)
			return
		}

		rel := relativeToBase(baseDir, target)
		log.Printf("File created: %s", rel)
		recordAudit("create", rel)

		http.Redirect(w, r, "/edit?path="+url.QueryEscape(rel), http.StatusSeeOther)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleImagePage serves the image preview page.
func handleImagePage(w http.ResponseWriter, r *http.Request) {
	rel := queryPath(r)
	if rel == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}
	if category := classifyFilename(rel); category != categoryImage {
		redirectForCategory(w, r, rel, category)
		return
	}

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	info, err := os.Stat(validated)
	if err != nil {
		respondPathError(w, r, fmt.Errorf("%w: %v", errPathNotFound, err))
		return
	}

	data := imagePageData{
		basePageData: newBasePageData(),
		Title:        filepath.Base(rel) + " - mdtend",
		RelPath:      rel,
		EncodedPath:  url.QueryEscape(rel),
		SizeLabel:    formatFileSize(info.Size()),
		BackURL:      parentBrowseURL(rel),
	}
	renderPage(w, imageTmpl, data)
}

// handleImageRaw streams image bytes with an exact MIME type. Only the
// image category passes; the gate runs on the requested name before any
// filesystem access.
func handleImageRaw(w http.ResponseWriter, r *http.Request) {
	rel := queryPath(r)
	if category := classifyFilename(rel); category != categoryImage {
		respondCategoryBlocked(w, r, category)
		return
	}

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	content, err := readValidatedFile(validated)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", imageContentType(rel))
	if _, err := w.Write(content); err != nil {
		log.Printf("Failed to write image response: %v", err)
	}
}

// handleFilePage serves the iframe preview page for text-like files.
func handleFilePage(w http.ResponseWriter, r *http.Request) {
	rel := queryPath(r)
	if rel == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}
	if category := classifyFilename(rel); category != categoryIframeSafe {
		redirectForCategory(w, r, rel, category)
		return
	}

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	info, err := os.Stat(validated)
	if err != nil {
		respondPathError(w, r, fmt.Errorf("%w: %v", errPathNotFound, err))
		return
	}

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(rel), "."))
	data := filePageData{
		basePageData: newBasePageData(),
		Title:        filepath.Base(rel) + " - mdtend",
		RelPath:      rel,
		EncodedPath:  url.QueryEscape(rel),
		SizeLabel:    formatFileSize(info.Size()),
		TypeLabel:    strings.ToUpper(ext),
		BackURL:      parentBrowseURL(rel),
	}
	renderPage(w, filePageTmpl, data)
}

// handleFileRaw streams iframe-safe file bytes with a conservative MIME
// type. Everything else, executables above all, is refused by name.
func handleFileRaw(w http.ResponseWriter, r *http.Request) {
	rel := queryPath(r)
	if category := classifyFilename(rel); category != categoryIframeSafe {
		respondCategoryBlocked(w, r, category)
		return
	}

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	content, err := readValidatedFile(validated)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", textContentType(rel))
	if _, err := w.Write(content); err != nil {
		log.Printf("Failed to write file response: %v", err)
	}
}

// handleDownload renders a markdown file into a self-contained HTML
// document served as an attachment.
func handleDownload(w http.ResponseWriter, r *http.Request) {
	rel := queryPath(r)
	if rel == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}
	if !isMarkdownFilename(rel) {
		http.Error(w, "Only markdown files can be downloaded", http.StatusBadRequest)
		return
	}

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	content, err := readValidatedFile(validated)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	rendered, err := renderMarkdown(content)
	if err != nil {
		log.Printf("Failed to render %s: %v", rel, err)
		http.Error(w, "Failed to render markdown", http.StatusInternalServerError)
		return
	}

	base := filepath.Base(rel)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	data := viewPageData{
		basePageData: newBasePageData(),
		Title:        stem,
		RelPath:      rel,
		ContentHTML:  rendered,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", stem+".html"))
	renderPage(w, downloadTmpl, data)
}

// handleFileInfo reports file metadata as JSON. The editor polls this to
// warn when the file changed under an open tab.
func handleFileInfo(w http.ResponseWriter, r *http.Request) {
	rel := queryPath(r)
	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	info, err := os.Stat(validated)
	if err != nil {
		respondPathError(w, r, fmt.Errorf("%w: %v", errPathNotFound, err))
		return
	}

	writeJSON(w, map[string]int64{
		"modified_unix": info.ModTime().Unix(),
		"size_bytes":    info.Size(),
	})
}

// handleFileContent returns raw markdown content as JSON.
func handleFileContent(w http.ResponseWriter, r *http.Request) {
	rel := queryPath(r)
	if !isMarkdownFilename(rel) {
		http.Error(w, "Only markdown files are supported", http.StatusBadRequest)
		return
	}

	validated, err := validateFilePath(baseDir, rel)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	content, err := readValidatedFile(validated)
	if err != nil {
		respondPathError(w, r, err)
		return
	}

	writeJSON(w, map[string]string{"content": string(content)})
}

func renderStatusPage(w http.ResponseWriter, data statusPageData) {
	data.basePageData = newBasePageData()
	renderPage(w, statusTmpl, data)
}
