package main

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"net/url"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed theme/*
var themeFS embed.FS

var (
	// Stylesheet and reload script, inlined into every page at startup.
	themeCSS string
	reloadJS string

	listingTmpl  *template.Template
	editorTmpl   *template.Template
	viewTmpl     *template.Template
	imageTmpl    *template.Template
	filePageTmpl *template.Template
	newFileTmpl  *template.Template
	statusTmpl   *template.Template
	notFoundTmpl *template.Template
	downloadTmpl *template.Template
)

// basePageData carries the fields every page template needs.
type basePageData struct {
	Style        template.CSS
	ReloadJS     template.JS
	WatchEnabled bool
}

// activityItem is one row of the recent-activity block on the index page.
type activityItem struct {
	Action  string
	Path    string
	TimeAgo string
}

type listingPageData struct {
	basePageData
	Title       string
	RelPath     string
	Breadcrumbs []breadcrumb
	Entries     []listingEntry
	Recent      []activityItem
	NewFileURL  string
}

type editorPageData struct {
	basePageData
	Title       string
	RelPath     string
	EncodedPath string
	Content     string
	PreviewHTML template.HTML
	CSRFToken   string
	BackURL     string
}

type viewPageData struct {
	basePageData
	Title       string
	RelPath     string
	EncodedPath string
	ContentHTML template.HTML
	BackURL     string
}

type imagePageData struct {
	basePageData
	Title       string
	RelPath     string
	EncodedPath string
	SizeLabel   string
	BackURL     string
}

type filePageData struct {
	basePageData
	Title       string
	RelPath     string
	EncodedPath string
	SizeLabel   string
	TypeLabel   string
	BackURL     string
}

type newFilePageData struct {
	basePageData
	Title     string
	RelPath   string
	CSRFToken string
	BackURL   string
}

type statusPageData struct {
	basePageData
	Title      string
	Heading    string
	FilePath   string
	DetailText string
	ShowEdit   bool
	EditURL    string
	BackURL    string
}

type notFoundPageData struct {
	basePageData
	Title string
}

func init() {
	cssData, err := themeFS.ReadFile("theme/style.css")
	if err != nil {
		log.Fatalf("Failed to load stylesheet: %v", err)
	}
	themeCSS = string(cssData)

	jsData, err := themeFS.ReadFile("theme/reload.js")
	if err != nil {
		log.Fatalf("Failed to load reload script: %v", err)
	}
	reloadJS = string(jsData)

	funcMap := template.FuncMap{
		"queryEscape": url.QueryEscape,
	}

	baseHTML, err := themeFS.ReadFile("theme/base.html")
	if err != nil {
		log.Fatalf("Failed to load base template: %v", err)
	}

	loadPage := func(name, file string) *template.Template {
		pageHTML, err := themeFS.ReadFile("theme/" + file)
		if err != nil {
			log.Fatalf("Failed to load %s template: %v", name, err)
		}
		tmpl := template.Must(template.New(name).Funcs(funcMap).Parse(string(pageHTML)))
		return template.Must(tmpl.Parse(string(baseHTML)))
	}

	listingTmpl = loadPage("listing", "listing.html")
	editorTmpl = loadPage("editor", "editor.html")
	viewTmpl = loadPage("view", "view.html")
	imageTmpl = loadPage("image", "image.html")
	filePageTmpl = loadPage("filepreview", "filepreview.html")
	newFileTmpl = loadPage("newfile", "newfile.html")
	statusTmpl = loadPage("status", "status.html")
	notFoundTmpl = loadPage("notfound", "notfound.html")
	downloadTmpl = loadPage("download", "download.html")
}

// newBasePageData snapshots the shared template fields.
func newBasePageData() basePageData {
	return basePageData{
		Style:        template.CSS(themeCSS),
		ReloadJS:     template.JS(reloadJS),
		WatchEnabled: watchEnabled,
	}
}

// newMarkdownRenderer creates a configured goldmark renderer
func newMarkdownRenderer() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
}

// renderMarkdown converts markdown content to HTML.
func renderMarkdown(content []byte) (template.HTML, error) {
	md := newMarkdownRenderer()
	var buf bytes.Buffer
	if err := md.Convert(content, &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// renderPage executes a page template into a buffer before writing, so a
// template error becomes a clean 500 instead of a half-written page.
func renderPage(w http.ResponseWriter, tmpl *template.Template, data any) {
	renderPageStatus(w, tmpl, data, http.StatusOK)
}

func renderPageStatus(w http.ResponseWriter, tmpl *template.Template, data any, status int) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		log.Printf("Template execution error: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}
