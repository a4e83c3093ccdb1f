package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

var (
	// Build info (set via ldflags)
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Flags
	addrFlag    = flag.String("addr", "", "Address to listen on (host:port)")
	configFlag  = flag.String("config", "", "Path to config file (default ~/.mdtend/config.toml)")
	openBrowser = flag.Bool("browser", true, "Open browser automatically")
	noWatch     = flag.Bool("no-watch", false, "Disable file watching and live reload")
	noAudit     = flag.Bool("no-audit", false, "Disable the activity log")
	debugFlag   = flag.Bool("debug", false, "Log every request")
	showVersion = flag.Bool("version", false, "Show version information")

	// State (set once during startup, read-only while serving)
	baseDir        string
	csrfSecret     []byte
	debugEnabled   bool
	watchEnabled   bool
	globalAuditLog *auditLog
	dirWatcher     watcherManager
)

func registerRoutes(addr string) {
	http.HandleFunc("/", withReadGuards(handleIndex))
	http.HandleFunc("/browse", withReadGuards(handleBrowse))
	http.HandleFunc("/view", withReadGuards(handleView))
	http.HandleFunc("/edit", withReadGuards(handleEdit))
	http.HandleFunc("/save", withMutationGuards(addr, handleSave))
	http.HandleFunc("/delete", withMutationGuards(addr, handleDelete))
	http.HandleFunc("/new", withMutationGuards(addr, handleNewFile))
	http.HandleFunc("/image", withReadGuards(handleImagePage))
	http.HandleFunc("/image/raw", withReadGuards(handleImageRaw))
	http.HandleFunc("/file", withReadGuards(handleFilePage))
	http.HandleFunc("/file/raw", withReadGuards(handleFileRaw))
	http.HandleFunc("/download", withReadGuards(handleDownload))
	http.HandleFunc("/api/file-info", withReadGuards(handleFileInfo))
	http.HandleFunc("/api/file-content", withReadGuards(handleFileContent))
	http.HandleFunc("/events", withRecovery(withRequestLog(serveEvents)))
}

// auditLogPath returns the on-disk location of the activity log, creating
// its parent directory. Empty when no home directory is available.
func auditLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	dir := filepath.Join(home, ".mdtend")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return ""
	}
	return filepath.Join(dir, "events.jsonl")
}

// mergeFlags overlays explicitly set command-line flags onto the loaded
// configuration. Unset flags leave the file values alone.
func mergeFlags(cfg *appConfig) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addrFlag
		case "browser":
			cfg.OpenBrowser = *openBrowser
		case "no-watch":
			cfg.Watch = !*noWatch
		case "no-audit":
			cfg.AuditLog = !*noAudit
		}
	})
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("mdtend %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	configPath := *configFlag
	explicit := configPath != ""
	if !explicit {
		configPath = defaultConfigPath()
	}
	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	mergeFlags(&cfg)
	debugEnabled = *debugFlag

	dir := "."
	if flag.NArg() > 0 {
		dir = flag.Arg(0)
	}

	canonical, err := canonicalizeBaseDir(dir)
	if err != nil {
		log.Fatalf("Cannot serve %s: %v", dir, err)
	}
	baseDir = canonical

	secret, err := newSecret()
	if err != nil {
		log.Fatalf("Failed to generate request signing secret: %v", err)
	}
	csrfSecret = secret

	if cfg.AuditLog {
		if path := auditLogPath(); path != "" {
			auditLog, err := newAuditLog(path)
			if err != nil {
				log.Printf("Warning: Activity log disabled: %v", err)
			} else {
				globalAuditLog = auditLog
			}
		} else {
			log.Printf("Warning: Activity log disabled: no home directory")
		}
	}

	watchEnabled = cfg.Watch
	if watchEnabled {
		if err := dirWatcher.watchDirectory(baseDir); err != nil {
			log.Printf("Warning: Cannot watch directory for changes: %v", err)
			watchEnabled = false
		}
	}

	registerRoutes(cfg.Addr)

	url := fmt.Sprintf("http://%s", cfg.Addr)
	fmt.Printf("Serving %s\n", baseDir)
	fmt.Printf("Listening on %s\n", url)
	fmt.Println("Press Ctrl+C to quit")

	if cfg.OpenBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openURL(url)
		}()
	}

	server := &http.Server{
		Addr:        cfg.Addr,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout intentionally omitted for SSE streaming endpoints
		// SSE connections are long-lived and should not have write timeouts
		IdleTimeout: 60 * time.Second,
	}

	// Handle shutdown signals
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigint

		log.Println("\nShutting down gracefully...")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		dirWatcher.close()

		if globalAuditLog != nil {
			globalAuditLog.close()
		}

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

func openURL(url string) {
	var cmd string
	var args []string

	switch {
	case fileExists("/usr/bin/open"): // macOS
		cmd = "open"
		args = []string{url}
	case fileExists("/usr/bin/xdg-open"): // Linux
		cmd = "xdg-open"
		args = []string{url}
	default: // Windows
		cmd = "cmd"
		args = []string{"/c", "start", url}
	}

	exec := exec.Command(cmd, args...)
	if err := exec.Start(); err != nil {
		log.Printf("Failed to open URL %s: %v", url, err)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
