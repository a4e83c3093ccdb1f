package main

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"golang.org/x/time/rate"
)

// mutateLimiter throttles state-changing requests. A single user editing
// by hand never hits this; a runaway script does.
var mutateLimiter = rate.NewLimiter(rate.Limit(10), 30)

// withRecovery wraps an HTTP handler with panic recovery
func withRecovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("PANIC: %v\n%s", err, debug.Stack())
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

// withRequestLog logs completed requests when debug logging is on.
func withRequestLog(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !debugEnabled {
			next(w, r)
			return
		}
		start := time.Now()
		next(w, r)
		log.Printf("%s %s (%v)", r.Method, r.URL.RequestURI(), time.Since(start).Round(time.Microsecond))
	}
}

// withSecurityHeaders sets the response headers every page and content
// endpoint carries. SAMEORIGIN keeps the file preview iframe working
// while blocking third-party framing.
func withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next(w, r)
	}
}

// withOriginCheck rejects cross-origin POST requests by validating the
// Origin header, or the Referer host when no Origin is sent, against the
// loopback addresses the server answers on.
func withOriginCheck(addr string, next http.HandlerFunc) http.HandlerFunc {
	port := listenPort(addr)
	allowedLocal := fmt.Sprintf("http://localhost:%s", port)
	allowedLoopback := fmt.Sprintf("http://127.0.0.1:%s", port)
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			origin := r.Header.Get("Origin")
			if origin == "" {
				if ref := r.Header.Get("Referer"); ref != "" {
					if u, err := url.Parse(ref); err == nil && u.Host != "" {
						origin = u.Scheme + "://" + u.Host
					}
				}
			}
			if origin != "" && origin != allowedLocal && origin != allowedLoopback {
				log.Printf("origin check: rejected cross-origin POST from %s", origin)
				http.Error(w, "Forbidden: cross-origin request", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

// withRateLimit applies the shared token bucket to POST requests.
func withRateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && !mutateLimiter.Allow() {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// withCSRFToken validates the csrf_token form field on POST requests.
// Every failure is a hard 403; the detailed reason only goes to the log.
func withCSRFToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if err := r.ParseForm(); err != nil {
				http.Error(w, "Failed to parse form", http.StatusBadRequest)
				return
			}
			token := r.PostFormValue("csrf_token")
			if err := validateCSRFToken(csrfSecret, token, time.Now()); err != nil {
				log.Printf("csrf check: rejected %s %s: %v", r.Method, r.URL.Path, err)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
		}
		next(w, r)
	}
}

// withReadGuards is the decorator chain for read-only routes.
func withReadGuards(next http.HandlerFunc) http.HandlerFunc {
	return withRecovery(withRequestLog(withSecurityHeaders(next)))
}

// withMutationGuards is the full decorator chain for state-changing
// routes: recovery, request log, headers, rate limit, origin check,
// token check.
func withMutationGuards(addr string, next http.HandlerFunc) http.HandlerFunc {
	return withRecovery(withRequestLog(withSecurityHeaders(withRateLimit(withOriginCheck(addr, withCSRFToken(next))))))
}

func listenPort(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return "5420"
	}
	return port
}
