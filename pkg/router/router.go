package router

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"
)

// --- ANSI color codes ---
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
)

type HandlerFunc func(http.ResponseWriter, *http.Request)

type paramsKey struct{}

// pattern is a registered wildcard path, split into segments
type pattern struct {
	path     string
	segments []string
	literals int
	tail     bool
}

type Router struct {
	mux      *http.ServeMux
	routes   map[string]HandlerFunc // key = METHOD:PATH
	paths    map[string]bool        // track registered paths
	patterns []pattern              // wildcard paths, most specific first
}

func New() *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		routes: make(map[string]HandlerFunc),
		paths:  make(map[string]bool),
	}

	// Catch-all handler, every request goes through the access log
	r.mux.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		r.dispatch(lrw, req)

		duration := time.Since(start)
		log.Printf("%s[%s]%s %s%s%s %s %s%d%s %s(%v)%s",
			colorCyan, start.Format("2006-01-02 15:04:05"), colorReset,
			methodColor(req.Method), req.Method, colorReset,
			req.URL.Path,
			statusColor(lrw.statusCode), lrw.statusCode, colorReset,
			colorBlue, duration, colorReset,
		)
	})

	return r
}

func (r *Router) dispatch(w http.ResponseWriter, req *http.Request) {
	if h, ok := r.routes[req.Method+":"+req.URL.Path]; ok {
		h(w, req)
		return
	}

	pathMatched := r.paths[req.URL.Path]
	for _, p := range r.patterns {
		params, ok := matchWildcardRoute(req.URL.Path, p)
		if !ok {
			continue
		}
		pathMatched = true
		if h, ok := r.routes[req.Method+":"+p.path]; ok {
			h(w, req.WithContext(context.WithValue(req.Context(), paramsKey{}, params)))
			return
		}
	}

	if pathMatched {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	http.Error(w, "Not Found", http.StatusNotFound)
}

// Params returns the values matched by the "*" segments of the route, in
// order. A trailing "*" captures the rest of the path.
func Params(req *http.Request) []string {
	params, _ := req.Context().Value(paramsKey{}).([]string)
	return params
}

// Param returns the i-th wildcard value or "".
func Param(req *http.Request, i int) string {
	params := Params(req)
	if i < 0 || i >= len(params) {
		return ""
	}
	return params[i]
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func compilePattern(path string) pattern {
	p := pattern{path: path, segments: splitPath(path)}
	for i, s := range p.segments {
		if s != "*" {
			p.literals++
		} else if i == len(p.segments)-1 {
			p.tail = true
		}
	}
	return p
}

// matchWildcardRoute checks a request path against a wildcard pattern and
// returns the wildcard values.
func matchWildcardRoute(requestPath string, p pattern) ([]string, bool) {
	requestSegments := splitPath(requestPath)
	var params []string

	if p.tail {
		// the trailing wildcard needs at least one segment
		if len(requestSegments) < len(p.segments) {
			return nil, false
		}
		for i := 0; i < len(p.segments)-1; i++ {
			if p.segments[i] == "*" {
				params = append(params, requestSegments[i])
				continue
			}
			if requestSegments[i] != p.segments[i] {
				return nil, false
			}
		}
		return append(params, strings.Join(requestSegments[len(p.segments)-1:], "/")), true
	}

	if len(requestSegments) != len(p.segments) {
		return nil, false
	}
	for i, seg := range p.segments {
		if seg == "*" {
			params = append(params, requestSegments[i])
			continue
		}
		if requestSegments[i] != seg {
			return nil, false
		}
	}
	return params, true
}

// --- Register paths ---
func (r *Router) register(method, path string, handler HandlerFunc) {
	key := method + ":" + path
	r.routes[key] = handler
	if !r.paths[path] && strings.Contains(path, "*") {
		r.patterns = append(r.patterns, compilePattern(path))
		// exact-length patterns before catch-alls, then more literal segments first
		sort.SliceStable(r.patterns, func(i, j int) bool {
			a, b := r.patterns[i], r.patterns[j]
			if a.tail != b.tail {
				return !a.tail
			}
			if a.literals != b.literals {
				return a.literals > b.literals
			}
			return len(a.segments) > len(b.segments)
		})
	}
	r.paths[path] = true
}

func (r *Router) GET(path string, handler HandlerFunc)   { r.register(http.MethodGet, path, handler) }
func (r *Router) POST(path string, handler HandlerFunc)  { r.register(http.MethodPost, path, handler) }
func (r *Router) PUT(path string, handler HandlerFunc)   { r.register(http.MethodPut, path, handler) }
func (r *Router) PATCH(path string, handler HandlerFunc) { r.register(http.MethodPatch, path, handler) }
func (r *Router) DELETE(path string, handler HandlerFunc) {
	r.register(http.MethodDelete, path, handler)
}

// Getter methods for testing
func (r *Router) Routes() map[string]HandlerFunc {
	return r.routes
}

func (r *Router) Paths() map[string]bool {
	return r.paths
}

// ServeHTTP lets the router be wrapped by middleware such as CORS.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// --- Start server ---

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("🚀 Server started on %shttp://localhost%s%s", colorGreen, addr, colorReset)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		log.Printf("server on %s stopped", addr)
		return nil
	}
}

// --- Logging response writer to capture status codes ---
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// --- Color helpers ---
func statusColor(code int) string {
	switch {
	case code >= 200 && code < 300:
		return colorGreen
	case code >= 300 && code < 400:
		return colorCyan
	case code >= 400 && code < 500:
		return colorYellow
	default:
		return colorRed
	}
}

func methodColor(method string) string {
	switch method {
	case http.MethodGet:
		return colorGreen
	case http.MethodPost:
		return colorBlue
	case http.MethodPut, http.MethodPatch:
		return colorYellow
	case http.MethodDelete:
		return colorRed
	default:
		return colorCyan
	}
}
