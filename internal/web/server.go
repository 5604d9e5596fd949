// Package web serves the render status, recent logs and the latest KML/KMZ
// output over HTTP.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gliderkmz/internal/kml"
)

const (
	mimeKML = "application/vnd.google-earth.kml+xml"
	mimeKMZ = "application/vnd.google-earth.kmz"
)

// Handler builds the HTTP API. trigger requests an out-of-band refresh and
// may be nil.
func Handler(status *Status, logs *LogBuffer, trigger func() bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/refresh", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodPost) {
			return
		}
		if trigger == nil {
			http.Error(w, "refresh unavailable", http.StatusNotFound)
			return
		}
		writeJSONStatus(w, http.StatusAccepted, struct {
			Queued bool `json:"queued"`
		}{trigger()})
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}
	mux.Handle("/api/about", AboutHandler())

	mux.HandleFunc("/kml/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
			return
		}
		out := status.OutputPath()
		if out == "" || strings.TrimPrefix(r.URL.Path, "/kml/") != filepath.Base(out) {
			http.NotFound(w, r)
			return
		}
		serveOutput(w, r, out)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowMethod(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>gliderkmz</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>Active glider deployments</h1>")
		if snap.OutputFile != "" {
			name := html.EscapeString(filepath.Base(snap.OutputFile))
			_, _ = fmt.Fprintf(w, "<p><a href=\"/kml/%s\">%s</a></p>", name, name)
		}
		_, _ = fmt.Fprintf(w, "<pre>kml_type=%s\ndeployments=%d\nskipped_records=%d\nwritten_utc=%s</pre>",
			html.EscapeString(snap.KMLType), snap.Output.Deployments, snap.Output.SkippedRecords, html.EscapeString(snap.Output.WrittenUTC),
		)
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a> and <a href=\"/api/logs?format=text\">/api/logs</a>.</p>")
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

func serveOutput(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		http.Error(w, "output not written yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "open output failed", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		http.Error(w, "stat output failed", http.StatusInternalServerError)
		return
	}
	if kml.IsKMZ(path) {
		w.Header().Set("Content-Type", mimeKMZ)
	} else {
		w.Header().Set("Content-Type", mimeKML)
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, filepath.Base(path), st.ModTime(), f)
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, status *Status, logs *LogBuffer, trigger func() bool) error {
	if status == nil {
		status = NewStatus()
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status, logs, trigger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
