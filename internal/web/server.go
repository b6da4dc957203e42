package web

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"time"

	"gpsbridge/internal/ntrip"
)

// SourceTableFetcher downloads the caster's source table on demand.
type SourceTableFetcher interface {
	GetSourceTable(ctx context.Context) (*ntrip.SourceTable, error)
}

func Handler(status *Status, logs *LogBuffer, tables SourceTableFetcher) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess := status.session.Load()
		if sess == nil {
			http.Error(w, "receiver unavailable", http.StatusNotFound)
			return
		}
		EventsHandler(sess.Events(), sess.State()).ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/ntrip/sourcetable", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if tables == nil {
			http.Error(w, "ntrip disabled", http.StatusNotFound)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()
		st, err := tables.GetSourceTable(ctx)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		if st == nil {
			http.Error(w, "caster did not return a source table", http.StatusBadGateway)
			return
		}
		writeJSON(w, st)
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		rootPage(w, status.Snapshot(time.Now().UTC()))
	})

	return mux
}

func rootPage(w http.ResponseWriter, snap StatusSnapshot) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>gpsbridge</title></head><body>")
	_, _ = fmt.Fprintf(w, "<h1>gpsbridge</h1>")
	_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a>, <a href=\"/api/logs?format=text\">/api/logs</a> and the websocket at /api/events.</p>")
	port, watch, fix := "-", "-", false
	if snap.Session != nil {
		port, watch = snap.Session.Port, string(snap.Session.Watch)
	}
	if snap.Receiver != nil {
		fix = snap.Receiver.HasFix
	}
	_, _ = fmt.Fprintf(w, "<pre>port=%s\nwatch=%s\nhas_fix=%t\nuptime_sec=%d</pre>",
		html.EscapeString(port), html.EscapeString(watch), fix, snap.UptimeSec,
	)
	_, _ = fmt.Fprintf(w, "</body></html>")
}

// Serve runs the HTTP server until ctx is cancelled.
func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
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
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
