// Package web serves the device status API and a websocket stream of
// decoded fixes.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	// Clients connect from any host on the local network.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func Handler(status *Status, fixes *FixBroadcaster, logs *LogBuffer) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if fixes == nil {
			http.Error(w, "fix stream unavailable", http.StatusNotFound)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		streamFixes(r.Context(), conn, fixes)
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>fieldrelay</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>fieldrelay</h1>")
		_, _ = fmt.Fprintf(w, "<p>Status: <a href=\"/api/status\">/api/status</a>. Live fixes: <code>/ws</code>.</p>")
		if snap.GPS != nil {
			_, _ = fmt.Fprintf(w, "<pre>gps_valid=%v\nlat=%.6f\nlon=%.6f\nfix_time=%s</pre>",
				snap.GPS.Valid, snap.GPS.LatDeg, snap.GPS.LonDeg, snap.GPS.FixTime,
			)
		}
		if snap.Relay != nil {
			_, _ = fmt.Fprintf(w, "<pre>active=%s\nsent=%d\nfailed=%d</pre>",
				snap.Relay.Active, snap.Relay.Sent, snap.Relay.Failed,
			)
		}
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

// streamFixes writes every published fix to conn until the client goes away.
func streamFixes(ctx context.Context, conn *websocket.Conn, fixes *FixBroadcaster) {
	defer conn.Close()
	id, ch := fixes.Subscribe(4)
	defer fixes.Unsubscribe(id)

	// Reads only detect the close; clients send nothing we act on.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-gone:
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
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
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
