package haptic

import (
	"encoding/json"
	"fmt"
	"net/http"

	"tailscale.com/tsweb"

	"github.com/stride-data/waypoint/internal/pattern"
)

// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP mux
// served at /debug/. These routes are accessible only over localhost/via
// Tailscale and are not publicly accessible.
func (e *Engine) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("haptic-state", func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		resp := map[string]any{
			"state":    e.state.String(),
			"enabled":  e.enabled,
			"failures": e.failures,
			"degraded": e.degraded,
		}
		if e.stateReason != nil {
			resp["reason"] = e.stateReason.Error()
		}
		e.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	// Manually trigger a cue, bypassing the tracker. Useful for verifying
	// patterns on real hardware.
	debug.HandleSilentFunc("play-pattern", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		kind, err := pattern.ParseKind(r.FormValue("kind"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := e.Play(kind); err != nil {
			// Non-fatal by design; report what the caller would have logged.
			fmt.Fprintf(w, "play %s degraded to fallback: %v\n", kind, err)
			return
		}
		fmt.Fprintf(w, "played %s on hardware\n", kind)
	})

	// Server-Side Events tail of cue deliveries (both channels).
	debug.HandleSilentFunc("cue-tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		id, c := e.Subscribe()
		defer e.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case ev, ok := <-c:
				if !ok {
					return
				}
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
