package web

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"time"
)

// maxBodyBytes bounds POST bodies.
const maxBodyBytes = 1 << 10

// TouchRequest is the body of POST /touch.
type TouchRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// InjectTouchFunc feeds a touch into the display, as if the panel had
// been pressed at x, y. Only the simulator backend supports it.
type InjectTouchFunc func(x, y uint16) error

// DisplayInfo describes the running display (served by GET /config).
type DisplayInfo struct {
	Backend    string `json:"backend"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	IdlePrompt string `json:"idle_prompt"`
	Injectable bool   `json:"injectable"`
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	InjectTouch InjectTouchFunc
	Display     DisplayInfo
	staticFS    fs.FS
}

// NewHandlers creates handlers with the given dependencies.
// If inject is nil, POST /touch will return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, inject InjectTouchFunc, display DisplayInfo, staticFS fs.FS) *Handlers {
	display.Injectable = inject != nil
	return &Handlers{
		Broadcaster: broadcaster,
		InjectTouch: inject,
		Display:     display,
		staticFS:    staticFS,
	}
}

// ValidateTouch checks that a touch lies on the panel.
func ValidateTouch(t TouchRequest, width, height int) error {
	if t.X < 0 || t.X >= width {
		return fmt.Errorf("x must be between 0 and %d", width-1)
	}
	if t.Y < 0 || t.Y >= height {
		return fmt.Errorf("y must be between 0 and %d", height-1)
	}
	return nil
}

// HandleConfig returns the display description as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Display)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleTouch handles POST /touch to inject a touch.
func (h *Handlers) HandleTouch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req TouchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := ValidateTouch(req, h.Display.Width, h.Display.Height); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.InjectTouch == nil {
		http.Error(w, "touch injection needs the mock backend", http.StatusServiceUnavailable)
		return
	}
	if err := h.InjectTouch(uint16(req.X), uint16(req.Y)); err != nil {
		http.Error(w, "inject failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"status": "injected"})
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Send initial comment to establish connection
	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
