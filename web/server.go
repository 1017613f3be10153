// Package web serves the live diagnostics dashboard: a websocket feed of
// per-fix DiagnosticRecords (§FULL-4.10) plus, optionally, a static
// frontend bundle. The floorplan/Map asset serving the teacher's server
// did for its dashboard has no equivalent in this spec (no floorplan
// concept) and was dropped rather than adapted.
package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"cep95-engine/internal/orchestrator"
)

type Server struct {
	Hub *Hub
}

func NewServer() *Server {
	return &Server{
		Hub: NewHub(),
	}
}

// Publish encodes a per-fix diagnostic record and broadcasts it to every
// connected dashboard client. MessageCount is dashboard-only diagnostics
// (§FULL-3a); it never appears on the wire output bus carries.
func (s *Server) Publish(record DiagnosticRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		log.Printf("web: failed to marshal diagnostic record: %v", err)
		return
	}
	s.Hub.Broadcast(payload)
}

// DiagnosticRecord is the dashboard's websocket message shape: the
// orchestrator's wire output plus per-anchor message counts that never
// leave the process otherwise.
type DiagnosticRecord struct {
	orchestrator.Output
	MessageCounts map[string]int64 `json:"message_counts"`
}

// Start runs the hub's event loop and serves the websocket endpoint plus,
// if distDir is non-empty, a static dashboard frontend at "/". Blocks
// until the HTTP server exits.
func (s *Server) Start(port int, distDir string) {
	go s.Hub.Run()

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(s.Hub, w, r)
	})

	if distDir != "" {
		fs := http.FileServer(http.Dir(distDir))
		mux.Handle("/", fs)
	}

	addr := fmt.Sprintf(":%d", port)
	log.Printf("HTTP Server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("HTTP server error: %v", err)
	}
}
