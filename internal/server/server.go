package server

import (
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openhobd/dlcbridge/internal/ecu"
)

// Server coordinates ECU polling and broadcasts snapshots to WebSocket
// clients, and exposes the scan/reset operations over HTTP.
type Server struct {
	cfg  *Config
	prov ecu.Provider

	webFS fs.FS

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Live      *ecu.LiveData `json:"live,omitempty"`
	Stats     *ecu.Stats    `json:"stats,omitempty"`
	Connected bool          `json:"connected"`
	Stamp     int64         `json:"stamp"` // Unix ms
}

// New creates a new Server.
func New(cfg *Config, prov ecu.Provider, webFS fs.FS) *Server {
	return &Server{
		cfg:     cfg,
		prov:    prov,
		webFS:   webFS,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run starts the HTTP server and the polling loop.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/dtc", s.handleDTC)
	mux.HandleFunc("/api/reset", s.handleReset)
	mux.HandleFunc("/api/id", s.handleECUID)
	mux.HandleFunc("/api/stats", s.handleStats)

	go s.pollLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	return srv.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", len(s.clients))

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (keep-alive and disconnect detection)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", len(s.clients))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// handleDTC runs a diagnostic scan. The scan shares the half-duplex bus
// with the poll loop, so it simply queues behind the current transaction.
func (s *Server) handleDTC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	codes, err := s.prov.ScanDTC()
	if err != nil {
		log.Printf("[server] dtc scan failed: %v", err)
		http.Error(w, "diagnostic scan failed", 502)
		return
	}
	writeJSON(w, map[string]interface{}{"count": len(codes), "codes": codes})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", 405)
		return
	}
	if err := s.prov.ResetECU(); err != nil {
		log.Printf("[server] reset failed: %v", err)
		http.Error(w, "ecu reset failed", 502)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleECUID(w http.ResponseWriter, r *http.Request) {
	id, err := s.prov.ReadECUID()
	if err != nil {
		http.Error(w, "ecu id read failed", 502)
		return
	}
	writeJSON(w, map[string]interface{}{"id": id})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.prov.Stats()
	writeJSON(w, &stats)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

// pollLoop requests live data at the configured rate and broadcasts each
// snapshot to connected clients.
func (s *Server) pollLoop(ctx context.Context) {
	hz := s.cfg.ECU.PollHz
	if hz <= 0 {
		hz = 5
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.prov.IsConnected() {
				s.broadcast(Frame{Connected: false, Stamp: time.Now().UnixMilli()})
				continue
			}
			ld, err := s.prov.ReadLiveData()
			if err != nil {
				log.Printf("[server] live data poll failed: %v", err)
				continue
			}
			stats := s.prov.Stats()
			s.broadcast(Frame{
				Live:      ld,
				Stats:     &stats,
				Connected: true,
				Stamp:     time.Now().UnixMilli(),
			})
		}
	}
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
