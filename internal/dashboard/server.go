package dashboard

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

//go:embed static
var staticFS embed.FS

// heartbeatInterval is how long a websocket sits idle before the
// server pings it to probe liveness. Variable so tests can shrink it.
var heartbeatInterval = 30 * time.Second

// Server hosts the dashboard page, the screenshot API, and the
// websocket feed.
type Server struct {
	bridge *Bridge
	logger *log.Logger
	port   int

	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

// NewServer builds a dashboard server bound to localhost.
func NewServer(bridge *Bridge, port int, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{
		bridge: bridge,
		logger: logger,
		port:   port,
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// Local page only; reject cross-origin websocket opens (DNS rebinding).
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := r.Host
	return origin == "http://"+host || origin == "https://"+host
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/api/screenshot/{agent_id}", s.handleScreenshot).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	r.PathPrefix("/static/").Handler(http.FileServer(http.FS(staticFS)))
	return r
}

// Start binds the listener and serves until the context is canceled.
// The bridge poll loop runs alongside and stops with the server.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding dashboard listener: %w", err)
	}

	s.httpSrv = &http.Server{Handler: s.routes()}

	runCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.bridge.Run(runCtx)
	}()

	s.logger.Info("dashboard listening", "url", s.URL())

	errc := make(chan error, 1)
	go func() { errc <- s.httpSrv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		cancel()
		wg.Wait()
		return nil
	case err := <-errc:
		cancel()
		wg.Wait()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// URL returns the dashboard address.
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "dashboard assets missing", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	agentID := mux.Vars(r)["agent_id"]
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.bridge.Screenshot(agentID))
}

// wsClient serializes writes to one websocket connection.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	client := &wsClient{conn: conn}
	defer func() {
		s.bridge.RemoveClient(client)
		_ = conn.Close()
	}()

	full, err := json.Marshal(s.bridge.FullState())
	if err != nil {
		s.logger.Debug("could not marshal full state", "err", err)
		return
	}
	if err := client.Send(full); err != nil {
		return
	}
	s.bridge.AddClient(client)

	// The bridge pushes deltas; a heartbeat goes out only after the
	// client has been silent for the full interval, keeping idle
	// connections from being reaped by proxies and detecting dead peers.
	stop := make(chan struct{})
	activity := make(chan struct{}, 1)
	defer close(stop)
	go func() {
		timer := time.NewTimer(heartbeatInterval)
		defer timer.Stop()
		for {
			select {
			case <-stop:
				return
			case <-activity:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(heartbeatInterval)
			case <-timer.C:
				if err := client.Send([]byte(`{"type":"heartbeat"}`)); err != nil {
					_ = conn.Close()
					return
				}
				timer.Reset(heartbeatInterval)
			}
		}
	}()

	// Drain client pings; exit on any read error.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		select {
		case activity <- struct{}{}:
		default:
		}
	}
}
