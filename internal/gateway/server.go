package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/stockpulse/market-data/internal/config"
)

const proxyTimeout = 15 * time.Second

// Server is the client-facing edge: the websocket endpoint, a health
// check, and a thin proxy in front of the historical REST API.
type Server struct {
	cfg      config.GatewayConfig
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
	proxy    *http.Client
}

// NewServer creates the gateway server around an existing hub.
func NewServer(cfg config.GatewayConfig, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.CORSOrigins),
		},
		proxy: &http.Client{Timeout: proxyTimeout},
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/bars/latest", s.handleProxy).Methods(http.MethodGet)
	api.HandleFunc("/bars/{symbol}", s.handleProxy).Methods(http.MethodGet)
	api.HandleFunc("/bars/{symbol}/range", s.handleProxy).Methods(http.MethodGet)
	for _, resource := range []string{"quote", "profile", "news", "financials", "earnings", "dividends"} {
		api.HandleFunc("/"+resource+"/{symbol}", s.handleProxy).Methods(http.MethodGet)
	}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins(s.cfg.CORSOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(r)
}

// handleWS upgrades the connection and starts the client pumps.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	client := newClient(s.hub, conn, s.cfg.SendQueueSize, s.logger)
	s.hub.Register(client)

	go client.writePump()
	go client.readPump()
	client.greet()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"clients":   s.hub.ClientCount(),
	})
}

// handleProxy forwards the request one-to-one to the historical REST
// API: same path, same query, response body passed through unchanged.
func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	if s.cfg.RESTBaseURL == "" {
		writeProxyError(w, http.StatusServiceUnavailable, "historical data api is not configured")
		return
	}

	target := strings.TrimRight(s.cfg.RESTBaseURL, "/") + r.URL.EscapedPath()
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		writeProxyError(w, http.StatusBadGateway, "invalid upstream request")
		return
	}

	resp, err := s.proxy.Do(req)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			status = http.StatusGatewayTimeout
		}
		s.logger.Warn("proxy request failed", "target", target, "error", err)
		writeProxyError(w, status, "historical data api is unreachable")
		return
	}
	defer resp.Body.Close()

	w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		s.logger.Debug("proxy copy interrupted", "error", err)
	}
}

func writeProxyError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// allowedOrigins defaults to allow-all when no origins are configured,
// matching a development setup behind a trusted edge.
func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// originChecker mirrors the CORS policy for the websocket upgrade.
func originChecker(origins []string) func(*http.Request) bool {
	if len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[strings.TrimRight(origin, "/")]
		return ok
	}
}
