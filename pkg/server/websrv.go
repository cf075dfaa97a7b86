package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidian-irc/obbyscript/pkg/events"
)

// WebServer provides the admin HTTP surface: JWT auth, a status API,
// Prometheus metrics, and a live event tail over WebSocket.
type WebServer struct {
	srv       *Server
	httpSrv   *http.Server
	mux       *http.ServeMux
	auth      *AuthService
	limiter   *rateLimiter
	metrics   *Metrics
	upgrader  websocket.Upgrader
	startTime time.Time
	quit      chan struct{}
}

// NewWebServer creates the admin web server bound to the IRC server.
func NewWebServer(srv *Server, conf *Conf) *WebServer {
	ws := &WebServer{
		srv:       srv,
		mux:       http.NewServeMux(),
		auth:      NewAuthService(conf.AdminUser, conf.AdminHash, conf.JWTSecret, conf.JWTExpiry),
		limiter:   newRateLimiter(10),
		startTime: time.Now(),
		upgrader:  websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		quit:      make(chan struct{}),
	}
	ws.registerRoutes(conf)
	return ws
}

// Metrics returns the registered metrics so the engine's Observer can
// be wired before Start.
func (ws *WebServer) Metrics() *Metrics { return ws.metrics }

func (ws *WebServer) registerRoutes(conf *Conf) {
	ws.httpSrv = &http.Server{
		Addr:    conf.WebListen,
		Handler: withCORS(ws.mux),
	}

	ws.mux.HandleFunc("POST /api/v1/auth/login", ws.limitByIP(ws.handleAuthLogin))
	ws.mux.HandleFunc("POST /api/v1/auth/refresh", ws.handleAuthRefresh)
	ws.mux.HandleFunc("GET /api/v1/status", ws.requireAuth(ws.handleStatus))
	ws.mux.HandleFunc("GET /api/v1/audit", ws.requireAuth(ws.handleAudit))
	ws.mux.HandleFunc("GET /health", ws.handleHealth)
	ws.mux.HandleFunc("GET /ws", ws.handleEventTail)

	ws.metrics = NewMetrics(ws.srv, time.Now())
	ws.mux.Handle("GET /metrics", ws.metrics.Handler())
}

// Start begins listening. Blocking.
func (ws *WebServer) Start() error {
	go ws.janitor()
	log.Printf("[web] admin server listening on %s", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// janitor sweeps expired rate-limit buckets until Stop.
func (ws *WebServer) janitor() {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			ws.limiter.sweep()
		case <-ws.quit:
			return
		}
	}
}

// Stop gracefully shuts down the web server.
func (ws *WebServer) Stop() error {
	close(ws.quit)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return ws.httpSrv.Shutdown(ctx)
}

// requireAuth wraps a handler with bearer-token validation.
func (ws *WebServer) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
			return
		}
		if _, err := ws.auth.ValidateToken(token); err != nil {
			http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return h[7:]
	}
	return r.URL.Query().Get("token")
}

// --- handlers ---

func (ws *WebServer) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	token, err := ws.auth.Login(req.Name, req.Password)
	if err != nil {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (ws *WebServer) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	newToken, err := ws.auth.RefreshToken(token)
	if err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": newToken})
}

// handleStatus snapshots server state on the event loop before
// answering.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	type status struct {
		ServerName string `json:"server_name"`
		Clients    int    `json:"clients"`
		Channels   int    `json:"channels"`
		Rules      int    `json:"rules"`
		Functions  int    `json:"functions"`
		Deferred   int    `json:"deferred"`
	}
	ch := make(chan status, 1)
	ws.srv.Do(func() {
		ch <- status{
			ServerName: ws.srv.Conf.ServerName,
			Clients:    len(ws.srv.World.users),
			Channels:   len(ws.srv.World.channels),
			Rules:      ws.srv.Engine.RuleCount(),
			Functions:  ws.srv.Engine.FunctionCount(),
			Deferred:   ws.srv.Engine.DeferredCount(),
		}
	})
	select {
	case st := <-ch:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	case <-time.After(5 * time.Second):
		http.Error(w, `{"error":"timeout"}`, http.StatusGatewayTimeout)
	}
}

func (ws *WebServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	audit := ws.srv.auditLog()
	if audit == nil {
		http.Error(w, `{"error":"audit log not enabled"}`, http.StatusNotFound)
		return
	}
	lines, err := audit.Recent(100)
	if err != nil {
		http.Error(w, `{"error":"audit query failed"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"lines": lines})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
	})
}

// --- live event tail ---

// tailMessage is the JSON encoding of one event on the tail socket.
type tailMessage struct {
	Event   string `json:"event"`
	Client  string `json:"client,omitempty"`
	Channel string `json:"channel,omitempty"`
	Extra   string `json:"extra,omitempty"`
}

// tailSubscriber forwards bus events to one WebSocket client.
type tailSubscriber struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

func (t *tailSubscriber) Receive(ev events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := t.conn.WriteJSON(tailMessage{
		Event:   ev.Kind.String(),
		Client:  ev.Client,
		Channel: ev.Channel,
		Extra:   ev.Extra,
	}); err != nil {
		t.closed = true
	}
}

func (t *tailSubscriber) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *tailSubscriber) close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.conn.Close()
}

// handleEventTail upgrades to WebSocket and streams every server event
// to the client until it disconnects. Requires a valid token.
func (ws *WebServer) handleEventTail(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
		return
	}
	if _, err := ws.auth.ValidateToken(token); err != nil {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
		return
	}

	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[web] websocket upgrade error: %v", err)
		return
	}

	sub := &tailSubscriber{conn: conn}
	ws.srv.Bus.SubscribeGlobal(sub)
	log.Printf("[web] event tail attached from %s", r.RemoteAddr)

	// Drain the read side until the client hangs up, then clean up.
	go func() {
		defer func() {
			sub.close()
			ws.srv.Bus.Cleanup()
			log.Printf("[web] event tail detached from %s", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
