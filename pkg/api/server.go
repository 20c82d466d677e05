// Ops API server. Serves REST endpoints for inspection and module control
// plus a WebSocket for live events.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/tgdesk/tgdesk/pkg/bot"
	"github.com/tgdesk/tgdesk/pkg/bus"
	"github.com/tgdesk/tgdesk/pkg/channels"
	"github.com/tgdesk/tgdesk/pkg/config"
	"github.com/tgdesk/tgdesk/pkg/logger"
	"github.com/tgdesk/tgdesk/pkg/store"
)

// Server is the HTTP ops server.
type Server struct {
	config      *config.Config
	dispatcher  *bot.Dispatcher
	manager     *channels.Manager
	store       *store.Store
	messageBus  *bus.MessageBus
	wsHub       *WSHub
	eventBridge *EventBridge
	startTime   time.Time
	server      *http.Server
}

// NewServer creates the ops server. With no key configured a random one is
// generated per process and printed once at startup, so the API is never
// silently open.
func NewServer(
	cfg *config.Config,
	dispatcher *bot.Dispatcher,
	manager *channels.Manager,
	st *store.Store,
	msgBus *bus.MessageBus,
) *Server {
	if cfg.API.Key == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.API.Key = hex.EncodeToString(raw)
			fmt.Println()
			fmt.Println("╔══════════════════════════════════════════════════════╗")
			fmt.Println("║            TGDESK API KEY (session token)            ║")
			fmt.Printf("║  %-52s  ║\n", cfg.API.Key)
			fmt.Println("║  Set api.key in the config file or TGDESK_API_KEY    ║")
			fmt.Println("║  to make this permanent. Rotate it any time.         ║")
			fmt.Println("╚══════════════════════════════════════════════════════╝")
			fmt.Println()
		}
	}

	s := &Server{
		config:     cfg,
		dispatcher: dispatcher,
		manager:    manager,
		store:      st,
		messageBus: msgBus,
		startTime:  time.Now(),
	}
	s.wsHub = NewWSHub(s)
	s.eventBridge = NewEventBridge(msgBus, s.wsHub)
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/system/info", s.handleSystemInfo)

	mux.HandleFunc("GET /api/modules", s.handleModules)
	mux.HandleFunc("POST /api/modules/{name}/enable", s.handleModuleEnable)
	mux.HandleFunc("POST /api/modules/{name}/disable", s.handleModuleDisable)

	mux.HandleFunc("GET /api/tickets", s.handleTickets)
	mux.HandleFunc("GET /api/tickets/{id}", s.handleTicketDetail)
	mux.HandleFunc("GET /api/bans", s.handleBans)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/audit", s.handleAudit)

	mux.HandleFunc("/api/ws", s.wsHub.HandleWebSocket)

	return mux
}

// Start begins listening on the configured address.
func (s *Server) Start(ctx context.Context) error {
	mux := s.routes()

	s.server = &http.Server{
		Addr:         s.config.API.Addr,
		Handler:      corsMiddleware(authMiddleware(s.config.API.Key, mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "Ops API server starting", map[string]interface{}{
		"addr": s.config.API.Addr,
	})

	go s.wsHub.Run(ctx)
	go s.eventBridge.Run(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if len(origin) >= len(prefix) && origin[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.store.Health(); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.startTime)

	ticketStats, err := s.store.TicketStats()
	if err != nil {
		ticketStats = map[string]int{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
		"bot":            s.config.Bot.Name,
		"transports":     s.manager.Status(),
		"modules":        s.dispatcher.Modules.InfoAll(),
		"tickets":        ticketStats,
		"jobs":           len(s.config.Jobs),
	})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	hostname, _ := os.Hostname()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hostname":   hostname,
		"go_version": runtime.Version(),
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"cpus":       runtime.NumCPU(),
		"goroutines": runtime.NumGoroutine(),
		"memory_mb":  float64(m.Alloc) / 1024 / 1024,
		"sys_mb":     float64(m.Sys) / 1024 / 1024,
		"gc_cycles":  m.NumGC,
		"store_path": s.config.Store.Path,
		"api_addr":   s.config.API.Addr,
	})
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Modules.InfoAll())
}

func (s *Server) handleModuleEnable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.dispatcher.Enable(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "module not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"module": name, "status": "enabled"})
}

func (s *Server) handleModuleDisable(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.dispatcher.Disable(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "module not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"module": name, "status": "disabled"})
}

func (s *Server) handleTickets(w http.ResponseWriter, r *http.Request) {
	status := store.TicketStatus(r.URL.Query().Get("status"))
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	tickets, err := s.store.ListTickets(status, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleTicketDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ticket, err := s.store.GetTicket(id)
	if err == store.ErrNotFound {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	messages, err := s.store.TicketMessages(id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket":   ticket,
		"messages": messages,
	})
}

func (s *Server) handleBans(w http.ResponseWriter, r *http.Request) {
	bans, err := s.store.ListBans()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, bans)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counters, err := s.store.Counters()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, counters)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.store.RecentAudit(limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
