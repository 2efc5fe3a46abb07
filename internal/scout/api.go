package scout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"gw2-tradepost-bot/internal/adaptive"
	"gw2-tradepost-bot/internal/market"
	"gw2-tradepost-bot/internal/positions"
	"gw2-tradepost-bot/internal/sim"
)

// APIServer provides the HTTP dashboard interface for the scout engine.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// NewAPIServer creates the dashboard server.
func NewAPIServer(engine *Engine, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		logger: logger.Named("api-server"),
	}

	addr := fmt.Sprintf(":%d", engine.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.routes(),
	}
	return s
}

func (s *APIServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/items", s.itemsHandler)
	mux.HandleFunc("/items/analyze", s.analyzeHandler)
	mux.HandleFunc("/items/pin", s.pinHandler)
	mux.HandleFunc("/positions", s.positionsHandler)
	mux.HandleFunc("/positions/remove", s.removePositionHandler)
	mux.HandleFunc("/shadow", s.shadowHandler)
	mux.HandleFunc("/activity", s.activityHandler)
	mux.HandleFunc("/pause", s.pauseHandler)
	mux.HandleFunc("/resume", s.resumeHandler)
	mux.HandleFunc("/memory/clear", s.clearMemoryHandler)
	mux.HandleFunc("/state/export", s.exportHandler)
	mux.HandleFunc("/state/import", s.importHandler)
	return mux
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

// StatusReport is the /status payload.
type StatusReport struct {
	StartTime  string            `json:"start_time"`
	Uptime     string            `json:"uptime"`
	Paused     bool              `json:"paused"`
	Items      int               `json:"items_scanned"`
	Positions  int               `json:"positions"`
	ShadowPool int               `json:"shadow_pool"`
	Memory     int               `json:"memory_entries"`
	Progress   adaptive.Progress `json:"progress"`
	WalletText string            `json:"wallet_text"`
	Reliance   adaptive.Reliance `json:"reliance"`
	DNA        adaptive.DNA      `json:"dna"`
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	e := s.engine
	e.mu.Lock()
	report := StatusReport{
		StartTime:  e.startTime.Format(time.RFC3339),
		Uptime:     time.Since(e.startTime).String(),
		Paused:     e.paused.Load(),
		Items:      len(e.items),
		Positions:  e.book.Len(),
		ShadowPool: len(e.shadow),
		Memory:     e.bank.Len(),
		Progress:   e.progress,
		WalletText: market.FormatCoins(e.progress.Wallet),
		Reliance:   e.reliance,
		DNA:        e.dna,
	}
	e.mu.Unlock()

	s.writeJSON(w, report)
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *APIServer) itemsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 25
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	s.writeJSON(w, s.engine.TopPicks(limit))
}

func (s *APIServer) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.Atoi(r.URL.Query().Get("item_id"))
	if err != nil {
		http.Error(w, "invalid item_id", http.StatusBadRequest)
		return
	}

	rec, ok := s.engine.Analyze(r.Context(), itemID)
	if !ok {
		http.Error(w, "item not in the current snapshot", http.StatusNotFound)
		return
	}
	s.writeJSON(w, rec)
}

func (s *APIServer) pinHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ItemID int  `json:"item_id"`
		Pinned bool `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.Pin(req.ItemID, req.Pinned); err != nil {
		s.logger.Error("Failed to update pin", zap.Error(err))
		http.Error(w, "failed to update pin", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) positionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		e := s.engine
		e.mu.Lock()
		book := e.book.All()
		e.mu.Unlock()
		s.writeJSON(w, book)

	case http.MethodPost:
		var req struct {
			ItemID   int   `json:"item_id"`
			BuyPrice int64 `json:"buy_price"`
			Quantity int64 `json:"quantity"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.ItemID <= 0 || req.BuyPrice <= 0 || req.Quantity <= 0 {
			http.Error(w, "item_id, buy_price, and quantity must be positive", http.StatusBadRequest)
			return
		}
		if err := s.engine.DeclarePosition(req.ItemID, req.BuyPrice, req.Quantity); err != nil {
			if err == positions.ErrAlreadyTracked {
				http.Error(w, err.Error(), http.StatusConflict)
				return
			}
			s.logger.Error("Failed to declare position", zap.Error(err))
			http.Error(w, "failed to declare position", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusCreated)

	default:
		http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
	}
}

func (s *APIServer) removePositionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ItemID int `json:"item_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.engine.RemovePosition(req.ItemID); err != nil {
		s.logger.Error("Failed to remove position", zap.Error(err))
		http.Error(w, "failed to remove position", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) shadowHandler(w http.ResponseWriter, r *http.Request) {
	e := s.engine
	e.mu.Lock()
	pool := make([]sim.Position, len(e.shadow))
	copy(pool, e.shadow)
	e.mu.Unlock()
	s.writeJSON(w, pool)
}

func (s *APIServer) activityHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.engine.activity.recent(50))
}

func (s *APIServer) pauseHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) resumeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.engine.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) clearMemoryHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	if err := s.engine.ClearMemory(); err != nil {
		s.logger.Error("Failed to clear memory", zap.Error(err))
		http.Error(w, "failed to clear memory", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) exportHandler(w http.ResponseWriter, r *http.Request) {
	// Flush in-memory state first so the export reflects the present moment.
	s.engine.persist()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename=scout-state.json")
	if err := s.engine.store.ExportState(w); err != nil {
		s.logger.Error("Failed to export state", zap.Error(err))
	}
}

func (s *APIServer) importHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	if err := s.engine.store.ImportState(r.Body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.engine.mu.Lock()
	err := s.engine.restore()
	s.engine.mu.Unlock()
	if err != nil {
		s.logger.Error("Failed to reload imported state", zap.Error(err))
		http.Error(w, "import saved but reload failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *APIServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
