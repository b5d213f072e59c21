package web

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/arcvault/yielder/internal/logger"
	"github.com/arcvault/yielder/internal/state"
	"github.com/arcvault/yielder/internal/types"
)

var webLogger = logger.GetForComponent("web_server")

// CalculatorView is the read-only surface the server exposes per calculator.
type CalculatorView interface {
	AprID() string
	EngineState() types.EngineState
	Current(ctx context.Context) (types.CalculatorStats, error)
}

// WebServer handles HTTP requests for yield accounting data
type WebServer struct {
	router      *mux.Router
	port        string
	calculators map[string]CalculatorView
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, calculators []CalculatorView) *WebServer {
	if port == "" {
		port = "8080"
	}

	byID := make(map[string]CalculatorView, len(calculators))
	for _, calc := range calculators {
		byID[calc.AprID()] = calc
	}

	server := &WebServer{
		router:      mux.NewRouter(),
		port:        port,
		calculators: byID,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/calculators", ws.handleGetCalculators).Methods("GET")
	api.HandleFunc("/calculators/{aprID}/current", ws.handleGetCurrent).Methods("GET")
	api.HandleFunc("/calculators/{aprID}/stats", ws.handleGetLatestStats).Methods("GET")
	api.HandleFunc("/credit-events", ws.handleGetCreditEvents).Methods("GET")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	dbStatus := "healthy"
	if err := state.TestDBConnection(); err != nil {
		dbStatus = "unhealthy"
	}

	currentCycle, err := state.GetCurrentCycleNumber()
	if err != nil {
		currentCycle = 0
	}

	status := http.StatusOK
	if dbStatus != "healthy" {
		status = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, status, map[string]interface{}{
		"status":          dbStatus,
		"timestamp":       time.Now().UTC(),
		"current_cycle":   currentCycle,
		"calculators":     len(ws.calculators),
		"memory_alloc_mb": memStats.Alloc / 1024 / 1024,
		"goroutines":      runtime.NumGoroutine(),
	})
}

// handleGetCalculators lists the registered calculators and their committed
// credit state.
func (ws *WebServer) handleGetCalculators(w http.ResponseWriter, r *http.Request) {
	out := make([]map[string]interface{}, 0, len(ws.calculators))
	for aprID, calc := range ws.calculators {
		st := calc.EngineState()
		out = append(out, map[string]interface{}{
			"apr_id":            aprID,
			"incentive_credits": st.IncentiveCredits,
			"decaying":          st.Decaying,
			"last_incentive_at": st.LastIncentiveAt,
		})
	}
	ws.writeJSONResponse(w, http.StatusOK, out)
}

// handleGetCurrent computes a live stats read for one calculator.
func (ws *WebServer) handleGetCurrent(w http.ResponseWriter, r *http.Request) {
	aprID := mux.Vars(r)["aprID"]
	calc, ok := ws.calculators[aprID]
	if !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "unknown calculator: "+aprID)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	stats, err := calc.Current(ctx)
	if err != nil {
		webLogger.Error().Err(err).Str("aprID", aprID).Msg("Failed to compute current stats")
		ws.writeErrorResponse(w, http.StatusBadGateway, "failed to compute current stats")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, stats)
}

// handleGetLatestStats serves the last persisted stats document for one
// calculator. Cheaper than the live read; this is what dashboards poll.
func (ws *WebServer) handleGetLatestStats(w http.ResponseWriter, r *http.Request) {
	aprID := mux.Vars(r)["aprID"]
	if _, ok := ws.calculators[aprID]; !ok {
		ws.writeErrorResponse(w, http.StatusNotFound, "unknown calculator: "+aprID)
		return
	}

	stats, err := state.GetLatestEngineSnapshot(aprID)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusNotFound, "no persisted stats for "+aprID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(stats); err != nil {
		webLogger.Error().Err(err).Msg("Failed to write stats response")
	}
}

// handleGetCreditEvents serves the credit transition audit trail.
func (ws *WebServer) handleGetCreditEvents(w http.ResponseWriter, r *http.Request) {
	aprID := r.URL.Query().Get("apr_id")

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			ws.writeErrorResponse(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = parsed
	}

	events, err := state.GetRecentCreditEvents(aprID, limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to load credit events")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "failed to load credit events")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, events)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
