package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"PredictLedger/internal/event"
	"PredictLedger/internal/ingestion"
	"PredictLedger/internal/observability"
	"PredictLedger/internal/projection"
	"PredictLedger/internal/query"
)

// CommandSubmitter hands a parsed command to the deterministic core.
// Submission is asynchronous: acceptance means queued, not applied.
type CommandSubmitter interface {
	Submit(ctx context.Context, evt event.Event) error
}

// Server is the HTTP surface: command submission, projection reads,
// health, and metrics.
type Server struct {
	queryService *query.QueryService
	betHistory   *projection.BetHistoryProjection
	submitter    CommandSubmitter
	health       *observability.HealthChecker
	httpServer   *http.Server
	logger       zerolog.Logger
}

// commandRoutes maps URL command names to parser command types.
var commandRoutes = map[string]string{
	"deposit":          "Deposit",
	"withdrawal":       "Withdrawal",
	"place_bet":        "PlaceBet",
	"cancel_bet":       "CancelBet",
	"claim_payout":     "ClaimPayout",
	"create_market":    "CreateMarket",
	"resolve_market":   "ResolveMarket",
	"pause_market":     "PauseMarket",
	"unpause_market":   "UnpauseMarket",
	"cancel_market":    "CancelMarket",
	"close_market":     "CloseMarket",
	"open_dispute":     "OpenDispute",
	"settle_dispute":   "SettleDispute",
	"pause_platform":   "PausePlatform",
	"unpause_platform": "UnpausePlatform",
	"update_platform":  "UpdatePlatform",
}

func NewServer(
	addr string,
	queryService *query.QueryService,
	betHistory *projection.BetHistoryProjection,
	submitter CommandSubmitter,
	health *observability.HealthChecker,
) *Server {
	s := &Server{
		queryService: queryService,
		betHistory:   betHistory,
		submitter:    submitter,
		health:       health,
		logger:       observability.NewLogger("http"),
	}

	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/commands/{command}", s.handleCommand).Methods("POST")
	api.HandleFunc("/balances/{user_id}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/markets", s.handleListMarkets).Methods("GET")
	api.HandleFunc("/markets/{market_id}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{market_id}/disputes", s.handleGetMarketDisputes).Methods("GET")
	api.HandleFunc("/markets/{market_id}/activity", s.handleMarketActivity).Methods("GET")
	api.HandleFunc("/users/{user_id}/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/users/{user_id}/journal", s.handleGetJournal).Methods("GET")
	api.HandleFunc("/users/{user_id}/activity", s.handleUserActivity).Methods("GET")
	api.HandleFunc("/admin/integrity", s.handleVerifyIntegrity).Methods("GET")

	router.HandleFunc("/healthz", s.health.LivenessHandler).Methods("GET")
	router.HandleFunc("/readyz", s.health.ReadinessHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      c.Handler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// --- command submission ---

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["command"]
	commandType, ok := commandRoutes[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown command: "+name)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	raw := ingestion.RawEvent{
		Subject:   "http:" + name,
		Data:      body,
		Timestamp: time.Now(),
		AckFunc:   func() {},
		NakFunc:   func() {},
	}

	evt, err := ingestion.ParseRawEvent(raw, commandType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.submitter.Submit(r.Context(), evt); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":          "accepted",
		"idempotency_key": evt.IdempotencyKey(),
	})
}

// --- reads ---

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	resp, err := s.queryService.GetBalance(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("balance query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var status *int32
	if raw := q.Get("status"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		st := int32(v)
		status = &st
	}

	var category *string
	if raw := q.Get("category"); raw != "" {
		category = &raw
	}

	includeClosed := q.Get("include_closed") == "true"
	limit := parseLimit(q.Get("limit"), 50, 200)

	markets, err := s.queryService.ListMarkets(r.Context(), status, category, includeClosed, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("market list query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"markets": markets})
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	marketID, err := uuid.Parse(mux.Vars(r)["market_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market_id")
		return
	}

	resp, err := s.queryService.GetMarket(r.Context(), marketID)
	if err != nil {
		s.logger.Error().Err(err).Msg("market query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if resp == nil {
		writeError(w, http.StatusNotFound, "market not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMarketDisputes(w http.ResponseWriter, r *http.Request) {
	marketID, err := uuid.Parse(mux.Vars(r)["market_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market_id")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)
	disputes, err := s.queryService.GetDisputes(r.Context(), &marketID, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("dispute query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"disputes": disputes})
}

func (s *Server) handleMarketActivity(w http.ResponseWriter, r *http.Request) {
	marketID, err := uuid.Parse(mux.Vars(r)["market_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market_id")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 50, 500)
	entries := s.betHistory.QueryByMarket(marketID, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": entries})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	positions, err := s.queryService.GetPositions(r.Context(), userID)
	if err != nil {
		s.logger.Error().Err(err).Msg("position query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": positions})
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	q := r.URL.Query()
	limit := parseLimit(q.Get("limit"), 50, 500)

	var afterSeq *int64
	if raw := q.Get("after"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after cursor")
			return
		}
		afterSeq = &v
	}

	entries, err := s.queryService.GetJournalHistory(r.Context(), userID, limit, afterSeq)
	if err != nil {
		s.logger.Error().Err(err).Msg("journal query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"journal": entries})
}

func (s *Server) handleUserActivity(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(mux.Vars(r)["user_id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	limit := parseLimit(r.URL.Query().Get("limit"), 50, 500)
	entries := s.betHistory.QueryByUser(userID, limit)
	writeJSON(w, http.StatusOK, map[string]interface{}{"activity": entries})
}

func (s *Server) handleVerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queryService.VerifyIntegrity(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("integrity check failed")
		writeError(w, http.StatusInternalServerError, "integrity check failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- helpers ---

func parseLimit(raw string, def, max int) int {
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
