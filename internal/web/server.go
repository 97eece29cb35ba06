package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/elys-network/fluxpool/internal/aggregate"
	"github.com/elys-network/fluxpool/internal/bonding"
	"github.com/elys-network/fluxpool/internal/logger"
	"github.com/elys-network/fluxpool/internal/pool"
	"github.com/elys-network/fluxpool/internal/pricefeed"
	"github.com/elys-network/fluxpool/internal/series"
	"github.com/elys-network/fluxpool/internal/state"
	"github.com/elys-network/fluxpool/internal/types"
	"github.com/elys-network/fluxpool/internal/utils"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

var webLogger = logger.GetForComponent("web_server")

const apiKeyHeader = "X-API-Key"

// OperationJournal is the read side of the operation journal.
type OperationJournal interface {
	Recent(ctx context.Context, limit int) ([]state.OperationReceipt, error)
	ByOperationID(ctx context.Context, operationID string) (*state.OperationReceipt, error)
	Summary(ctx context.Context) (*state.JournalSummary, error)
}

// Config holds the dependencies of the web server.
type Config struct {
	Pool    *pool.Pool
	Journal OperationJournal // Optional
	Port    string
	APIKey  string           // Required in X-API-Key by the operation routes. Empty disables them
	Now     func() time.Time // Defaults to time.Now
}

// WebServer exposes the pool operations and queries over HTTP
type WebServer struct {
	router  *mux.Router
	handler http.Handler
	server  *http.Server
	pool    *pool.Pool
	journal OperationJournal
	port    string
	apiKey  string
	now     func() time.Time
	started time.Time
}

// NewWebServer creates a new web server instance
func NewWebServer(cfg Config) *WebServer {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	ws := &WebServer{
		router:  mux.NewRouter(),
		pool:    cfg.Pool,
		journal: cfg.Journal,
		port:    cfg.Port,
		apiKey:  cfg.APIKey,
		now:     cfg.Now,
		started: time.Now(),
	}

	ws.setupRoutes()
	return ws
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// Queries
	api.HandleFunc("/config", ws.handleGetConfig).Methods("GET")
	api.HandleFunc("/providers", ws.handleGetProviders).Methods("GET")
	api.HandleFunc("/tokens", ws.handleGetTokens).Methods("GET")
	api.HandleFunc("/weights", ws.handleGetWeights).Methods("GET")
	api.HandleFunc("/liquidity", ws.handleGetLiquidity).Methods("GET")
	api.HandleFunc("/prices", ws.handleGetPrices).Methods("GET")
	api.HandleFunc("/apr", ws.handleGetAPR).Methods("GET")
	api.HandleFunc("/balances/{address}", ws.handleGetBalances).Methods("GET")
	api.HandleFunc("/outbox", ws.handleGetOutbox).Methods("GET")

	// Operations. Callers name the sender in the body, so only the custody gateway holding the
	// API key may reach them.
	if ws.apiKey == "" {
		webLogger.Warn().Msg("No API key configured, operation routes are disabled")
	} else {
		api.Handle("/deposit", ws.requireAPIKey(ws.handleDeposit)).Methods("POST")
		api.Handle("/unbond", ws.requireAPIKey(ws.handleUnbond)).Methods("POST")
		api.Handle("/withdraw", ws.requireAPIKey(ws.handleWithdraw)).Methods("POST")
		api.Handle("/swap", ws.requireAPIKey(ws.handleSwap)).Methods("POST")
		api.Handle("/claim", ws.requireAPIKey(ws.handleClaim)).Methods("POST")
		api.Handle("/admin/config", ws.requireAPIKey(ws.handleUpdateConfig)).Methods("POST")
		api.Handle("/admin/assets", ws.requireAPIKey(ws.handleRegisterAsset)).Methods("POST")
	}

	// Journal
	api.HandleFunc("/operations", ws.handleGetOperations).Methods("GET")
	api.HandleFunc("/operations/summary", ws.handleGetOperationsSummary).Methods("GET")
	api.HandleFunc("/operations/{id}", ws.handleGetOperation).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", apiKeyHeader},
	})
	ws.handler = c.Handler(ws.router)
}

// Handler returns the routed handler wrapped in CORS.
func (ws *WebServer) Handler() http.Handler {
	return ws.handler
}

// Start starts the web server. It blocks until the server is shut down.
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	ws.server = &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	if ws.server == nil {
		return nil
	}
	return ws.server.Shutdown(ctx)
}

// handleHealth reports runtime statistics and whether the pool state is readable
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	storeHealthy := true
	instantiated := true
	if _, err := ws.pool.QueryConfig(r.Context()); err != nil {
		instantiated = false
		if !errors.Is(err, pool.ErrNotInstantiated) {
			storeHealthy = false
			webLogger.Error().Err(err).Msg("Health check failed to read pool config")
		}
	}

	poolStatus := map[string]interface{}{
		"store_healthy": storeHealthy,
		"instantiated":  instantiated,
	}
	if ws.journal != nil {
		if summary, err := ws.journal.Summary(r.Context()); err == nil {
			poolStatus["operations"] = summary
		}
	}

	overallStatus := "OK"
	statusCode := http.StatusOK
	if !storeHealthy || !instantiated {
		overallStatus = "DEGRADED"
		statusCode = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "fluxpool",
			"version": "1.0.0",
		},
		"pool_status": poolStatus,
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// --- Queries ---

func (ws *WebServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := ws.pool.QueryConfig(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, cfg)
}

// handleGetProviders returns all providers, or those named by repeated ?address= parameters
func (ws *WebServer) handleGetProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := ws.pool.QueryProviders(r.Context(), r.URL.Query()["address"]...)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"providers": providers,
		"count":     len(providers),
	})
}

// handleGetOutbox lists transfer batches the ledger has not accepted yet
func (ws *WebServer) handleGetOutbox(w http.ResponseWriter, r *http.Request) {
	pending, err := ws.pool.QueryOutbox(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pending": pending,
		"count":   len(pending),
	})
}

func (ws *WebServer) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := ws.pool.QueryTokens(r.Context(), r.URL.Query()["asset"]...)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

func (ws *WebServer) handleGetWeights(w http.ResponseWriter, r *http.Request) {
	weights, err := ws.pool.QueryTokenWeights(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"weights": weights})
}

func (ws *WebServer) handleGetLiquidity(w http.ResponseWriter, r *http.Request) {
	liquidity, err := ws.pool.QueryLiquidity(r.Context())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"liquidity": liquidity})
}

func (ws *WebServer) handleGetPrices(w http.ResponseWriter, r *http.Request) {
	prices, err := ws.pool.QueryPrices(r.Context(), ws.now())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"prices": prices})
}

func (ws *WebServer) handleGetAPR(w http.ResponseWriter, r *http.Request) {
	aprs, err := ws.pool.QueryAPR(r.Context(), ws.now())
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"apr": aprs})
}

func (ws *WebServer) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	coins, err := ws.pool.QueryBalances(r.Context(), address)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"address":  address,
		"balances": coins,
	})
}

// --- Operations ---

type positionRequest struct {
	Provider string `json:"provider"`
	Asset    string `json:"asset"`
	Amount   string `json:"amount"`
}

type swapRequest struct {
	Sender   string `json:"sender"`
	AmountIn string `json:"amount_in"`
	AssetIn  string `json:"asset_in"`
	AssetOut string `json:"asset_out"`
}

type claimRequest struct {
	Provider string `json:"provider"`
}

type configRequest struct {
	Sender              string  `json:"sender"`
	Admin               *string `json:"admin,omitempty"`
	SwapFeeRate         *string `json:"swap_fee_rate,omitempty"`
	Window              *string `json:"window,omitempty"`
	UnbondingPeriod     *string `json:"unbonding_period,omitempty"`
	PriceStalenessBound *string `json:"price_staleness_bound,omitempty"`
}

type assetRequest struct {
	Sender    string `json:"sender"`
	Asset     string `json:"asset"`
	Symbol    string `json:"symbol"`
	PriceFeed string `json:"price_feed"`
}

type positionOperation func(ctx context.Context, now time.Time, provider, assetID string, amount sdkmath.Int) (types.Response, error)

func (ws *WebServer) handlePosition(w http.ResponseWriter, r *http.Request, op positionOperation) {
	var req positionRequest
	if !ws.decodeRequest(w, r, &req) {
		return
	}
	amount, ok := sdkmath.NewIntFromString(req.Amount)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
		return
	}
	resp, err := op(r.Context(), ws.now(), req.Provider, req.Asset, amount)
	ws.writeOperation(w, resp, err)
}

func (ws *WebServer) handleDeposit(w http.ResponseWriter, r *http.Request) {
	ws.handlePosition(w, r, ws.pool.Deposit)
}

func (ws *WebServer) handleUnbond(w http.ResponseWriter, r *http.Request) {
	ws.handlePosition(w, r, ws.pool.Unbond)
}

func (ws *WebServer) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	ws.handlePosition(w, r, ws.pool.Withdraw)
}

func (ws *WebServer) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if !ws.decodeRequest(w, r, &req) {
		return
	}
	amount, ok := sdkmath.NewIntFromString(req.AmountIn)
	if !ok {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid amount")
		return
	}
	resp, err := ws.pool.Swap(r.Context(), ws.now(), req.Sender, amount, req.AssetIn, req.AssetOut)
	ws.writeOperation(w, resp, err)
}

func (ws *WebServer) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !ws.decodeRequest(w, r, &req) {
		return
	}
	resp, err := ws.pool.Claim(r.Context(), ws.now(), req.Provider)
	ws.writeOperation(w, resp, err)
}

func (ws *WebServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if !ws.decodeRequest(w, r, &req) {
		return
	}

	update := pool.ConfigUpdate{Admin: req.Admin}
	if req.SwapFeeRate != nil {
		rate, err := sdkmath.LegacyNewDecFromStr(*req.SwapFeeRate)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid swap fee rate")
			return
		}
		update.SwapFeeRate = &rate
	}
	for _, field := range []struct {
		raw *string
		dst **time.Duration
	}{
		{req.Window, &update.Window},
		{req.UnbondingPeriod, &update.UnbondingPeriod},
		{req.PriceStalenessBound, &update.PriceStalenessBound},
	} {
		if field.raw == nil {
			continue
		}
		d, err := time.ParseDuration(*field.raw)
		if err != nil {
			ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid duration "+strconv.Quote(*field.raw))
			return
		}
		*field.dst = &d
	}

	resp, err := ws.pool.UpdateConfig(r.Context(), ws.now(), req.Sender, update)
	ws.writeOperation(w, resp, err)
}

func (ws *WebServer) handleRegisterAsset(w http.ResponseWriter, r *http.Request) {
	var req assetRequest
	if !ws.decodeRequest(w, r, &req) {
		return
	}
	resp, err := ws.pool.RegisterOrUpdateAsset(r.Context(), ws.now(), req.Sender, req.Asset, req.Symbol, req.PriceFeed)
	ws.writeOperation(w, resp, err)
}

// --- Journal ---

// handleGetOperations returns the most recent operation receipts
func (ws *WebServer) handleGetOperations(w http.ResponseWriter, r *http.Request) {
	if !ws.requireJournal(w) {
		return
	}
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	receipts, err := ws.journal.Recent(r.Context(), limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get recent operations")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operations")
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"operations": receipts,
		"count":      len(receipts),
		"limit":      limit,
	})
}

func (ws *WebServer) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	if !ws.requireJournal(w) {
		return
	}
	id := mux.Vars(r)["id"]
	receipt, err := ws.journal.ByOperationID(r.Context(), id)
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

func (ws *WebServer) handleGetOperationsSummary(w http.ResponseWriter, r *http.Request) {
	if !ws.requireJournal(w) {
		return
	}
	summary, err := ws.journal.Summary(r.Context())
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get operations summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operations summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) requireJournal(w http.ResponseWriter) bool {
	if ws.journal == nil {
		ws.writeErrorResponse(w, http.StatusNotImplemented, "Operation journal is disabled")
		return false
	}
	return true
}

// --- Responses ---

func (ws *WebServer) decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (ws *WebServer) writeOperation(w http.ResponseWriter, resp types.Response, err error) {
	if err != nil {
		ws.writeError(w, err)
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, resp)
}

// statusFor maps pool errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pool.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, pool.ErrAssetNotFound),
		errors.Is(err, pool.ErrProviderNotFound),
		errors.Is(err, pool.ErrNotInstantiated),
		errors.Is(err, state.ErrReceiptNotFound):
		return http.StatusNotFound
	case errors.Is(err, pool.ErrBalancesUnavailable):
		return http.StatusNotImplemented
	case errors.Is(err, pool.ErrAlreadyInstantiated):
		return http.StatusConflict
	case errors.Is(err, pricefeed.ErrNoPriceAvailable),
		errors.Is(err, pricefeed.ErrStalePrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, bonding.ErrInsufficientFunds),
		errors.Is(err, pool.ErrZeroAmount),
		errors.Is(err, pool.ErrSameAssetSwap),
		errors.Is(err, pool.ErrInvalidAsset),
		errors.Is(err, types.ErrConfigInvalid),
		errors.Is(err, utils.ErrInvalidAddress),
		errors.Is(err, utils.ErrAmountNegative),
		errors.Is(err, utils.ErrAmountTooLarge),
		errors.Is(err, utils.ErrOverflow),
		errors.Is(err, aggregate.ErrNegativeTotal),
		errors.Is(err, series.ErrOutOfOrderSample),
		errors.Is(err, series.ErrWindowTooLarge):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		webLogger.Error().Err(err).Msg("Request failed")
		ws.writeErrorResponse(w, status, "Internal error")
		return
	}
	ws.writeErrorResponse(w, status, err.Error())
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

// requireAPIKey rejects requests whose X-API-Key header does not match the configured key.
func (ws *WebServer) requireAPIKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(ws.apiKey)) != 1 {
			webLogger.Warn().
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Msg("Rejected operation request without a valid API key")
			ws.writeErrorResponse(w, http.StatusUnauthorized, "missing or invalid API key")
			return
		}
		next(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
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
