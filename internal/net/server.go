package net

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"tradingboard/internal/common"
	"tradingboard/internal/engine"
	"tradingboard/internal/view"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	MAX_RECV_SIZE   = 4 * 1024
	defaultNWorkers = 4
	shutdownTimeout = 5 * time.Second
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Server struct {
	address  string
	board    *engine.Board
	origins  []string
	gatherer prometheus.Gatherer
	router   *mux.Router
	hub      *Hub
	cancel   context.CancelFunc

	unsubscribe func()
}

// New builds the viewer-facing server for board. The hub is registered as a
// reporter, so New must be called before the board is started.
func New(address string, board *engine.Board, origins []string, gatherer prometheus.Gatherer) *Server {
	updates, unsubscribe := board.Subscribe()
	s := &Server{
		address:     address,
		board:       board,
		origins:     origins,
		gatherer:    gatherer,
		router:      mux.NewRouter(),
		hub:         NewHub(updates, defaultNWorkers),
		unsubscribe: unsubscribe,
	}
	board.AddReporter(s.hub)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/book", s.handleGetBook).Methods(http.MethodGet)

	api.HandleFunc("/feed", s.handleGetFeed).Methods(http.MethodGet)
	api.HandleFunc("/feed/pause", s.handlePause).Methods(http.MethodPost)
	api.HandleFunc("/feed/resume", s.handleResume).Methods(http.MethodPost)
	api.HandleFunc("/feed/toggle", s.handleToggle).Methods(http.MethodPost)

	api.HandleFunc("/orders/{id}/select", s.handleSelect).Methods(http.MethodPost)
	api.HandleFunc("/execution", s.handleGetExecution).Methods(http.MethodGet)
	api.HandleFunc("/execution/quantity", s.handleSetQuantity).Methods(http.MethodPut)
	api.HandleFunc("/execution/confirm", s.handleConfirm).Methods(http.MethodPost)
	api.HandleFunc("/execution/cancel", s.handleCancel).Methods(http.MethodPost)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler is the full HTTP handler including CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start runs the hub under t. Run does this itself; Start exists for callers
// serving Handler on their own listener.
func (s *Server) Start(t *tomb.Tomb) {
	s.hub.Start(t)
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

// Run serves until ctx is cancelled or Shutdown is called. The server stops
// receiving book snapshots once Run returns.
func (s *Server) Run(ctx context.Context) error {
	defer s.unsubscribe()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		log.Error().Err(err).Msg("unable to start listener")
		return err
	}

	s.Start(t)

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	t.Go(func() error {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	t.Go(func() error {
		<-t.Dying()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info().Str("address", listener.Addr().String()).Msg("server running")
	return t.Wait()
}

// ---- REST Handlers ----

type bookResponse struct {
	Query string         `json:"query"`
	Feed  string         `json:"feed"`
	Rows  []common.Order `json:"rows"`
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	orders, err := s.board.Snapshot()
	if err != nil {
		respondError(w, err)
		return
	}
	feed, err := s.board.Feed()
	if err != nil {
		respondError(w, err)
		return
	}
	query := r.URL.Query().Get("q")
	respondJSON(w, http.StatusOK, bookResponse{
		Query: query,
		Feed:  feed.String(),
		Rows:  view.Filter(orders, query),
	})
}

func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	feed, err := s.board.Feed()
	if err != nil {
		respondError(w, err)
		return
	}
	respondFeed(w, feed)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.board.Pause(); err != nil {
		respondError(w, err)
		return
	}
	respondFeed(w, engine.Paused)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.board.Resume(); err != nil {
		respondError(w, err)
		return
	}
	respondFeed(w, engine.Running)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	feed, err := s.board.Toggle()
	if err != nil {
		respondError(w, err)
		return
	}
	respondFeed(w, feed)
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	s.respondWorkflow(w, s.board.Select(mux.Vars(r)["id"]))
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	s.respondWorkflow(w, nil)
}

type quantityRequest struct {
	Quantity string `json:"quantity"`
}

func (s *Server) handleSetQuantity(w http.ResponseWriter, r *http.Request) {
	var req quantityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MAX_RECV_SIZE)).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	s.respondWorkflow(w, s.board.SetQuantity(req.Quantity))
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.respondWorkflow(w, s.board.Confirm())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.respondWorkflow(w, s.board.Cancel())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondWorkflow(w http.ResponseWriter, err error) {
	if err != nil {
		respondError(w, err)
		return
	}
	status, err := s.board.Workflow()
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// ---- Helpers ----

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("unable to write response")
	}
}

func respondFeed(w http.ResponseWriter, feed engine.FeedState) {
	respondJSON(w, http.StatusOK, map[string]string{"feed": feed.String()})
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrWorkflowBusy), errors.Is(err, engine.ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, engine.ErrBoardClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
