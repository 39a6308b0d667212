// Package api serves a read-only HTTP and WebSocket view of a run: live
// statistics, the book, recent trace records and runs persisted in the store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/itchmoe/pkg/metrics"
	"github.com/uhyunpark/itchmoe/pkg/orderbook"
	"github.com/uhyunpark/itchmoe/pkg/pipeline"
	"github.com/uhyunpark/itchmoe/pkg/storage"
)

const (
	DefaultHistory   = 4096
	defaultBookDepth = 10
	defaultPageSize  = 100
	maxPageSize      = 10000
)

type Config struct {
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics     // optional, serves /metrics
	Store   *storage.PebbleStore // optional, serves /api/v1/runs
	History int                  // recent records kept in memory
	Origins []string             // CORS allowed origins
}

// Server handles REST API and WebSocket connections. It is also a pipeline
// sink: every record it receives is kept in a bounded history and pushed to
// WebSocket subscribers.
type Server struct {
	log     *zap.SugaredLogger
	router  *mux.Router
	hub     *Hub
	metrics *metrics.Metrics
	store   *storage.PebbleStore
	origins []string
	history int

	mu      sync.RWMutex
	runID   uuid.UUID
	book    *orderbook.Book
	recent  []TraceRecord
	records uint64
	trades  uint64
	matched uint64
	signals [3]uint64
	summary *pipeline.Summary
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	if len(cfg.Origins) == 0 {
		cfg.Origins = []string{"http://localhost:3000", "http://localhost:3001"}
	}
	s := &Server{
		log:     cfg.Logger,
		router:  mux.NewRouter(),
		hub:     NewHub(cfg.Logger),
		metrics: cfg.Metrics,
		store:   cfg.Store,
		origins: cfg.Origins,
		history: cfg.History,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Live run
	api.HandleFunc("/stats", s.handleGetStats).Methods("GET")
	api.HandleFunc("/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/trace", s.handleGetTrace).Methods("GET")
	api.HandleFunc("/trace/{seq:[0-9]+}", s.handleGetTraceRecord).Methods("GET")

	// Stored runs
	api.HandleFunc("/runs", s.handleGetRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{id}/trace", s.handleGetRunTrace).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Handler returns the router wrapped in the CORS policy.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

func (s *Server) Hub() *Hub { return s.hub }

// Start serves addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Attach points the live endpoints at a new run and clears the history.
func (s *Server) Attach(runID uuid.UUID, book *orderbook.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = runID
	s.book = book
	s.recent = nil
	s.records, s.trades, s.matched = 0, 0, 0
	s.signals = [3]uint64{}
	s.summary = nil
}

// Finish records the run summary once the pipeline is done.
func (s *Server) Finish(sum pipeline.Summary) {
	s.mu.Lock()
	s.summary = &sum
	s.mu.Unlock()
}

func (s *Server) OnRecord(rec pipeline.Record) error {
	tr := newTraceRecord(&rec)

	s.mu.Lock()
	s.recent = append(s.recent, tr)
	if len(s.recent) >= 2*s.history {
		s.recent = append([]TraceRecord(nil), s.recent[len(s.recent)-s.history:]...)
	}
	s.records++
	if int(rec.Signal.Action) < len(s.signals) {
		s.signals[rec.Signal.Action]++
	}
	if rec.Match.Matched {
		s.trades++
		s.matched += uint64(rec.Match.Quantity)
	}
	book := s.book
	s.mu.Unlock()

	s.hub.BroadcastToChannel(ChannelTrace, WSMessage{Type: "trace", Data: tr})
	if rec.Match.Matched {
		update := WSMessage{Type: "trade", Data: TradeUpdate{
			Seq:   rec.Seq,
			Stock: tr.Stock,
			Side:  tr.Side,
			Price: dollars(rec.Match.Price),
			Size:  rec.Match.Quantity,
		}}
		s.hub.BroadcastToChannel(ChannelTrades, update)
		s.hub.BroadcastToChannel(ChannelTrades+":"+tr.Stock, update)
	}
	if book != nil && s.hub.HasSubscribers(ChannelBook) {
		bid, ask := book.Top()
		s.hub.BroadcastToChannel(ChannelBook, WSMessage{Type: "book", Data: TopUpdate{
			Seq:     rec.Seq,
			BestBid: dollars(bid),
			BestAsk: dollars(ask),
		}})
	}
	return nil
}

var _ pipeline.Sink = (*Server)(nil)

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := RunStats{
		Records:    s.records,
		Trades:     s.trades,
		MatchedQty: s.matched,
		Signals:    signalMix(s.signals),
		BestBid:    dollars(0),
		BestAsk:    dollars(0),
	}
	if s.runID != uuid.Nil {
		resp.RunID = s.runID.String()
	}
	if s.book != nil {
		bid, ask := s.book.Top()
		resp.BestBid, resp.BestAsk = dollars(bid), dollars(ask)
	}
	if s.summary != nil {
		resp.Finished = true
		resp.TotalMessages = s.summary.Stats.TotalMessages
		resp.AddOrders = s.summary.Stats.AddOrders
		resp.Rejected = s.summary.Stats.Rejected()
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	depth, err := queryInt(r, "depth", defaultBookDepth)
	if err != nil || depth < 0 {
		respondError(w, http.StatusBadRequest, "invalid depth", "")
		return
	}

	s.mu.RLock()
	book := s.book
	s.mu.RUnlock()
	if book == nil {
		respondError(w, http.StatusServiceUnavailable, "no run attached", "")
		return
	}

	bid, ask := book.Top()
	respondJSON(w, BookSnapshot{
		BestBid:   dollars(bid),
		BestAsk:   dollars(ask),
		Bids:      levels(book.BidLevels(), depth),
		Asks:      levels(book.AskLevels(), depth),
		Digest:    book.Digest().Hex(),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	from, limit, ok := pageParams(w, r)
	if !ok {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TraceRecord, 0)
	for _, tr := range s.recent {
		if tr.Seq < from {
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, tr)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetTraceRecord(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.ParseUint(mux.Vars(r)["seq"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid seq", err.Error())
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.recent) > 0 {
		first := s.recent[0].Seq
		if seq >= first && seq-first < uint64(len(s.recent)) {
			respondJSON(w, s.recent[seq-first])
			return
		}
	}
	respondError(w, http.StatusNotFound, "record not found", "not in recent history")
}

func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "no store configured", "")
		return
	}
	runs, err := s.store.ListRuns()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list runs", err.Error())
		return
	}
	out := make([]RunInfo, len(runs))
	for i := range runs {
		out[i] = newRunInfo(&runs[i])
	}
	respondJSON(w, out)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runParam(w, r)
	if !ok {
		return
	}
	meta, err := s.store.LoadRun(id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "run not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load run", err.Error())
		return
	}
	respondJSON(w, newRunInfo(&meta))
}

func (s *Server) handleGetRunTrace(w http.ResponseWriter, r *http.Request) {
	id, ok := s.runParam(w, r)
	if !ok {
		return
	}
	from, limit, ok := pageParams(w, r)
	if !ok {
		return
	}
	if _, err := s.store.LoadRun(id); errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "run not found", "")
		return
	}
	recs, err := s.store.LoadRecords(id, from, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load records", err.Error())
		return
	}
	out := make([]TraceRecord, len(recs))
	for i := range recs {
		out[i] = storedTraceRecord(&recs[i])
	}
	respondJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) runParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if s.store == nil {
		respondError(w, http.StatusServiceUnavailable, "no store configured", "")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run id", err.Error())
		return uuid.Nil, false
	}
	return id, true
}

func pageParams(w http.ResponseWriter, r *http.Request) (from uint64, limit int, ok bool) {
	f, err := queryInt(r, "from", 0)
	if err != nil || f < 0 {
		respondError(w, http.StatusBadRequest, "invalid from", "")
		return 0, 0, false
	}
	limit, err = queryInt(r, "limit", defaultPageSize)
	if err != nil || limit <= 0 || limit > maxPageSize {
		respondError(w, http.StatusBadRequest, "invalid limit", "")
		return 0, 0, false
	}
	return uint64(f), limit, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// levels converts book levels; depth 0 means all.
func levels(in []orderbook.PriceLevel, depth int) []PriceLevel {
	if depth > 0 && len(in) > depth {
		in = in[:depth]
	}
	out := make([]PriceLevel, len(in))
	for i, l := range in {
		out[i] = PriceLevel{Price: dollars(l.Price), RawPrice: l.Price, Size: l.Qty}
	}
	return out
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
