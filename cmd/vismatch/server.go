package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lostboard/vismatch"
	"github.com/lostboard/vismatch/board"
	"github.com/lostboard/vismatch/codec"
	"github.com/lostboard/vismatch/item"
	"github.com/lostboard/vismatch/itemstore"
	"github.com/lostboard/vismatch/promcollector"
	"github.com/lostboard/vismatch/ranker"
	"github.com/lostboard/vismatch/sharelink"
)

const maxRequestBytes = 1 << 20

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the board HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "Listen address (overrides VISMATCH_LISTEN)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	reg := prometheus.NewRegistry()
	collector, err := promcollector.New(reg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, true, vismatch.WithMetricsCollector(collector))
	if err != nil {
		return err
	}
	defer a.Close()

	logger := slog.New(a.cfg.LogHandler(cmd.ErrOrStderr()))
	a.board.Warm(context.WithoutCancel(ctx))

	addr := a.cfg.Server.Listen
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		addr = v
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(a.board, a.matcher, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

type server struct {
	board   *board.Service
	matcher *vismatch.Matcher
	logger  *slog.Logger
}

func newServer(b *board.Service, m *vismatch.Matcher, metrics http.Handler, logger *slog.Logger) http.Handler {
	s := &server{board: b, matcher: m, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /items", s.handlePostItem)
	mux.HandleFunc("GET /items/{id}", s.handleGetItem)
	mux.HandleFunc("GET /items/{id}/matches", s.handleMatches)
	mux.HandleFunc("POST /embeddings", s.handleEmbedding)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := codec.Default.Marshal(v)
	if err != nil {
		s.logger.Error("encode response", slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}

	if kind, ok := vismatch.KindOf(err); ok {
		resp.Kind = kind.String()
		switch kind {
		case vismatch.KindImageLoadTimeout:
			status = http.StatusGatewayTimeout
		case vismatch.KindImageFetchFailed:
			status = http.StatusBadGateway
		case vismatch.KindImageDecodeFailed:
			status = http.StatusUnprocessableEntity
		case vismatch.KindModelLoad:
			status = http.StatusServiceUnavailable
		}
	} else {
		switch {
		case errors.Is(err, itemstore.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, board.ErrInvalidPost), errors.Is(err, errBadRequest):
			status = http.StatusBadRequest
		}
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.Any("error", err))
	}
	s.writeJSON(w, status, resp)
}

var errBadRequest = errors.New("bad request")

func (s *server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		return errors.Join(errBadRequest, err)
	}
	if err := codec.Default.Unmarshal(body, v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func (s *server) handlePostItem(w http.ResponseWriter, r *http.Request) {
	var req board.PostRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if t, err := item.ParseType(string(req.Type)); err == nil {
		req.Type = t
	}

	res, err := s.board.Post(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, res)
}

func (s *server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	rec, err := s.board.Item(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

type matchesResponse struct {
	Item    item.Record    `json:"item"`
	State   string         `json:"state"`
	Matches []ranker.Match `json:"matches"`
}

func newMatchesResponse(v board.ViewResult) matchesResponse {
	resp := matchesResponse{
		Item:    v.Item,
		State:   v.Outcome.State.String(),
		Matches: make([]ranker.Match, len(v.Outcome.Matches)),
	}
	resp.Item.Embedding = nil
	for i, m := range v.Outcome.Matches {
		m.Embedding = nil
		resp.Matches[i] = m
	}
	return resp
}

func (s *server) handleMatches(w http.ResponseWriter, r *http.Request) {
	var opts []ranker.Option
	q := r.URL.Query()
	for name, opt := range map[string]func(int) ranker.Option{
		"limit":     ranker.WithLimit,
		"threshold": ranker.WithThreshold,
	} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, errors.Join(errBadRequest, err))
			return
		}
		opts = append(opts, opt(n))
	}

	v, err := s.board.View(r.Context(), r.PathValue("id"), opts...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newMatchesResponse(v))
}

type embeddingRequest struct {
	URL string `json:"url"`
}

type embeddingResponse struct {
	URL       string    `json:"url"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
}

func (s *server) handleEmbedding(w http.ResponseWriter, r *http.Request) {
	var req embeddingRequest
	if err := s.decode(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	u := sharelink.Normalize(req.URL)
	emb, err := s.matcher.ExtractEmbedding(r.Context(), u)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, embeddingResponse{URL: u, Dim: emb.Dim(), Embedding: emb})
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"model":  s.matcher.ModelState().String(),
	})
}
