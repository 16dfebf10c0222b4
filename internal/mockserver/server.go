// Package mockserver serves the order API from memory.
//
// It follows the production backend's rules closely enough to drive the
// client end to end: bearer tokens are user ids, state changes append system
// messages, and role or status violations come back as 400/403 with a
// readable message.
package mockserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kingrea/unirun/internal/order"
)

type ctxKey int

const ctxUser ctxKey = iota

// Server wraps the listener and the routes.
type Server struct {
	settings Settings
	store    *Store
	logger   *zap.Logger

	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
}

// Option customizes server construction.
type Option func(*Server)

// WithLogger overrides the default no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore serves an existing store instead of a freshly seeded one.
func WithStore(store *Store) Option {
	return func(s *Server) {
		if store != nil {
			s.store = store
		}
	}
}

// NewServer prepares a server. Without WithStore the store is seeded with
// the demo fixtures plus settings.SeedOrders random orders.
func NewServer(settings Settings, opts ...Option) *Server {
	s := &Server{settings: settings, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.store == nil {
		s.store = NewStore(nil)
		Seed(s.store, settings.SeedOrders, settings.Seed)
	}
	if s.settings.MaxBodyBytes <= 0 {
		s.settings.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return s
}

// Store exposes the backing store.
func (s *Server) Store() *Store { return s.store }

// Handler returns the API routes, mounted under /api.
func (s *Server) Handler() http.Handler {
	rtr := mux.NewRouter()
	api := rtr.PathPrefix("/api").Subrouter()
	api.Use(s.logRequests, s.authenticate)
	api.HandleFunc("/orders/list", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/take", s.handleTake).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/deliver", s.handleDeliver).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/finish", s.handleFinish).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/chat", s.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/orders/{id}/rate", s.handleRate).Methods(http.MethodPost)
	return rtr
}

// Start binds the listener and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("mockserver: already started")
	}
	addr := s.settings.Address()
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mockserver: listen %s: %w", addr, err)
	}
	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.settings.ReadTimeout,
		WriteTimeout: s.settings.WriteTimeout,
		IdleTimeout:  s.settings.IdleTimeout,
	}
	if ctx != nil {
		server.BaseContext = func(net.Listener) context.Context { return ctx }
	}
	s.listener = listener
	s.server = server
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("serve failed", zap.Error(err))
		}
	}()
	s.logger.Info("mock API listening", zap.String("addr", listener.Addr().String()), zap.Int("orders", s.store.Len()))
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	s.server = nil
	s.listener = nil
	return nil
}

// BaseURL is the API root clients should use once started.
func (s *Server) BaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addr := s.settings.Address()
	if s.listener != nil {
		addr = s.listener.Addr().String()
	}
	return "http://" + addr + "/api"
}

type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		if token == "" {
			s.write(w, http.StatusUnauthorized, envelope{Message: "Token is missing"})
			return
		}
		user, ok := s.store.UserByToken(token)
		if !ok {
			s.write(w, http.StatusUnauthorized, envelope{Message: "Token is invalid or expired"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxUser, user)))
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orders, err := s.store.List(ListFilter{Category: q.Get("category"), Status: q.Get("status")})
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, envelope{Message: "success", Data: orders})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	o, err := s.store.Get(orderID(r), currentUser(r).ID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, envelope{Message: "success", Data: o})
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TakerID order.UserID `json:"taker_id"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	user := currentUser(r)
	if !body.TakerID.IsZero() && body.TakerID != user.ID {
		s.write(w, http.StatusForbidden, envelope{Message: "taker_id does not match the signed-in user"})
		return
	}
	s.command(w, func() (string, error) { return s.store.Take(orderID(r), user.ID) })
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	s.command(w, func() (string, error) { return s.store.Deliver(orderID(r), currentUser(r).ID) })
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	s.command(w, func() (string, error) { return s.store.Finish(orderID(r), currentUser(r).ID) })
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		UserID order.UserID `json:"user_id"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	user := currentUser(r)
	if !body.UserID.IsZero() && body.UserID != user.ID {
		s.write(w, http.StatusForbidden, envelope{Message: "user_id does not match the signed-in user"})
		return
	}
	s.command(w, func() (string, error) { return s.store.Cancel(orderID(r), user.ID) })
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
		Type    string `json:"type"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	msg, err := s.store.Chat(orderID(r), currentUser(r).ID, body.Type, body.Content)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusCreated, envelope{Message: "Message sent", Data: msg})
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rating  int    `json:"rating"`
		Content string `json:"content"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	msg, err := s.store.Rate(orderID(r), currentUser(r).ID, body.Rating, body.Content)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusCreated, envelope{Message: msg})
}

func (s *Server) command(w http.ResponseWriter, run func() (string, error)) {
	msg, err := run()
	if err != nil {
		s.fail(w, err)
		return
	}
	s.write(w, http.StatusOK, envelope{Message: msg})
}

// decode reads an optional JSON body. An empty body leaves dst untouched.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	raw, err := io.ReadAll(io.LimitReader(r.Body, s.settings.MaxBodyBytes))
	if err != nil {
		s.write(w, http.StatusBadRequest, envelope{Message: "Unreadable request body"})
		return false
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.write(w, http.StatusBadRequest, envelope{Message: "Invalid JSON body"})
		return false
	}
	return true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	var rule *RuleError
	if errors.As(err, &rule) {
		s.write(w, rule.Status, envelope{Message: rule.Message})
		return
	}
	s.logger.Error("handler failed", zap.Error(err))
	s.write(w, http.StatusInternalServerError, envelope{Message: "Internal error"})
}

func (s *Server) write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

func orderID(r *http.Request) order.ID {
	return order.ID(mux.Vars(r)["id"])
}

func currentUser(r *http.Request) User {
	u, _ := r.Context().Value(ctxUser).(User)
	return u
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
