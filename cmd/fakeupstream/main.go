// Command fakeupstream runs a small REST-ish HTTP server used to exercise
// the adaptive mock platform during manual testing and local demos: point
// TARGET_URL at it and send traffic through the platform in proxy mode to
// watch schema learning, behavior baselining, and chaos injection work
// against a real (if trivial) backend.
//
// Endpoints:
//
//	GET  /api/users        — list users
//	POST /api/users        — create a user
//	GET  /api/users/{id}   — fetch a user
//	GET  /api/orders       — list orders
//	POST /api/orders       — create an order
//
// Behaviour flags (via env):
//
//	PORT              — listen port (default 9000)
//	MOCK_LATENCY_MS   — artificial latency added to every response (default 0)
//	MOCK_ERROR_RATE   — fraction [0,1] of requests that return HTTP 500 (default 0)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// config holds runtime behavior shared across all routes.
type config struct {
	LatencyMS int
	ErrorRate float64
}

func loadConfig() config {
	c := config{}
	if v := os.Getenv("MOCK_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LatencyMS = n
		}
	}
	if v := os.Getenv("MOCK_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.ErrorRate = f
		}
	}
	return c
}

// user and order are deliberately small, stable shapes: the platform's
// schema intelligence module snapshots their fields and flags drift when a
// later response no longer matches.
type user struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type order struct {
	ID       int     `json:"id"`
	UserID   int     `json:"user_id"`
	Total    float64 `json:"total"`
	Status   string  `json:"status"`
	ItemsQty int     `json:"items_qty"`
}

type store struct {
	mu     sync.Mutex
	users  []user
	orders []order
	nextID int
}

func newStore() *store {
	s := &store{nextID: 1}
	s.users = []user{
		{ID: s.reserveID(), Name: "Ada Lovelace", Email: "ada@example.com"},
		{ID: s.reserveID(), Name: "Grace Hopper", Email: "grace@example.com"},
	}
	s.orders = []order{
		{ID: s.reserveID(), UserID: 1, Total: 42.50, Status: "shipped", ItemsQty: 3},
	}
	return s
}

func (s *store) reserveID() int {
	id := s.nextID
	s.nextID++
	return id
}

func (s *store) addUser(u user) user {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.reserveID()
	s.users = append(s.users, u)
	return u
}

func (s *store) findUser(id int) (user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return user{}, false
}

func (s *store) listUsers() []user {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]user, len(s.users))
	copy(out, s.users)
	return out
}

func (s *store) addOrder(o order) order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.reserveID()
	s.orders = append(s.orders, o)
	return o
}

func (s *store) listOrders() []order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]order, len(s.orders))
	copy(out, s.orders)
	return out
}

// chaosMiddleware injects configured latency and a fixed error rate ahead
// of every handler, simulating the kind of real-world flakiness the
// platform is meant to detect and fail over from.
func chaosMiddleware(cfg config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.LatencyMS > 0 {
			time.Sleep(time.Duration(cfg.LatencyMS) * time.Millisecond)
		}
		if cfg.ErrorRate > 0 && rand.Float64() < cfg.ErrorRate {
			http.Error(w, `{"error":"simulated upstream failure"}`, http.StatusInternalServerError)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newMux(s *store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, s.listUsers())
		case http.MethodPost:
			var u user
			if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
				http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusCreated, s.addUser(u))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/users/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		idStr := strings.TrimPrefix(r.URL.Path, "/api/users/")
		id, err := strconv.Atoi(idStr)
		if err != nil {
			http.Error(w, `{"error":"invalid id"}`, http.StatusBadRequest)
			return
		}
		u, ok := s.findUser(id)
		if !ok {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, u)
	})

	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, s.listOrders())
		case http.MethodPost:
			var o order
			if err := json.NewDecoder(r.Body).Decode(&o); err != nil {
				http.Error(w, `{"error":"invalid body"}`, http.StatusBadRequest)
				return
			}
			writeJSON(w, http.StatusCreated, s.addOrder(o))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return mux
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadConfig()

	port := 9000
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			port = n
		}
	}

	log.Info("starting fake upstream",
		slog.Int("port", port),
		slog.Int("latency_ms", cfg.LatencyMS),
		slog.Float64("error_rate", cfg.ErrorRate),
	)

	s := newStore()
	handler := chaosMiddleware(cfg, newMux(s))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
		}
	}()

	fmt.Println("READY")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down fake upstream")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Info("fake upstream stopped")
}
