// Package api is the HTTP surface over the race service.
package api

import (
	"context"
	"crypto/subtle"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/time/rate"

	"racehouse/config"
	"racehouse/service"
)

// RateLimiter decides whether one more request from key fits its budget.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// HealthCheck reports one dependency's status.
type HealthCheck func(ctx context.Context) error

type Options struct {
	Service *service.Service
	// Feed serves the race feed websocket. Optional.
	Feed http.HandlerFunc
	// Limiter defaults to a per-instance LocalLimiter.
	Limiter RateLimiter
	// AdminToken guards race creation, resolution and registration. Empty
	// leaves those routes open.
	AdminToken string
	Health     map[string]HealthCheck
}

type Server struct {
	svc        *service.Service
	feed       http.HandlerFunc
	limiter    RateLimiter
	adminToken string
	health     map[string]HealthCheck
}

func NewServer(opts Options) *Server {
	s := &Server{
		svc:        opts.Service,
		feed:       opts.Feed,
		limiter:    opts.Limiter,
		adminToken: opts.AdminToken,
		health:     opts.Health,
	}
	if s.limiter == nil {
		s.limiter = NewLocalLimiter(config.MaxRequestsPerSecond, config.RateLimitBurst)
	}
	if s.adminToken == "" {
		log.Println("⚠️  Warning: ADMIN_TOKEN not set, admin routes are open")
	}
	return s
}

// Routes sets up the HTTP routes with their middleware
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	if s.feed != nil {
		r.Get("/ws", s.feed)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(config.RequestTimeout))
		r.Use(s.rateLimit)

		r.Get("/health", s.HandleHealthCheck)
		r.Get("/leaderboard", s.HandleGetLeaderboard)
		r.Get("/ledger/{wallet}", s.HandleGetLedger)

		r.Route("/races", func(r chi.Router) {
			r.Get("/", s.HandleListRaces)
			r.With(s.requireAdmin).Post("/", s.HandleCreateRace)
			r.With(s.requireAdmin).Get("/verify", s.HandleVerifyAll)
			r.Get("/{id}", s.HandleGetRace)
			r.Post("/{id}/entries", s.HandleEnterRace)
			r.With(s.requireAdmin).Post("/{id}/resolve", s.HandleResolveRace)
			r.Get("/{id}/verify", s.HandleVerifyRace)
		})

		r.Route("/creatures", func(r chi.Router) {
			r.Get("/", s.HandleListCreatures)
			r.With(s.requireAdmin).Post("/", s.HandleRegisterCreature)
			r.Get("/{id}", s.HandleGetCreature)
			r.Post("/{id}/train", s.HandleTrain)
			r.Post("/{id}/treatment", s.HandleTreatment)
		})
	})
	return r
}

/* =========================
   MIDDLEWARE
========================= */

// corsMiddleware adds CORS headers to allow frontend requests
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = config.AllowOrigin
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		// Handle preflight OPTIONS request
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.limiter.Allow(r.Context(), clientKey(r))
		if err != nil {
			// A broken limiter must not take the API down.
			log.Printf("⚠️  Rate limiter failed: %v", err)
		} else if !ok {
			sendError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
				sendError(w, http.StatusUnauthorized, "Admin token required")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

/* =========================
   LOCAL RATE LIMITER
========================= */

// LocalLimiter keeps one token bucket per client in this process. It is
// best-effort: several instances each grant the full budget.
type LocalLimiter struct {
	mu       sync.Mutex
	limiters *lru.Cache
	limit    rate.Limit
	burst    int
}

const localLimiterClients = 10000

func NewLocalLimiter(perSecond float64, burst int) *LocalLimiter {
	cache, err := lru.New(localLimiterClients)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &LocalLimiter{limiters: cache, limit: rate.Limit(perSecond), burst: burst}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	return l.limiterFor(key).Allow(), nil
}

func (l *LocalLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.limiters.Get(key); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	l.limiters.Add(key, limiter)
	return limiter
}
