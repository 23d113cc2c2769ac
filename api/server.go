/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table. This
  is the wiring layer between URLs and handlers.

MIDDLEWARE STACK:
  1. RequestID:  unique id per request, echoed in logs
  2. RealIP:     client address behind a proxy (rate limiting keys on it)
  3. hlog:       request-scoped zerolog logger + access log line
  4. Recoverer:  panic recovery (500 instead of crash)
  5. metrics:    latency histogram by route pattern
  6. CORS:       cross-origin requests for the admin front-end

ROUTE GROUPS:
  /api/*         owner calendar, requires X-Owner-ID
  /public/*      unauthenticated offer lookup and redemption, rate limited
                 per client address
  /health        store ping
  /metrics       Prometheus scrape endpoint

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/time/rate"
)

// RouterOptions tunes the outer surface.
type RouterOptions struct {
	AllowedOrigins []string
	PublicRate     rate.Limit // requests per second per client address
	PublicBurst    int
}

func DefaultRouterOptions() RouterOptions {
	return RouterOptions{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		PublicRate:     2,
		PublicBurst:    5,
	}
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(h.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, elapsed time.Duration) {
		hlog.FromRequest(r).Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", elapsed).
			Msg("request")
	}))
	r.Use(middleware.Recoverer)
	r.Use(h.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderOwner, HeaderActingAs},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", h.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireOwner)

		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Get("/{id}", h.GetClient)
			r.Get("/{id}/deposit-credit", h.GetDepositCredit)
		})

		r.Route("/services", func(r chi.Router) {
			r.Get("/", h.ListServices)
			r.Post("/", h.CreateService)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Get("/", h.ListAppointments)
			r.Post("/", h.CreateAppointment)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetAppointment)
				r.Put("/", h.UpdateAppointment)
				r.Delete("/", h.DeleteAppointment)

				r.Post("/confirm", h.Confirm)
				r.Post("/start", h.Start)
				r.Post("/complete", h.Complete)
				r.Post("/cancel", h.Cancel)
				r.Post("/no-show", h.NoShow)
				r.Post("/reactivate", h.Reactivate)
				r.Post("/reminder", h.SendReminder)

				r.Get("/balance", h.GetBalance)
				r.Get("/payments", h.ListPayments)
				r.Post("/payments", h.RecordPayment)
			})
		})

		r.Delete("/payments/{id}", h.DeletePayment)
		r.Post("/series/{id}/extend", h.ExtendSeries)
		r.Get("/slots", h.ListSlots)
		r.Get("/cashbook", h.GetCashbook)

		if h.Links != nil {
			r.Post("/links", h.IssueLink)
		}

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	if h.Links != nil {
		limiter := newAddrLimiter(opts.PublicRate, opts.PublicBurst)
		r.Route("/public/links/{token}", func(r chi.Router) {
			r.Use(limiter.middleware)
			r.Get("/", h.GetPublicLink)
			r.Post("/redeem", h.RedeemPublicLink)
		})
	}

	return r
}

// observe records request latency labelled with the matched route pattern,
// so ids in the path do not explode label cardinality.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.Metrics.ObserveHTTP(r.Method, route, status, time.Since(start))
	})
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// addrLimiter keeps one token bucket per client address. Idle buckets are
// dropped on the next sweep.
type addrLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdle = 10 * time.Minute

func newAddrLimiter(limit rate.Limit, burst int) *addrLimiter {
	if limit <= 0 {
		limit = 2
	}
	if burst <= 0 {
		burst = 5
	}
	return &addrLimiter{limit: limit, burst: burst, buckets: make(map[string]*bucket), lastSweep: time.Now()}
}

func (l *addrLimiter) allow(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.lastSweep) > limiterIdle {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > limiterIdle {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[addr]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[addr] = b
	}
	b.lastSeen = now
	return b.limiter.Allow()
}

func (l *addrLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		addr := r.RemoteAddr
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		if !l.allow(addr) {
			hlog.FromRequest(r).Warn().Str("remote_addr", addr).Msg("public rate limit exceeded")
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewServer wraps the router with the timeouts the service runs with.
func NewServer(addr string, handler http.Handler, logger zerolog.Logger) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(logger, "", 0),
	}
}
