// Package control implements the synchronous query/command surface (spec
// §6.2): read-only account/position/pnl/health queries, rate-limited
// commands (reload_config, request_shutdown), and a websocket live tail of
// enforcement decisions. Grounded on internal/config/gin.go's engine
// construction conventions and internal/api/middleware/security.go's
// ulule/limiter rate-limiter setup, generalized here from JWT-gated routes
// to unauthenticated-at-this-layer command routes (spec §6.2: authenticated
// externally, this daemon only validates structurally).
package control

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	cache "github.com/patrickmn/go-cache"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"go.uber.org/zap"

	"github.com/kestrel-trading/riskguard/internal/state"
)

// Queries is the read-only surface backing §6.2's get_* commands.
type Queries interface {
	Snapshot(accountID string) *state.AccountState
	AccountIDs() []string
}

// ConfigReloader reconciles a hot config reload (spec §6.4 ConfigReload).
type ConfigReloader interface {
	ReloadConfig(ctx context.Context) error
}

// ShutdownRequester begins the daemon's graceful shutdown sequence.
type ShutdownRequester interface {
	RequestShutdown(ctx context.Context) error
}

// HealthReporter exposes the queue depth / error-state summary for
// get_health (spec §6.2, §7).
type HealthReporter interface {
	Health() HealthStatus
}

// HistoryLookup fetches an account's enforcement-action history, backed by
// internal/audit when wired.
type HistoryLookup func(ctx context.Context, accountID string) ([]interface{}, error)

// HealthStatus is the get_health response payload.
type HealthStatus struct {
	QueueDepth   int    `json:"queue_depth"`
	QueueHealthy bool   `json:"queue_healthy"`
	ErrorState   bool   `json:"error_state"`
	ErrorReason  string `json:"error_reason,omitempty"`
}

// Server is the control surface's HTTP/WS handle.
type Server struct {
	engine   *gin.Engine
	queries  Queries
	reloader ConfigReloader
	shutdown ShutdownRequester
	health   HealthReporter
	tail     *Broadcaster
	cache    *cache.Cache
	logger   *zap.Logger

	historyLookup HistoryLookup

	httpSrv *http.Server
}

// SetHistoryLookup wires the audit store's history query into the control
// surface. Left unset, get_enforcement_history reports an empty history.
func (s *Server) SetHistoryLookup(fn HistoryLookup) {
	s.historyLookup = fn
}

// New builds the gin engine and registers every §6.2 route. rateRPS bounds
// the command routes (reload_config/request_shutdown); the account-state
// query is cached for cacheTTL to absorb bursts of polling control clients
// without touching the dispatcher thread more than necessary. The other
// query routes are not cached.
func New(addr string, queries Queries, reloader ConfigReloader, shutdown ShutdownRequester, health HealthReporter, rateRPS int, cacheTTL time.Duration, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	rate := limiter.Rate{Period: 1 * time.Second, Limit: int64(rateRPS)}
	store := memory.NewStore()
	lim := limiter.New(store, rate)
	rateMiddleware := ginlimiter.NewMiddleware(lim)

	s := &Server{
		engine:   engine,
		queries:  queries,
		reloader: reloader,
		shutdown: shutdown,
		health:   health,
		tail:     NewBroadcaster(),
		cache:    cache.New(cacheTTL, 10*time.Second),
		logger:   logger,
		httpSrv:  &http.Server{Addr: addr, Handler: engine},
	}

	group := engine.Group("/control")
	group.GET("/accounts/:id/state", s.getAccountState)
	group.GET("/accounts/:id/positions", s.getPositions)
	group.GET("/accounts/:id/pnl", s.getPnL)
	group.GET("/accounts/:id/enforcement-history", s.getEnforcementHistory)
	group.GET("/health", s.getHealth)
	group.GET("/tail", s.getTail)

	commands := group.Group("/", rateMiddleware)
	commands.POST("/reload-config", s.postReloadConfig)
	commands.POST("/shutdown", s.postShutdown)

	return s
}

// Start runs the HTTP server in the background until Stop is called (an fx OnStart hook
// wires this into the daemon's lifecycle, mirroring the teacher's
// internal/architecture/fx module conventions).
func (s *Server) Start() error {
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control: server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Publish fans an enforcement decision out to every connected websocket
// tail client (spec §6.2 live tail).
func (s *Server) Publish(event interface{}) {
	s.tail.Broadcast(event)
}
