package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/govdir/govdir/backend/server/internal/database"
	"github.com/govdir/govdir/shared"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	muxtrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gorilla/mux"
)

type Server struct {
	db     *database.DB
	statsd *statsd.Client
	logger logrus.FieldLogger
	policy shared.QuotaPolicy
	now    func() time.Time

	jwtSecret               []byte
	cronSecret              string
	isProductionEnvironment bool
	isTestEnvironment       bool
	releaseVersion          string
	cronFn                  CronFn
	cronInterval            time.Duration
}

// CronFn is the periodic maintenance job. It returns the number of quotas it reset.
type CronFn func(ctx context.Context, db *database.DB, policy shared.QuotaPolicy, now time.Time) (int64, error)
type Option func(*Server)

// DailyReset is the default CronFn: it restores the allowance of every user whose reset
// boundary has passed.
func DailyReset(ctx context.Context, db *database.DB, policy shared.QuotaPolicy, now time.Time) (int64, error) {
	return db.ResetDueQuotas(ctx, policy, now)
}

func WithStatsd(statsd *statsd.Client) Option {
	return func(s *Server) {
		s.statsd = statsd
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithQuotaPolicy(policy shared.QuotaPolicy) Option {
	return func(s *Server) {
		s.policy = policy
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithJWTSecret(secret string) Option {
	return func(s *Server) {
		s.jwtSecret = []byte(secret)
	}
}

func WithCronSecret(secret string) Option {
	return func(s *Server) {
		s.cronSecret = secret
	}
}

func WithReleaseVersion(releaseVersion string) Option {
	return func(s *Server) {
		s.releaseVersion = releaseVersion
	}
}

func WithCron(cronFn CronFn) Option {
	return func(s *Server) {
		s.cronFn = cronFn
	}
}

func WithCronInterval(interval time.Duration) Option {
	return func(s *Server) {
		s.cronInterval = interval
	}
}

func IsProductionEnvironment(v bool) Option {
	return func(s *Server) {
		s.isProductionEnvironment = v
	}
}

func IsTestEnvironment(v bool) Option {
	return func(s *Server) {
		s.isTestEnvironment = v
	}
}

func NewServer(db *database.DB, options ...Option) *Server {
	srv := Server{
		db:           db,
		logger:       logrus.StandardLogger(),
		policy:       shared.DefaultQuotaPolicy(),
		now:          time.Now,
		cronFn:       DailyReset,
		cronInterval: 10 * time.Minute,
	}
	for _, option := range options {
		option(&srv)
	}
	if srv.isProductionEnvironment && srv.isTestEnvironment {
		panic(fmt.Errorf("cannot create a server that is both a prod environment and a test environment: %#v", srv))
	}
	if srv.policy.DailyLimit <= 0 {
		panic(fmt.Errorf("daily limit must be positive, got %d", srv.policy.DailyLimit))
	}
	return &srv
}

func (s *Server) newRouter() *muxtrace.Router {
	return muxtrace.NewRouter(muxtrace.WithServiceName(serviceName))
}

func (s *Server) routes(router *muxtrace.Router) {
	handle := func(path string, h http.HandlerFunc, guards ...Middleware) *mux.Route {
		name := strings.TrimSuffix(getFunctionName(h), "-fm")
		middlewares := append([]Middleware{withPanicGuard(s.logger), withLogging(s.statsd, s.logger, name)}, guards...)
		return router.Handle(path, mergeMiddlewares(middlewares...)(h))
	}

	handle("/api/v1/credits", s.creditsHandler, s.withUser).Methods(http.MethodGet)
	handle("/api/v1/contacts", s.contactsHandler, s.withUser).Methods(http.MethodGet)
	handle("/api/v1/contacts/{id}/unlock", s.unlockHandler, s.withUser).Methods(http.MethodPost)
	handle("/api/v1/agencies", s.agenciesHandler).Methods(http.MethodGet)
	handle("/api/v1/agencies/{id}", s.agencyHandler).Methods(http.MethodGet)
	handle("/api/v1/dashboard/stats", s.dashboardStatsHandler, s.withUser).Methods(http.MethodGet)
	handle("/api/v1/profile", s.getProfileHandler, s.withUser).Methods(http.MethodGet)
	handle("/api/v1/profile", s.updateProfileHandler, s.withUser).Methods(http.MethodPost)
	handle("/api/v1/cron/daily-reset", s.dailyResetHandler, s.withCronSecret).Methods(http.MethodPost)
	handle("/healthcheck", s.healthCheckHandler).Methods(http.MethodGet)
	handle("/internal/api/v1/usage-stats", s.usageStatsHandler, s.withCronSecret).Methods(http.MethodGet)
	if s.isTestEnvironment {
		handle("/api/v1/get-num-connections", s.getNumConnectionsHandler).Methods(http.MethodGet)
	}
}

// Handler returns the routed HTTP handler without observability hooks.
func (s *Server) Handler() http.Handler {
	router := s.newRouter()
	s.routes(router)
	return router
}

// Run listens on addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("net.Listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	router := s.newRouter()
	if s.isProductionEnvironment {
		defer configureObservability(router, s.releaseVersion)()
	}
	s.routes(router)

	httpServer := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("listening")
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http.Serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http.Shutdown: %w", err)
	}
	<-errCh
	return nil
}

// RunCron runs the cron job once immediately and then on every tick of the cron interval
// until ctx is cancelled. Failures are logged and retried on the next tick.
func (s *Server) RunCron(ctx context.Context) error {
	ticker := time.NewTicker(s.cronInterval)
	defer ticker.Stop()
	for {
		s.runCronOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// runCronOnce returns the instant the job ran for along with its result.
func (s *Server) runCronOnce(ctx context.Context) (time.Time, int64, error) {
	start := s.now()
	n, err := s.cronFn(ctx, s.db, s.policy, start)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.WithError(err).Error("cron failure")
			s.incr("govdir.cron.failure", nil)
		}
		return start, 0, err
	}
	s.logger.WithFields(logrus.Fields{"users_reset": n, "boundary": s.policy.Boundary.String()}).Info("daily reset sweep")
	s.count("govdir.cron.users_reset", n, nil)
	return start, n, nil
}

func (s *Server) incr(name string, tags []string) {
	if s.statsd == nil {
		return
	}
	s.handleNonCriticalError(s.statsd.Incr(name, tags, 1.0))
}

func (s *Server) count(name string, value int64, tags []string) {
	if s.statsd == nil {
		return
	}
	s.handleNonCriticalError(s.statsd.Count(name, value, tags, 1.0))
}

func (s *Server) handleNonCriticalError(err error) {
	if err != nil {
		if s.isProductionEnvironment {
			s.logger.WithError(err).Warn("unexpected non-critical error")
		} else {
			panic(fmt.Errorf("unexpected non-critical error: %w", err))
		}
	}
}
