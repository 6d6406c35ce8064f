// Package server wires together the console auth subsystems and exposes the
// HTTP server. main() builds a Server, calls Run, done.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/courierops/console/internal/console/admins"
	"github.com/courierops/console/internal/console/audit"
	"github.com/courierops/console/internal/console/auth"
	"github.com/courierops/console/internal/console/config"
	"github.com/courierops/console/internal/console/credentials"
	"github.com/courierops/console/internal/console/testusers"
)

// Version info injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Server is the assembled console backend.
type Server struct {
	cfg    config.Config
	logger *zap.Logger

	// Credential sources
	fixtures   *testusers.Store
	adminStore *admins.Store
	resolver   *credentials.Resolver

	// Sessions
	tokens  *auth.TokenService
	gate    *auth.Gate
	limiter *auth.RateLimiter

	// Persistence (nil = in-memory fallback)
	auditLog   *audit.Log
	auditStore *audit.Store

	// HTTP
	httpServer *http.Server
}

// New builds a fully-wired Server from config.
func New(cfg config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		fixtures: testusers.NewStore(),
	}

	s.initAudit()
	s.initAdmins()
	s.resolver = credentials.NewResolver(s.fixtures, s.adminStore, logger.Named("credentials"))

	signingKey, err := s.resolveSigningKey()
	if err != nil {
		return nil, err
	}
	s.tokens = auth.NewTokenService(signingKey, "console")

	limit := cfg.RateLimit.SigninPerMinute
	if limit > 0 {
		s.limiter = auth.NewRateLimiter(limit, time.Minute)
	}

	s.gate = auth.NewGate(s.tokens, s.resolver, []string{
		"/healthz",
		"/version",
		"/metrics",
		"/auth/signin",
		"/auth/signout",
		"/auth/test-users",
	})
	s.gate.SetPermissionResolver(rolePermissions{})
	s.gate.SetAuditRecorder(s.auditRecorder())

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	handler := maxBodySizeMiddleware(s.gate.Wrap(mux))

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Handler exposes the wired HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the server and blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.auditStore != nil && s.cfg.Audit.RetentionDays > 0 {
		retention := time.Duration(s.cfg.Audit.RetentionDays) * 24 * time.Hour
		go func() {
			if err := s.auditStore.PurgeLoop(ctx, retention, s.cfg.Audit.PurgeSchedule); err != nil {
				s.logger.Warn("audit purge loop disabled", zap.Error(err))
			}
		}()
	}

	s.logger.Info("starting console backend",
		zap.String("addr", s.cfg.ListenAddr),
		zap.String("version", Version),
		zap.String("environment", s.cfg.Environment),
		zap.Bool("audit_persistent", s.auditStore != nil),
		zap.Bool("admin_store", s.adminStore != nil),
		zap.Bool("tls", s.cfg.HasTLS()),
	)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.HasTLS() {
			err = s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Close releases all resources.
func (s *Server) Close() {
	if s.auditStore != nil {
		s.auditStore.Close()
	}
	if s.adminStore != nil {
		s.adminStore.Close()
	}
}

// ── Init helpers ─────────────────────────────────────────────

func (s *Server) initAudit() {
	auditDBPath := filepath.Join(s.cfg.DataDir, "audit.db")
	if err := os.MkdirAll(s.cfg.DataDir, 0750); err != nil {
		s.logger.Warn("cannot create data dir, audit log will be in-memory only",
			zap.String("dir", s.cfg.DataDir), zap.Error(err))
		s.auditLog = audit.NewLog(10000)
		return
	}

	store, err := audit.NewStore(auditDBPath, 10000)
	if err != nil {
		s.logger.Warn("cannot open audit database, falling back to in-memory",
			zap.String("path", auditDBPath), zap.Error(err))
		s.auditLog = audit.NewLog(10000)
		return
	}

	s.auditStore = store
	s.logger.Info("audit store opened", zap.String("path", auditDBPath))
}

func (s *Server) initAdmins() {
	dsn := s.cfg.AdminStoreDSN
	if dsn == "" {
		if err := os.MkdirAll(s.cfg.DataDir, 0750); err != nil {
			s.logger.Warn("cannot create data dir, persistent admins disabled",
				zap.String("dir", s.cfg.DataDir), zap.Error(err))
			return
		}
		dsn = filepath.Join(s.cfg.DataDir, "admins.db")
	}

	store, err := admins.Open(dsn)
	if err != nil {
		s.logger.Warn("cannot open admin store, fixture accounts only",
			zap.Error(err))
		return
	}

	s.adminStore = store
	s.logger.Info("admin store opened", zap.Int("admins", store.Count()))
}

// resolveSigningKey loads the token signing key: config file > env var >
// auto-generated. Production refuses to start without an explicit key, since
// a regenerated key would invalidate every session on restart.
func (s *Server) resolveSigningKey() ([]byte, error) {
	keyHex := s.cfg.SigningKey
	if keyHex == "" {
		keyHex = os.Getenv("CONSOLE_SIGNING_KEY")
	}

	if keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil || len(key) < 32 {
			return nil, errors.New("signing key must be >= 64 hex chars (32 bytes)")
		}
		s.logger.Info("session signing enabled (configured key)")
		return key, nil
	}

	if s.cfg.IsProduction() {
		return nil, errors.New("CONSOLE_SIGNING_KEY is required in production")
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	s.logger.Info("session signing enabled (auto-generated key)",
		zap.String("key_hex", hex.EncodeToString(key)))
	return key, nil
}

// ── Internal helpers ─────────────────────────────────────────

func (s *Server) auditRecorder() auth.AuditRecorder {
	if s.auditStore != nil {
		return s.auditStore
	}
	return s.auditLog
}

func (s *Server) queryAudit(f audit.Filter) []audit.Event {
	if s.auditStore != nil {
		return s.auditStore.Query(f)
	}
	return s.auditLog.Query(f)
}

// rolePermissions adapts the static role table to the gate's resolver interface.
type rolePermissions struct{}

func (rolePermissions) PermissionsForRole(role string) []auth.Permission {
	return auth.RolePermissions(auth.Role(role))
}
