package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"bloodlink/internal/config"
	"bloodlink/internal/domain"
	"bloodlink/internal/infra/auth/oidc"
	"bloodlink/internal/infra/auth/rbac"
	"bloodlink/internal/infra/certmem"
	"bloodlink/internal/infra/db"
	"bloodlink/internal/infra/filestore"
	"bloodlink/internal/infra/ledger/memledger"
	"bloodlink/internal/infra/policyopa"
	"bloodlink/internal/infra/ratelimit"
	"bloodlink/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// defaultLedgerAdmin anchors dev-mode writes when no admin address is
// configured. Production deployments set LEDGER_ADMIN_ADDRESS.
const defaultLedgerAdmin = "0x00000000000000000000000000000000000000ad"

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine
	log   *logrus.Logger

	submitUC *usecase.SubmitCertificate
	decideUC *usecase.DecideCertificate
	verifyUC *usecase.VerifyCertificate

	certs  domain.CertificateRepository
	files  domain.FileStore
	ledger domain.Ledger

	adminAPIKey  string
	adminAddress string

	authenticator domain.Authenticator
	authorizer    domain.Authorizer
	authInitErr   error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

func NewServer(cfg config.Config, store *db.Store, log *logrus.Logger) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r, log: log}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Certs       domain.CertificateRepository
	Files       domain.FileStore
	Ledger      domain.Ledger
	Policy      domain.UploadPolicy
	Log         *logrus.Logger
	AdminAPIKey string

	Authenticator domain.Authenticator
	Authorizer    domain.Authorizer
	RateLimiter   domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:           cfg,
		r:             r,
		log:           deps.Log,
		certs:         deps.Certs,
		files:         deps.Files,
		ledger:        deps.Ledger,
		adminAPIKey:   deps.AdminAPIKey,
		authenticator: deps.Authenticator,
		authorizer:    deps.Authorizer,
	}
	if s.log == nil {
		s.log = logrus.New()
	}
	s.adminAddress = cfg.LedgerAdminAddress
	if s.adminAddress == "" {
		s.adminAddress = defaultLedgerAdmin
	}
	if s.certs == nil {
		s.certs = certmem.New()
	}
	if s.files == nil {
		s.files = filestore.NewMemoryStore()
	}
	if s.ledger == nil {
		ledger, err := memledger.New(s.adminAddress)
		if err != nil {
			s.authInitErr = err
		}
		s.ledger = ledger
	}
	policy := deps.Policy
	if policy == nil {
		policy = s.initPolicy()
	}
	s.buildUsecases(policy)
	s.initRateLimit(deps.RateLimiter)
	s.initAuth()
	s.routes()
	return s
}

func (s *Server) initDeps() {
	s.adminAPIKey = s.cfg.AdminAPIKey
	s.adminAddress = s.cfg.LedgerAdminAddress
	if s.adminAddress == "" {
		s.adminAddress = defaultLedgerAdmin
	}
	if s.log == nil {
		s.log = logrus.New()
	}

	if s.store != nil && s.store.DB != nil {
		s.certs = db.NewCertificateRepository(s.store.DB)
	} else {
		s.certs = certmem.New()
	}

	files, err := filestore.NewFromConfig(s.cfg)
	if err != nil {
		s.authInitErr = err
		files = filestore.NewMemoryStore()
	}
	s.files = files

	ledger, err := memledger.New(s.adminAddress)
	if err != nil {
		s.authInitErr = err
	}
	s.ledger = ledger

	policy := s.initPolicy()
	s.buildUsecases(policy)
	s.initRateLimit(nil)
	s.initAuth()
}

func (s *Server) initPolicy() domain.UploadPolicy {
	limits := policyopa.Limits{
		MaxBytes:   s.cfg.UploadMaxBytes,
		MediaTypes: splitMediaTypes(s.cfg.UploadMediaTypes),
	}
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = 10 << 20
	}
	if len(limits.MediaTypes) == 0 {
		limits.MediaTypes = []string{"application/pdf", "image/png", "image/jpeg"}
	}
	ctx := context.Background()
	var (
		engine *policyopa.Engine
		err    error
	)
	if s.cfg.UploadPolicyPath != "" {
		engine, err = policyopa.NewEngineFromPath(ctx, s.cfg.UploadPolicyPath, limits, s.cfg.UploadPolicyID)
	} else {
		engine, err = policyopa.NewEngine(ctx, policyopa.DefaultPolicySource, limits, s.cfg.UploadPolicyID)
	}
	if err != nil {
		s.authInitErr = err
		return nil
	}
	s.log.WithField("policy_id", engine.PolicyID()).Debug("upload policy ready")
	return engine
}

func (s *Server) buildUsecases(policy domain.UploadPolicy) {
	s.submitUC = &usecase.SubmitCertificate{
		Certs:  s.certs,
		Files:  s.files,
		Policy: policy,
	}
	s.decideUC = &usecase.DecideCertificate{
		Certs:          s.certs,
		Files:          s.files,
		Ledger:         s.ledger,
		ConfirmTimeout: s.cfg.LedgerConfirmTimeout(),
		Log:            s.log,
	}
	s.decideUC.SetAdminAddress(s.adminAddress)
	s.verifyUC = &usecase.VerifyCertificate{Ledger: s.ledger}
}

func (s *Server) initAuth() {
	if s.cfg.AuthMode == "" {
		s.authInitErr = errors.New("AUTH_MODE is required")
		return
	}
	switch s.cfg.AuthMode {
	case "none":
		return
	case "oidc":
		if s.authenticator != nil && s.authorizer != nil {
			return
		}
		if s.authenticator == nil {
			authenticator, err := oidc.NewAuthenticator(s.cfg)
			if err != nil {
				s.authInitErr = err
				return
			}
			s.authenticator = authenticator
		}
		if s.authorizer == nil {
			s.authorizer = rbac.NewAuthorizer()
		}
	default:
		s.authInitErr = errors.New("unsupported auth mode")
	}
}

func (s *Server) initRateLimit(override domain.RateLimiter) {
	if override != nil {
		s.rateLimiter = override
	}
	if s.rateLimiter == nil && s.cfg.RateLimitRequests > 0 {
		if s.cfg.RedisAddr != "" {
			if limiter, err := ratelimit.NewRedisLimiter(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, nil); err == nil {
				s.rateLimiter = limiter
			}
		}
		if s.rateLimiter == nil {
			s.rateLimiter = ratelimit.NewMemoryLimiter(ratelimit.MemoryLimiterConfig{
				MaxKeys: s.cfg.RateLimitMaxKeys,
			})
		}
	}
	s.rateLimitRequests = s.cfg.RateLimitRequests
	if s.cfg.RateLimitWindowSeconds > 0 {
		s.rateLimitWindow = time.Duration(s.cfg.RateLimitWindowSeconds) * time.Second
	}
	s.rateLimitFailClosed = s.cfg.RateLimitFailClosed
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "mode": dbMode})
	})

	v1 := s.r.Group("/v1")
	{
		v1.POST("/certificates", s.handleSubmitCertificate)
		v1.GET("/certificates", s.handleListCertificates)
		v1.GET("/certificates/:cert_id", s.handleGetCertificate)
		v1.POST("/certificates/:cert_id/decision", s.handleDecideCertificate)
		v1.GET("/certificates/:cert_id/reconcile", s.handleReconcileCertificate)

		v1.POST("/verify/file", s.handleVerifyFile)
		v1.GET("/verify/:address", s.handleVerifyAddress)

		v1.GET("/ledger/:address", s.handleLedgerRecord)
		v1.HEAD("/ledger/:address", s.handleLedgerExists)
		v1.GET("/ledger/:address/events", s.handleLedgerEvents)

		v1.POST("/admin/ledger/transfer", s.handleAdminTransfer)
	}
}

func (s *Server) Run() error {
	if s.authInitErr != nil {
		return s.authInitErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}

func splitMediaTypes(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
