package http

import (
	"crypto/ecdsa"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/aneury1/scsh-scripts/internal/config"
	"github.com/aneury1/scsh-scripts/internal/domain"
	"github.com/aneury1/scsh-scripts/internal/infra/cvc"
	"github.com/aneury1/scsh-scripts/internal/infra/db"
	"github.com/aneury1/scsh-scripts/internal/infra/memstore"
	"github.com/aneury1/scsh-scripts/internal/infra/ratelimit"
	"github.com/aneury1/scsh-scripts/internal/infra/remote"
	"github.com/aneury1/scsh-scripts/internal/policy"
	"github.com/aneury1/scsh-scripts/internal/queue"
	"github.com/aneury1/scsh-scripts/internal/usecase"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine

	authority *usecase.AuthorityService
	logger    *logrus.Logger

	adminAPIKey string
	initErr     error

	rateLimiter         domain.RateLimiter
	rateLimitRequests   int
	rateLimitWindow     time.Duration
	rateLimitFailClosed bool
}

func NewServer(cfg config.Config, store *db.Store) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Authority   *usecase.AuthorityService
	AdminAPIKey string
	Logger      *logrus.Logger
	RateLimiter domain.RateLimiter
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{
		cfg:         cfg,
		r:           r,
		authority:   deps.Authority,
		logger:      deps.Logger,
		adminAPIKey: deps.AdminAPIKey,
	}
	if s.logger == nil {
		s.logger = logrus.StandardLogger()
	}
	s.initRateLimit(deps.RateLimiter)
	s.routes()
	return s
}

func (s *Server) initDeps() {
	s.adminAPIKey = s.cfg.AdminAPIKey

	s.logger = logrus.New()
	if level, err := logrus.ParseLevel(s.cfg.LogLevel); err == nil {
		s.logger.SetLevel(level)
	}

	var certs usecase.CertificateStore
	if s.store != nil && s.store.DB != nil {
		certs = db.NewCertificateRepository(s.store.DB)
	} else {
		certs = memstore.New()
	}

	var key *ecdsa.PrivateKey
	var err error
	if s.cfg.SigningKeyPEM != "" {
		key, err = cvc.ParseSigningKeyPEM([]byte(s.cfg.SigningKeyPEM))
		if err != nil {
			s.initErr = err
			return
		}
	} else {
		s.logger.Warn("SIGNING_KEY_PEM not set; generating ephemeral signing key")
		if key, err = cvc.NewKey(); err != nil {
			s.initErr = err
			return
		}
	}
	issuer := cvc.NewIssuer(s.cfg.HolderReference, key, nil)

	var engine *policy.Engine
	if s.cfg.PolicyFile != "" {
		engine, err = policy.LoadEngineFromFile(s.cfg.PolicyFile)
		if err != nil {
			s.initErr = err
			return
		}
	} else {
		// Without a rule file nothing is approved automatically;
		// every request waits for an operator decision.
		engine = policy.NewEngine(domain.Policy{Name: "default"})
	}

	httpClient := &http.Client{Timeout: s.cfg.RequestTimeout()}

	codec := cvc.Codec{}
	s.authority = &usecase.AuthorityService{
		Validator: &usecase.RequestValidator{
			Codec:    codec,
			Verifier: cvc.Signer{},
			Store:    certs,
		},
		Policy:      engine,
		Store:       certs,
		Issuer:      issuer,
		Codec:       codec,
		Remote:      remote.NewClient(s.cfg.ParentURL, remote.WithHTTPClient(httpClient)),
		Sender:      remote.NewSender(remote.WithSenderHTTPClient(httpClient)),
		Inbound:     queue.New(),
		Outbound:    queue.New(),
		CallbackURL: s.cfg.CallbackURL,
		Log:         s.logger,
	}

	s.initRateLimit(nil)
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
		v1.POST("/getCACertificates", s.handleGetCACertificates)
		v1.POST("/requestCertificate", s.handleRequestCertificate)
		v1.POST("/sendCertificates", s.handleSendCertificates)

		v1.GET("/queues/inbound", s.handleListInbound)
		v1.GET("/queues/outbound", s.handleListOutbound)
		v1.POST("/queues/inbound/:message_id/process", s.handleProcessQueued)
		v1.DELETE("/queues/inbound/:message_id", s.handleDeleteQueued)

		v1.POST("/renewal/certificate", s.handleRenewCertificate)
		v1.POST("/renewal/chain", s.handleUpdateChain)
	}

	s.r.NoRoute(func(c *gin.Context) {
		writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
	})
}

func (s *Server) Run() error {
	if s.initErr != nil {
		return s.initErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}
