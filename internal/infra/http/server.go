package http

import (
	"context"
	"errors"
	"net/http"

	"noskid/internal/config"
	"noskid/internal/infra/cachemem"
	"noskid/internal/infra/cacheredis"
	"noskid/internal/infra/checkapi"
	"noskid/internal/infra/db"
	"noskid/internal/infra/policyopa"
	"noskid/internal/usecase"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type Server struct {
	cfg   config.Config
	store *db.Store
	r     *gin.Engine
	log   *logrus.Logger

	lookupUC *usecase.LookupCertificate
	verifyUC *usecase.VerifyCertificate

	backend string
	closers []func() error
	initErr error
}

func NewServer(cfg config.Config, store *db.Store, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	s := &Server{cfg: cfg, store: store, r: r, log: log}
	s.initDeps()
	s.routes()
	return s
}

type ServerDeps struct {
	Lookup *usecase.LookupCertificate
	Verify *usecase.VerifyCertificate
	Logger *logrus.Logger
}

func NewServerWithDeps(cfg config.Config, deps ServerDeps) *Server {
	log := deps.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	s := &Server{
		cfg:      cfg,
		r:        r,
		log:      log,
		lookupUC: deps.Lookup,
		verifyUC: deps.Verify,
		backend:  "injected",
	}
	if s.verifyUC == nil && s.lookupUC != nil {
		s.verifyUC = &usecase.VerifyCertificate{
			Authority: usecase.LookupAuthority{Lookup: s.lookupUC},
			Logger:    log,
			Timeout:   cfg.AuthorityTimeout(),
		}
	}
	s.routes()
	return s
}

func (s *Server) initDeps() {
	ctx := context.Background()

	var cache usecase.CertCacheRepository
	s.backend = s.cfg.Backend()
	switch s.backend {
	case config.BackendPostgres:
		if s.store == nil || s.store.DB == nil {
			s.initErr = errors.New("postgres cache backend selected but no database is connected")
			return
		}
		if err := s.store.Migrate(ctx); err != nil {
			s.initErr = err
			return
		}
		cache = db.NewCertCacheRepository(s.store.DB)
	case config.BackendRedis:
		rc, err := cacheredis.New(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, s.cfg.InvalidTTL())
		if err != nil {
			s.initErr = err
			return
		}
		if err := rc.Ping(ctx); err != nil {
			s.log.WithError(err).Warn("redis not reachable at startup; lookups will fetch from the authority until it is")
		}
		s.closers = append(s.closers, rc.Close)
		cache = rc
	default:
		cache = cachemem.New()
	}

	upstream, err := checkapi.NewClient(s.cfg.AuthorityURL, checkapi.Options{
		UserAgent: s.cfg.AuthorityUserAgent,
		Timeout:   s.cfg.AuthorityTimeout(),
		LoginURL:  s.cfg.LoginURL,
	}, nil)
	if err != nil {
		s.initErr = err
		return
	}

	var policy usecase.AcceptancePolicy
	if s.cfg.AcceptancePolicyPath != "" {
		engine, err := policyopa.NewEngineFromPath(ctx, s.cfg.AcceptancePolicyPath)
		if err != nil {
			s.initErr = err
			return
		}
		s.log.WithField("policy_hash", engine.PolicyHash()).Info("acceptance policy loaded")
		policy = engine
	}

	s.lookupUC = &usecase.LookupCertificate{
		Cache:           cache,
		Upstream:        upstream,
		Logger:          s.log,
		InvalidTTL:      s.cfg.InvalidTTL(),
		RejectMalformed: s.cfg.RejectMalformedKeys,
	}
	s.verifyUC = &usecase.VerifyCertificate{
		Authority: usecase.LookupAuthority{Lookup: s.lookupUC},
		Policy:    policy,
		Logger:    s.log,
		Timeout:   s.cfg.AuthorityTimeout(),
	}
	s.log.WithField("backend", s.backend).Info("cert cache ready")
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		status := "ok"
		if s.initErr != nil {
			status = "degraded"
		}
		c.JSON(http.StatusOK, gin.H{"status": status, "backend": s.backend})
	})

	s.r.GET("/", s.handleCheckCert)
	s.r.GET("/api/checkcert", s.handleCheckCert)
	s.r.GET("/api/checkcert/", s.handleCheckCert)

	v1 := s.r.Group("/v1")
	{
		v1.POST("/verify", s.handleVerify)
	}

	s.r.NoRoute(s.handleNoRoute)
}

func (s *Server) Handler() http.Handler {
	return s.r
}

func (s *Server) Run() error {
	if s.initErr != nil {
		return s.initErr
	}
	return s.r.Run(s.cfg.HTTPAddr)
}

func (s *Server) Close() error {
	var errs []error
	for _, closeFn := range s.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
