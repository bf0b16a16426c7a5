package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"

	"ppcgate/internal/clientjs"
	"ppcgate/internal/gate"
	"ppcgate/internal/inject"
	"ppcgate/internal/profile"
	"ppcgate/internal/styles"
	"ppcgate/internal/telemetry"
)

// Routes served by the proxy itself. Everything else goes upstream.
const (
	RoutePrefix = "/__ppcgate/"
	PingPath    = RoutePrefix + "ping"
	RulesPath   = RoutePrefix + "rules"
)

const (
	defaultCacheTTL  = 5 * time.Minute
	defaultCacheSize = 64
	defaultMaxBody   = 8 << 20
)

// Env is the process configuration read from environment variables.
type Env struct {
	UpstreamURL  string        `env:"UPSTREAM_URL,required"`
	Port         string        `env:"PORT" envDefault:"8081"`
	HomePath     string        `env:"PPCGATE_HOME_PATH" envDefault:"/"`
	CacheTTL     time.Duration `env:"PPCGATE_CACHE_TTL" envDefault:"5m"`
	CacheSize    int           `env:"PPCGATE_CACHE_SIZE" envDefault:"64"`
	MaxBodyBytes int64         `env:"PPCGATE_MAX_BODY_BYTES" envDefault:"8388608"`
	Telemetry    telemetry.Config
}

// ParseEnv reads Env from the process environment.
func ParseEnv() (Env, error) {
	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return e, nil
}

// Addr is the listen address for Port.
func (e Env) Addr() string {
	if strings.Contains(e.Port, ":") {
		return e.Port
	}
	return ":" + e.Port
}

// Config describes server wiring and runtime behaviour.
type Config struct {
	Upstream  *url.URL
	HomePath  string
	Logger    *logrus.Logger
	Clock     func() time.Time
	Profiles  *profile.Store
	Pipeline  *inject.Pipeline
	Transport http.RoundTripper
	CacheTTL  time.Duration
	CacheSize int
	MaxBody   int64
}

// Config builds a server Config from the environment values.
func (e Env) Config(logger *logrus.Logger, profiles *profile.Store) (Config, error) {
	u, err := ParseUpstream(e.UpstreamURL)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Upstream:  u,
		HomePath:  e.HomePath,
		Logger:    logger,
		Profiles:  profiles,
		CacheTTL:  e.CacheTTL,
		CacheSize: e.CacheSize,
		MaxBody:   e.MaxBodyBytes,
	}, nil
}

// ParseUpstream validates an absolute http(s) upstream URL.
func ParseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("upstream url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("upstream url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("upstream url %q: missing host", raw)
	}
	return u, nil
}

// DefaultPipeline registers every style rule in the head stage and the
// client script in the footer stage.
func DefaultPipeline() *inject.Pipeline {
	return inject.NewPipeline().
		MustRegister(styles.Injectors()...).
		MustRegister(clientjs.Injector())
}

// Server exposes the HTTP handlers implementing the proxy behaviour.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	handler  http.Handler
	logger   *logrus.Logger
	rewriter *Rewriter
	upstream *httputil.ReverseProxy
	clock    func() time.Time
}

// New wires a new proxy server with the provided configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Upstream == nil {
		return nil, errors.New("proxy: upstream url is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.HomePath == "" {
		cfg.HomePath = gate.DefaultPath
	}
	if cfg.Profiles == nil {
		store, err := profile.NewStore("", cfg.Logger)
		if err != nil {
			return nil, err
		}
		cfg.Profiles = store
	}
	if cfg.Pipeline == nil {
		cfg.Pipeline = DefaultPipeline()
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = defaultMaxBody
	}

	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
		clock:  cfg.Clock,
	}
	s.rewriter = NewRewriter(RewriterConfig{
		HomePath: cfg.HomePath,
		Pipeline: cfg.Pipeline,
		Profiles: cfg.Profiles,
		Cache:    newRewriteCache(cfg.Clock, cfg.CacheTTL, cfg.CacheSize),
		Logger:   cfg.Logger,
		MaxBody:  cfg.MaxBody,
	})
	s.upstream = s.newReverseProxy()
	s.registerRoutes()
	s.handler = withLogging(s.logger, s.clock, s.mux)
	return s, nil
}

// Handler exposes the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler { return s }

// Rewriter returns the response rewriter, shared with the audit command.
func (s *Server) Rewriter() *Rewriter { return s.rewriter }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/", s.upstream)
	s.mux.HandleFunc(PingPath, s.handlePing)
	s.mux.HandleFunc(RulesPath, s.handleRules)
}

func (s *Server) newReverseProxy() *httputil.ReverseProxy {
	target := s.cfg.Upstream
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out = withInbound(pr.Out, pr.In)
			if s.rewriter.Candidate(pr.In) {
				// Only encodings the rewriter can decode.
				pr.Out.Header.Set("Accept-Encoding", "gzip")
			}
		},
		Transport: s.cfg.Transport,
		ModifyResponse: func(resp *http.Response) error {
			return s.rewriter.Response(resp)
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"method": r.Method,
				"url":    r.URL.String(),
			}).Error("upstream request failed")
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
		ErrorLog: newErrorLog(s.logger),
	}
}
