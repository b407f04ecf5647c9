package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/go-playground/validator"
	"github.com/haileyok/didlog/didlog"
	"github.com/haileyok/didlog/store"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	slogecho "github.com/samber/slog-echo"
)

type Server struct {
	httpd    *http.Server
	echo     *echo.Echo
	store    store.Store
	logger   *slog.Logger
	config   *config
	nonces   *expirable.LRU[string, time.Time]
	resolver didlog.Resolver
	clock    func() time.Time

	// publishing reads, checks and appends; one at a time
	publishLk sync.Mutex
}

type Args struct {
	Addr    string
	Store   store.Store
	Logger  *slog.Logger
	Version string
	// Hostname, when set, is the only host published DIDs may name.
	Hostname string
	// AllowPublish accepts new entries over POST.
	AllowPublish   bool
	NonceTTL       time.Duration
	NonceCacheSize int
	Resolver       didlog.Resolver
	Clock          func() time.Time
}

type config struct {
	Version      string
	Hostname     string
	AllowPublish bool
	NonceTTL     time.Duration
}

type CustomValidator struct {
	validator *validator.Validate
}

type ValidationError struct {
	error
	Field string
	Tag   string
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		var validateErrors validator.ValidationErrors
		if errors.As(err, &validateErrors) && len(validateErrors) > 0 {
			first := validateErrors[0]
			return ValidationError{
				error: err,
				Field: first.Field(),
				Tag:   first.Tag(),
			}
		}

		return err
	}

	return nil
}

func New(args *Args) (*Server, error) {
	if args.Addr == "" {
		return nil, fmt.Errorf("addr must be set")
	}

	if args.Store == nil {
		return nil, fmt.Errorf("store must be set")
	}

	if args.Logger == nil {
		args.Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}

	if args.NonceTTL <= 0 {
		args.NonceTTL = 5 * time.Minute
	}

	if args.NonceCacheSize <= 0 {
		args.NonceCacheSize = 10_000
	}

	if args.Resolver == nil {
		args.Resolver = didlog.ChainResolver{}
	}

	if args.Clock == nil {
		args.Clock = time.Now
	}

	e := echo.New()
	e.HideBanner = true

	e.Pre(middleware.RemoveTrailingSlash())
	e.Pre(slogecho.New(args.Logger))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"*"},
		AllowMethods: []string{"*"},
		MaxAge:       100_000_000,
	}))

	vdtor := validator.New()
	vdtor.RegisterValidation("did", func(fl validator.FieldLevel) bool {
		if _, err := syntax.ParseDID(fl.Field().String()); err != nil {
			return false
		}
		return true
	})
	vdtor.RegisterValidation("log-path", func(fl validator.FieldLevel) bool {
		if _, err := store.CleanPath(fl.Field().String()); err != nil {
			return false
		}
		return true
	})

	e.Validator = &CustomValidator{validator: vdtor}

	httpd := &http.Server{
		Addr:    args.Addr,
		Handler: e,
	}

	s := &Server{
		httpd:    httpd,
		echo:     e,
		store:    args.Store,
		logger:   args.Logger,
		nonces:   expirable.NewLRU[string, time.Time](args.NonceCacheSize, nil, args.NonceTTL),
		resolver: args.Resolver,
		clock:    args.Clock,
		config: &config{
			Version:      args.Version,
			Hostname:     args.Hostname,
			AllowPublish: args.AllowPublish,
			NonceTTL:     args.NonceTTL,
		},
	}

	s.addRoutes()

	return s, nil
}

func (s *Server) addRoutes() {
	s.echo.GET("/_health", s.handleHealth)

	s.echo.POST("/pop/nonce", s.handlePopNonce)
	s.echo.POST("/pop/verify", s.handlePopVerify)

	s.echo.GET("/.well-known/did.jsonl", s.handleGetLog)
	s.echo.GET("/*", s.handleGetLog)

	if s.config.AllowPublish {
		s.echo.POST("/.well-known/did.jsonl", s.handlePublishEntry)
		s.echo.POST("/*", s.handlePublishEntry)
	}
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting didlog server", "addr", s.httpd.Addr, "version", s.config.Version)

	errc := make(chan error, 1)
	go func() {
		if err := s.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpd.Shutdown(shutdownCtx); err != nil {
		return err
	}

	s.logger.Info("shut down")

	return nil
}
