package main

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Seednode/partydisplay/catalog"
	"github.com/Seednode/partydisplay/hub"
	"github.com/Seednode/partydisplay/protocol"
	"github.com/Seednode/partydisplay/roster"
)

const (
	logDate string        = `2006-01-02T15:04:05.000-07:00`
	timeout time.Duration = 10 * time.Second
)

func securityHeaders(cfg *Config, w http.ResponseWriter) {
	w.Header().Set("Cross-Origin-Embedder-Policy", "require-corp")
	w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
	w.Header().Set("Cross-Origin-Resource-Policy", "same-site")
	w.Header().Set("Permissions-Policy", "geolocation=(), midi=(), sync-xhr=(), microphone=(), camera=(), magnetometer=(), gyroscope=(), fullscreen=(), payment=()")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")

	if cfg.scheme() == "https" {
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
	}
}

func realIP(r *http.Request) string {
	host, port, _ := net.SplitHostPort(r.RemoteAddr)
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	} else if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if net.ParseIP(ip) != nil {
			host = ip
		}
	}
	if net.ParseIP(host) != nil && strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		return host + ":" + port
	}
	return host
}

func serveVersion(cfg *Config, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusOK)

		written, err := w.Write([]byte("partydisplay v" + releaseVersion + "\n"))
		if err != nil {
			errs <- err

			return
		}

		logf(cfg, "SERVE: Version page (%s) to %s in %s",
			humanReadableSize(int64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

// server wires the party components together. It is built once per process
// and handed to every route.
type server struct {
	cfg     *Config
	catalog *catalog.Catalog
	store   *roster.Store
	hub     *hub.Hub
	handler *protocol.Handler
	errs    chan error
}

func newServer(cfg *Config) *server {
	c := catalog.Load(cfg.sources(), cfg.logger.Named("catalog"))

	persister := roster.NewFileStore(cfg.partyFile, c, cfg.logger.Named("party"))
	store := roster.Open(c, persister, cfg.logger.Named("party"))

	h := hub.New(cfg.queueSize, cfg.logger.Named("hub"))

	return &server{
		cfg:     cfg,
		catalog: c,
		store:   store,
		hub:     h,
		handler: protocol.New(store, h, cfg.logger.Named("sync")),
		errs:    make(chan error, 64),
	}
}

func (s *server) routes() *httprouter.Router {
	cfg := s.cfg

	mux := httprouter.New()

	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		cfg.logger.Error("panic serving request", zap.String("path", r.URL.Path), zap.Any("panic", i))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)
		w.WriteHeader(http.StatusInternalServerError)

		io.WriteString(w, newPage(cfg, "Server Error", "An error has occurred. Please try again."))
	}

	mux.GET(cfg.prefix+"/", serveHomePage(cfg, s.errs))

	mux.GET(cfg.prefix+"/static/*filepath", serveStatic(cfg, s.errs))

	mux.GET(cfg.prefix+"/favicons/*filepath", serveFavicons(cfg, s.errs))

	mux.GET(cfg.prefix+"/healthz", serveHealthCheck(cfg, s.errs))

	mux.GET(cfg.prefix+"/robots.txt", serveRobots(cfg, s.errs))

	mux.GET(cfg.prefix+"/version", serveVersion(cfg, s.errs))

	mux.GET(cfg.prefix+"/qr", serveQR(cfg))

	mux.GET(cfg.prefix+"/ws", serveWS(cfg, s))

	registerAPI(cfg, s, mux)

	if cfg.profile {
		registerProfileHandlers(cfg, mux)
	}

	return mux
}

// drainErrors logs errors reported by handlers until ctx is done.
func (s *server) drainErrors(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-s.errs:
			s.cfg.logger.Warn("error serving request", zap.Error(err))
		}
	}
}

func ServePage(ctx context.Context, cfg *Config) error {
	var err error

	timeZone := os.Getenv("TZ")
	if timeZone != "" {
		time.Local, err = time.LoadLocation(timeZone)
		if err != nil {
			return err
		}
	}

	logf(cfg, "START: partydisplay v%s", releaseVersion)

	cfg.prefix = strings.TrimSuffix(cfg.prefix, "/")

	s := newServer(cfg)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.bind, strconv.Itoa(cfg.port)),
		Handler:           s.routes(),
		IdleTimeout:       10 * time.Minute,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logf(cfg, "SERVE: Listening on %s://%s%s/", cfg.scheme(), srv.Addr, cfg.prefix)

		var err error
		if cfg.tlsKey != "" && cfg.tlsCert != "" {
			err = srv.ListenAndServeTLS(cfg.tlsCert, cfg.tlsKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return s.drainErrors(gctx)
	})

	if cfg.watch {
		w := roster.NewWatcher(s.store, cfg.partyFile, cfg.logger.Named("watch"), s.handler.Reloaded)

		g.Go(func() error {
			if err := w.Run(gctx); err != nil {
				cfg.logger.Warn("not watching party file", zap.String("file", cfg.partyFile), zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.hub.Close()

		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	logf(cfg, "STOP: partydisplay v%s", releaseVersion)

	return err
}
