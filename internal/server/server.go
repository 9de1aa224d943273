package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/chatwrapped/quiz/internal/api"
	"github.com/chatwrapped/quiz/internal/event"
	"github.com/chatwrapped/quiz/internal/question"
	"github.com/chatwrapped/quiz/internal/session"
	"github.com/chatwrapped/quiz/internal/store"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Data struct {
		// Dir holds the audit log, the score log and the snapshot.
		Dir string
	}

	Questions struct {
		// Path to the catalog produced by the analytics pipeline; empty
		// falls back to the built-in sample set.
		Path string
	}
}

type Server struct {
	c Config

	eb *event.Bus

	service struct {
		session *session.Service
	}

	infra struct {
		store *store.Store
	}

	http *http.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initService() error {
	questions, err := question.Load(s.c.Questions.Path)
	if err != nil {
		return fmt.Errorf("questions: %w", err)
	}

	s.infra.store = store.New(store.Config{Dir: s.c.Data.Dir})

	s.service.session = session.NewService(session.Config{
		EventBus:  s.eb,
		Questions: questions,
	})

	// Resume games from the last snapshot, then keep it fresh on every
	// state-changing event.
	restored := s.infra.store.Load()
	if len(restored) > 0 {
		s.service.session.Restore(restored)
		slog.Info("server: restored games from snapshot", "count", len(restored))
	}
	s.infra.store.Attach(s.eb, s.service.session)

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:  e,
		Session: s.service.session,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	// One last snapshot so the next start resumes from the freshest state.
	if err := s.infra.store.SaveSnapshot(); err != nil {
		slog.ErrorContext(ctx, "server: final snapshot failed", "error", err)
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
