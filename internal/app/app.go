package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/krasnov-dev/voicepipe/internal/transport"

	"golang.org/x/sync/errgroup"
)

type app struct {
	di  *dependencyInjector
	srv *http.Server
}

func New(ctx context.Context) *app {
	di := newDI()
	di.Logger()
	mux := http.NewServeMux()
	return &app{
		di: di,
		srv: &http.Server{
			Addr: di.Config().Addr,
			Handler: transport.WithRecover(
				transport.LogMiddleware(
					di.Router(ctx).MountRoutes(mux),
				),
			),
		},
	}
}

func (a *app) Run(ctx context.Context) error {
	cfg := a.di.Config()

	a.di.Executor().Start(ctx)

	sub := a.di.Subscriber(ctx)
	if err := sub.Subscribe(
		cfg.MQ.ResultTopic,
		cfg.MQ.ResultTag,
		cfg.MQ.ResultGroup,
		a.di.Ingestor(ctx).Handler(),
	); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", slog.String("addr", a.srv.Addr))
		if e := a.srv.ListenAndServe(); e != nil && !errors.Is(e, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", e.Error()))
			return e
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			cfg.ShutdownTimeout,
		)
		defer cancel()

		if err := sub.Close(shutdownCtx); err != nil {
			slog.Error("subscriber shutdown error", slog.String("error", err.Error()))
		}

		if err := a.di.Executor().Stop(shutdownCtx); err != nil {
			slog.Error("executor shutdown error", slog.String("error", err.Error()))
		}

		a.di.Hub().CloseAll()

		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", slog.String("error", err.Error()))
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("server gracefully stopped")
	return nil
}
