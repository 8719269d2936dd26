package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/songdesk/internal/server"
	"github.com/desertthunder/songdesk/internal/shared"
	"github.com/urfave/cli/v3"
)

// Serve runs the local gateway until the context is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	s, err := r.open(stackOpts{
		onExpired: func(loginURL string) {
			r.logger.Warn("session expired", "login", loginURL)
		},
	})
	if err != nil {
		return err
	}
	defer s.Close()

	s.manager.Start(ctx)
	snap := s.manager.Sync(ctx)
	r.logger.Info("session restored", "state", snap.State)

	cookie := server.CookieOptions{MaxAge: r.config.Server.CookieMaxAge()}
	gateway := server.NewGateway(s.manager, s.client, cookie, r.logger)

	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger), server.RequestLogger(r.logger))
	router.Handler(gateway)

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		r.logger.Info("gateway listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	if cmd.Bool("open") {
		if err := shared.OpenBrowser(fmt.Sprintf("http://%s/login", addr)); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("gateway failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
