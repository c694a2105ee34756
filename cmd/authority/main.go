// Command authority runs the reference game authority: the push channel,
// the game API and the random mover.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akashasong-ai/chess.ai/internal/authority/httpapi"
	"github.com/akashasong-ai/chess.ai/internal/authority/hub"
	"github.com/akashasong-ai/chess.ai/internal/authority/push"
	"github.com/akashasong-ai/chess.ai/internal/config"
	"github.com/akashasong-ai/chess.ai/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, hub.Options{AutoplayDelay: cfg.AutoplayDelay, Logger: log})
	p := push.NewServer(h, push.Options{PollWait: cfg.PollWait, IdleTimeout: cfg.SessionIdle, Logger: log})

	// Build the router *with* the hub injected
	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.SetupRoutes(h, p)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
