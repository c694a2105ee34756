// Command client is a terminal front end for the sync client. It joins a game
// on the authority and reads clicks from stdin:
//
//	click e2      select or move (chess)
//	place 3 4     place a stone (go)
//	join <id> <chess|go> [white|black]
//	leave | lb | reconnect | quit
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/akashasong-ai/chess.ai/internal/api"
	"github.com/akashasong-ai/chess.ai/internal/config"
	"github.com/akashasong-ai/chess.ai/internal/domain"
	"github.com/akashasong-ai/chess.ai/internal/logging"
	"github.com/akashasong-ai/chess.ai/internal/metrics"
	"github.com/akashasong-ai/chess.ai/internal/session"
	"github.com/akashasong-ai/chess.ai/internal/statusapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		gameID   = flag.String("game", "", "join an existing game")
		kindFlag = flag.String("kind", "chess", "chess or go")
		color    = flag.String("color", "", "white or black; empty watches")
		player   = flag.String("player", "", "start a new game as this player")
		opponent = flag.String("opponent", "random", "opponent name for a new game")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer log.Sync()

	kind, ok := domain.ParseKind(*kindFlag)
	if !ok {
		return fmt.Errorf("unknown kind %q", *kindFlag)
	}
	local, _ := domain.ParseColor(*color)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *player != "" && *gameID == "" {
		// player1 takes white; the authority moves black
		started, err := api.New(cfg.APIURL, log).StartGame(ctx, kind, *player, *opponent, domain.ColorBlack)
		if err != nil {
			return fmt.Errorf("start game: %w", err)
		}
		*gameID, kind, local = started.GameID, started.Kind, started.ColorFor(*player)
		log.Info("game started", zap.String("game", started.GameID), zap.String("color", string(local)))
	}

	reg := prometheus.NewRegistry()
	ctl, err := session.New(cfg, session.WithLogger(log), session.WithMetrics(metrics.New(reg)))
	if err != nil {
		return err
	}
	defer ctl.Close()

	unobserve, err := ctl.Observe(func(v session.View) { render(v) })
	if err != nil {
		return err
	}
	defer unobserve()

	if err := ctl.Start(); err != nil {
		return err
	}
	if *gameID != "" {
		if err := ctl.Join(*gameID, kind, local); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.StatusAddr != "" {
		srv := &http.Server{Addr: cfg.StatusAddr, Handler: statusapi.SetupRoutes(ctl, reg)}
		g.Go(func() error {
			log.Info("status listening", zap.String("addr", cfg.StatusAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	g.Go(func() error {
		defer stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				quit, err := command(ctl, strings.Fields(line))
				if err != nil {
					fmt.Fprintln(os.Stderr, "error:", err)
				}
				if quit {
					return nil
				}
			}
		}
	})
	return g.Wait()
}

func command(ctl *session.Controller, args []string) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	switch args[0] {
	case "quit", "exit":
		return true, nil
	case "click":
		if len(args) != 2 {
			return false, errors.New("usage: click <square>")
		}
		ok, err := ctl.ClickCell(domain.Cell(strings.ToLower(args[1])))
		if err == nil && !ok {
			fmt.Println("ignored")
		}
		return false, err
	case "place":
		if len(args) != 3 {
			return false, errors.New("usage: place <x> <y>")
		}
		x, errX := strconv.Atoi(args[1])
		y, errY := strconv.Atoi(args[2])
		if errX != nil || errY != nil {
			return false, errors.New("coordinates must be numbers")
		}
		ok, err := ctl.ClickPoint(x, y)
		if err == nil && !ok {
			fmt.Println("ignored")
		}
		return false, err
	case "join":
		if len(args) < 3 {
			return false, errors.New("usage: join <id> <chess|go> [white|black]")
		}
		kind, ok := domain.ParseKind(args[2])
		if !ok {
			return false, fmt.Errorf("unknown kind %q", args[2])
		}
		var local domain.Color
		if len(args) > 3 {
			local, _ = domain.ParseColor(args[3])
		}
		return false, ctl.Join(args[1], kind, local)
	case "leave":
		return false, ctl.Leave()
	case "lb":
		return false, ctl.RequestLeaderboard()
	case "reconnect":
		return false, ctl.Reconnect()
	}
	return false, fmt.Errorf("unknown command %q", args[0])
}

func render(v session.View) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Println(string(b))
}
