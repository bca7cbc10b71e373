package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/delinquency-bot/internal/bot"
	"github.com/sells-group/delinquency-bot/internal/monitoring"
	"github.com/sells-group/delinquency-bot/internal/scheduler"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot, the daily schedule and the status server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("bot"); err != nil {
			return err
		}

		svc, err := initService(cfg, "")
		if err != nil {
			return err
		}

		sched, err := scheduler.New(cfg.Schedule)
		if err != nil {
			return err
		}

		api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
		if err != nil {
			return eris.Wrap(err, "telegram: connect")
		}
		zap.L().Info("telegram: authorized", zap.String("bot", api.Self.UserName))

		guard := bot.NewRunGuard()
		metrics := monitoring.NewMetrics()
		b := bot.New(api, svc, cfg.Telegram, guard, monitoring.NewAlerter(cfg.Monitoring), bot.WithMetrics(metrics))
		if err := b.RegisterCommands(); err != nil {
			zap.L().Warn("telegram: register commands", zap.Error(err))
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			u := tgbotapi.NewUpdate(0)
			u.Timeout = cfg.Telegram.PollTimeoutSecs
			updates := api.GetUpdatesChan(u)
			go func() {
				<-gctx.Done()
				api.StopReceivingUpdates()
			}()
			return b.Listen(gctx, updates)
		})

		g.Go(func() error {
			return sched.Run(gctx, b.RunScheduled)
		})

		if port > 0 {
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           newStatusRouter(guard, sched.Next, metrics.Handler()),
				ReadHeaderTimeout: 10 * time.Second,
			}
			g.Go(func() error {
				return serveHTTP(gctx, srv)
			})
		}

		return g.Wait()
	},
}

// serveHTTP runs srv until ctx is cancelled, then shuts it down gracefully.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting status server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	case <-ctx.Done():
	}

	zap.L().Info("shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "status server port (default from config, 0 in config disables)")
	rootCmd.AddCommand(serveCmd)
}
