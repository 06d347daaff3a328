package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"table-settlement/internal/handlers"
	"table-settlement/internal/kafka"
	"table-settlement/internal/models"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the table synchronizer and the bank transfer consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.LogProcess("STARTUP", "Table settlement service starting up...")

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.NewHandlers(a.svc, log), a.svc.Sessions, cfg.Server.RateLimit, log)
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.LogProcess("SERVER", "Starting HTTP server on "+cfg.Server.Port)
		log.Info("STARTUP", "Health check available at: http://localhost"+cfg.Server.Port+"/health")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Warn("SHUTDOWN", "Received shutdown signal, initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Sync.Enabled {
		g.Go(func() error {
			return a.svc.Synchronizer.Run(gctx)
		})
	} else {
		log.Warn("SYNC", "Synchronizer disabled")
	}

	if cfg.Kafka.MockMode {
		log.LogKafka("MOCK_MODE", "consumer", "Bank transfers are accepted over HTTP only")
	} else {
		consumer, err := kafka.NewConsumer(cfg.Kafka, log)
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("failed to create Kafka consumer: %w", err)
		}
		defer consumer.Close()

		webhooks := a.svc.Webhooks
		g.Go(func() error {
			return consumer.ConsumeTransfers(gctx, func(ctx context.Context, n *models.BankTransferNotification) error {
				result, err := webhooks.HandleBankTransfer(ctx, n)
				if err != nil {
					return err
				}
				log.LogKafka("TRANSFER", cfg.Kafka.WebhookTopic, fmt.Sprintf("Delivery %d: %s", n.ID, result.Message))
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		log.Error("SHUTDOWN", err.Error())
		return err
	}
	log.Info("SHUTDOWN", "Table settlement service shutdown completed successfully")
	return nil
}
