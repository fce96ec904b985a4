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
	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/logger"
	"github.com/rizkirmdhn/paipu/internal/common/messaging"
	"github.com/rizkirmdhn/paipu/internal/web/handler"
	"github.com/rizkirmdhn/paipu/internal/web/websocket"
)

func main() {
	// Load the configuration
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	webCfg := cfg.GetWebPanelConfig()

	// Initialize logger
	log := logger.New(cfg)

	log.Infof("Web panel configuration: %+v", webCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize message consumer
	msgClient, err := messaging.New(cfg.GetRabbitMQConfig(), log)
	if err != nil {
		log.Fatalf("Failed to create RabbitMQ client: %v", err)
	}
	defer msgClient.Close()

	hub := websocket.NewHub(log)
	go hub.Run(ctx)

	h := handler.NewHandler(webCfg, cfg.GetRabbitMQConfig(), log, msgClient, hub)
	if err := h.Consume(ctx); err != nil {
		log.WithError(err).Error("Failed to setup RabbitMQ consumer, live events disabled")
	}

	// Initialize the gin router
	r := gin.Default()
	h.RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", webCfg.Host, webCfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infof("Starting web server on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		msgClient.Close()
		log.Fatalf("Failed to start web server: %v", err)
	}

	log.Info("Web server stopped")
}
