package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rizkirmdhn/paipu/internal/common/config"
	"github.com/rizkirmdhn/paipu/internal/common/messaging"
	"github.com/rizkirmdhn/paipu/internal/web/websocket"
	"github.com/rizkirmdhn/paipu/pkg/models"
	"github.com/rizkirmdhn/paipu/pkg/utils"
	"github.com/sirupsen/logrus"
)

// savedLogExt is the extension of a finished download
const savedLogExt = ".json"

type Handler struct {
	webCfg    *config.WebPanelConfig
	rabbitCfg *config.RabbitMQConfig
	log       *logrus.Logger
	msgClient messaging.Client
	wsHub     *websocket.Hub
}

func NewHandler(webCfg *config.WebPanelConfig, rabbitCfg *config.RabbitMQConfig, log *logrus.Logger, msgClient messaging.Client, wsHub *websocket.Hub) *Handler {
	return &Handler{
		webCfg:    webCfg,
		rabbitCfg: rabbitCfg,
		log:       log,
		msgClient: msgClient,
		wsHub:     wsHub,
	}
}

// WebSocketHandler returns the WebSocket connection handler
func (h *Handler) WebSocketHandler() gin.HandlerFunc {
	return websocket.WebSocketHandler(h.wsHub, h.log)
}

// Consume binds the log queue to crawler and downloader events and relays
// them to WebSocket clients until ctx is done
func (h *Handler) Consume(ctx context.Context) error {
	queueName := h.rabbitCfg.Queue.Log

	if err := h.msgClient.DeclareQueue(queueName); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	for _, key := range []string{config.RoutingCrawlerURL, config.RoutingDownloaderLog} {
		if err := h.msgClient.BindQueue(queueName, h.rabbitCfg.Exchange, key); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", queueName, key, err)
		}
	}

	return h.msgClient.ConsumeWithContext(ctx, queueName, h.relay)
}

// relay reformats one event for WebSocket clients and broadcasts it
func (h *Handler) relay(message []byte) error {
	var event models.Event
	if err := json.Unmarshal(message, &event); err != nil {
		h.log.WithError(err).Error("Failed to unmarshal progress event")
		return err
	}

	wsMessage, err := json.Marshal(map[string]any{
		"type":   event.Source + "_log",
		"run_id": event.RunID,
		"status": event.Status,
		"url":    event.URL,
		"path":   event.Path,
		"error":  event.Error,
		"stats":  event.Stats,
	})
	if err != nil {
		h.log.WithError(err).Error("Failed to marshal WebSocket message")
		return err
	}

	h.wsHub.Broadcast(wsMessage)
	h.log.WithField("message", string(wsMessage)).Debug("Broadcasting message to WebSocket clients")

	return nil
}

// RegisterRoutes registers all the routes for the web handler
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", h.WebSocketHandler())

	// API endpoints
	api := r.Group("/api")
	{
		api.GET("/stats", h.GetStatsHandler())
	}
}

// GetStatsHandler returns the number of logs saved so far
func (h *Handler) GetStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		saved, err := utils.CountFiles(h.webCfg.SaveDir, savedLogExt)
		if err != nil && !os.IsNotExist(err) {
			h.log.WithError(err).Error("Failed to count saved logs")
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to read save directory",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"saved_logs": saved,
		})
	}
}
