package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/extpipe/internal/extension"
	"github.com/danmuck/extpipe/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type healthResponse struct {
	ClientID    string   `json:"client_id"`
	State       string   `json:"state"`
	Connected   bool     `json:"connected"`
	ExitCode    int      `json:"exit_code"`
	Activations int      `json:"activations"`
	Commands    []string `json:"commands"`
	LastMessage string   `json:"last_message,omitempty"`
}

func newAdminRouter(host *extension.Host, logger zerolog.Logger) *gin.Engine {
	observability.RegisterMetrics()
	router := observability.NewAdminRouter(host.Context().ClientID, logger)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		client := host.Client()
		cmds := host.Context().Commands.List()
		ids := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			ids = append(ids, cmd.ID)
		}
		resp := healthResponse{
			ClientID:    client.ClientID(),
			State:       client.State().String(),
			Connected:   client.IsConnected(),
			ExitCode:    client.ExitCode(),
			Activations: host.Activations(),
			Commands:    ids,
			LastMessage: client.LastMessage(),
		}
		status := http.StatusOK
		if !resp.Connected {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, resp)
	})
	return router
}

// serveAdmin runs the admin server until ctx ends.
func serveAdmin(ctx context.Context, addr string, handler http.Handler, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
