package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/config"
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/server"
	"github.com/chogalesoham/TeleMedAI-Project-sub002/internal/signaling"
)

var serveListenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the consultation signaling relay",
	Long: `Starts the websocket signaling relay. The relay holds no durable state:
if the process restarts, all rooms and memberships are gone and participants
rejoin from scratch.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListenAddr, "listen", "l", "", "address to bind (default :8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.Options{ListenAddr: serveListenAddr})
	if err != nil {
		return err
	}

	hub := signaling.NewHub()
	go hub.Run()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Routes(hub),
	}

	errC := make(chan error, 1)
	go func() {
		slog.Info("signaling relay listening", "addr", cfg.ListenAddr)
		errC <- srv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errC:
		return err
	case s := <-sig:
		slog.Info("shutting down", "signal", s.String())
	}

	// Session state is ephemeral; there is nothing to drain beyond in-flight
	// HTTP handshakes.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
