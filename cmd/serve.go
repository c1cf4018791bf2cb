package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/robalobadob/memory/internal/history"
	"github.com/robalobadob/memory/internal/httpserver"
	"github.com/robalobadob/memory/internal/layout"
	"github.com/robalobadob/memory/internal/store"
)

// serveCmd runs the HTTP host.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the game over HTTP and websockets",
	Long: `Serve starts an HTTP server that hosts any number of independent games.

Environment:
  PORT             listen port (default 5175)
  DB_PATH          SQLite history file (default ./data/memory.db, "off" disables)
  TOKEN_SECRET     HMAC secret for game tokens
  TOKEN_TTL_HOURS  game token lifetime (default 24)
  DAILY_SALT       salt for the daily deal
  CLIENT_ORIGIN    allowed CORS origin`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "", "listen port (overrides $PORT)")
	serveCmd.Flags().String("db", "", "SQLite history file (overrides $DB_PATH)")
}

func runServe(cmd *cobra.Command, args []string) error {
	l, err := layout.Load(layoutPath(cmd))
	if err != nil {
		return fmt.Errorf("load layout: %w", err)
	}

	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = getEnv("DB_PATH", "./data/memory.db")
	}
	var hl *history.Log
	if dbPath != "off" {
		hl, err = history.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer hl.Close()
	}

	srv, err := httpserver.New(store.NewMemoryStore(), httpserver.Options{
		Layout:    l,
		History:   hl,
		Secret:    os.Getenv("TOKEN_SECRET"),
		TokenTTL:  time.Duration(envInt("TOKEN_TTL_HOURS", 24)) * time.Hour,
		DailySalt: os.Getenv("DAILY_SALT"),
		Origin:    os.Getenv("CLIENT_ORIGIN"),
	})
	if err != nil {
		return err
	}

	port, _ := cmd.Flags().GetString("port")
	if port == "" {
		port = getEnv("PORT", "5175")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go srv.Sweep(ctx, 5*time.Minute, 2*time.Hour)

	hs := &http.Server{Addr: ":" + port, Handler: srv.Router()}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	log.Info().Str("port", port).Int("cards", len(l.Positions)).Bool("history", hl != nil).Msg("starting memory server")

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
