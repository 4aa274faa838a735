package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examgen/internal/engine"
	"github.com/pavelanni/examgen/internal/handler"
	appI18n "github.com/pavelanni/examgen/internal/i18n"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addStoreFlags(f)
	addLLMFlags(f)
	f.String("jwt-secret", "", "HMAC secret for actor tokens (or set EXAMGEN_JWT_SECRET)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (repeatable)")
	f.StringP("lang", "l", "en", "Default language for messages (en, ru)")
	f.Duration("submit-grace", engine.DefaultSubmitGrace, "Extra time accepted after a time limit before submissions are rejected (negative disables the check)")
	addLogFlags(f)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	client, err := newLLMClient(ctx, v)
	if err != nil {
		return err
	}
	defer client.Close()

	auth, err := handler.NewAuth(v.GetString("jwt-secret"))
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}

	opts := append(engineOptions(client), engine.WithSubmitGrace(v.GetDuration("submit-grace")))
	eng := engine.New(db, opts...)

	h, err := handler.New(eng, auth, handler.Config{
		CORSOrigins: v.GetStringSlice("cors-origins"),
		Lang:        lang,
	})
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	addr := v.GetString("addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("starting server",
		"addr", addr,
		"db_driver", v.GetString("db-driver"),
		"llm_provider", v.GetString("llm-provider"),
		"prompt_variant", v.GetString("prompt-variant"),
		"lang", lang,
		"submit_grace", v.GetDuration("submit-grace"),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
