package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nova-companion/nova-go/internal/agent"
	"github.com/nova-companion/nova-go/internal/agent/respond"
	"github.com/nova-companion/nova-go/internal/agent/speech"
	"github.com/nova-companion/nova-go/internal/config"
	"github.com/nova-companion/nova-go/internal/model/persona"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.LoadAgent()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	nova, ok := personaStore.FindByID("nova")
	if !ok {
		log.Fatal("built-in persona missing")
	}

	var responder respond.Responder
	if cfg.Model.Enabled() {
		arkResponder, err := respond.NewArkResponder(ctx, nova, cfg.Model)
		if err != nil {
			log.Printf("warning: failed to initialize Ark responder: %v", err)
			log.Println("falling back to the scripted responder - 请检查 Ark 模型相关环境变量")
		} else {
			log.Println("Ark responder initialized successfully")
			responder = arkResponder
		}
	} else {
		log.Println("Ark 凭证未配置，使用脚本化回复")
	}

	handler := agent.BuildHandler(agent.Options{
		Responder:  responder,
		Recognizer: speech.FixedRecognizer{Transcript: cfg.Transcript},
	})

	startServer(ctx, cfg.Addr, agent.NewRouter(handler))
}

func startServer(ctx context.Context, addr string, router http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("NOVA agent listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
