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

	"github.com/nova-companion/nova-go/internal/capture"
	"github.com/nova-companion/nova-go/internal/config"
	"github.com/nova-companion/nova-go/internal/playback"
	"github.com/nova-companion/nova-go/internal/session"
	"github.com/nova-companion/nova-go/internal/transport"
	"github.com/nova-companion/nova-go/internal/viewer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	var playbackFactory playback.DeviceFactory
	if cfg.PlaybackEnabled {
		playbackFactory, err = playback.FFplayFactory()
		if err != nil {
			log.Printf("warning: playback unavailable: %v", err)
		}
	}
	if playbackFactory == nil {
		log.Println("音频播放未启用，语音事件将被忽略")
		playbackFactory = playback.DiscardFactory()
	}

	var captureFactory capture.DeviceFactory
	if cfg.CaptureEnabled {
		captureFactory, err = capture.FFmpegFactory()
		if err != nil {
			log.Printf("warning: microphone capture unavailable: %v", err)
		}
	}
	if captureFactory == nil {
		log.Println("麦克风采集未启用，录音指令将失败并记录日志")
		captureFactory = capture.UnavailableFactory()
	}

	hub := viewer.NewHub()
	controller := session.New(session.Config{
		Channel:         transport.New(cfg.ServerURL, cfg.HandshakeTimeout),
		PlaybackFactory: playbackFactory,
		CaptureFactory:  captureFactory,
		OnAvatar:        hub.Publish,
	})

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- controller.Run(ctx)
	}()

	router := viewer.NewRouter(controller, hub)
	log.Printf("NOVA client connecting to %s, viewer on %s", cfg.ServerURL, cfg.ViewerAddr)
	if err := runServer(ctx, &http.Server{
		Addr:              cfg.ViewerAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}); err != nil {
		log.Fatalf("viewer server error: %v", err)
	}

	if err := <-sessionDone; err != nil {
		log.Printf("session ended with error: %v", err)
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
