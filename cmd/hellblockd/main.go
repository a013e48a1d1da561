package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hellblock.ai/internal/config"
	"hellblock.ai/internal/transport/observer"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/hellblock.yaml", "config path (empty for defaults)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[hellblockd] ", log.LstdFlags|log.Lmicroseconds)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	rt, err := openRuntime(cfg, logger)
	if err != nil {
		logger.Fatalf("open storage: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	for _, name := range cfg.Worlds {
		w, err := rt.manager.GetOrLoadWorld(ctx, name)
		if err != nil {
			logger.Fatalf("load world %s: %v", name, err)
		}
		logger.Printf("world ready name=%s %s", name, w.Extra())
	}

	var srv *http.Server
	if cfg.Observer.Listen != "" {
		obs := observer.NewServer(rt.manager, rt.hub, logger)
		srv = &http.Server{
			Addr:              cfg.Observer.Listen,
			Handler:           obs.Mux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Printf("observer listening on %s", cfg.Observer.Listen)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("observer stopped: %v", err)
			}
		}()
	}

	logger.Printf("running backend=%s worlds=%d autosave=%s", rt.manager.Backend(), len(cfg.Worlds), cfg.Storage.AutosaveInterval)
	<-ctx.Done()
	logger.Printf("shutting down")

	if srv != nil {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx2)
		cancel2()
	}
	if err := rt.Close(); err != nil {
		logger.Printf("shutdown: %v", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
