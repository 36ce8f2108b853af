// Command liekodbd serves a liekodb.Engine over the REST adapter
// described in spec §6, the way zmux-server's cmd/zmux-server wires its
// services behind gin.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kinfkong/liekodb"
	"github.com/kinfkong/liekodb/internal/transport"
)

func main() {
	storagePath := flag.String("storage", "./storage", "directory snapshots are written to")
	saveDelay := flag.Duration("save-delay", 50*time.Millisecond, "debounce window before a dirty collection is flushed")
	addr := flag.String("addr", ":8080", "listen address")
	debug := flag.Bool("debug", false, "enable structured per-operation logging")
	flag.Parse()

	logConfig := zap.NewProductionConfig()
	if *debug {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("liekodbd")

	engine, err := liekodb.Open(liekodb.Config{
		StoragePath: *storagePath,
		SaveDelay:   *saveDelay,
		Debug:       *debug,
		Logger:      log,
	})
	if err != nil {
		log.Fatal("engine open failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:    *addr,
		Handler: transport.NewServer(engine, log).Handler(),
	}

	go func() {
		log.Info("listening", zap.String("addr", *addr), zap.String("storage", *storagePath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := engine.Close(shutdownCtx); err != nil {
		log.Error("engine close", zap.Error(err))
	}
}
