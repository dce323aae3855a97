// Command brokerd runs one simulated broker-adapter process: a feed bus
// serving live quotes over WebSocket and backfilling its OHLC rings, a trades-dialogue
// endpoint accepting order flow from an EMS session, and the REST
// introspection API over both.
//
// Usage:
//
//	brokerd                              # listen on :8200, broker "sim"
//	brokerd -broker-name alpaca          # change the served broker name
//	brokerd -s3-bucket ems-archive       # enable S3 archival
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tradekit/ems/internal/api"
	"github.com/tradekit/ems/internal/archive"
	"github.com/tradekit/ems/internal/broker"
	"github.com/tradekit/ems/internal/broker/simulated"
	"github.com/tradekit/ems/internal/config"
	"github.com/tradekit/ems/internal/feedbus"
	"github.com/tradekit/ems/internal/persist"
	"github.com/tradekit/ems/internal/symbol"
)

func main() {
	cfg := config.LoadBrokerd()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("brokerd starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	syms := symbol.Default()
	log.Printf("serving %d symbols as broker %q", len(syms), cfg.BrokerName)

	// MongoDB
	store, err := persist.NewStore(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	candles := persist.NewCandleStore(store)
	var adapter broker.Adapter = simulated.New(cfg.BrokerName, syms, candles)

	go persist.RunRetention(ctx, store, cfg.RetentionDays)

	// Archiver (opt-in: only once S3 is configured)
	if cfg.S3Bucket != "" {
		s3Client, err := archive.NewS3Client(ctx, cfg.S3Region)
		if err != nil {
			log.Fatalf("s3 client: %v", err)
		}
		archiver := archive.New(store.DB(), cfg.ArchiveDir, cfg.ArchiveMaxGB, cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours, s3Client, cfg.S3Bucket, cfg.S3Prefix)
		go archiver.Run(ctx)
		log.Printf("archiver: enabled, uploading to s3://%s/%s", cfg.S3Bucket, cfg.S3Prefix)
	}

	bus := feedbus.New(cfg.BrokerName, adapter, candles)

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", feedbus.Handler(bus))
	mux.HandleFunc("/trades", broker.TradesHandler(adapter))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","broker":%q,"symbols":%d}`, cfg.BrokerName, len(syms))
	})

	apiServer := api.NewServer(cfg.BrokerName, syms, bus, candles, nil, nil)
	apiServer.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.WSPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("feed endpoint:   ws://%s/feed", addr)
	log.Printf("trades endpoint: ws://%s/trades", addr)
	log.Printf("health check:    http://%s/health", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	log.Println("brokerd stopped")
}
