// Command emsd runs the EMS control plane: one session per (broker,
// symbol) client connection, each dialing out to a brokerd process for
// its quote feed and trades dialogue (spec.md §4.8, C8).
//
// Usage:
//
//	emsd                                   # listen on :8300, dial brokerd on :8200
//	emsd -brokerd-url ws://brokerd:8200     # point at a remote brokerd
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
	"github.com/tradekit/ems/internal/brokerclient"
	"github.com/tradekit/ems/internal/config"
	"github.com/tradekit/ems/internal/emssession"
	"github.com/tradekit/ems/internal/persist"
	"github.com/tradekit/ems/internal/symbol"
	"github.com/tradekit/ems/internal/wireproto"
)

func main() {
	cfg := config.LoadEMS()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("emsd starting")

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
	byTick := symbol.ByTicker(syms)

	store, err := persist.NewStore(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	auditLog := persist.NewAuditLog(store)
	go persist.RunRetention(ctx, store, cfg.RetentionDays)

	registry := emssession.NewRegistry()

	opener := func(sessionCtx context.Context, broker, sym string, clientIn <-chan wireproto.Order, clientOut chan<- wireproto.Frame) (*emssession.Session, []wireproto.BrokerdPosition, error) {
		info, ok := byTick[sym]
		if !ok {
			return nil, nil, fmt.Errorf("emsd: unknown symbol %q", sym)
		}

		feed, err := brokerclient.DialFeed(sessionCtx, cfg.BrokerdURL, sym, cfg.SubscriberThrottleHz)
		if err != nil {
			return nil, nil, err
		}

		trades, err := brokerclient.DialTrades(sessionCtx, cfg.BrokerdURL)
		if err != nil {
			feed.Close()
			return nil, nil, err
		}

		var seedLast float64
		select {
		case q, ok := <-feed.Quotes():
			if ok {
				seedLast = lastTrade(q)
			}
		case <-sessionCtx.Done():
			trades.Close()
			feed.Close()
			return nil, nil, sessionCtx.Err()
		}

		brokerOut := make(chan wireproto.Frame, 64)
		go func() {
			for f := range brokerOut {
				trades.Send(f)
			}
		}()

		sess := emssession.New(broker, sym, info.PriceTickSize, seedLast, auditLog,
			feed.Quotes(), trades.Events(), clientIn, clientOut, brokerOut)

		go func() {
			<-sessionCtx.Done()
			feed.Close()
			trades.Close()
		}()

		return sess, trades.Positions, nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/session", emssession.Handler(opener, registry, cfg.SendBufferSize))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","sessions":%d}`, len(registry.All()))
	})

	apiServer := api.NewServer(cfg.BrokerName, syms, nil, nil, registry, auditLog)
	apiServer.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.WSPort)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("session endpoint: ws://%s/session", addr)
	log.Printf("dialing brokerd at %s", cfg.BrokerdURL)
	log.Printf("health check:     http://%s/health", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	log.Println("emsd stopped")
}

func lastTrade(q wireproto.Quote) float64 {
	for i := len(q.Ticks) - 1; i >= 0; i-- {
		t := q.Ticks[i]
		if t.Type == wireproto.TickTrade || t.Type == wireproto.TickUTrade || t.Type == wireproto.TickLast {
			return t.Price
		}
	}
	return 0
}
