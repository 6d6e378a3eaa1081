// Command quotecheck connects to the gateway once and prints the quote each
// tier produces for a set of tickers. It does not publish anything.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rickgao/quote-relay/internal/activation"
	"github.com/rickgao/quote-relay/internal/auth"
	"github.com/rickgao/quote-relay/internal/catalog"
	"github.com/rickgao/quote-relay/internal/config"
	"github.com/rickgao/quote-relay/internal/connection"
	"github.com/rickgao/quote-relay/internal/database"
	"github.com/rickgao/quote-relay/internal/refdata"
	"github.com/rickgao/quote-relay/internal/resolver"
)

func main() {
	configPath := flag.String("config", "configs/quoteworker.local.yaml", "path to config file")
	tickersFlag := flag.String("tickers", "", "comma-separated tickers (default: engine.default_symbols)")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	tickers := cfg.Engine.DefaultSymbols
	if *tickersFlag != "" {
		tickers, _ = catalog.NormalizeAll(strings.Split(*tickersFlag, ","))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	creds, err := auth.NewCredentials(cfg.Provider.Login, cfg.Provider.Password, cfg.Provider.Server)
	if err != nil {
		log.Fatalf("credentials: %v", err)
	}

	conns := connection.NewManager(connection.ManagerConfig{
		RestURL:          cfg.Provider.RestURL,
		WSURL:            cfg.Provider.WSURL,
		APITimeout:       cfg.Provider.Timeout,
		APIRetries:       cfg.Provider.MaxRetries,
		CommandTimeout:   cfg.Engine.CallTimeout,
		TickMaxAge:       cfg.Provider.TickMaxAge,
		PingTimeout:      cfg.Provider.PingTimeout,
		ReconnectMaxWait: cfg.Provider.ReconnectMax,
	}, database.Opener(cfg.Database.Reference), logger)

	fmt.Println("=== Connecting ===")
	sess, err := conns.Connect(ctx, creds)
	if err != nil {
		log.Fatalf("Connect failed: %v", err)
	}
	defer conns.Disconnect(context.Background())
	stats := conns.Stats()
	fmt.Printf("Stream up: %v, store open: %v\n", stats.StreamUp, stats.StoreOpen)

	fmt.Println("\n=== Loading catalog ===")
	symbols := catalog.New(catalog.DefaultConfig(), logger)
	if err := symbols.Load(ctx, sess); err != nil {
		log.Fatalf("catalog load failed: %v", err)
	}
	fmt.Printf("Symbols: %d\n", symbols.Size())

	act := activation.New(activation.Config{
		MaxRetries:  cfg.Engine.MaxActivationRetries,
		CallTimeout: cfg.Engine.CallTimeout,
	}, logger)
	act.Bind(sess)

	store := refdata.New(refdata.FromPoolOwner(conns), 0, logger)
	res := resolver.New(resolver.Config{
		CallTimeout:    cfg.Engine.CallTimeout,
		AllowSynthetic: cfg.Engine.AllowSynthetic,
		BasePrices:     cfg.Engine.BasePrices,
	}, act, symbols, store, logger)
	res.Bind(sess)

	fmt.Println("\n=== Resolving ===")
	for _, t := range tickers {
		start := time.Now()
		q, err := res.Resolve(ctx, t)
		if err != nil {
			fmt.Printf("  %-8s unavailable (%v)\n", t, err)
			continue
		}
		name := ""
		if info, err := store.Lookup(ctx, t); err == nil {
			name = info.CompanyName
		}
		fmt.Printf("  %-8s %-12s bid=%.2f ask=%.2f price=%.2f realtime=%v %s (%s)\n",
			t, q.Source, q.Bid, q.Ask, q.Price, q.Realtime, name, time.Since(start).Round(time.Millisecond))
	}

	counts := act.Counts()
	released := act.ReleaseAll(ctx)
	fmt.Printf("\nActive: %d, failed: %d, released: %d\n", counts.Active, counts.Exhausted, released)
}
