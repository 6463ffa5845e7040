/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the order board server: overlay store, ledger
  client, reconciliation engine, error workflow, HTTP router, graceful
  shutdown.

CONFIGURATION:
  Flags override environment variables; a .env file is loaded when present.

  -port / PORT              HTTP server port (default: 8080)
  -db / BOARD_DB            SQLite overlay database path (default: board.db)
                            Use ":memory:" for an in-memory database
  -ledger-dsn / LEDGER_DSN  MySQL DSN of the order ledger replica (required)
  -date-from / BOARD_DATE_FROM
                            Optional default lower bound for the relevant
                            view (2006-01-02, local time). Empty means the
                            start of the current day.
  -tz / BOARD_TZ            IANA timezone for day boundaries (default: local)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, wait for active requests
  (30s timeout), close both databases, exit.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/warp/order-board/api"
	"github.com/warp/order-board/board"
	"github.com/warp/order-board/ledger"
	"github.com/warp/order-board/store/sqlite"
)

func main() {
	// A missing .env is fine; flags and real env still apply.
	_ = godotenv.Load()

	port := flag.Int("port", envInt("PORT", 8080), "HTTP server port")
	dbPath := flag.String("db", envStr("BOARD_DB", "board.db"), "SQLite overlay database path")
	ledgerDSN := flag.String("ledger-dsn", envStr("LEDGER_DSN", ""), "MySQL DSN of the order ledger replica")
	dateFrom := flag.String("date-from", envStr("BOARD_DATE_FROM", ""), "default relevant-view date lower bound (2006-01-02)")
	tzName := flag.String("tz", envStr("BOARD_TZ", ""), "IANA timezone for day boundaries")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetOutput(os.Stdout)

	if *ledgerDSN == "" {
		log.Fatal("ledger DSN is required (-ledger-dsn or LEDGER_DSN)")
	}

	loc := time.Local
	if *tzName != "" {
		l, err := time.LoadLocation(*tzName)
		if err != nil {
			log.WithError(err).Fatalf("invalid timezone %q", *tzName)
		}
		loc = l
	}

	cfg := board.Config{Location: loc}
	if *dateFrom != "" {
		t, err := time.ParseInLocation("2006-01-02", *dateFrom, loc)
		if err != nil {
			log.WithError(err).Fatalf("invalid -date-from %q", *dateFrom)
		}
		cfg.DefaultDateFrom = &t
	}

	// Overlay store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize overlay database")
	}
	defer store.Close()

	// Ledger client
	ledgerClient, err := ledger.New(*ledgerDSN, loc, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize ledger client")
	}
	defer ledgerClient.Close()

	// Core wiring
	engine := board.NewEngine(store, store, ledgerClient, cfg, log)
	errorFlow := board.NewErrorWorkflow(store, store, engine)
	handler := api.NewHandler(engine, errorFlow, store, log)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("order board listening on http://localhost:%d", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}
