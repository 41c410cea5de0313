package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/velosense/bikefit/internal/api"
	"github.com/velosense/bikefit/internal/config"
	"github.com/velosense/bikefit/internal/db"
	"github.com/velosense/bikefit/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbFile     = flag.String("db", "bikefit.db", "Path to the sqlite database")
	tuningFile = flag.String("tuning", "", "Path to a JSON tuning config (defaults apply when empty)")
	migrateCmd = flag.String("migrate", "", "Run a migration command and exit: up, down or version")
	migrations = flag.String("migrations", "migrations", "Path to the migrations directory")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *tuningFile != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*tuningFile)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid tuning config: %v", err)
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	if *migrateCmd != "" {
		runMigration(store, *migrateCmd, *migrations)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := api.NewServer(store, cfg).ServeMux()
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("got request %q", r.URL.Path)
		mux.ServeHTTP(w, r)
	})

	server := &http.Server{
		Addr:    *listen,
		Handler: h,
	}

	go func() {
		log.Printf("bikefit %s listening on %s", version.String(), *listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Print("graceful shutdown complete")
}

func runMigration(store *db.DB, cmd, dir string) {
	switch cmd {
	case "up":
		if err := store.MigrateUp(dir); err != nil {
			log.Fatalf("migrate up failed: %v", err)
		}
		log.Print("migrations applied")
	case "down":
		if err := store.MigrateDown(dir); err != nil {
			log.Fatalf("migrate down failed: %v", err)
		}
		log.Print("migration rolled back")
	case "version":
		v, dirty, err := store.MigrateVersion(dir)
		if err != nil {
			log.Fatalf("migrate version failed: %v", err)
		}
		log.Printf("schema version %d (dirty=%v)", v, dirty)
	default:
		log.Fatalf("unknown migrate command %q (want up, down or version)", cmd)
	}
}
