package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BidumanADT/BellwoodAuthServer/internal/auth"
	"github.com/BidumanADT/BellwoodAuthServer/internal/httpapi"
	"github.com/BidumanADT/BellwoodAuthServer/internal/obs"
	"github.com/BidumanADT/BellwoodAuthServer/internal/store/memory"
	"github.com/BidumanADT/BellwoodAuthServer/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("AUTH_BUILD_COMMIT"))

	secret := strings.TrimSpace(os.Getenv("AUTH_SECRET"))
	minter, err := auth.NewTokenMinter(secret, minterOpts()...)
	if err != nil {
		log.Fatalf("token minter: %v", err)
	}

	var (
		store      auth.Store
		readyProbe httpapi.ReadyProbe
		closer     func() error
	)
	if dsn := os.Getenv("AUTH_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		readyProbe = httpapi.ReadyProbe{DB: pgStore.DB()}
		closer = pgStore.Close
	} else {
		memStore := memory.New()
		if err := memStore.Seed(context.Background()); err != nil {
			log.Fatalf("seed users: %v", err)
		}
		log.Println("AUTH_PG_DSN not set; using volatile in-memory store with seed users")
		store = memStore
	}

	var refreshOpts []auth.MemoryRefreshOption
	if ttl := parseDuration(os.Getenv("AUTH_REFRESH_TTL")); ttl > 0 {
		refreshOpts = append(refreshOpts, auth.WithRefreshTTL(ttl))
	}
	refresh := auth.NewMemoryRefreshTokenStore(refreshOpts...)

	var issuanceOpts []auth.IssuanceOption
	if ttl := parseDuration(os.Getenv("AUTH_ACCESS_TTL")); ttl > 0 {
		issuanceOpts = append(issuanceOpts, auth.WithAccessTTL(ttl))
	}
	issuer, err := auth.NewTokenIssuanceService(store, minter, refresh, issuanceOpts...)
	if err != nil {
		log.Fatalf("token issuance service: %v", err)
	}

	provisioner, err := auth.NewRoleProvisioningService(store, allowedRoles())
	if err != nil {
		log.Fatalf("role provisioning service: %v", err)
	}

	admin, err := auth.NewUserAdminService(store, allowedRoles())
	if err != nil {
		log.Fatalf("user admin service: %v", err)
	}

	api := httpapi.New(issuer, provisioner, admin, minter, store, readyProbe, version)

	addr := os.Getenv("AUTH_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting bellwood-auth %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if closer != nil {
		_ = closer()
	}
	log.Println("Stopped")
}

func minterOpts() []auth.MinterOption {
	var opts []auth.MinterOption
	if issuer := os.Getenv("AUTH_ISSUER"); issuer != "" {
		opts = append(opts, auth.WithMinterIssuer(issuer))
	}
	return opts
}

func allowedRoles() []string {
	raw := os.Getenv("AUTH_ALLOWED_ROLES")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func parseDuration(raw string) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("invalid duration %q: %v", raw, err)
	}
	return d
}
