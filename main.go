package main

import (
	"encoding/json"
	stdlog "log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/emilienrk/capitalview-sub000/src/config"
	"github.com/emilienrk/capitalview-sub000/src/database"
	"github.com/emilienrk/capitalview-sub000/src/handlers"
	"github.com/emilienrk/capitalview-sub000/src/ledger"
	"github.com/emilienrk/capitalview-sub000/src/logger"
	"github.com/emilienrk/capitalview-sub000/src/processors"
	"github.com/emilienrk/capitalview-sub000/src/security"
	"github.com/emilienrk/capitalview-sub000/src/services"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

var limiter = rate.NewLimiter(rate.Every(100*time.Millisecond), 30)

func rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			logger.L.Warn("Rate limit exceeded",
				"method", r.Method,
				"path", r.URL.Path,
				"remoteAddr", r.RemoteAddr)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigins := map[string]bool{
			"http://localhost:3000": true,
		}

		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE, PATCH")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, X-Requested-With, X-User-ID, If-None-Match")
			w.Header().Set("Access-Control-Expose-Headers", "ETag")
		} else if origin == "" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		if r.Method == "OPTIONS" {
			logger.L.Debug("Handling OPTIONS preflight request", "path", r.URL.Path, "origin", origin)
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	config.LoadConfig()
	logger.InitLogger(config.Cfg.LogLevel)
	logger.L.Info("Capitalview backend server starting...")

	if config.Cfg.LedgerCipherKey == "" || len(config.Cfg.LedgerCipherKey) < 32 {
		logger.L.Error("LEDGER_CIPHER_KEY configuration invalid. Must be at least 32 bytes.")
		os.Exit(1)
	}

	logger.L.Info("Initializing database...", "path", config.Cfg.DatabasePath)
	database.InitDB(config.Cfg.DatabasePath)
	logger.L.Info("Database initialized successfully.")

	valueCipher, err := security.NewValueCipher(config.Cfg.LedgerCipherKey)
	if err != nil {
		logger.L.Error("Failed to initialize value cipher", "error", err)
		os.Exit(1)
	}

	logger.L.Info("Initializing report cache...")
	reportCache := cache.New(services.DefaultCacheExpiration, services.CacheCleanupInterval)
	logger.L.Info("Report cache initialized.")

	logger.L.Info("Initializing services and handlers...")
	store := ledger.NewSQLiteStore(database.DB, valueCipher)

	decomposer := processors.NewDecomposer(config.Cfg.FiatBase)
	transferBuilder := processors.NewTransferBuilder()
	aggregator := processors.NewAggregator(config.Cfg.FiatBase)
	balanceGuard := processors.NewBalanceGuard(config.Cfg.FiatBase)

	priceService := services.NewPriceService(config.Cfg.PriceAPIBaseURL, config.Cfg.PriceCacheTTL, time.Now)
	ledgerService := services.NewLedgerService(store, decomposer, transferBuilder, aggregator, balanceGuard, priceService, reportCache)
	importService := services.NewImportService(store, balanceGuard, config.Cfg.FiatBase, ledgerService)

	accountHandler := handlers.NewAccountHandler(ledgerService)
	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	portfolioHandler := handlers.NewPortfolioHandler(ledgerService)
	importHandler := handlers.NewImportHandler(importService)

	logger.L.Info("Configuring routes...")
	rootMux := http.NewServeMux()
	apiRouter := http.NewServeMux()

	identity := handlers.IdentityMiddleware(handlers.HeaderIdentityResolver)
	withIdentity := func(handler http.HandlerFunc) http.Handler {
		return identity(handler)
	}

	apiRouter.Handle("POST /api/accounts", withIdentity(accountHandler.HandleCreateAccount))
	apiRouter.Handle("GET /api/accounts", withIdentity(accountHandler.HandleListAccounts))
	apiRouter.Handle("PUT /api/accounts/{id}", withIdentity(accountHandler.HandleUpdateAccount))
	apiRouter.Handle("DELETE /api/accounts/{id}", withIdentity(accountHandler.HandleDeleteAccount))

	apiRouter.Handle("POST /api/operations", withIdentity(ledgerHandler.HandleCreateOperation))
	apiRouter.Handle("POST /api/transfers", withIdentity(ledgerHandler.HandleTransfer))
	apiRouter.Handle("GET /api/accounts/{id}/entries", withIdentity(ledgerHandler.HandleListEntries))
	apiRouter.Handle("PUT /api/entries/{id}", withIdentity(ledgerHandler.HandleUpdateEntry))
	apiRouter.Handle("DELETE /api/entries/{id}", withIdentity(ledgerHandler.HandleDeleteEntry))

	apiRouter.Handle("GET /api/accounts/{id}/positions", withIdentity(portfolioHandler.HandleGetAccountPositions))
	apiRouter.Handle("GET /api/portfolio", withIdentity(portfolioHandler.HandleGetPortfolioSummary))

	apiRouter.Handle("POST /api/imports/preview", withIdentity(importHandler.HandlePreview))
	apiRouter.Handle("POST /api/imports/confirm", withIdentity(importHandler.HandleConfirm))

	rootMux.Handle("/api/", apiRouter)

	rootMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" && r.Method == http.MethodGet {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]string{"message": "Capitalview backend is running"})
		} else {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				logger.L.Warn("Root level path not found", "method", r.Method, "path", r.URL.Path)
				http.NotFound(w, r)
			}
		}
	})

	logger.L.Info("Applying global middleware...")
	finalHandler := enableCORS(rateLimitMiddleware(rootMux))

	serverAddr := ":" + config.Cfg.Port
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      finalHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.L.Info("Server starting", "address", serverAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.L.Error("Failed to start server", "error", err)
		stdlog.Fatalf("Failed to start server: %v", err)
	} else if err == http.ErrServerClosed {
		logger.L.Info("Server stopped gracefully.")
	}
}
