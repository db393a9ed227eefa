package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/conciergebank/backend/docs"
	"github.com/conciergebank/backend/internal/database"
	mW "github.com/conciergebank/backend/internal/middleware"
	"github.com/conciergebank/backend/internal/services"
)

// @title Concierge Bank API
// @version 1.0
// @description API for the Concierge Bank demo backend
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("email.api_key", "EMAIL_API_KEY")
	viper.BindEnv("email.base_url", "EMAIL_BASE_URL")
	viper.BindEnv("email.from", "EMAIL_FROM")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("argon2.time", 1)
	viper.SetDefault("argon2.memory", 64*1024)
	viper.SetDefault("argon2.threads", 4)
	viper.SetDefault("argon2.key_length", 32)
	viper.SetDefault("argon2.salt_length", 16)

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	docs.SwaggerInfo.Title = "Concierge Bank API"
	docs.SwaggerInfo.Description = "API for the Concierge Bank demo backend"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	validator := services.NewValidationHelper()
	emailClient := services.NewResendClient()
	notifier := services.NewNotificationService(db, emailClient)
	twofaService := services.NewTwoFactorService(db, notifier)
	botGate := services.NewBotGate()
	accountService := services.NewAccountService(db)
	pinService := services.NewPinService(db, validator)
	settlementService := services.NewSettlementService(redisClient)
	authService := services.NewAuthService(db, redisClient, validator, notifier, twofaService, botGate)
	transferService := services.NewTransferService(db, accountService, pinService, notifier, settlementService, validator)
	billService := services.NewBillService(db, accountService, pinService, notifier, validator)
	checkService := services.NewCheckService(db, accountService, notifier, validator)
	cardService := services.NewCardService(db, accountService, notifier, validator)
	beneficiaryService := services.NewBeneficiaryService(db, validator)
	adminService := services.NewAdminService(db, notifier, validator)

	mW.InitAuthMiddleware(redisClient)

	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/register", authService.Register)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/login/verify", authService.VerifyLogin2FA)
		r.Post("/auth/logout", authService.Logout)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Get("/auth/me", authService.Me)

			r.Get("/accounts", accountService.GetAccounts)
			r.Get("/accounts/{id}/transactions", accountService.GetTransactions)

			r.Get("/transfers", transferService.ListTransfers)
			r.Get("/bills", billService.ListPayees)
			r.Post("/bills", billService.AddPayee)
			r.Get("/bills/payments", billService.ListPayments)
			r.Get("/checks", checkService.ListChecks)
			r.Get("/cards", cardService.ListCards)
			r.Post("/cards/report", cardService.ReportIssue)

			r.Get("/beneficiaries", beneficiaryService.ListBeneficiaries)
			r.Post("/beneficiaries", beneficiaryService.AddBeneficiary)
			r.Put("/beneficiaries/{id}", beneficiaryService.UpdateBeneficiary)
			r.Delete("/beneficiaries/{id}", beneficiaryService.DeleteBeneficiary)

			r.Get("/notifications", notifier.ListNotifications)
			r.Put("/notifications/{id}/read", notifier.MarkNotificationRead)

			r.Get("/settings/preferences", authService.GetPreferences)
			r.Put("/settings/preferences", authService.UpdatePreferences)
			r.Post("/settings/pin", pinService.SetPin)
			r.Get("/settings/2fa", twofaService.TwoFactorStatus)
			r.Post("/settings/2fa/setup", twofaService.Setup2FA)
			r.Post("/settings/2fa/disable", twofaService.Disable2FA)

			// Money movement additionally requires an unblocked account
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireTransactions)

				r.Post("/transfers", transferService.CreateTransfer)
				r.Post("/bills/pay", billService.PayBill)
				r.Post("/checks/deposit", checkService.DepositCheck)
				r.Post("/checks/order", checkService.OrderChecks)
				r.Post("/cards", cardService.IssueCard)
			})

			// Back-office surface, admin role only
			r.Route("/admin", func(r chi.Router) {
				r.Use(mW.RequireAdmin)

				r.Get("/users", adminService.ListUsers)
				r.Post("/users/{id}/block", adminService.BlockUser)
				r.Post("/users/{id}/unblock", adminService.UnblockUser)
				r.Post("/users/{id}/block-transactions", adminService.BlockTransactions)
				r.Post("/users/{id}/unblock-transactions", adminService.UnblockTransactions)
				r.Post("/notifications/send", adminService.SendNotification)
				r.Get("/stats", adminService.Stats)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
