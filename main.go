package main

import (
	"log"
	"net/http"

	"settlement-service/internal/auth"
	"settlement-service/internal/checkout"
	"settlement-service/internal/config"
	"settlement-service/internal/db"
	"settlement-service/internal/enrollment"
	"settlement-service/internal/kafka"
	"settlement-service/internal/logging"
	"settlement-service/internal/metrics"
	"settlement-service/internal/provider"
	"settlement-service/internal/settlement"
	"settlement-service/internal/webhook"

	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	cfg := config.MustLoadConfig("./config")

	logger := logging.GetLogger(cfg.Logs)
	metrics.Setup(cfg.Metrics)

	connStr := db.GetConnStr()
	db.RunMigrations(connStr, "./migrations")

	dbpool, err := db.GetPool(connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer dbpool.Close()

	settlementRepo := db.NewSettlementRepository(dbpool)
	enrollmentRepo := db.NewEnrollmentRepository(dbpool)

	providerClient := provider.NewClient()
	checkoutService := checkout.NewService(settlementRepo, providerClient, logger)

	verifier := provider.NewSignatureVerifier(config.Get("PROVIDER_WEBHOOK_SECRET", ""))
	reconciler := settlement.NewReconciler(settlementRepo, logger)

	noticeWriter := kafka.NewWriter(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.EnrollmentNotices)
	defer noticeWriter.Close()

	promoter := enrollment.NewPromoter(enrollmentRepo, noticeWriter, logger)

	changeReader := kafka.NewReader(cfg.Kafka.Broker.URL, cfg.Kafka.Topic.EnrollmentEvents, cfg.Kafka.Reader.GroupID)
	defer changeReader.Close()

	kafka.ReadEnrollmentChanges(changeReader, promoter, logger)

	authVerifier := auth.NewVerifier(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /liveness", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("POST /api/checkout", authVerifier.Middleware(checkout.NewHandler(checkoutService, logger)))
	mux.Handle("POST /webhook/payments", webhook.NewHandler(verifier, reconciler, logger))

	logger.Info("Starting server", "port", cfg.Server.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Server.Port, mux))
}
