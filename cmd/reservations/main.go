package main

import (
	"context"

	"labreserve/internal/reservations/engine"
	"labreserve/internal/reservations/handler"
	"labreserve/internal/reservations/repository"
	"labreserve/internal/reservations/service"
	"labreserve/internal/reservations/validator"
	"labreserve/pkg/app"
	"labreserve/pkg/config"
	"labreserve/pkg/kafka"
	kafka_config "labreserve/pkg/kafka/config"
)

const ServiceName = "reservations"

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetMongo()
	cfg.SetRedis()
	defer cfg.GracefulShutdown()

	cfg.Log.Info("Starting Reservations service")

	events, producer := initEventSink(cfg)
	if producer != nil {
		defer producer.Close()
	}

	bookingService := initServices(cfg, events)

	serverApp := app.NewApplication()
	serverApp.SetApp(cfg, handler.NewBookingHandler(bookingService, cfg.Log))
	serverApp.SetNoShowSweeper(func(ctx context.Context) (int, error) {
		return bookingService.SweepNoShows(ctx)
	})
	serverApp.Run()
}

// initEventSink wires the Kafka producer when brokers are configured and
// falls back to a no-op sink otherwise, so the service can run without a
// broker in development.
func initEventSink(cfg *config.Config) (engine.EventSink, *kafka.Producer) {
	if len(cfg.KafkaBrokers) == 0 {
		cfg.Log.Warn("No Kafka brokers configured, booking events will not be published")
		return engine.NopSink{}, nil
	}

	kafkaCfg := kafka_config.Load()
	kafkaCfg.Brokers = cfg.KafkaBrokers
	kafkaCfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kafkaCfg, cfg.BookingEventsTopic, cfg.BookingEventsDLQTopic)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}

	return service.NewKafkaEventSink(producer, cfg.EventSource), producer
}

func initServices(cfg *config.Config, events engine.EventSink) service.BookingService {
	bookingValidator := validator.NewBookingValidator(cfg.Log)
	bookingRepo := repository.NewMongoBookingRepository(cfg)
	lockRepo := repository.NewSlotLockRepository(cfg)
	labRepo := repository.NewMongoLaboratoryRepository(cfg)
	equipRepo := repository.NewMongoEquipmentRepository(cfg)
	ledger := repository.NewMongoLedger(cfg)

	bookingService := service.NewBookingService(
		bookingRepo,
		lockRepo,
		labRepo,
		equipRepo,
		bookingValidator,
		ledger,
		events,
		cfg,
	)

	cfg.Log.Info("Reservation service initialized", "database", cfg.MongoDatabaseName)
	return bookingService
}
