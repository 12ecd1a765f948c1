package config

const (
	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr        = "REDIS_ADDR"
	EnvRedisPassword    = "REDIS_PASSWORD"
	EnvRedisDB          = "REDIS_DB"
	EnvRedisConnTimeout = "REDIS_CONN_TIMEOUT"

	EnvKafkaBrokers        = "KAFKA_BROKERS"
	EnvBookingEventsTopic  = "BOOKING_EVENTS_TOPIC"
	EnvBookingEventsDLQ    = "BOOKING_EVENTS_DLQ_TOPIC"
	EnvEventSourceOverride = "EVENT_SOURCE"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"

	EnvSlotLockTTL              = "SLOT_LOCK_TTL"
	EnvNoShowGrace              = "NO_SHOW_GRACE"
	EnvNoShowSweepInterval      = "NO_SHOW_SWEEP_INTERVAL"
	EnvMaxRecurrenceOccurrences = "MAX_RECURRENCE_OCCURRENCES"
)
