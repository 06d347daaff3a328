package main

import (
	"context"
	"fmt"
	"time"

	"table-settlement/internal/handlers"
	"table-settlement/internal/kafka"
	"table-settlement/internal/notify"
	"table-settlement/internal/rabbitmq"
	rediswrap "table-settlement/internal/redis"
	"table-settlement/internal/services"
	"table-settlement/internal/storage"
)

// app holds everything a command needs once the process is configured.
type app struct {
	store      storage.Store
	dispatcher *notify.Dispatcher
	guard      *rediswrap.DeliveryGuard
	svc        handlers.Services
}

func openStore() (storage.Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		log.Warn("DATABASE", "Using in-memory storage, data is lost on restart")
		return storage.NewInMemoryStore(), nil
	case "mysql":
		log.LogProcess("DATABASE", "Initializing MySQL database...")
		return storage.NewMySQLStore(cfg.Database, log)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Database.Driver)
}

func openPublisher() (notify.Publisher, error) {
	switch cfg.Notify.Transport {
	case "kafka":
		log.LogProcess("KAFKA", "Initializing Kafka producer...")
		return kafka.NewProducer(cfg.Kafka, log)
	case "rabbitmq":
		log.LogProcess("RABBITMQ", "Connecting to RabbitMQ...")
		return rabbitmq.NewPublisher(cfg.RabbitMQ, log)
	case "log":
		return notify.NewLogPublisher(log), nil
	}
	return nil, fmt.Errorf("unknown notify transport %q", cfg.Notify.Transport)
}

func newApp(ctx context.Context) (*app, error) {
	store, err := openStore()
	if err != nil {
		return nil, err
	}
	if cfg.Database.Driver == "memory" {
		if _, err := seedFloor(ctx, store, 10, 4, demoMenu); err != nil {
			store.Close()
			return nil, err
		}
	}

	publisher, err := openPublisher()
	if err != nil {
		store.Close()
		return nil, err
	}
	dispatcher := notify.NewDispatcher(publisher, cfg.Notify.BufferSize, log)
	dispatcher.Start()

	a := &app{store: store, dispatcher: dispatcher}

	var guard services.DeliveryGuard
	if cfg.Redis.Addr != "" {
		a.guard = rediswrap.NewDeliveryGuard(rediswrap.NewClient(cfg.Redis), cfg.Redis.DeliveryTTL)
		if err := a.guard.Ping(ctx); err != nil {
			log.Warn("REDIS", "Redis unreachable, webhook replays fall back to the database: "+err.Error())
		} else {
			log.LogProcess("REDIS", "Redis connection successful")
		}
		guard = a.guard
	}

	window := cfg.Sync.ReservationWindow
	payments := services.NewPaymentService(store, dispatcher, log, cfg.Settlement, window)
	webhooks := services.NewWebhookService(payments, guard, log, cfg.Settlement.TransactionPrefix)

	if cfg.Stripe.SecretKey == "" {
		log.Warn("STRIPE", "STRIPE_SECRET_KEY environment variable not set, card payments are settled by staff only")
	} else {
		stripeService, err := services.NewStripeService(cfg.Stripe, log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize Stripe: %w", err)
		}
		payments.SetCardGateway(stripeService)
		webhooks.EnableStripe(cfg.Stripe.WebhookSecret, cfg.Stripe.MinorUnitExponent)
		log.LogProcess("STRIPE", "Stripe API initialized with key")
	}

	a.svc = handlers.Services{
		Sessions:     services.NewSessionService(store, dispatcher, log, cfg.Session.TTL, window),
		Orders:       services.NewOrderService(store, dispatcher, log, cfg.Settlement.AllowItemsOnServedOrder),
		Payments:     payments,
		Webhooks:     webhooks,
		Reservations: services.NewReservationService(store, dispatcher, log, window),
		Synchronizer: services.NewSynchronizer(store, dispatcher, log, cfg.Sync),
		Health:       store,
	}
	log.LogProcess("SERVICE", "All services initialized")
	return a, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.dispatcher.Close(ctx); err != nil {
		log.Error("NOTIFY", "Failed to close publisher: "+err.Error())
	}
	if a.guard != nil {
		if err := a.guard.Close(); err != nil {
			log.Error("REDIS", "Failed to close client: "+err.Error())
		}
	}
	if err := a.store.Close(); err != nil {
		log.Error("DATABASE", "Failed to close store: "+err.Error())
	}
}
