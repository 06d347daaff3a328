package handlers

import (
	"github.com/gin-gonic/gin"

	"table-settlement/internal/logger"
	"table-settlement/internal/middleware"
	"table-settlement/internal/services"
)

// Handlers groups every HTTP handler the router mounts.
type Handlers struct {
	Session     *SessionHandler
	Customer    *CustomerHandler
	Order       *OrderHandler
	Payment     *PaymentHandler
	Webhook     *WebhookHandler
	Reservation *ReservationHandler
	Admin       *AdminHandler
}

// Services are the collaborators the handlers are built from.
type Services struct {
	Sessions     *services.SessionService
	Orders       *services.OrderService
	Payments     *services.PaymentService
	Webhooks     *services.WebhookService
	Reservations *services.ReservationService
	Synchronizer *services.Synchronizer
	Health       HealthChecker
}

func NewHandlers(svc Services, log *logger.Logger) *Handlers {
	return &Handlers{
		Session:     NewSessionHandler(svc.Sessions, svc.Payments),
		Customer:    NewCustomerHandler(svc.Sessions, svc.Orders),
		Order:       NewOrderHandler(svc.Orders),
		Payment:     NewPaymentHandler(svc.Payments),
		Webhook:     NewWebhookHandler(svc.Webhooks, log),
		Reservation: NewReservationHandler(svc.Reservations),
		Admin:       NewAdminHandler(svc.Synchronizer, svc.Health),
	}
}

func NewRouter(h *Handlers, validator middleware.SessionValidator, rateLimit int, log *logger.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.EnhancedLogger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.CORS())
	router.Use(middleware.SecurityHeaders(log))
	router.Use(middleware.RateLimit(rateLimit, log))

	router.GET("/health", h.Admin.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", h.Admin.Health)

		sessions := v1.Group("/sessions")
		{
			sessions.POST("", h.Session.CreateSession)
			sessions.GET("/:id", h.Session.GetSession)
			sessions.POST("/:id/close", h.Session.CloseSession)
			sessions.GET("/:id/payment", h.Session.GetSessionPayment)
		}

		customer := v1.Group("/customer", middleware.SessionAuth(validator, log))
		{
			customer.GET("/session", h.Customer.GetSession)
			customer.POST("/orders", h.Customer.CreateOrder)
			customer.POST("/orders/:id/items", h.Customer.AddItems)
		}

		orders := v1.Group("/orders")
		{
			orders.POST("", h.Order.CreateOrder)
			orders.GET("/:id", h.Order.GetOrder)
			orders.POST("/:id/items", h.Order.AddItems)
			orders.PATCH("/:id/items/:itemId", h.Order.UpdateItem)
			orders.DELETE("/:id/items/:itemId", h.Order.DeleteItem)
			orders.POST("/:id/cancel", h.Order.CancelOrder)
			orders.PATCH("/:id/status", h.Order.UpdateStatus)
			orders.PATCH("/:id/items/:itemId/status", h.Order.UpdateItemStatus)
		}

		payments := v1.Group("/payments")
		{
			payments.POST("", h.Payment.CreatePayment)
			payments.GET("/:id", h.Payment.GetPayment)
			payments.POST("/:id/process", h.Payment.ProcessPayment)
			payments.POST("/:id/refund", h.Payment.RefundPayment)
		}

		webhooks := v1.Group("/webhooks")
		{
			webhooks.POST("/bank", h.Webhook.BankTransfer)
			webhooks.POST("/stripe", h.Webhook.Stripe)
		}

		reservations := v1.Group("/reservations")
		{
			reservations.POST("", h.Reservation.CreateReservation)
			reservations.GET("/:id", h.Reservation.GetReservation)
			reservations.POST("/:id/confirm", h.Reservation.ConfirmReservation)
			reservations.POST("/:id/cancel", h.Reservation.CancelReservation)
		}

		v1.POST("/admin/sync", h.Admin.RunSync)
	}

	log.LogProcess("ROUTER", "All routes registered successfully")
	return router
}
