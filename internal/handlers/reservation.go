package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"table-settlement/internal/models"
	"table-settlement/internal/services"
	"table-settlement/internal/utils"
)

type ReservationHandler struct {
	reservationService *services.ReservationService
}

func NewReservationHandler(reservationService *services.ReservationService) *ReservationHandler {
	return &ReservationHandler{reservationService: reservationService}
}

func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	var req models.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	reservation, err := h.reservationService.CreateReservation(c.Request.Context(), &req)
	if err != nil {
		respondError(c, "Failed to create reservation", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Reservation created", reservation)
}

func (h *ReservationHandler) GetReservation(c *gin.Context) {
	reservation, err := h.reservationService.GetReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to retrieve reservation", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Reservation retrieved", reservation)
}

func (h *ReservationHandler) ConfirmReservation(c *gin.Context) {
	reservation, err := h.reservationService.ConfirmReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to confirm reservation", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Reservation confirmed", reservation)
}

func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	reservation, err := h.reservationService.CancelReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, "Failed to cancel reservation", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Reservation cancelled", reservation)
}
