package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"table-settlement/internal/services"
	"table-settlement/internal/utils"
)

func statusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// respondError writes the envelope for err. Internal failures keep their
// detail out of the response body.
func respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		utils.ErrorResponse(c, status, message, nil)
		return
	}
	utils.ErrorResponse(c, status, message, err)
}

func bindError(c *gin.Context, err error) {
	utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request payload", err)
}
