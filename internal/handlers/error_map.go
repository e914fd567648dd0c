package handlers

import (
	"errors"
	"net/http"

	"shop-insights/internal/apperror"
	"shop-insights/internal/insights"
	"shop-insights/internal/logger"
)

func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error, internalMessage string) {
	var invalid *insights.InvalidCategoryError
	switch {
	case errors.As(err, &invalid):
		valid := make([]string, len(invalid.Valid))
		for i, c := range invalid.Valid {
			valid[i] = string(c)
		}
		writeJSONResponse(w, http.StatusBadRequest, ErrorResponse{
			Error:           http.StatusText(http.StatusBadRequest),
			Message:         err.Error(),
			ValidCategories: valid,
		})
	case apperror.Is(err, apperror.KindNotFound):
		writeErrorResponse(w, http.StatusNotFound, err.Error())
	case apperror.Is(err, apperror.KindValidation):
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
	case apperror.Is(err, apperror.KindConflict):
		writeErrorResponse(w, http.StatusConflict, err.Error())
	case apperror.Is(err, apperror.KindUnavailable):
		if log != nil {
			log.WithError(err).Warn(internalMessage)
		}
		writeErrorResponse(w, http.StatusServiceUnavailable, "Data source temporarily unavailable")
	default:
		if log != nil {
			log.WithError(err).Error(internalMessage)
		}
		writeErrorResponse(w, http.StatusInternalServerError, internalMessage)
	}
}
