package apperrors

import (
	"errors"
	"net/http"

	"rescue-link/internal/gateway/domain"
)

func CheckError(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidCoordinates),
		errors.Is(err, domain.ErrInvalidSubcategory):
		return http.StatusUnprocessableEntity
	}

	return http.StatusInternalServerError
}
