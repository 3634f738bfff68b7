package domain

import "errors"

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidSubcategory = errors.New("invalid emergency subcategory")
	ErrNotFound           = errors.New("request not found")
	ErrForbidden          = errors.New("forbidden action")
	ErrInvalidStatus      = errors.New("invalid request status")
	ErrInternalError      = errors.New("internal error")
)
