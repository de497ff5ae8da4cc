package httpapi

import "net/http"

// APIError is the error shape every handler returns on failure,
// mirroring FastAPI's HTTPException(detail=...) response body.
type APIError struct {
	Status int    `json:"-"`
	Detail string `json:"detail"`
}

func (e *APIError) Error() string { return e.Detail }

func errBadRequest(detail string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Detail: detail}
}

func errForbidden(detail string) *APIError {
	return &APIError{Status: http.StatusForbidden, Detail: detail}
}

func errNotFound(detail string) *APIError {
	return &APIError{Status: http.StatusNotFound, Detail: detail}
}

func errInternal(detail string) *APIError {
	return &APIError{Status: http.StatusInternalServerError, Detail: detail}
}
