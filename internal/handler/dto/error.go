// Package dto provides Data Transfer Objects for API requests and responses.
package dto

// ErrorResponse is the error envelope shared by handlers and middleware.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code and a human message. Lending
// failures also name the entity concerned and, when known, its ID.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Entity  string `json:"entity,omitempty"`
	ID      string `json:"id,omitempty"`
}
