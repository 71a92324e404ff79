// Package dto defines HTTP request and response bodies.
package dto

// IDResponse carries a created entity's id.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse is a generic acknowledgement.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps a collection with its length.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// NewListResponse builds a ListResponse from a slice.
func NewListResponse[T any](items []T) ListResponse[T] {
	return ListResponse[T]{Items: items, Count: len(items)}
}
