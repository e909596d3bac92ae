// Package utils holds small cross-module helpers: the envelope the Admin API
// wraps every response in, and the shared validator instance.
package utils

import "github.com/go-playground/validator/v10"

// Validate is the shared validator instance DTOs are checked against.
var Validate = validator.New()

// ApiResponse is the envelope every successful Admin API response is wrapped
// in.
type ApiResponse[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// APIError is the envelope every failed Admin API response is wrapped in.
type APIError[T any] struct {
	Message string `json:"message"`
	Error   T      `json:"error,omitempty"`
}

// NewSuccessResponse wraps data in the success envelope.
func NewSuccessResponse[T any](message string, data T) ApiResponse[T] {
	return ApiResponse[T]{Message: message, Data: data}
}

// NewFailResponse wraps a message in the error envelope.
func NewFailResponse(message string) APIError[any] {
	return APIError[any]{Message: message}
}
