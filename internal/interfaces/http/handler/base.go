// Package handler provides HTTP handlers for the ingestion API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sellerpulse/backend/internal/interfaces/http/dto"
	"github.com/sellerpulse/backend/internal/interfaces/http/middleware"
)

// Success writes a 200 response with the standard envelope
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created writes a 201 response with the standard envelope
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error writes an error response with the standard envelope
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

// BadRequest writes a 400 response
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound writes a 404 response
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Conflict writes a 409 response
func Conflict(c *gin.Context, message string) {
	Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// Unprocessable writes a 422 response
func Unprocessable(c *gin.Context, message string) {
	Error(c, http.StatusUnprocessableEntity, dto.ErrCodeUnprocessable, message)
}

// Internal writes a 500 response
func Internal(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}
