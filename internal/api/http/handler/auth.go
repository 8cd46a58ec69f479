package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ngajar-feri/myrvm-edge/internal/api/http/dto"
	"github.com/ngajar-feri/myrvm-edge/internal/operators"
)

type AuthHandler struct {
	operators *operators.Service
}

func NewAuthHandler(ops *operators.Service) *AuthHandler {
	return &AuthHandler{operators: ops}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterOperatorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	op, err := h.operators.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, operators.ErrUsernameExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
			return
		}
		slog.Error("Failed to create operator", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create operator"})
		return
	}

	c.JSON(http.StatusCreated, dto.RegisterOperatorResponse{
		ID:       op.ID.String(),
		Username: op.Username,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.operators.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, operators.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		slog.Error("Failed to log operator in", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{Token: token})
}
