package handlers

import (
	"net/http"

	"github.com/ivankudzin/payhooks/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/payhooks/internal/transport/http/errors"
)

type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Get(w http.ResponseWriter, _ *http.Request) {
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{OK: true})
}
