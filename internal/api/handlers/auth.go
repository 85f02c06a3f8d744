package handlers

import (
	"net/http"

	"github.com/go-chi/render"

	"rsipulse/internal/api/middleware"
	"rsipulse/internal/config"
	"rsipulse/internal/domain/entity"
)

const demoUserID = "demo_user_1"

type AuthHandler struct {
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req := entity.LoginRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, entity.ErrBadRequest("invalid JSON"))
		return
	}

	// single demo account
	if req.Username != "demo" || req.Password != "demo" {
		writeError(w, r, entity.HTTPError{StatusCode: http.StatusUnauthorized, Msg: "invalid credentials"})
		return
	}

	token, exp, err := middleware.GenerateJWT(h.cfg.JWTSecret, demoUserID, h.cfg.JWTExpiry)
	if err != nil {
		writeError(w, r, entity.ErrInternal("token signing failed"))
		return
	}
	render.JSON(w, r, entity.LoginResponse{
		Token:     token,
		UserID:    demoUserID,
		ExpiresAt: exp,
	})
}
