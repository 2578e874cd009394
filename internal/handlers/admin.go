package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/authcore/internal/handlers/render"
	"github.com/nkiryanov/authcore/internal/logger"
)

type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}

func principalFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("principalID"))
	if err != nil {
		render.ServiceError(w, "Principal not found", http.StatusNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func handleRevokePrincipal(sessions sessionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}
		principalID, ok := principalFromPath(w, r)
		if !ok {
			return
		}

		count, err := sessions.RevokePrincipal(r.Context(), tenantID, principalID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, RevokedResponse{Revoked: count})
	})
}

func handleLockPrincipal(sessions sessionService, l logger.Logger) http.Handler {
	type LockRequest struct {
		Minutes int `json:"minutes" validate:"required,min=1"`
	}
	type LockResponse struct {
		LockedUntil time.Time `json:"locked_until"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}
		principalID, ok := principalFromPath(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[LockRequest](w, r)
		if err != nil {
			return
		}

		until, err := sessions.LockPrincipal(r.Context(), tenantID, principalID, time.Duration(data.Minutes)*time.Minute)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, LockResponse{LockedUntil: until})
	})
}

func handleRevokeTenant(sessions sessionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}

		count, err := sessions.RevokeTenant(r.Context(), tenantID)
		if err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, RevokedResponse{Revoked: count})
	})
}

func handleRotateSecret(sessions sessionService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFromPath(w, r)
		if !ok {
			return
		}

		if err := sessions.RotateTenantSecret(r.Context(), tenantID); err != nil {
			renderError(w, err, l)
			return
		}

		render.JSON(w, MessageResponse{Message: "Secret rotated"})
	})
}
