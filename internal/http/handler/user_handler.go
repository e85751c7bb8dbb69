package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/http/response"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/service"
)

// UserHandler serves the /v1/users/{userUuid} routes. Ownership of the path
// user is enforced by the router before these run.
type UserHandler struct {
	accounts             *service.AccountService
	features             *service.FeatureService
	settings             *service.SettingUseCases
	subscriptionSettings *service.SubscriptionSettingService
	logger               *slog.Logger
}

func NewUserHandler(
	accounts *service.AccountService,
	features *service.FeatureService,
	settings *service.SettingUseCases,
	subscriptionSettings *service.SubscriptionSettingService,
	logger *slog.Logger,
) *UserHandler {
	return &UserHandler{
		accounts:             accounts,
		features:             features,
		settings:             settings,
		subscriptionSettings: subscriptionSettings,
		logger:               defaultLogger(logger),
	}
}

type updateSettingRequest struct {
	UUID      string `json:"uuid"`
	Name      string `json:"name"`
	Value     string `json:"value"`
	Sensitive *bool  `json:"sensitive"`
}

func (h *UserHandler) Features(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	features, err := h.features.GetFeaturesForUser(r.Context(), id.User)
	if err != nil {
		internalError(w, r, h.logger, "get features", err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user_uuid": id.User.UUID, "features": features})
}

func (h *UserHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	userUUID := chi.URLParam(r, "userUuid")
	res, err := h.settings.GetSettings(r.Context(), userUUID, false)
	if err != nil {
		internalError(w, r, h.logger, "get settings", err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user_uuid": res.UserUUID, "settings": res.Settings})
}

func (h *UserHandler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	userUUID := chi.URLParam(r, "userUuid")
	var req updateSettingRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "setting name is required", nil)
		return
	}

	props := service.NewSettingProps(domain.SettingName(req.Name), req.Value)
	props.UUID = req.UUID
	if req.Sensitive != nil {
		props.Sensitive = *req.Sensitive
	}
	res, err := h.settings.UpdateSetting(r.Context(), userUUID, props)
	if err != nil {
		internalError(w, r, h.logger, "update setting", err)
		return
	}
	if !res.Success {
		response.Error(w, r, res.StatusCode, "SETTING_UPDATE_REJECTED", res.ErrorMessage, nil)
		return
	}
	if res.StatusCode == http.StatusNoContent {
		response.NoContent(w, r)
		return
	}
	response.JSON(w, r, res.StatusCode, map[string]any{"setting": res.Setting})
}

func (h *UserHandler) GetSetting(w http.ResponseWriter, r *http.Request) {
	userUUID := chi.URLParam(r, "userUuid")
	name := domain.SettingName(chi.URLParam(r, "name"))
	res, err := h.settings.GetSetting(r.Context(), userUUID, name, queryBool(r, "allow_sensitive"))
	if err != nil {
		internalError(w, r, h.logger, "get setting", err)
		return
	}
	if !res.Success {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", res.ErrorMessage, nil)
		return
	}
	if res.Sensitive {
		response.JSON(w, r, http.StatusOK, map[string]any{"sensitive": true})
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user_uuid": res.UserUUID, "setting": res.Setting})
}

func (h *UserHandler) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	userUUID := chi.URLParam(r, "userUuid")
	name := domain.SettingName(chi.URLParam(r, "name"))
	err := h.settings.DeleteSetting(r.Context(), userUUID, name)
	if errors.Is(err, service.ErrSettingNotFound) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "Setting "+string(name)+" for user "+userUUID+" not found!", nil)
		return
	}
	if err != nil {
		internalError(w, r, h.logger, "delete setting", err)
		return
	}
	response.NoContent(w, r)
}

func (h *UserHandler) GetSubscriptionSetting(w http.ResponseWriter, r *http.Request) {
	userUUID := chi.URLParam(r, "userUuid")
	name := domain.SubscriptionSettingName(chi.URLParam(r, "name"))
	res, err := h.subscriptionSettings.GetSubscriptionSetting(r.Context(), userUUID, name, queryBool(r, "allow_sensitive"))
	if err != nil {
		internalError(w, r, h.logger, "get subscription setting", err)
		return
	}
	if !res.Success {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", res.ErrorMessage, nil)
		return
	}
	if res.Sensitive {
		response.JSON(w, r, http.StatusOK, map[string]any{"sensitive": true})
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"setting": res.Setting})
}

func (h *UserHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	res, err := h.accounts.DeleteAccount(r.Context(), id.User.Email)
	if err != nil {
		internalError(w, r, h.logger, "delete account", err)
		return
	}
	if !res.Success {
		response.Error(w, r, res.ResponseCode, "NOT_FOUND", res.Message, nil)
		return
	}
	observability.Audit(r, "account.deletion_requested", "user_uuid", id.User.UUID)
	response.JSON(w, r, res.ResponseCode, map[string]string{"message": res.Message})
}
