// Package handler adapts HTTP requests onto the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/notesync/auth-service/internal/http/middleware"
	"github.com/notesync/auth-service/internal/http/response"
	"github.com/notesync/auth-service/internal/service"
)

const apiVersionHeader = "X-Api-Version"

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func badRequest(w http.ResponseWriter, r *http.Request, err error) {
	response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
}

// internalError logs err and answers with a generic 500; infrastructure
// details never reach the client.
func internalError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	logger.ErrorContext(r.Context(), op+" failed", "error", err)
	response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "internal server error", nil)
}

func identity(w http.ResponseWriter, r *http.Request) (*service.Identity, bool) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
	}
	return id, ok
}

func deviceInfo(r *http.Request, ephemeral bool) service.DeviceInfo {
	return service.DeviceInfo{
		UserAgent:  r.UserAgent(),
		IP:         clientIP(r),
		APIVersion: r.Header.Get(apiVersionHeader),
		Ephemeral:  ephemeral,
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func queryBool(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}
