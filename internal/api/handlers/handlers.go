package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/balu-dk/go-easee-gateway/internal/credentials"
	"github.com/balu-dk/go-easee-gateway/internal/easee"
	"github.com/balu-dk/go-easee-gateway/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// Handler handles API requests
type Handler struct {
	gateway   *service.Gateway
	validator *requestValidator
	docsURL   string
}

// NewHandler creates a new API handler
func NewHandler(gateway *service.Gateway, docsURL string) *Handler {
	return &Handler{
		gateway:   gateway,
		validator: newRequestValidator(),
		docsURL:   docsURL,
	}
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Detail string `json:"detail"`
}

type readFunc func(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error)

// Root returns the static informational payload
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{
		"Easee Api Gateway - docs": h.docsURL,
	})
}

// Health reports that the process is serving requests
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetConfiguration returns the charger configuration
func (h *Handler) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	chargerID := pathParam(r, "chargerId")
	h.read(w, r, "get configuration", logrus.Fields{"chargerID": chargerID}, func(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error) {
		return h.gateway.GetConfiguration(ctx, creds, chargerID)
	})
}

// GetState returns the charger state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	chargerID := pathParam(r, "chargerId")
	h.read(w, r, "get state", logrus.Fields{"chargerID": chargerID}, func(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error) {
		return h.gateway.GetState(ctx, creds, chargerID)
	})
}

// GetPowerUsage returns hourly power usage between two points in time
func (h *Handler) GetPowerUsage(w http.ResponseWriter, r *http.Request) {
	chargerID, from, to := pathParam(r, "chargerId"), pathParam(r, "from"), pathParam(r, "to")
	h.read(w, r, "get power usage", logrus.Fields{"chargerID": chargerID, "from": from, "to": to}, func(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error) {
		return h.gateway.GetPowerUsage(ctx, creds, chargerID, from, to)
	})
}

// GetChargerDetails returns the charger details
func (h *Handler) GetChargerDetails(w http.ResponseWriter, r *http.Request) {
	chargerID := pathParam(r, "chargerId")
	h.read(w, r, "get charger details", logrus.Fields{"chargerID": chargerID}, func(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error) {
		return h.gateway.GetChargerDetails(ctx, creds, chargerID)
	})
}

// GetIsEnabled returns the charger configuration with isEnabled also given as 1/0
func (h *Handler) GetIsEnabled(w http.ResponseWriter, r *http.Request) {
	chargerID := pathParam(r, "chargerId")
	h.read(w, r, "get is enabled", logrus.Fields{"chargerID": chargerID}, func(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error) {
		return h.gateway.GetIsEnabled(ctx, creds, chargerID)
	})
}

// GetChargingSessions returns the charging sessions between two points in time
func (h *Handler) GetChargingSessions(w http.ResponseWriter, r *http.Request) {
	chargerID, from, to := pathParam(r, "chargerId"), pathParam(r, "from"), pathParam(r, "to")
	h.read(w, r, "get charging sessions", logrus.Fields{"chargerID": chargerID, "from": from, "to": to}, func(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error) {
		return h.gateway.GetChargingSessions(ctx, creds, chargerID, from, to)
	})
}

// GetSites returns all sites configured on the account
func (h *Handler) GetSites(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, "get sites", logrus.Fields{}, func(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error) {
		return h.gateway.GetSites(ctx, creds)
	})
}

// IsCircuitAttached looks up the circuit of a charger on a site
func (h *Handler) IsCircuitAttached(w http.ResponseWriter, r *http.Request) {
	siteID, serialNumber, pinCode := pathParam(r, "siteId"), pathParam(r, "serialNumber"), pathParam(r, "pinCode")
	h.read(w, r, "get circuit", logrus.Fields{"siteID": siteID, "serialNumber": serialNumber}, func(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error) {
		return h.gateway.IsCircuitAttached(ctx, creds, siteID, serialNumber, pinCode)
	})
}

// SetLedstripBrightness changes the LED strip brightness, 0-100
func (h *Handler) SetLedstripBrightness(w http.ResponseWriter, r *http.Request) {
	var req LedstripBrightnessRequest
	if !h.decode(w, r, &req) {
		return
	}

	creds, ok := decodeCredentials(w, req.Username, req.Password)
	if !ok {
		return
	}

	resp, err := h.gateway.SetLedStripBrightness(r.Context(), creds, req.ChargerID, int(*req.Brightness))
	if err != nil {
		handleError(w, err, "Failed to set LED strip brightness", logrus.Fields{
			"chargerID":  req.ChargerID,
			"brightness": int(*req.Brightness),
		})
		return
	}

	sendRaw(w, resp)
}

// SetIsEnabled enables or disables the charger
func (h *Handler) SetIsEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetIsEnabledRequest
	if !h.decode(w, r, &req) {
		return
	}

	creds, ok := decodeCredentials(w, req.Username, req.Password)
	if !ok {
		return
	}

	resp, err := h.gateway.SetIsEnabled(r.Context(), creds, req.ChargerID, bool(*req.Enabled))
	if err != nil {
		handleError(w, err, "Failed to set enabled", logrus.Fields{
			"chargerID": req.ChargerID,
			"enabled":   bool(*req.Enabled),
		})
		return
	}

	sendRaw(w, resp)
}

// SetDynamicChargerCurrent changes the dynamic charger current
func (h *Handler) SetDynamicChargerCurrent(w http.ResponseWriter, r *http.Request) {
	var req SetDynamicChargerCurrentRequest
	if !h.decode(w, r, &req) {
		return
	}

	creds, ok := decodeCredentials(w, req.Username, req.Password)
	if !ok {
		return
	}

	resp, err := h.gateway.SetDynamicChargerCurrent(r.Context(), creds, req.ChargerID, *req.DynamicChargerCurrent)
	if err != nil {
		handleError(w, err, "Failed to set dynamic charger current", logrus.Fields{
			"chargerID": req.ChargerID,
			"current":   *req.DynamicChargerCurrent,
		})
		return
	}

	sendRaw(w, resp)
}

// SetMaxChargerCurrent changes the max charger current unless it exceeds maxChargerAccepted
func (h *Handler) SetMaxChargerCurrent(w http.ResponseWriter, r *http.Request) {
	var req SetMaxChargerCurrentRequest
	if !h.decode(w, r, &req) {
		return
	}

	// Guard first, a rejected write never touches the credentials
	if err := service.GuardMaxChargerCurrent(req.ChargerID, *req.MaxChargerCurrent, *req.MaxChargerAccepted); err != nil {
		handleError(w, err, "Max charger current rejected", logrus.Fields{"chargerID": req.ChargerID})
		return
	}

	creds, ok := decodeCredentials(w, req.Username, req.Password)
	if !ok {
		return
	}

	resp, err := h.gateway.SetMaxChargerCurrent(r.Context(), creds, req.ChargerID, *req.MaxChargerCurrent, *req.MaxChargerAccepted)
	if err != nil {
		handleError(w, err, "Failed to set max charger current", logrus.Fields{
			"chargerID": req.ChargerID,
			"current":   *req.MaxChargerCurrent,
		})
		return
	}

	sendRaw(w, resp)
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request, action string, fields logrus.Fields, fn readFunc) {
	creds, ok := decodeCredentials(w, pathParam(r, "username"), pathParam(r, "password"))
	if !ok {
		return
	}

	resp, err := fn(r.Context(), creds)
	if err != nil {
		handleError(w, err, "Failed to "+action, fields)
		return
	}

	sendRaw(w, resp)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return false
	}

	if err := h.validator.Validate(req); err != nil {
		sendErrorResponse(w, err.Error(), http.StatusUnprocessableEntity)
		return false
	}

	return true
}

func decodeCredentials(w http.ResponseWriter, username, encodedPassword string) (credentials.Credentials, bool) {
	if username == "" {
		sendErrorResponse(w, "Username is required", http.StatusBadRequest)
		return credentials.Credentials{}, false
	}

	creds, err := credentials.New(username, encodedPassword)
	if err != nil {
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
		return credentials.Credentials{}, false
	}

	return creds, true
}

// pathParam returns the percent-decoded value of a route parameter.
func pathParam(r *http.Request, key string) string {
	value := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return value
	}

	if unescaped, err := url.PathUnescape(value); err == nil {
		return unescaped
	}

	return value
}

// handleError maps gateway errors to responses. Every upstream failure becomes a 500
// carrying the upstream error text; the upstream status is only logged.
func handleError(w http.ResponseWriter, err error, message string, fields logrus.Fields) {
	var (
		upstreamErr *easee.UpstreamError
		decodeErr   *credentials.DecodeError
	)

	switch {
	case errors.Is(err, service.ErrLimitExceeded):
		sendErrorResponse(w, service.ErrLimitExceeded.Error(), http.StatusConflict)
	case errors.Is(err, service.ErrUnexpectedUpstreamShape):
		logrus.WithError(err).WithFields(fields).Error(message)
		sendErrorResponse(w, err.Error(), http.StatusBadGateway)
	case errors.As(err, &decodeErr):
		sendErrorResponse(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &upstreamErr):
		logrus.WithError(err).WithFields(fields).WithField("upstreamStatus", upstreamErr.Status).Error(message)
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
	default:
		logrus.WithError(err).WithFields(fields).Error(message)
		sendErrorResponse(w, err.Error(), http.StatusInternalServerError)
	}
}

// Helper functions to send responses
func sendRaw(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logrus.WithError(err).Error("Failed to write response")
	}
}

func sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.WithError(err).Error("Failed to encode response")
	}
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	sendJSON(w, statusCode, ErrorResponse{Detail: message})
}
