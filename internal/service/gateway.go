package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/balu-dk/go-easee-gateway/internal/credentials"
	"github.com/balu-dk/go-easee-gateway/internal/easee"
	"github.com/balu-dk/go-easee-gateway/internal/metrics"
	"github.com/sirupsen/logrus"
)

var (
	// ErrLimitExceeded is returned when a max charger current write is blocked by the guard.
	ErrLimitExceeded = errors.New("Max allowed Charger Current reached... Abort")

	// ErrUnexpectedUpstreamShape is returned when an upstream response lacks a field the gateway depends on.
	ErrUnexpectedUpstreamShape = errors.New("unexpected upstream response shape")
)

// Forwarder issues authenticated calls to the Easee API.
type Forwarder interface {
	Get(ctx context.Context, creds credentials.Credentials, operation, path string) (json.RawMessage, error)
	Post(ctx context.Context, creds credentials.Credentials, operation, path string, body interface{}) (json.RawMessage, error)
}

// Gateway exposes the supported Easee operations. It holds no per-request state.
type Gateway struct {
	forwarder Forwarder
}

// NewGateway creates a new Gateway service
func NewGateway(forwarder Forwarder) *Gateway {
	return &Gateway{
		forwarder: forwarder,
	}
}

// GetConfiguration returns the charger configuration
func (g *Gateway) GetConfiguration(ctx context.Context, creds credentials.Credentials, chargerID string) (json.RawMessage, error) {
	return g.forwarder.Get(ctx, creds, "charger_config", easee.Path("chargers", chargerID, "config"))
}

// GetState returns the charger state
func (g *Gateway) GetState(ctx context.Context, creds credentials.Credentials, chargerID string) (json.RawMessage, error) {
	return g.forwarder.Get(ctx, creds, "charger_state", easee.Path("chargers", chargerID, "state"))
}

// GetPowerUsage returns hourly usage between from and to
func (g *Gateway) GetPowerUsage(ctx context.Context, creds credentials.Credentials, chargerID, from, to string) (json.RawMessage, error) {
	return g.forwarder.Get(ctx, creds, "charger_usage", easee.Path("chargers", chargerID, "usage", "hourly", from, to))
}

// GetChargerDetails returns the charger details
func (g *Gateway) GetChargerDetails(ctx context.Context, creds credentials.Credentials, chargerID string) (json.RawMessage, error) {
	return g.forwarder.Get(ctx, creds, "charger_details", easee.Path("chargers", chargerID, "details"))
}

// GetIsEnabled returns the charger configuration with an extra isEnabledDigital field
// set to 1 when isEnabled is true and 0 otherwise.
func (g *Gateway) GetIsEnabled(ctx context.Context, creds credentials.Credentials, chargerID string) (json.RawMessage, error) {
	raw, err := g.GetConfiguration(ctx, creds, chargerID)
	if err != nil {
		return nil, err
	}

	return withEnabledDigital(raw)
}

// GetChargingSessions returns the charging sessions between from and to
func (g *Gateway) GetChargingSessions(ctx context.Context, creds credentials.Credentials, chargerID, from, to string) (json.RawMessage, error) {
	return g.forwarder.Get(ctx, creds, "charger_sessions", easee.Path("sessions", "charger", chargerID, "sessions", from, to))
}

// GetSites returns all sites on the account
func (g *Gateway) GetSites(ctx context.Context, creds credentials.Credentials) (json.RawMessage, error) {
	return g.forwarder.Get(ctx, creds, "sites", easee.Path("sites"))
}

// IsCircuitAttached looks up the circuit a charger serial number is attached to on a site
func (g *Gateway) IsCircuitAttached(ctx context.Context, creds credentials.Credentials, siteID, serialNumber, pinCode string) (json.RawMessage, error) {
	return g.forwarder.Get(ctx, creds, "site_circuit", easee.Path("sites", siteID, "circuits", serialNumber, pinCode))
}

// WriteSetting posts a single-key settings payload to the charger
func (g *Gateway) WriteSetting(ctx context.Context, creds credentials.Credentials, chargerID string, setting Setting) (json.RawMessage, error) {
	logrus.WithFields(logrus.Fields{
		"chargerID": chargerID,
		"setting":   setting.Key,
	}).Debug("Writing charger setting")

	return g.forwarder.Post(ctx, creds, "charger_settings", easee.Path("chargers", chargerID, "settings"), setting.payload())
}

// SetLedStripBrightness sets the LED strip brightness
func (g *Gateway) SetLedStripBrightness(ctx context.Context, creds credentials.Credentials, chargerID string, brightness int) (json.RawMessage, error) {
	return g.WriteSetting(ctx, creds, chargerID, LedStripBrightness(brightness))
}

// SetIsEnabled enables or disables the charger
func (g *Gateway) SetIsEnabled(ctx context.Context, creds credentials.Credentials, chargerID string, enabled bool) (json.RawMessage, error) {
	return g.WriteSetting(ctx, creds, chargerID, Enabled(enabled))
}

// SetDynamicChargerCurrent sets the dynamic charger current
func (g *Gateway) SetDynamicChargerCurrent(ctx context.Context, creds credentials.Credentials, chargerID string, current float64) (json.RawMessage, error) {
	return g.WriteSetting(ctx, creds, chargerID, DynamicChargerCurrent(current))
}

// SetMaxChargerCurrent sets the max charger current when accepted allows it.
// Nothing is sent upstream when the guard fails.
func (g *Gateway) SetMaxChargerCurrent(ctx context.Context, creds credentials.Credentials, chargerID string, current, accepted float64) (json.RawMessage, error) {
	if err := GuardMaxChargerCurrent(chargerID, current, accepted); err != nil {
		return nil, err
	}

	return g.WriteSetting(ctx, creds, chargerID, MaxChargerCurrent(current))
}

// GuardMaxChargerCurrent returns ErrLimitExceeded when current exceeds accepted.
// It is local only and safe to call before credentials are decoded.
func GuardMaxChargerCurrent(chargerID string, current, accepted float64) error {
	if CheckMaxChargerCurrent(accepted, current) {
		return nil
	}

	metrics.RecordGuardRejection()
	logrus.WithFields(logrus.Fields{
		"chargerID": chargerID,
		"requested": current,
		"accepted":  accepted,
	}).Warn("Max charger current write rejected")

	return ErrLimitExceeded
}

// CheckMaxChargerCurrent reports whether requested is within the caller supplied accepted maximum.
func CheckMaxChargerCurrent(accepted, requested float64) bool {
	return accepted >= requested
}

func withEnabledDigital(raw json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, ErrUnexpectedUpstreamShape
	}

	switch string(bytes.TrimSpace(fields["isEnabled"])) {
	case "true":
		fields["isEnabledDigital"] = json.RawMessage("1")
	case "false":
		fields["isEnabledDigital"] = json.RawMessage("0")
	default:
		return nil, ErrUnexpectedUpstreamShape
	}

	return json.Marshal(fields)
}
