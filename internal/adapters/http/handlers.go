package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/wardenhq/core/internal/domain/entities"
	"github.com/wardenhq/core/internal/infrastructure/config"
	"github.com/wardenhq/core/internal/infrastructure/logger"
	"github.com/wardenhq/core/internal/ports"
)

// StateHandler handles state document requests
type StateHandler struct {
	stateService ports.StateService
	logger       *logger.Logger
}

// NewStateHandler creates a new state handler
func NewStateHandler(stateService ports.StateService, logger *logger.Logger) *StateHandler {
	return &StateHandler{
		stateService: stateService,
		logger:       logger,
	}
}

// GetState returns the current document snapshot
func (h *StateHandler) GetState(c echo.Context) error {
	return c.JSON(http.StatusOK, h.stateService.Snapshot(c.Request().Context()))
}

// SetLoginKey replaces the stored session-resumption credential
func (h *StateHandler) SetLoginKey(c echo.Context) error {
	var req ports.SetLoginKeyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	return c.JSON(http.StatusOK, h.stateService.SetLoginKey(c.Request().Context(), req))
}

// ClearLoginKey drops the stored session-resumption credential
func (h *StateHandler) ClearLoginKey(c echo.Context) error {
	return c.JSON(http.StatusOK, h.stateService.ClearLoginKey(c.Request().Context()))
}

// CorrectDeviceID fixes the device identifier of the attached authenticator
func (h *StateHandler) CorrectDeviceID(c echo.Context) error {
	var req ports.CorrectDeviceIDRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.stateService.CorrectAuthenticatorDeviceID(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, entities.ErrAuthenticatorMissing) {
			return echo.NewHTTPError(http.StatusConflict, "No authenticator attached")
		}
		h.logger.Errorw("Device ID correction failed", "error", err.Error())
		return echo.NewHTTPError(http.StatusInternalServerError, "Device ID correction failed")
	}

	return c.JSON(http.StatusOK, res)
}

// MutateIDSet adds to or removes from one of the document's ID sets. The
// HTTP method selects the operation: POST adds, DELETE removes.
func (h *StateHandler) MutateIDSet(c echo.Context) error {
	set := entities.IDSet(c.Param("set"))
	if !set.IsValid() {
		return echo.NewHTTPError(http.StatusNotFound, "Unknown state set")
	}

	op := ports.MutationOpAdd
	if c.Request().Method == http.MethodDelete {
		op = ports.MutationOpRemove
	}

	var req ports.MutateIDSetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.stateService.MutateIDSet(c.Request().Context(), set, op, req)
	if err != nil {
		switch {
		case errors.Is(err, entities.ErrNoIDsProvided), errors.Is(err, entities.ErrIDOutOfRange):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, entities.ErrUnknownIDSet):
			return echo.NewHTTPError(http.StatusNotFound, "Unknown state set")
		default:
			h.logger.Errorw("State mutation failed", "error", err.Error(), "set", string(set))
			return echo.NewHTTPError(http.StatusInternalServerError, "State mutation failed")
		}
	}

	return c.JSON(http.StatusOK, res)
}

// ConfigHandler serves the effective config document
type ConfigHandler struct {
	cfg    *config.Config
	logger *logger.Logger
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, logger *logger.Logger) *ConfigHandler {
	return &ConfigHandler{
		cfg:    cfg,
		logger: logger,
	}
}

// ConfigView is the redacted config representation served over IPC.
// The IPC password never appears here, only whether auth is on.
type ConfigView struct {
	MaxConcurrentSessions int                       `json:"max_concurrent_sessions"`
	ConnectionTimeout     string                    `json:"connection_timeout"`
	FarmingDelay          string                    `json:"farming_delay"`
	UpdateChannel         entities.UpdateChannel    `json:"update_channel"`
	OptimizationMode      entities.OptimizationMode `json:"optimization_mode"`
	Protocols             string                    `json:"protocols"`
	IPCAddr               string                    `json:"ipc_addr"`
	IPCAuthEnabled        bool                      `json:"ipc_auth_enabled"`
	Blacklist             []uint32                  `json:"blacklist"`
	OwnerID               string                    `json:"s_owner_id,omitempty"`
	Debug                 bool                      `json:"debug"`
}

// GetConfig returns the effective, redacted config document
func (h *ConfigHandler) GetConfig(c echo.Context) error {
	view := ConfigView{
		MaxConcurrentSessions: h.cfg.MaxConcurrentSessions(),
		ConnectionTimeout:     h.cfg.ConnectionTimeout().String(),
		FarmingDelay:          h.cfg.FarmingDelay().String(),
		UpdateChannel:         h.cfg.UpdateChannel(),
		OptimizationMode:      h.cfg.OptimizationMode(),
		Protocols:             h.cfg.Protocols().String(),
		IPCAddr:               h.cfg.IPCAddr(),
		IPCAuthEnabled:        h.cfg.IPCAuthEnabled(),
		Blacklist:             h.cfg.Blacklist(),
		Debug:                 h.cfg.Debug(),
	}
	if h.cfg.HasOwner() {
		view.OwnerID = strconv.FormatUint(h.cfg.OwnerID(), 10)
	}

	return c.JSON(http.StatusOK, view)
}
