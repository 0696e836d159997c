package entities

import (
	"errors"
	"strings"
)

// Common errors
var (
	ErrNoIDsProvided        = errors.New("no ids provided")
	ErrIDOutOfRange         = errors.New("id out of range for target set")
	ErrUnknownIDSet         = errors.New("unknown id set")
	ErrAuthenticatorMissing = errors.New("no authenticator attached")
)

// Enums and types
type UpdateChannel string

const (
	UpdateChannelNone         UpdateChannel = "none"
	UpdateChannelStable       UpdateChannel = "stable"
	UpdateChannelExperimental UpdateChannel = "experimental"
)

type OptimizationMode string

const (
	OptimizationModeBalanced       OptimizationMode = "balanced"
	OptimizationModeMinMemory      OptimizationMode = "min-memory"
	OptimizationModeMaxPerformance OptimizationMode = "max-performance"
)

type PasswordFormat string

const (
	PasswordFormatPlaintext PasswordFormat = "plaintext"
	PasswordFormatBcrypt    PasswordFormat = "bcrypt"
)

// Protocol is a bitmask of transports the agent may use to reach the
// remote platform.
type Protocol uint8

const (
	ProtocolTCP Protocol = 1 << iota
	ProtocolUDP
	ProtocolWebSocket
)

const (
	ProtocolsAll     = ProtocolTCP | ProtocolUDP | ProtocolWebSocket
	ProtocolsDefault = ProtocolTCP | ProtocolWebSocket
)

// IDSet names the mutable ID collections of the state document as they
// are addressed over IPC.
type IDSet string

const (
	IDSetIdlingPriority  IDSet = "idling-priority"
	IDSetIdlingBlacklist IDSet = "idling-blacklist"
	IDSetTradeBlacklist  IDSet = "trade-blacklist"
)

// DeviceIDPrefix is the platform-mandated prefix of authenticator device
// identifiers.
const DeviceIDPrefix = "android:"

// Authenticator holds the mobile authenticator secrets tied to an account.
// It persists inside the state document and is never exposed over IPC.
// Instances are not safe for concurrent use; the owning store serializes
// access.
type Authenticator struct {
	SharedSecret   string `json:"shared_secret"`
	IdentitySecret string `json:"identity_secret"`
	DeviceID       string `json:"device_id,omitempty"`
}

// Business logic methods for Authenticator

// IsComplete reports whether both secrets are present.
func (a *Authenticator) IsComplete() bool {
	return a.SharedSecret != "" && a.IdentitySecret != ""
}

// HasValidDeviceID reports whether the stored device identifier carries
// the platform-mandated prefix.
func (a *Authenticator) HasValidDeviceID() bool {
	return strings.HasPrefix(a.DeviceID, DeviceIDPrefix) && len(a.DeviceID) > len(DeviceIDPrefix)
}

// CorrectDeviceID normalizes deviceID and stores it if it differs from the
// current value. It reports whether anything changed. Blank input changes
// nothing.
func (a *Authenticator) CorrectDeviceID(deviceID string) bool {
	deviceID = strings.ToLower(strings.TrimSpace(deviceID))
	if deviceID == "" || a.DeviceID == deviceID {
		return false
	}

	a.DeviceID = deviceID
	return true
}

// Utility methods
func (uc UpdateChannel) IsValid() bool {
	switch uc {
	case UpdateChannelNone, UpdateChannelStable, UpdateChannelExperimental:
		return true
	default:
		return false
	}
}

func (om OptimizationMode) IsValid() bool {
	switch om {
	case OptimizationModeBalanced, OptimizationModeMinMemory, OptimizationModeMaxPerformance:
		return true
	default:
		return false
	}
}

func (pf PasswordFormat) IsValid() bool {
	switch pf {
	case PasswordFormatPlaintext, PasswordFormatBcrypt:
		return true
	default:
		return false
	}
}

func (p Protocol) IsValid() bool {
	return p != 0 && p&^ProtocolsAll == 0
}

// Has reports whether the mask includes the given transport.
func (p Protocol) Has(flag Protocol) bool {
	return p&flag != 0
}

func (p Protocol) String() string {
	if p == 0 {
		return "none"
	}

	var parts []string
	if p.Has(ProtocolTCP) {
		parts = append(parts, "tcp")
	}
	if p.Has(ProtocolUDP) {
		parts = append(parts, "udp")
	}
	if p.Has(ProtocolWebSocket) {
		parts = append(parts, "websocket")
	}
	return strings.Join(parts, "|")
}

func (s IDSet) IsValid() bool {
	switch s {
	case IDSetIdlingPriority, IDSetIdlingBlacklist, IDSetTradeBlacklist:
		return true
	default:
		return false
	}
}
