package ports

import (
	"context"

	"github.com/wardenhq/core/internal/domain/entities"
)

// StateService interface for IPC operations on the state document
type StateService interface {
	Snapshot(ctx context.Context) StateSnapshot
	SetLoginKey(ctx context.Context, req SetLoginKeyRequest) *ChangeResult
	ClearLoginKey(ctx context.Context) *ChangeResult
	CorrectAuthenticatorDeviceID(ctx context.Context, req CorrectDeviceIDRequest) (*ChangeResult, error)
	MutateIDSet(ctx context.Context, set entities.IDSet, op MutationOp, req MutateIDSetRequest) (*SetMutationResult, error)
}

// MutationOp distinguishes the two bulk set operations.
type MutationOp string

const (
	MutationOpAdd    MutationOp = "add"
	MutationOpRemove MutationOp = "remove"
)

// Request/Response Types

type SetLoginKeyRequest struct {
	LoginKey string `json:"login_key" validate:"required,min=1,max=512"`
}

type CorrectDeviceIDRequest struct {
	DeviceID string `json:"device_id" validate:"required,max=128"`
}

type MutateIDSetRequest struct {
	IDs []uint64 `json:"ids" validate:"required,min=1,max=1000,dive,gt=0"`
}

// StateSnapshot is the read-only view of the state document served over
// IPC. Credentials never leave the process; only their presence does.
type StateSnapshot struct {
	InstanceID                 string   `json:"instance_id"`
	HasLoginKey                bool     `json:"has_login_key"`
	HasAuthenticator           bool     `json:"has_authenticator"`
	IdlingPriorityAppIDs       []uint32 `json:"idling_priority_app_ids"`
	IdlingBlacklistedAppIDs    []uint32 `json:"idling_blacklisted_app_ids"`
	BlacklistedTradePartnerIDs []uint64 `json:"blacklisted_trade_partner_ids"`
}

// ChangeResult reports whether a scalar mutation changed anything.
type ChangeResult struct {
	Changed bool `json:"changed"`
}

// SetMutationResult reports the outcome of a bulk set mutation.
type SetMutationResult struct {
	Set     entities.IDSet `json:"set"`
	Op      MutationOp     `json:"op"`
	Changed bool           `json:"changed"`
	Size    int            `json:"size"`
}
