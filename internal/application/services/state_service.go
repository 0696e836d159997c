package services

import (
	"context"
	"fmt"
	"math"

	"github.com/wardenhq/core/internal/domain/entities"
	"github.com/wardenhq/core/internal/infrastructure/logger"
	"github.com/wardenhq/core/internal/ports"
)

// StateService handles IPC operations on the state document
type StateService struct {
	repo   ports.StateRepository
	logger *logger.Logger
}

// NewStateService creates a new state service
func NewStateService(repo ports.StateRepository, logger *logger.Logger) *StateService {
	return &StateService{
		repo:   repo,
		logger: logger,
	}
}

// Snapshot returns the IPC view of the current document
func (s *StateService) Snapshot(ctx context.Context) ports.StateSnapshot {
	return ports.StateSnapshot{
		InstanceID:                 s.repo.InstanceID(),
		HasLoginKey:                s.repo.HasLoginKey(),
		HasAuthenticator:           s.repo.HasAuthenticator(),
		IdlingPriorityAppIDs:       s.repo.IdlingPriorityAppIDs(),
		IdlingBlacklistedAppIDs:    s.repo.IdlingBlacklistedAppIDs(),
		BlacklistedTradePartnerIDs: s.repo.BlacklistedTradePartnerIDs(),
	}
}

// SetLoginKey stores a new session-resumption credential
func (s *StateService) SetLoginKey(ctx context.Context, req ports.SetLoginKeyRequest) *ports.ChangeResult {
	changed := s.repo.SetLoginKey(req.LoginKey)
	s.logger.Infow("Login key updated", "changed", changed)
	return &ports.ChangeResult{Changed: changed}
}

// ClearLoginKey drops the stored session-resumption credential
func (s *StateService) ClearLoginKey(ctx context.Context) *ports.ChangeResult {
	changed := s.repo.SetLoginKey("")
	s.logger.Infow("Login key cleared", "changed", changed)
	return &ports.ChangeResult{Changed: changed}
}

// CorrectAuthenticatorDeviceID fixes the device identifier of the attached
// authenticator
func (s *StateService) CorrectAuthenticatorDeviceID(ctx context.Context, req ports.CorrectDeviceIDRequest) (*ports.ChangeResult, error) {
	if !s.repo.HasAuthenticator() {
		return nil, entities.ErrAuthenticatorMissing
	}

	changed := s.repo.CorrectAuthenticatorDeviceID(req.DeviceID)
	s.logger.Infow("Authenticator device ID corrected", "changed", changed)
	return &ports.ChangeResult{Changed: changed}, nil
}

// MutateIDSet applies a bulk add or remove to one of the document's ID sets
func (s *StateService) MutateIDSet(ctx context.Context, set entities.IDSet, op ports.MutationOp, req ports.MutateIDSetRequest) (*ports.SetMutationResult, error) {
	switch op {
	case ports.MutationOpAdd, ports.MutationOpRemove:
	default:
		return nil, fmt.Errorf("unknown mutation op %q", op)
	}
	if len(req.IDs) == 0 {
		return nil, entities.ErrNoIDsProvided
	}

	add := op == ports.MutationOpAdd

	var changed bool
	var size int

	switch set {
	case entities.IDSetTradeBlacklist:
		if add {
			changed = s.repo.AddBlacklistedTradePartnerIDs(req.IDs...)
		} else {
			changed = s.repo.RemoveBlacklistedTradePartnerIDs(req.IDs...)
		}
		size = len(s.repo.BlacklistedTradePartnerIDs())

	case entities.IDSetIdlingPriority, entities.IDSetIdlingBlacklist:
		appIDs, err := narrowToAppIDs(req.IDs)
		if err != nil {
			return nil, err
		}
		if set == entities.IDSetIdlingPriority {
			if add {
				changed = s.repo.AddIdlingPriorityAppIDs(appIDs...)
			} else {
				changed = s.repo.RemoveIdlingPriorityAppIDs(appIDs...)
			}
			size = len(s.repo.IdlingPriorityAppIDs())
		} else {
			if add {
				changed = s.repo.AddIdlingBlacklistedAppIDs(appIDs...)
			} else {
				changed = s.repo.RemoveIdlingBlacklistedAppIDs(appIDs...)
			}
			size = len(s.repo.IdlingBlacklistedAppIDs())
		}

	default:
		return nil, entities.ErrUnknownIDSet
	}

	s.logger.Infow("State set mutated",
		"set", set,
		"op", op,
		"ids", len(req.IDs),
		"changed", changed,
	)

	return &ports.SetMutationResult{
		Set:     set,
		Op:      op,
		Changed: changed,
		Size:    size,
	}, nil
}

// narrowToAppIDs converts IPC-carried 64-bit IDs into app IDs, rejecting
// values that do not fit.
func narrowToAppIDs(ids []uint64) ([]uint32, error) {
	appIDs := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if id > math.MaxUint32 {
			return nil, fmt.Errorf("%w: %d", entities.ErrIDOutOfRange, id)
		}
		appIDs = append(appIDs, uint32(id))
	}
	return appIDs, nil
}
