package ports

import (
	"github.com/wardenhq/core/internal/domain/entities"
)

// StateRepository is the persisted state document as the application layer
// sees it. Implementations persist every effective mutation themselves;
// mutating methods report whether anything actually changed.
type StateRepository interface {
	InstanceID() string

	HasLoginKey() bool
	LoginKey() string
	SetLoginKey(key string) bool

	HasAuthenticator() bool
	Authenticator() (entities.Authenticator, bool)
	SetAuthenticator(a entities.Authenticator) bool
	ClearAuthenticator() bool
	CorrectAuthenticatorDeviceID(deviceID string) bool

	AddIdlingPriorityAppIDs(appIDs ...uint32) bool
	RemoveIdlingPriorityAppIDs(appIDs ...uint32) bool
	AddIdlingBlacklistedAppIDs(appIDs ...uint32) bool
	RemoveIdlingBlacklistedAppIDs(appIDs ...uint32) bool
	AddBlacklistedTradePartnerIDs(ids ...uint64) bool
	RemoveBlacklistedTradePartnerIDs(ids ...uint64) bool

	IsIdlingPriority(appID uint32) bool
	IsIdlingBlacklisted(appID uint32) bool
	IsBlacklistedTradePartner(id uint64) bool

	IdlingPriorityAppIDs() []uint32
	IdlingBlacklistedAppIDs() []uint32
	BlacklistedTradePartnerIDs() []uint64
}
