package groupsync

import "errors"

// Errors a GroupUpdater may return. ErrNetwork and ErrNoCredentialForRedemptionTime
// are transient; the rest are terminal for a sync job.
var (
	// ErrVerificationFailed is returned when remote group state fails verification.
	ErrVerificationFailed = errors.New("groupsync: verification failed")
	// ErrInvalidGroupState is returned when remote group state is malformed or inconsistent.
	ErrInvalidGroupState = errors.New("groupsync: invalid group state")
	// ErrNetwork is returned when the group service cannot be reached.
	ErrNetwork = errors.New("groupsync: network error")
	// ErrNoCredentialForRedemptionTime is returned when no auth credential covers the current time window yet.
	ErrNoCredentialForRedemptionTime = errors.New("groupsync: no credential for redemption time")
	// ErrGroupNotFound is returned when a group is missing from the local store.
	ErrGroupNotFound = errors.New("groupsync: group not found")
	// ErrInvalidGroupID is returned when a group identifier cannot be parsed.
	ErrInvalidGroupID = errors.New("groupsync: invalid group id")
)
