package groupsync

import (
	"context"
	"time"
)

// GroupRecord is the locally known state of a group.
type GroupRecord struct {
	ID        GroupID
	MasterKey MasterKey
	Revision  int
	Title     string
}

// GroupStore is the local group database. Lookup never touches the network.
type GroupStore interface {
	Lookup(ctx context.Context, id GroupID) (GroupRecord, bool, error)
}

// StateProcessor advances local group state towards the authoritative server state.
type StateProcessor interface {
	ForGroup(key MasterKey) GroupUpdater
}

// GroupUpdater updates one group. Updating to a revision the group has
// already reached must succeed without changes. revision may be Latest.
type GroupUpdater interface {
	UpdateLocalGroupToRevision(ctx context.Context, revision int, at time.Time) error
}
