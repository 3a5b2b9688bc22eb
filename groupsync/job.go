package groupsync

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	jobmanager "github.com/UniQw/jobmanager-go"
)

const (
	// FactoryKey identifies RequestGroupInfoJob records.
	FactoryKey = "RequestGroupV2InfoJob"

	// QueueKey is the lane shared by every job that changes local group state,
	// so no two of them ever interleave.
	QueueKey = "GroupStateProcessing"

	// Latest asks for the newest revision known to the server.
	Latest = math.MaxInt32

	keyGroupID    = "group_id"
	keyToRevision = "to_revision"
)

// Deps are the collaborators of a RequestGroupInfoJob.
type Deps struct {
	Groups    GroupStore
	Processor StateProcessor
	Logger    jobmanager.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = jobmanager.NewFmtLogger()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// DefaultParameters requires the network, retries without limit for a day and
// runs in QueueKey.
func DefaultParameters() jobmanager.Parameters {
	return jobmanager.NewParametersBuilder().
		AddConstraint(jobmanager.NetworkConstraintKey).
		SetLifespan(24 * time.Hour).
		SetMaxAttempts(jobmanager.Unlimited).
		SetQueue(QueueKey).
		MustBuild()
}

// RequestGroupInfoJob brings the local copy of a V2 group up to a revision.
type RequestGroupInfoJob struct {
	params     jobmanager.Parameters
	groupID    GroupID
	toRevision int
	deps       Deps
}

// NewRequestGroupInfoJob creates a job syncing id to toRevision.
func NewRequestGroupInfoJob(deps Deps, id GroupID, toRevision int) (*RequestGroupInfoJob, error) {
	return newJob(DefaultParameters(), deps, id, toRevision)
}

// NewLatestGroupInfoJob creates a job syncing id to the latest server revision.
func NewLatestGroupInfoJob(deps Deps, id GroupID) (*RequestGroupInfoJob, error) {
	return NewRequestGroupInfoJob(deps, id, Latest)
}

func newJob(params jobmanager.Parameters, deps Deps, id GroupID, toRevision int) (*RequestGroupInfoJob, error) {
	v2, err := id.RequireV2()
	if err != nil {
		return nil, err
	}
	if toRevision < 0 {
		return nil, fmt.Errorf("groupsync: negative revision %d", toRevision)
	}
	return &RequestGroupInfoJob{
		params:     params,
		groupID:    v2,
		toRevision: toRevision,
		deps:       deps.withDefaults(),
	}, nil
}

// GroupID is the group to synchronize.
func (j *RequestGroupInfoJob) GroupID() GroupID { return j.groupID }

// ToRevision is the target revision, or Latest.
func (j *RequestGroupInfoJob) ToRevision() int { return j.toRevision }

// FactoryKey implements jobmanager.Job.
func (j *RequestGroupInfoJob) FactoryKey() string { return FactoryKey }

// Parameters implements jobmanager.Job.
func (j *RequestGroupInfoJob) Parameters() jobmanager.Parameters { return j.params }

// Serialize stores the group ID and the target revision.
func (j *RequestGroupInfoJob) Serialize() jobmanager.Data {
	return jobmanager.NewDataBuilder().
		PutString(keyGroupID, j.groupID.String()).
		PutInt(keyToRevision, j.toRevision).
		Build()
}

// Run skips groups that are no longer stored locally.
func (j *RequestGroupInfoJob) Run(ctx context.Context) error {
	log := j.deps.Logger
	log.Infof("Updating group to revision %d: group=%s", j.toRevision, j.groupID)

	rec, ok, err := j.deps.Groups.Lookup(ctx, j.groupID)
	if err != nil {
		return fmt.Errorf("groupsync: lookup %s: %w", j.groupID, err)
	}
	if !ok {
		log.Warnf("Group not found: group=%s", j.groupID)
		return nil
	}
	return j.deps.Processor.ForGroup(rec.MasterKey).UpdateLocalGroupToRevision(ctx, j.toRevision, j.deps.Now())
}

// ShouldRetry retries network failures and missing credentials only.
func (j *RequestGroupInfoJob) ShouldRetry(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrNoCredentialForRedemptionTime)
}

// OnFailure logs the abandoned sync.
func (j *RequestGroupInfoJob) OnFailure(context.Context) {
	j.deps.Logger.Warnf("group sync abandoned: group=%s revision=%d", j.groupID, j.toRevision)
}

// Factory rebuilds RequestGroupInfoJob records with deps.
func Factory(deps Deps) jobmanager.Factory {
	return func(params jobmanager.Parameters, data jobmanager.Data) (jobmanager.Job, error) {
		raw, err := data.GetString(keyGroupID)
		if err != nil {
			return nil, err
		}
		rev, err := data.GetInt(keyToRevision)
		if err != nil {
			return nil, err
		}
		id, err := ParseGroupID(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", jobmanager.ErrMalformedPayload, err)
		}
		job, err := newJob(params, deps, id, rev)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", jobmanager.ErrMalformedPayload, err)
		}
		return job, nil
	}
}

// Register installs Factory(deps) under FactoryKey.
func Register(reg *jobmanager.Registry, deps Deps) {
	reg.Register(FactoryKey, Factory(deps))
}
