package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jobmanager "github.com/UniQw/jobmanager-go"
	"github.com/UniQw/jobmanager-go/groupsync"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noGroups struct{}

func (noGroups) Lookup(context.Context, groupsync.GroupID) (groupsync.GroupRecord, bool, error) {
	return groupsync.GroupRecord{}, false, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *jobmanager.Manager, *jobmanager.ReachabilityFlag) {
	t.Helper()
	flag := jobmanager.NewReachabilityFlag(false)
	deps := groupsync.Deps{Groups: noGroups{}}
	reg := jobmanager.NewRegistry()
	groupsync.Register(reg, deps)
	// never started, so added jobs stay pending
	m := jobmanager.NewManager(jobmanager.NewMemoryStore(), reg, jobmanager.ManagerConfig{},
		jobmanager.WithConstraint(jobmanager.NewNetworkConstraint(flag)))

	s := NewServer(m, func(id groupsync.GroupID, rev int) (jobmanager.Job, error) {
		return groupsync.NewRequestGroupInfoJob(deps, id, rev)
	}, flag, zerolog.Nop())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, m, flag
}

func v2ID() string {
	return "__signal_group__v2__!" + strings.Repeat("ab", 32)
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, sonic.ConfigDefault.NewDecoder(resp.Body).Decode(v))
}

func TestServer_Healthz(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/groups/"+v2ID()+"/sync", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Status  string `json:"status"`
		Queued  int    `json:"queued"`
		Workers int    `json:"workers"`
		Network bool   `json:"network"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Queued)
	assert.Equal(t, 1, body.Workers)
	assert.False(t, body.Network)
}

func TestServer_SyncGroupAndListJobs(t *testing.T) {
	ts, m, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/groups/"+v2ID()+"/sync?revision=5", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var created struct {
		ID       string `json:"id"`
		GroupID  string `json:"group_id"`
		Revision int    `json:"revision"`
	}
	decode(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, v2ID(), created.GroupID)
	assert.Equal(t, 5, created.Revision)

	resp, err = http.Post(ts.URL+"/groups/"+v2ID()+"/sync", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	decode(t, resp, &created)
	assert.Equal(t, groupsync.Latest, created.Revision)

	jobs := m.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, groupsync.QueueKey, jobs[0].Queue)

	resp, err = http.Get(ts.URL + "/jobs")
	require.NoError(t, err)
	var listed []jobmanager.JobInfo
	decode(t, resp, &listed)
	require.Len(t, listed, 2)
	assert.Equal(t, jobs[0].ID, listed[0].ID)
	assert.Equal(t, jobmanager.StatePending, listed[0].State)

	resp, err = http.Get(ts.URL + "/jobs/" + jobs[1].ID)
	require.NoError(t, err)
	var one jobmanager.JobInfo
	decode(t, resp, &one)
	assert.Equal(t, groupsync.FactoryKey, one.FactoryKey)
	assert.WithinDuration(t, time.Now(), one.CreatedAt, time.Minute)

	resp, err = http.Get(ts.URL + "/jobs/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_SyncGroupRejectsBadInput(t *testing.T) {
	ts, m, _ := newTestServer(t)
	paths := []string{
		"/groups/nope/sync",
		"/groups/" + v2ID() + "/sync?revision=-1",
		"/groups/" + v2ID() + "/sync?revision=x",
		"/groups/__signal_mms_group__!" + strings.Repeat("01", 16) + "/sync",
	}
	for _, p := range paths {
		resp, err := http.Post(ts.URL+p, "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, p)
	}
	assert.Empty(t, m.Jobs())
}

func TestServer_Network(t *testing.T) {
	ts, _, flag := newTestServer(t)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/network", strings.NewReader(`{"available": true}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, flag.IsNetworkAvailable())

	resp, err = http.Get(ts.URL + "/network")
	require.NoError(t, err)
	var st struct {
		Available bool `json:"available"`
	}
	decode(t, resp, &st)
	assert.True(t, st.Available)

	req, err = http.NewRequest(http.MethodPut, ts.URL+"/network", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
