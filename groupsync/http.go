package groupsync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jobmanager "github.com/UniQw/jobmanager-go"
	"github.com/bytedance/sonic"
)

// LocalGroups is the local store an HTTPProcessor applies fetched state to.
type LocalGroups interface {
	GroupStore
	Advance(ctx context.Context, id GroupID, revision int, title string) (bool, error)
}

// HTTPProcessor is a StateProcessor backed by a JSON group service.
//
// It fetches GET {base}/v2/groups/{id}[?revision=N], which answers with
// {"revision": R, "title": "..."}, and applies R to the local store.
type HTTPProcessor struct {
	base   string
	client *http.Client
	groups LocalGroups
	log    jobmanager.Logger
}

// HTTPOption configures an HTTPProcessor.
type HTTPOption func(*HTTPProcessor)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProcessor) { p.client = c }
}

// WithProcessorLogger sets the logger.
func WithProcessorLogger(l jobmanager.Logger) HTTPOption {
	return func(p *HTTPProcessor) { p.log = l }
}

// NewHTTPProcessor fetches group state from base and applies it to groups.
func NewHTTPProcessor(base string, groups LocalGroups, opts ...HTTPOption) *HTTPProcessor {
	p := &HTTPProcessor{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 10 * time.Second},
		groups: groups,
		log:    jobmanager.NewFmtLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ForGroup returns an updater bound to the group derived from key.
func (p *HTTPProcessor) ForGroup(key MasterKey) GroupUpdater {
	return &httpUpdater{p: p, key: key}
}

type httpUpdater struct {
	p   *HTTPProcessor
	key MasterKey
}

type groupState struct {
	Revision *int   `json:"revision"`
	Title    string `json:"title"`
}

func (u *httpUpdater) UpdateLocalGroupToRevision(ctx context.Context, revision int, at time.Time) error {
	id := u.key.GroupID()
	local, ok, err := u.p.groups.Lookup(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	if revision != Latest && local.Revision >= revision {
		u.p.log.Debugf("group already at revision: group=%s local=%d want=%d", id, local.Revision, revision)
		return nil
	}

	st, err := u.fetch(ctx, id, revision, at)
	if err != nil {
		return err
	}
	target := revision
	if revision == Latest {
		target = *st.Revision
	} else if *st.Revision < revision {
		return fmt.Errorf("%w: server at revision %d, want %d", ErrInvalidGroupState, *st.Revision, revision)
	}

	applied, err := u.p.groups.Advance(ctx, id, target, st.Title)
	if err != nil {
		return err
	}
	if applied {
		u.p.log.Infof("group updated: group=%s from=%d to=%d", id, local.Revision, target)
	}
	return nil
}

func (u *httpUpdater) fetch(ctx context.Context, id GroupID, revision int, at time.Time) (*groupState, error) {
	endpoint := u.p.base + "/v2/groups/" + url.PathEscape(id.String())
	if revision != Latest {
		endpoint += "?revision=" + strconv.Itoa(revision)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("groupsync: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	// credentials are issued per day
	req.Header.Set("X-Redemption-Day", strconv.FormatInt(at.UTC().Unix()/86400, 10))

	resp, err := u.p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}
	if err := statusError(resp.StatusCode); err != nil {
		return nil, fmt.Errorf("%w: %s %s", err, resp.Status, strings.TrimSpace(string(body)))
	}

	var st groupState
	if err := sonic.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidGroupState, err)
	}
	if st.Revision == nil || *st.Revision < 0 {
		return nil, fmt.Errorf("%w: missing revision", ErrInvalidGroupState)
	}
	return &st, nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return ErrNoCredentialForRedemptionTime
	case code == http.StatusForbidden:
		return ErrVerificationFailed
	case code == http.StatusTooManyRequests || code >= 500:
		return ErrNetwork
	default:
		return ErrInvalidGroupState
	}
}
