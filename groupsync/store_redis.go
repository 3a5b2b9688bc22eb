package groupsync

import (
	"context"
	"fmt"
	"strconv"

	ikeys "github.com/UniQw/jobmanager-go/internal/keys"
	"github.com/redis/go-redis/v9"
)

// advanceScript moves a group forward to ARGV[1]. It returns -1 when the group
// is missing, 0 when it is already at or past the revision and 1 when applied.
var advanceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return -1 end
local cur = tonumber(redis.call('HGET', KEYS[1], 'revision') or '0')
local rev = tonumber(ARGV[1])
if cur >= rev then return 0 end
redis.call('HSET', KEYS[1], 'revision', rev, 'title', ARGV[2])
return 1
`)

// RedisGroupStore keeps one HASH per group.
type RedisGroupStore struct {
	rdb redis.UniversalClient
}

// NewRedisGroupStore returns a RedisGroupStore backed by rdb.
func NewRedisGroupStore(rdb redis.UniversalClient) *RedisGroupStore {
	return &RedisGroupStore{rdb: rdb}
}

// Lookup returns the stored group, or false if it is unknown.
func (s *RedisGroupStore) Lookup(ctx context.Context, id GroupID) (GroupRecord, bool, error) {
	h, err := s.rdb.HGetAll(ctx, ikeys.Group(id.String())).Result()
	if err != nil {
		return GroupRecord{}, false, fmt.Errorf("groupsync/redis: lookup %s: %w", id, err)
	}
	if len(h) == 0 {
		return GroupRecord{}, false, nil
	}
	key, err := ParseMasterKey(h["master_key"])
	if err != nil {
		return GroupRecord{}, false, fmt.Errorf("groupsync/redis: group %s: %w", id, err)
	}
	rev, err := strconv.Atoi(h["revision"])
	if err != nil {
		return GroupRecord{}, false, fmt.Errorf("groupsync/redis: group %s revision: %w", id, err)
	}
	return GroupRecord{ID: id, MasterKey: key, Revision: rev, Title: h["title"]}, true, nil
}

// Save creates or replaces a group.
func (s *RedisGroupStore) Save(ctx context.Context, g GroupRecord) error {
	err := s.rdb.HSet(ctx, ikeys.Group(g.ID.String()),
		"master_key", g.MasterKey.String(),
		"revision", g.Revision,
		"title", g.Title,
	).Err()
	if err != nil {
		return fmt.Errorf("groupsync/redis: save %s: %w", g.ID, err)
	}
	return nil
}

// Advance raises the stored revision to revision. It reports false when the
// group was already at or past it and ErrGroupNotFound when it is not stored.
func (s *RedisGroupStore) Advance(ctx context.Context, id GroupID, revision int, title string) (bool, error) {
	n, err := advanceScript.Run(ctx, s.rdb, []string{ikeys.Group(id.String())}, revision, title).Int()
	if err != nil {
		return false, fmt.Errorf("groupsync/redis: advance %s: %w", id, err)
	}
	if n < 0 {
		return false, fmt.Errorf("%w: %s", ErrGroupNotFound, id)
	}
	return n == 1, nil
}
