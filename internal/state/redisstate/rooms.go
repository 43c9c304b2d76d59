package redisstate

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/storyhub/internal/state"
)

// removeAllScript drops a user from the listed rooms and from its reverse index.
// KEYS[1] = user rooms key, KEYS[2..n] = room keys.
// ARGV[1] = user id, ARGV[2..n] = story ids matching KEYS[2..n].
// Every key is declared, so on Redis Cluster a hash-tagged prefix such as
// "{storyhub}:" keeps them in one slot.
var removeAllScript = redis.NewScript(`
local removed = {}
for i = 2, #KEYS do
	if redis.call('SREM', KEYS[1], ARGV[i]) == 1 then
		redis.call('SREM', KEYS[i], ARGV[1])
		table.insert(removed, ARGV[i])
	end
end
return removed
`)

// Rooms implements state.Rooms on Redis.
//
// Keys:
//
//	<prefix>room:<storyID>        set  user ids joined to the room
//	<prefix>user:<userID>:rooms   set  story ids the user is joined to
//
// Redis deletes a set when its last member is removed, so empty rooms vanish on their own.
type Rooms struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRooms creates a Redis-backed membership table.
func NewRooms(rdb redis.UniversalClient, prefix string) *Rooms {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Rooms{rdb: rdb, prefix: prefix}
}

var _ state.Rooms = (*Rooms)(nil)

func (r *Rooms) roomPrefix() string                { return r.prefix + "room:" }
func (r *Rooms) roomKey(storyID string) string     { return r.roomPrefix() + storyID }
func (r *Rooms) userRoomsKey(userID string) string { return r.prefix + "user:" + userID + ":rooms" }

func (r *Rooms) Join(ctx context.Context, storyID, userID string) (bool, error) {
	var added *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, r.roomKey(storyID), userID)
		pipe.SAdd(ctx, r.userRoomsKey(userID), storyID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("join room: %w", err)
	}
	return added.Val() == 0, nil
}

func (r *Rooms) Leave(ctx context.Context, storyID, userID string) (bool, error) {
	var remaining *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, r.roomKey(storyID), userID)
		pipe.SRem(ctx, r.userRoomsKey(userID), storyID)
		remaining = pipe.SCard(ctx, r.roomKey(storyID))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("leave room: %w", err)
	}
	return remaining.Val() == 0, nil
}

func (r *Rooms) MembersOf(ctx context.Context, storyID string) ([]string, error) {
	members, err := r.rdb.SMembers(ctx, r.roomKey(storyID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

func (r *Rooms) IsMember(ctx context.Context, storyID, userID string) (bool, error) {
	ok, err := r.rdb.SIsMember(ctx, r.roomKey(storyID), userID).Result()
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return ok, nil
}

func (r *Rooms) RemoveUserFromAllRooms(ctx context.Context, userID string) ([]string, error) {
	var removed []string
	for {
		stories, err := r.rdb.SMembers(ctx, r.userRoomsKey(userID)).Result()
		if err != nil {
			return nil, fmt.Errorf("list user rooms: %w", err)
		}
		if len(stories) == 0 {
			return removed, nil
		}

		keys := make([]string, 0, len(stories)+1)
		args := make([]any, 0, len(stories)+1)
		keys = append(keys, r.userRoomsKey(userID))
		args = append(args, userID)
		for _, storyID := range stories {
			keys = append(keys, r.roomKey(storyID))
			args = append(args, storyID)
		}

		got, err := removeAllScript.Run(ctx, r.rdb, keys, args...).StringSlice()
		if err != nil {
			return nil, fmt.Errorf("remove user from rooms: %w", err)
		}
		removed = append(removed, got...)
	}
}
