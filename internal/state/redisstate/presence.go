// Package redisstate stores presence and room membership in Redis so that
// several hub instances share one view of who is connected where.
package redisstate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/state"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "storyhub:"

// registerScript writes the identity hash and the user's connection index in one step.
// KEYS[1] = connection hash, KEYS[2] = user connections set.
// ARGV = user id, name, role, age, connection id.
var registerScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'user_id', ARGV[1], 'name', ARGV[2], 'role', ARGV[3], 'age', ARGV[4])
redis.call('SADD', KEYS[2], ARGV[5])
return 1
`)

// Presence implements state.Presence on Redis.
//
// Keys:
//
//	<prefix>conn:<connID>         hash  identity fields
//	<prefix>conn:<connID>:joined  set   story ids joined by the connection
//	<prefix>user:<userID>:conns   set   live connection ids
type Presence struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewPresence creates a Redis-backed presence registry.
func NewPresence(rdb redis.UniversalClient, prefix string) *Presence {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Presence{rdb: rdb, prefix: prefix}
}

var _ state.Presence = (*Presence)(nil)

func (p *Presence) connKey(connID string) string   { return p.prefix + "conn:" + connID }
func (p *Presence) joinedKey(connID string) string { return p.prefix + "conn:" + connID + ":joined" }
func (p *Presence) userKey(userID string) string   { return p.prefix + "user:" + userID + ":conns" }

func (p *Presence) Register(ctx context.Context, connID string, id auth.Identity) error {
	err := registerScript.Run(ctx, p.rdb,
		[]string{p.connKey(connID), p.userKey(id.UserID)},
		id.UserID, id.DisplayName, string(id.Role), id.Age, connID).Err()
	if err != nil {
		return fmt.Errorf("register connection: %w", err)
	}
	return nil
}

func (p *Presence) Unregister(ctx context.Context, connID string) (string, bool, error) {
	userID, err := p.rdb.HGet(ctx, p.connKey(connID), "user_id").Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup connection: %w", err)
	}

	var deleted, remaining *redis.IntCmd
	_, err = p.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, p.connKey(connID))
		pipe.Del(ctx, p.joinedKey(connID))
		pipe.SRem(ctx, p.userKey(userID), connID)
		remaining = pipe.SCard(ctx, p.userKey(userID))
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("unregister connection: %w", err)
	}
	// A concurrent unregister of the same connection already reported it.
	if deleted.Val() == 0 {
		return "", false, nil
	}
	return userID, remaining.Val() == 0, nil
}

func (p *Presence) Identity(ctx context.Context, connID string) (auth.Identity, bool, error) {
	fields, err := p.rdb.HGetAll(ctx, p.connKey(connID)).Result()
	if err != nil {
		return auth.Identity{}, false, fmt.Errorf("load identity: %w", err)
	}
	if fields["user_id"] == "" {
		return auth.Identity{}, false, nil
	}
	age, _ := strconv.Atoi(fields["age"])
	return auth.Identity{
		UserID:      fields["user_id"],
		DisplayName: fields["name"],
		Role:        auth.Role(fields["role"]),
		Age:         age,
	}, true, nil
}

func (p *Presence) UserIdentity(ctx context.Context, userID string) (auth.Identity, bool, error) {
	conns, err := p.ConnectionsFor(ctx, userID)
	if err != nil {
		return auth.Identity{}, false, err
	}
	for _, connID := range conns {
		id, ok, err := p.Identity(ctx, connID)
		if err != nil {
			return auth.Identity{}, false, err
		}
		if ok {
			return id, true, nil
		}
	}
	return auth.Identity{}, false, nil
}

func (p *Presence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.rdb.SCard(ctx, p.userKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("count connections: %w", err)
	}
	return n > 0, nil
}

func (p *Presence) ConnectionsFor(ctx context.Context, userID string) ([]string, error) {
	conns, err := p.rdb.SMembers(ctx, p.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return conns, nil
}

func (p *Presence) SetJoined(ctx context.Context, connID, storyID string, joined bool) error {
	n, err := p.rdb.Exists(ctx, p.connKey(connID)).Result()
	if err != nil {
		return fmt.Errorf("check connection: %w", err)
	}
	if n == 0 {
		return nil
	}
	if joined {
		err = p.rdb.SAdd(ctx, p.joinedKey(connID), storyID).Err()
	} else {
		err = p.rdb.SRem(ctx, p.joinedKey(connID), storyID).Err()
	}
	if err != nil {
		return fmt.Errorf("set joined: %w", err)
	}
	return nil
}

func (p *Presence) IsJoined(ctx context.Context, connID, storyID string) (bool, error) {
	ok, err := p.rdb.SIsMember(ctx, p.joinedKey(connID), storyID).Result()
	if err != nil {
		return false, fmt.Errorf("check joined: %w", err)
	}
	return ok, nil
}

func (p *Presence) JoinedElsewhere(ctx context.Context, userID, storyID, exceptConnID string) (bool, error) {
	conns, err := p.ConnectionsFor(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, connID := range conns {
		if connID == exceptConnID {
			continue
		}
		joined, err := p.IsJoined(ctx, connID, storyID)
		if err != nil {
			return false, err
		}
		if joined {
			return true, nil
		}
	}
	return false, nil
}
