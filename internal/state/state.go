// Package state defines the shared membership state of the hub: which
// connections belong to which user, and which users are in which story room.
// Implementations must make every method safe for concurrent use.
package state

import (
	"context"

	"github.com/vovakirdan/storyhub/internal/auth"
)

// Presence maps users to their live connections.
// A user is present iff at least one of its connections is registered.
type Presence interface {
	// Register binds an identity to a connection. Registering the same
	// connection id twice is a no-op.
	Register(ctx context.Context, connID string, id auth.Identity) error

	// Unregister removes the connection. When it was the user's last
	// connection, userID is returned with last set to true.
	Unregister(ctx context.Context, connID string) (userID string, last bool, err error)

	// Identity returns the identity bound to a connection.
	Identity(ctx context.Context, connID string) (auth.Identity, bool, error)

	// UserIdentity returns the identity of any live connection of the user.
	UserIdentity(ctx context.Context, userID string) (auth.Identity, bool, error)

	// IsOnline reports whether the user has at least one live connection.
	IsOnline(ctx context.Context, userID string) (bool, error)

	// ConnectionsFor lists the user's live connection ids.
	ConnectionsFor(ctx context.Context, userID string) ([]string, error)

	// SetJoined records whether the connection is joined to the story room.
	SetJoined(ctx context.Context, connID, storyID string, joined bool) error

	// IsJoined reports whether the connection is joined to the story room.
	IsJoined(ctx context.Context, connID, storyID string) (bool, error)

	// JoinedElsewhere reports whether any other connection of the user is
	// joined to the story room.
	JoinedElsewhere(ctx context.Context, userID, storyID, exceptConnID string) (bool, error)
}

// Rooms maps story ids to the set of joined users.
// Membership is keyed by user, so two devices count once.
type Rooms interface {
	// Join adds the user and reports whether it was already a member.
	Join(ctx context.Context, storyID, userID string) (alreadyMember bool, err error)

	// Leave removes the user. An emptied room is deleted and nowEmpty is true.
	Leave(ctx context.Context, storyID, userID string) (nowEmpty bool, err error)

	// MembersOf lists the users joined to the room.
	MembersOf(ctx context.Context, storyID string) ([]string, error)

	// IsMember reports whether the user is joined to the room.
	IsMember(ctx context.Context, storyID, userID string) (bool, error)

	// RemoveUserFromAllRooms drops the user everywhere and returns the rooms it was in.
	RemoveUserFromAllRooms(ctx context.Context, userID string) ([]string, error)
}
