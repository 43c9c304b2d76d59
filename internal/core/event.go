package core

import (
	"time"

	"github.com/vovakirdan/storyhub/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventConnected confirms an authenticated connection.
	EventConnected EventKind = iota
	// EventRoomSnapshot delivers story content and participants to a joining connection.
	EventRoomSnapshot
	// EventUserJoined notifies the room about a new member.
	EventUserJoined
	// EventUserLeft notifies the room that a member is gone.
	EventUserLeft
	// EventNewComment carries a persisted comment.
	EventNewComment
	// EventCommentUpdated carries an edited comment.
	EventCommentUpdated
	// EventStoryUpdated carries new story content.
	EventStoryUpdated
	// EventUserTyping forwards a typing-start signal.
	EventUserTyping
	// EventUserStoppedTyping forwards a typing-stop signal.
	EventUserStoppedTyping
	// EventNotification is addressed to a user rather than a room.
	EventNotification
	// EventAck confirms a request that has no other reply.
	EventAck
	// EventError notifies the origin connection about a domain error.
	EventError
)

var eventNames = map[EventKind]string{
	EventConnected:         "connected",
	EventRoomSnapshot:      "room_snapshot",
	EventUserJoined:        "user_joined",
	EventUserLeft:          "user_left",
	EventNewComment:        "new_comment",
	EventCommentUpdated:    "comment_updated",
	EventStoryUpdated:      "story_updated",
	EventUserTyping:        "user_typing",
	EventUserStoppedTyping: "user_stopped_typing",
	EventNotification:      "notification",
	EventAck:               "ack",
	EventError:             "error",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return "unknown"
}

// Participant is the public view of a room member.
type Participant struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// Snapshot is the room state sent to a joining connection.
type Snapshot struct {
	Content      string        `json:"content"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Participants []Participant `json:"participants"`
}

// Notification is a user-targeted message outside any room.
type Notification struct {
	Type    string         `json:"type"`
	StoryID string         `json:"story_id,omitempty"`
	Message string         `json:"message,omitempty"`
	Comment *store.Comment `json:"comment,omitempty"`
}

// Event is sent to clients to describe what happened in the system.
// Events cross instance boundaries encoded as JSON.
type Event struct {
	Kind         EventKind      `json:"kind"`
	RequestID    string         `json:"request_id,omitempty"`
	StoryID      string         `json:"story_id,omitempty"`
	ConnID       string         `json:"conn_id,omitempty"`
	User         *Participant   `json:"user,omitempty"`
	Snapshot     *Snapshot      `json:"snapshot,omitempty"`
	Comment      *store.Comment `json:"comment,omitempty"`
	Content      string         `json:"content,omitempty"`
	UpdatedAt    time.Time      `json:"updated_at,omitzero"`
	TypingKind   string         `json:"typing_kind,omitempty"`
	Notification *Notification  `json:"notification,omitempty"`
	Op           string         `json:"op,omitempty"`
	Error        *CoreError     `json:"error,omitempty"`
}

// withRequest returns a copy of ev addressed to the origin of requestID.
func (ev *Event) withRequest(requestID string) *Event {
	cp := *ev
	cp.RequestID = requestID
	return &cp
}
