package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Data      json.RawMessage `json:"data"`
}

const (
	InboundTypeJoin        = "join"
	InboundTypeLeave       = "leave"
	InboundTypeComment     = "comment"
	InboundTypeEditComment = "edit_comment"
	InboundTypeStoryUpdate = "story_update"
	InboundTypeTypingStart = "typing_start"
	InboundTypeTypingStop  = "typing_stop"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// RoomData addresses a story room.
type RoomData struct {
	StoryID string `json:"story_id"`
}

// Highlight marks a span of story text.
type Highlight struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// CommentData posts a new comment.
type CommentData struct {
	StoryID   string     `json:"story_id"`
	Content   string     `json:"content"`
	Highlight *Highlight `json:"highlight,omitempty"`
}

// EditCommentData replaces a comment's content.
type EditCommentData struct {
	StoryID   string `json:"story_id"`
	CommentID string `json:"comment_id"`
	Content   string `json:"content"`
}

// StoryUpdateData saves new story content.
type StoryUpdateData struct {
	StoryID string `json:"story_id"`
	Content string `json:"content"`
}

// TypingData signals typing activity.
type TypingData struct {
	StoryID string `json:"story_id"`
	Kind    string `json:"kind,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type      string `json:"type"`
	Event     string `json:"event,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
}

// User is the public view of a participant.
type User struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
}

// EventConnected confirms the connection.
type EventConnected struct {
	ConnectionID string `json:"connection_id"`
	User         User   `json:"user"`
}

// EventRoomSnapshot is sent to a joining connection.
type EventRoomSnapshot struct {
	StoryID      string `json:"story_id"`
	Content      string `json:"content"`
	UpdatedAt    int64  `json:"updated_at"`
	Participants []User `json:"participants"`
}

// EventPresence notifies that a user joined or left a room.
type EventPresence struct {
	StoryID string `json:"story_id"`
	User    User   `json:"user"`
}

// Comment is a persisted comment.
type Comment struct {
	ID         string     `json:"id"`
	StoryID    string     `json:"story_id"`
	AuthorID   string     `json:"author_id"`
	AuthorName string     `json:"author_name"`
	AuthorRole string     `json:"author_role"`
	Content    string     `json:"content"`
	Highlight  *Highlight `json:"highlight,omitempty"`
	CreatedAt  int64      `json:"created_at"`
	UpdatedAt  int64      `json:"updated_at"`
}

// EventNewComment carries a new comment.
type EventNewComment struct {
	StoryID string  `json:"story_id"`
	Comment Comment `json:"comment"`
}

// EventCommentUpdated carries an edited comment.
type EventCommentUpdated struct {
	StoryID   string `json:"story_id"`
	CommentID string `json:"comment_id"`
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updated_at"`
}

// EventStoryUpdated carries new story content.
type EventStoryUpdated struct {
	StoryID   string `json:"story_id"`
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	UpdatedAt int64  `json:"updated_at"`
}

// EventTyping forwards a typing signal.
type EventTyping struct {
	StoryID string `json:"story_id"`
	User    User   `json:"user"`
	Kind    string `json:"kind,omitempty"`
}

// EventNotification is addressed to a user.
type EventNotification struct {
	Type    string   `json:"type"`
	StoryID string   `json:"story_id,omitempty"`
	Message string   `json:"message,omitempty"`
	Comment *Comment `json:"comment,omitempty"`
}

// EventAck confirms a request.
type EventAck struct {
	Op      string `json:"op"`
	StoryID string `json:"story_id,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code    string   `json:"code"`
	Msg     string   `json:"msg"`
	Reasons []string `json:"reasons,omitempty"`
}

// Millis converts a timestamp to Unix milliseconds; the zero time maps to 0.
func Millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
