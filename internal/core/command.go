package core

import "github.com/vovakirdan/storyhub/internal/store"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandJoinRoom subscribes the connection to a story room.
	CommandJoinRoom CommandKind = iota
	// CommandLeaveRoom unsubscribes the connection from a story room.
	CommandLeaveRoom
	// CommandNewComment posts a mentor comment to the room.
	CommandNewComment
	// CommandEditComment replaces the content of an existing comment.
	CommandEditComment
	// CommandStoryUpdate saves new story content from the author.
	CommandStoryUpdate
	// CommandTypingStart signals that the sender started typing.
	CommandTypingStart
	// CommandTypingStop signals that the sender stopped typing.
	CommandTypingStop
)

var commandNames = map[CommandKind]string{
	CommandJoinRoom:    "join",
	CommandLeaveRoom:   "leave",
	CommandNewComment:  "comment",
	CommandEditComment: "edit_comment",
	CommandStoryUpdate: "story_update",
	CommandTypingStart: "typing_start",
	CommandTypingStop:  "typing_stop",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind      CommandKind
	RequestID string
	StoryID   string
	CommentID string
	Content   string
	Highlight *store.HighlightRange
	// TypingKind is forwarded verbatim to the room (for example "comment" or "story").
	TypingKind string
}
