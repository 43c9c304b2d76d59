package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrStoryNotFound is returned when a story id is unknown.
	ErrStoryNotFound = errors.New("story not found")
	// ErrCommentNotFound is returned when a comment id is unknown for the story.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrNotCommentAuthor is returned when a non-admin edits someone else's comment.
	ErrNotCommentAuthor = errors.New("not the comment author")
)

// Story represents a story the hub can open a room for.
type Story struct {
	ID        string
	AuthorID  string
	Title     string
	Content   string
	IsPublic  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HighlightRange marks the span of story text a comment refers to.
type HighlightRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Comment represents a persisted mentor comment.
type Comment struct {
	ID         string          `json:"id"`
	StoryID    string          `json:"story_id"`
	AuthorID   string          `json:"author_id"`
	AuthorName string          `json:"author_name"`
	AuthorRole string          `json:"author_role"`
	Content    string          `json:"content"`
	Highlight  *HighlightRange `json:"highlight,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StoryStore handles story and mentor-assignment persistence.
type StoryStore interface {
	// CreateStory inserts a story.
	CreateStory(ctx context.Context, story *Story) error

	// GetStory retrieves a story by ID.
	GetStory(ctx context.Context, id string) (*Story, error)

	// UpdateStoryContent replaces story content and returns the new update time.
	UpdateStoryContent(ctx context.Context, id, content string) (time.Time, error)

	// AssignMentor links a mentor to a child author.
	AssignMentor(ctx context.Context, mentorID, childID string) error

	// UnassignMentor removes a mentor assignment.
	UnassignMentor(ctx context.Context, mentorID, childID string) error

	// IsMentorAssigned checks whether the mentor is assigned to the child.
	IsMentorAssigned(ctx context.Context, mentorID, childID string) (bool, error)
}

// CommentStore handles comment persistence.
type CommentStore interface {
	// SaveComment persists a comment. ID and timestamps are filled in when empty.
	SaveComment(ctx context.Context, c *Comment) error

	// UpdateComment replaces comment content. Only the author may edit unless asAdmin is set.
	UpdateComment(ctx context.Context, storyID, commentID, editorID, content string, asAdmin bool) (*Comment, error)

	// ListComments returns comments for a story, oldest first.
	ListComments(ctx context.Context, storyID string) ([]*Comment, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	StoryStore
	CommentStore

	// Close closes the underlying database connection.
	Close() error
}
