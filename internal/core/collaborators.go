package core

import (
	"context"
	"time"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/store"
)

// IdentityVerifier turns a connection credential into an identity.
// The hub trusts the verdict as-is.
type IdentityVerifier interface {
	VerifyCredential(ctx context.Context, token string) (auth.Identity, error)
}

// StoryAccess answers the questions the authorization gate asks.
type StoryAccess interface {
	// GetStory returns store.ErrStoryNotFound for unknown ids.
	GetStory(ctx context.Context, storyID string) (*store.Story, error)

	// IsMentorAssigned reports whether mentorID is assigned to the child author.
	IsMentorAssigned(ctx context.Context, mentorID, childID string) (bool, error)
}

// Verdict is the moderation outcome for one comment.
type Verdict struct {
	Accepted bool
	// Content is what gets persisted when accepted; moderators may normalize it.
	Content string
	Reasons []string
}

// Moderator checks mentor comments before they are persisted.
type Moderator interface {
	ModerateComment(ctx context.Context, content string) (Verdict, error)
}

// Persistence durably stores comments and story edits before anything is broadcast.
type Persistence interface {
	// SaveComment fills ID and timestamps on success.
	SaveComment(ctx context.Context, c *store.Comment) error

	// UpdateComment returns store.ErrCommentNotFound or store.ErrNotCommentAuthor on refusal.
	UpdateComment(ctx context.Context, storyID, commentID, editorID, content string, asAdmin bool) (*store.Comment, error)

	// UpdateStoryContent returns the new update time.
	UpdateStoryContent(ctx context.Context, storyID, content string) (time.Time, error)
}

// OfflineNotifier hands a notification to push/email delivery.
// Implementations must not block the caller.
type OfflineNotifier interface {
	NotifyOffline(ctx context.Context, userID string, n Notification)
}

type acceptAll struct{}

func (acceptAll) ModerateComment(_ context.Context, content string) (Verdict, error) {
	return Verdict{Accepted: true, Content: content}, nil
}

type discardNotifier struct{}

func (discardNotifier) NotifyOffline(context.Context, string, Notification) {}
