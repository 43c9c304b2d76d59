package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/storyhub/internal/auth"
	"github.com/vovakirdan/storyhub/internal/store"
)

// Gate decides whether an identity may join a story room.
// Nothing is cached: every call asks StoryAccess again.
type Gate struct {
	access StoryAccess
}

// NewGate wraps a story access service.
func NewGate(access StoryAccess) *Gate {
	return &Gate{access: access}
}

// CanJoin returns the story when id may join its room. Rules, first match wins:
// admin, author, mentor assigned to the author, public story. Errors are
// store.ErrStoryNotFound, ErrAccessDenied, ErrUnavailable or a wrapped
// collaborator failure. CanJoin returns when ctx is done even if StoryAccess
// does not.
func (g *Gate) CanJoin(ctx context.Context, id auth.Identity, storyID string) (*store.Story, error) {
	type result struct {
		story *store.Story
		err   error
	}
	done := make(chan result, 1)
	go func() {
		story, err := g.evaluate(ctx, id, storyID)
		done <- result{story, err}
	}()

	select {
	case r := <-done:
		return r.story, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	}
}

func (g *Gate) evaluate(ctx context.Context, id auth.Identity, storyID string) (*store.Story, error) {
	story, err := g.access.GetStory(ctx, storyID)
	if err != nil {
		return nil, gateError(ctx, err)
	}

	switch {
	case id.Role == auth.RoleAdmin:
		return story, nil
	case id.UserID == story.AuthorID:
		return story, nil
	case id.Role == auth.RoleMentor:
		assigned, err := g.access.IsMentorAssigned(ctx, id.UserID, story.AuthorID)
		if err != nil {
			return nil, gateError(ctx, err)
		}
		if assigned {
			return story, nil
		}
	}

	if story.IsPublic {
		return story, nil
	}
	return nil, ErrAccessDenied
}

func gateError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, store.ErrStoryNotFound):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return fmt.Errorf("story access: %w", err)
	}
}
