package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/vovakirdan/storyhub/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(`
		INSERT INTO stories (id, author_id, title, content, is_public) VALUES ('42', 'child-1', 'Dragons', 'Once upon a time', 0);
		INSERT INTO stories (id, author_id, title, content, is_public) VALUES ('7', 'child-2', 'Open sky', 'Public text', 1);
		INSERT INTO mentor_assignments (mentor_id, child_id) VALUES ('mentor-1', 'child-1');
		`)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetStory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	story, err := s.GetStory(ctx, "42")
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if story.AuthorID != "child-1" || story.Content != "Once upon a time" || story.IsPublic {
		t.Fatalf("unexpected story: %+v", story)
	}

	if _, err := s.GetStory(ctx, "missing"); !errors.Is(err, store.ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound, got %v", err)
	}
}

func TestCreateStoryAndUpdateContent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	story := &store.Story{AuthorID: "child-3", Title: "New", Content: "draft"}
	if err := s.CreateStory(ctx, story); err != nil {
		t.Fatalf("create story: %v", err)
	}
	if story.ID == "" {
		t.Fatalf("expected generated id")
	}

	updatedAt, err := s.UpdateStoryContent(ctx, story.ID, "final")
	if err != nil {
		t.Fatalf("update content: %v", err)
	}
	if updatedAt.IsZero() {
		t.Fatalf("expected update time")
	}

	got, err := s.GetStory(ctx, story.ID)
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if got.Content != "final" {
		t.Fatalf("expected updated content, got %q", got.Content)
	}

	if _, err := s.UpdateStoryContent(ctx, "missing", "x"); !errors.Is(err, store.ErrStoryNotFound) {
		t.Fatalf("expected ErrStoryNotFound, got %v", err)
	}
}

func TestMentorAssignments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mentor string
		child  string
		want   bool
	}{
		{name: "assigned", mentor: "mentor-1", child: "child-1", want: true},
		{name: "other child", mentor: "mentor-1", child: "child-2", want: false},
		{name: "unknown mentor", mentor: "mentor-9", child: "child-1", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.IsMentorAssigned(ctx, tt.mentor, tt.child)
			if err != nil {
				t.Fatalf("check assignment: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if err := s.AssignMentor(ctx, "mentor-1", "child-1"); err != nil {
		t.Fatalf("repeated assignment should be ignored: %v", err)
	}
	if err := s.UnassignMentor(ctx, "mentor-1", "child-1"); err != nil {
		t.Fatalf("unassign: %v", err)
	}
	if ok, _ := s.IsMentorAssigned(ctx, "mentor-1", "child-1"); ok {
		t.Fatalf("expected assignment removed")
	}
}

func TestSaveUpdateAndListComments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c := &store.Comment{
		StoryID:    "42",
		AuthorID:   "mentor-1",
		AuthorName: "Maya",
		AuthorRole: "mentor",
		Content:    "Great opening!",
		Highlight:  &store.HighlightRange{Start: 0, End: 4},
	}
	if err := s.SaveComment(ctx, c); err != nil {
		t.Fatalf("save comment: %v", err)
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps, got %+v", c)
	}

	if _, err := s.UpdateComment(ctx, "42", c.ID, "mentor-2", "hijack", false); !errors.Is(err, store.ErrNotCommentAuthor) {
		t.Fatalf("expected ErrNotCommentAuthor, got %v", err)
	}
	if _, err := s.UpdateComment(ctx, "42", "missing", "mentor-1", "x", false); !errors.Is(err, store.ErrCommentNotFound) {
		t.Fatalf("expected ErrCommentNotFound, got %v", err)
	}

	updated, err := s.UpdateComment(ctx, "42", c.ID, "mentor-1", "Great opening, vivid!", false)
	if err != nil {
		t.Fatalf("update comment: %v", err)
	}
	if updated.Content != "Great opening, vivid!" {
		t.Fatalf("unexpected updated content: %q", updated.Content)
	}

	if _, err := s.UpdateComment(ctx, "42", c.ID, "admin-1", "moderated", true); err != nil {
		t.Fatalf("admin update: %v", err)
	}

	comments, err := s.ListComments(ctx, "42")
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 1 {
		t.Fatalf("expected 1 comment, got %d", len(comments))
	}
	got := comments[0]
	if got.Content != "moderated" || got.Highlight == nil || got.Highlight.End != 4 {
		t.Fatalf("unexpected comment: %+v", got)
	}
}
