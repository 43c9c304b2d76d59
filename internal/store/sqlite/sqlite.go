package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/storyhub/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, nil)
}

// NewWithSetup creates a new SQLite store, applies the schema and runs a setup function.
// Useful for tests to seed fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== StoryStore implementation ====

// CreateStory inserts a story.
func (s *SQLiteStore) CreateStory(ctx context.Context, story *store.Story) error {
	now := time.Now().UTC()
	if story.ID == "" {
		story.ID = uuid.NewString()
	}
	if story.CreatedAt.IsZero() {
		story.CreatedAt = now
	}
	if story.UpdatedAt.IsZero() {
		story.UpdatedAt = story.CreatedAt
	}

	query := `
		INSERT INTO stories (id, author_id, title, content, is_public, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		story.ID, story.AuthorID, story.Title, story.Content, story.IsPublic, story.CreatedAt, story.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert story: %w", err)
	}
	return nil
}

// GetStory retrieves a story by ID.
func (s *SQLiteStore) GetStory(ctx context.Context, id string) (*store.Story, error) {
	query := `
		SELECT id, author_id, title, content, is_public, created_at, updated_at
		FROM stories
		WHERE id = ?
	`
	var story store.Story
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&story.ID,
		&story.AuthorID,
		&story.Title,
		&story.Content,
		&story.IsPublic,
		&story.CreatedAt,
		&story.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrStoryNotFound
		}
		return nil, fmt.Errorf("query story: %w", err)
	}

	return &story, nil
}

// UpdateStoryContent replaces story content and returns the new update time.
func (s *SQLiteStore) UpdateStoryContent(ctx context.Context, id, content string) (time.Time, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE stories SET content = ?, updated_at = ? WHERE id = ?`, content, now, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("update story: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return time.Time{}, store.ErrStoryNotFound
	}
	return now, nil
}

// AssignMentor links a mentor to a child author.
func (s *SQLiteStore) AssignMentor(ctx context.Context, mentorID, childID string) error {
	query := `
		INSERT OR IGNORE INTO mentor_assignments (mentor_id, child_id)
		VALUES (?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, mentorID, childID); err != nil {
		return fmt.Errorf("insert mentor assignment: %w", err)
	}
	return nil
}

// UnassignMentor removes a mentor assignment.
func (s *SQLiteStore) UnassignMentor(ctx context.Context, mentorID, childID string) error {
	query := `DELETE FROM mentor_assignments WHERE mentor_id = ? AND child_id = ?`
	if _, err := s.db.ExecContext(ctx, query, mentorID, childID); err != nil {
		return fmt.Errorf("delete mentor assignment: %w", err)
	}
	return nil
}

// IsMentorAssigned checks whether the mentor is assigned to the child.
func (s *SQLiteStore) IsMentorAssigned(ctx context.Context, mentorID, childID string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM mentor_assignments
			WHERE mentor_id = ? AND child_id = ?
		)
	`
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, mentorID, childID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check mentor assignment: %w", err)
	}
	return exists, nil
}

// ==== CommentStore implementation ====

// SaveComment persists a comment to storage.
func (s *SQLiteStore) SaveComment(ctx context.Context, c *store.Comment) error {
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	var start, end sql.NullInt64
	if c.Highlight != nil {
		start = sql.NullInt64{Int64: int64(c.Highlight.Start), Valid: true}
		end = sql.NullInt64{Int64: int64(c.Highlight.End), Valid: true}
	}

	query := `
		INSERT INTO comments (id, story_id, author_id, author_name, author_role, content,
			highlight_start, highlight_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.StoryID, c.AuthorID, c.AuthorName, c.AuthorRole, c.Content,
		start, end, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// UpdateComment replaces comment content after checking ownership.
func (s *SQLiteStore) UpdateComment(ctx context.Context, storyID, commentID, editorID, content string, asAdmin bool) (*store.Comment, error) {
	current, err := s.getComment(ctx, storyID, commentID)
	if err != nil {
		return nil, err
	}
	if !asAdmin && current.AuthorID != editorID {
		return nil, store.ErrNotCommentAuthor
	}

	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`UPDATE comments SET content = ?, updated_at = ? WHERE id = ? AND story_id = ?`,
		content, now, commentID, storyID)
	if err != nil {
		return nil, fmt.Errorf("update comment: %w", err)
	}

	current.Content = content
	current.UpdatedAt = now
	return current, nil
}

// ListComments returns comments for a story, oldest first.
func (s *SQLiteStore) ListComments(ctx context.Context, storyID string) ([]*store.Comment, error) {
	query := `
		SELECT id, story_id, author_id, author_name, author_role, content,
			highlight_start, highlight_end, created_at, updated_at
		FROM comments
		WHERE story_id = ?
		ORDER BY created_at ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, storyID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var comments []*store.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *SQLiteStore) getComment(ctx context.Context, storyID, commentID string) (*store.Comment, error) {
	query := `
		SELECT id, story_id, author_id, author_name, author_role, content,
			highlight_start, highlight_end, created_at, updated_at
		FROM comments
		WHERE id = ? AND story_id = ?
	`
	c, err := scanComment(s.db.QueryRowContext(ctx, query, commentID, storyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCommentNotFound
		}
		return nil, err
	}
	return c, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (*store.Comment, error) {
	var c store.Comment
	var start, end sql.NullInt64
	if err := row.Scan(
		&c.ID,
		&c.StoryID,
		&c.AuthorID,
		&c.AuthorName,
		&c.AuthorRole,
		&c.Content,
		&start,
		&end,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan comment: %w", err)
	}
	if start.Valid && end.Valid {
		c.Highlight = &store.HighlightRange{Start: int(start.Int64), End: int(end.Int64)}
	}
	return &c, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
