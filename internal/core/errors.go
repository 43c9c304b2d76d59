package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeAuthenticationFailed = "authentication_failed"
	ErrCodeAccessDenied         = "access_denied"
	ErrCodeStoryNotFound        = "story_not_found"
	ErrCodePermissionDenied     = "permission_denied"
	ErrCodeModerationRejected   = "moderation_rejected"
	ErrCodePersistenceFailed    = "persistence_failed"
	ErrCodeUnavailable          = "unavailable"
	ErrCodeNotInRoom            = "not_in_room"
	ErrCodeAlreadyJoined        = "already_joined"
	ErrCodeCommentNotFound      = "comment_not_found"
	ErrCodeBadRequest           = "bad_request"
	ErrCodeRateLimited          = "rate_limited"
	ErrCodeInvalidMessage       = "invalid_message"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAccessDenied         = errors.New("access denied")
	ErrUnavailable          = errors.New("temporarily unavailable")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

func (e *CoreError) Error() string {
	if len(e.Reasons) > 0 {
		return fmt.Sprintf("%s: %v", e.Message, e.Reasons)
	}
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
