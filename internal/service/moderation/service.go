// Package moderation screens mentor comments before they are stored.
package moderation

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vovakirdan/storyhub/internal/core"
)

// DefaultMaxLength caps comment length when none is configured.
const DefaultMaxLength = 2000

// Blocklist rejects empty, over-long, or blocklisted comments.
// Matching is case-insensitive on whole words; entries with spaces match as phrases.
type Blocklist struct {
	words     map[string]struct{}
	phrases   []string
	maxLength int
}

// New creates a blocklist moderator.
func New(blocked []string, maxLength int) *Blocklist {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	b := &Blocklist{words: make(map[string]struct{}), maxLength: maxLength}
	for _, entry := range blocked {
		entry = strings.ToLower(strings.TrimSpace(entry))
		switch {
		case entry == "":
		case strings.ContainsFunc(entry, unicode.IsSpace):
			b.phrases = append(b.phrases, entry)
		default:
			b.words[entry] = struct{}{}
		}
	}
	return b
}

var _ core.Moderator = (*Blocklist)(nil)

// ModerateComment returns the trimmed content when accepted, or every reason it was not.
func (b *Blocklist) ModerateComment(_ context.Context, content string) (core.Verdict, error) {
	content = strings.TrimSpace(content)

	var reasons []string
	if content == "" {
		reasons = append(reasons, "comment is empty")
	}
	if n := utf8.RuneCountInString(content); n > b.maxLength {
		reasons = append(reasons, fmt.Sprintf("comment is %d characters, limit is %d", n, b.maxLength))
	}

	lower := strings.ToLower(content)
	seen := make(map[string]struct{})
	for _, word := range strings.FieldsFunc(lower, notWordRune) {
		if _, blocked := b.words[word]; !blocked {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		reasons = append(reasons, fmt.Sprintf("contains blocked word %q", word))
	}
	for _, phrase := range b.phrases {
		if strings.Contains(lower, phrase) {
			reasons = append(reasons, fmt.Sprintf("contains blocked phrase %q", phrase))
		}
	}

	if len(reasons) > 0 {
		return core.Verdict{Reasons: reasons}, nil
	}
	return core.Verdict{Accepted: true, Content: content}, nil
}

func notWordRune(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
}
