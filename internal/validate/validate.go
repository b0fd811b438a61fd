// Package validate implements C10: pure, side-effect-free shape and size
// checks on external input, plus total-function sanitizers used on
// best-effort write paths. Constants mirror the original canister's
// validation module exactly.
package validate

import (
	"strings"
	"unicode"

	"github.com/chirino/memory-service/internal/errs"
)

const (
	MaxMemoryContentSize   = 10 * 1024
	MaxMemoriesPerUser     = 10_000
	MaxTagsPerMemory       = 20
	MaxTagLength           = 50
	MaxMetadataKeyLength   = 100
	MaxMetadataValueLength = 500
	MaxMetadataEntries     = 20

	MaxConversationContentSize = 100 * 1024
	MaxConversationTitleLength = 200
)

// AddMemoryRequest is the validated shape of a memory write.
type AddMemoryRequest struct {
	Content  string
	Metadata map[string]string
	Tags     []string
}

// Memory validates an AddMemoryRequest against content and tag invariants.
func Memory(req AddMemoryRequest) error {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return errs.Validation("content", "content must not be empty")
	}
	if len(req.Content) > MaxMemoryContentSize {
		return errs.Validation("content", "content too large")
	}
	if len(req.Tags) > MaxTagsPerMemory {
		return errs.Validation("tags", "too many tags")
	}
	for _, tag := range req.Tags {
		if len(tag) > MaxTagLength {
			return errs.Validation("tags", "tag too long")
		}
		if !isValidTag(tag) {
			return errs.Validation("tags", "tag contains invalid characters")
		}
	}
	if len(req.Metadata) > MaxMetadataEntries {
		return errs.Validation("metadata", "too many metadata entries")
	}
	for k, v := range req.Metadata {
		if len(k) > MaxMetadataKeyLength {
			return errs.Validation("metadata", "metadata key too long")
		}
		if len(v) > MaxMetadataValueLength {
			return errs.Validation("metadata", "metadata value too long")
		}
		if hasDisallowedControlChars(k) || hasDisallowedControlChars(v) {
			return errs.Validation("metadata", "metadata contains disallowed control characters")
		}
	}
	return nil
}

// ConversationRequest is the validated shape of a conversation write.
type ConversationRequest struct {
	Title    string
	Content  string
	Source   string
	Metadata map[string]string
}

// Conversation validates a ConversationRequest.
func Conversation(req ConversationRequest) error {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return errs.Validation("title", "title must not be empty")
	}
	if len(req.Title) > MaxConversationTitleLength {
		return errs.Validation("title", "title too long")
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return errs.Validation("content", "content must not be empty")
	}
	if len(req.Content) > MaxConversationContentSize {
		return errs.Validation("content", "content too large")
	}
	if len(req.Metadata) > MaxMetadataEntries {
		return errs.Validation("metadata", "too many metadata entries")
	}
	for k, v := range req.Metadata {
		if len(k) > MaxMetadataKeyLength {
			return errs.Validation("metadata", "metadata key too long")
		}
		if len(v) > MaxMetadataValueLength {
			return errs.Validation("metadata", "metadata value too long")
		}
	}
	return nil
}

// Pagination validates and clamps offset/limit query parameters; limit is
// capped at 100 as required by C2's list operations.
func Pagination(limit, offset int) (int, int, error) {
	if offset < 0 {
		return 0, 0, errs.Validation("offset", "offset must not be negative")
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return limit, offset, nil
}

// UserQuota fails when a user has reached MaxMemoriesPerUser.
func UserQuota(currentCount int) error {
	if currentCount >= MaxMemoriesPerUser {
		return errs.Validation("user_quota", "memory limit exceeded")
	}
	return nil
}

// CreateTokenRequest is the validated shape of an access-token issue request.
type CreateTokenRequest struct {
	Label         string
	ExpiresInDays int
}

// CreateToken validates a token-issue request; expiry must fall in [1, 365] days.
func CreateToken(req CreateTokenRequest) error {
	if req.ExpiresInDays < 1 || req.ExpiresInDays > 365 {
		return errs.Validation("expires_in_days", "expiry must be between 1 and 365 days")
	}
	return nil
}

// SanitizeContent drops control characters other than \n and \t, then
// truncates to maxLength bytes. It is a total function: it normalizes
// rather than rejects, for use on best-effort (bulk ingest) write paths.
func SanitizeContent(content string, maxLength int) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if len(out) > maxLength {
		out = out[:maxLength]
	}
	return out
}

// SanitizeTags lowercases, strips characters outside [A-Za-z0-9_-], caps
// each tag's length, and caps the number of tags.
func SanitizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if len(out) >= MaxTagsPerMemory {
			break
		}
		clean := sanitizeTag(tag)
		if clean == "" {
			continue
		}
		out = append(out, clean)
	}
	return out
}

// SanitizeMetadata drops invalid keys and caps lengths/entry count.
func SanitizeMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	count := 0
	for k, v := range metadata {
		if count >= MaxMetadataEntries {
			break
		}
		cleanKey := SanitizeContent(k, MaxMetadataKeyLength)
		if cleanKey == "" {
			continue
		}
		out[cleanKey] = SanitizeContent(v, MaxMetadataValueLength)
		count++
	}
	return out
}

func sanitizeTag(tag string) string {
	lower := strings.ToLower(tag)
	var b strings.Builder
	for _, r := range lower {
		if isTagRune(r) {
			b.WriteRune(r)
		}
		if b.Len() >= MaxTagLength {
			break
		}
	}
	return b.String()
}

func isValidTag(tag string) bool {
	if tag == "" {
		return false
	}
	for _, r := range tag {
		if !isTagRune(r) {
			return false
		}
	}
	return true
}

func isTagRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-'
}

func hasDisallowedControlChars(s string) bool {
	for _, r := range s {
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
