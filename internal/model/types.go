/**
 * Shared data structures for the prospect scan pipeline
 *
 * Values here are transient and scan-local; only PipelineState outlives a stage
 * and it is owned by the orchestrator.
 */

package model

import (
	"image"
	"strings"
	"time"
)

// RawImage is a caller-owned screenshot. The pipeline never mutates Data.
type RawImage struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Data     []byte `json:"data"`
}

// NormalizedImage is a derived image ready for recognition.
// A tall screenshot yields several slices sharing one SourceID.
type NormalizedImage struct {
	ID         string
	SourceID   string
	SliceIndex int
	Width      int
	Height     int
	Image      image.Image
}

// LanguageMix is the closed set of language guesses attached to a recognition result
type LanguageMix string

const (
	LanguagePrimary   LanguageMix = "primary"
	LanguageSecondary LanguageMix = "secondary"
	LanguageCodeMixed LanguageMix = "code_mixed"
	LanguageOther     LanguageMix = "other"
)

// RecognitionResult is the output for one normalized image
type RecognitionResult struct {
	ImageID     string        `json:"imageId"`
	SourceID    string        `json:"sourceId"`
	SliceIndex  int           `json:"sliceIndex"`
	Text        string        `json:"text"`
	Lines       []string      `json:"lines"`
	Blocks      [][]string    `json:"blocks"`
	Confidence  float64       `json:"confidence"`
	LanguageMix LanguageMix   `json:"languageMix"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Line is one recognized line with provenance
type Line struct {
	Text       string
	SourceID   string
	Index      int
	Confidence float64
}

// Block is a contiguous run of lines
type Block struct {
	Lines []Line
}

// Provenance points back to the line an entity was read from
type Provenance struct {
	SourceID  string `json:"sourceId"`
	LineIndex int    `json:"lineIndex"`
}

// EntityKind tags the ParsedEntity union
type EntityKind string

const (
	KindFriendRow EntityKind = "friend_row"
	KindPost      EntityKind = "post"
	KindComment   EntityKind = "comment"
)

// FriendRow is a row from a friend or people-you-may-know list
type FriendRow struct {
	Name        string  `json:"name"`
	MutualCount *int    `json:"mutualCount,omitempty"`
	ExtraInfo   *string `json:"extraInfo,omitempty"`
}

// Post is a feed post
type Post struct {
	Author        *string `json:"author,omitempty"`
	Text          string  `json:"text"`
	Timestamp     *string `json:"timestamp,omitempty"`
	ReactionCount *int    `json:"reactionCount,omitempty"`
	CommentCount  *int    `json:"commentCount,omitempty"`
	ShareCount    *int    `json:"shareCount,omitempty"`
}

// Comment is a single comment line
type Comment struct {
	Author    string  `json:"author"`
	Text      string  `json:"text"`
	Timestamp *string `json:"timestamp,omitempty"`
}

// ParsedEntity holds exactly one of Friend, Post or Comment, selected by Kind
type ParsedEntity struct {
	Kind       EntityKind `json:"kind"`
	Friend     *FriendRow `json:"friend,omitempty"`
	Post       *Post      `json:"post,omitempty"`
	Comment    *Comment   `json:"comment,omitempty"`
	Provenance Provenance `json:"provenance"`
	Confidence float64    `json:"confidence"`

	// Merged holds other derivations of the same person folded into this one
	// by name deduplication.
	Merged []ParsedEntity `json:"merged,omitempty"`
}

// Name returns the person the entity refers to, or "" for anonymous posts
func (e ParsedEntity) Name() string {
	switch e.Kind {
	case KindFriendRow:
		if e.Friend != nil {
			return e.Friend.Name
		}
	case KindPost:
		if e.Post != nil && e.Post.Author != nil {
			return *e.Post.Author
		}
	case KindComment:
		if e.Comment != nil {
			return e.Comment.Author
		}
	}
	return ""
}

// Text returns the free text carried by the entity
func (e ParsedEntity) Text() string {
	switch e.Kind {
	case KindPost:
		if e.Post != nil {
			return e.Post.Text
		}
	case KindComment:
		if e.Comment != nil {
			return e.Comment.Text
		}
	case KindFriendRow:
		if e.Friend != nil && e.Friend.ExtraInfo != nil {
			return *e.Friend.ExtraInfo
		}
	}
	return ""
}

// IntPtr and StringPtr build optional fields
func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }

// NormalizeName case-folds a name and collapses internal whitespace
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
