// Package item defines the lost-and-found post as seen by the matcher.
//
// Records are owned by the persistence layer; the matcher only reads them.
package item

import (
	"fmt"
	"strings"
	"time"

	"github.com/lostboard/vismatch/embedding"
)

// Type is the kind of post.
type Type string

const (
	Lost  Type = "Lost"
	Found Type = "Found"
)

// StatusActive is the status of a freshly posted item.
const StatusActive = "active"

// Opposite returns the type that can match t. Lost items match Found items
// and vice versa.
func (t Type) Opposite() Type {
	switch t {
	case Lost:
		return Found
	case Found:
		return Lost
	default:
		return ""
	}
}

// Valid reports whether t is one of Lost or Found.
func (t Type) Valid() bool { return t == Lost || t == Found }

// ParseType accepts "lost"/"found" in any case.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lost":
		return Lost, nil
	case "found":
		return Found, nil
	default:
		return "", fmt.Errorf("item: invalid type %q (want Lost or Found)", s)
	}
}

// Record is a single post. Display fields are passed through to match
// results unmodified.
type Record struct {
	ID          string              `json:"id"`
	Type        Type                `json:"type"`
	Title       string              `json:"title"`
	Description string              `json:"description,omitempty"`
	Category    string              `json:"category,omitempty"`
	Station     string              `json:"station"`
	TrainNumber string              `json:"trainNumber,omitempty"`
	Date        string              `json:"date,omitempty"`
	PhotoURL    string              `json:"photoUrl"`
	Embedding   embedding.Embedding `json:"imageEmbedding,omitempty"`
	PostedBy    string              `json:"postedBy,omitempty"`
	Status      string              `json:"status,omitempty"`
	CreatedAt   time.Time           `json:"timestamp"`
}

// HasEmbedding reports whether the record can take part in matching.
func (r *Record) HasEmbedding() bool { return r.Embedding.Present() }

// CandidateFor reports whether c belongs in the candidate pool of r: the
// opposite type and not r itself.
func (r *Record) CandidateFor(c *Record) bool {
	return c.ID != r.ID && c.Type == r.Type.Opposite()
}
