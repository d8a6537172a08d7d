// Package model holds the plain domain objects exchanged with the
// REST/job layer. Serialization of these types over the wire is the
// caller's concern; inside the engine they are stored as JSON payloads
// under their codec-built row keys.
package model

import "time"

// Item is a collection entry. The processed fields live apart from the
// verbatim raw payload, so either representation can be read and
// written independently.
type Item struct {
	ID          uint64            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Categories  []string          `json:"categories,omitempty"`
	Keywords    []string          `json:"keywords,omitempty"`
	Location    string            `json:"location,omitempty"`
	Image       string            `json:"image,omitempty"`
	Stamp       uint64            `json:"stamp,omitempty"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// User is a platform user profile. The activity counters are derived
// data and live in their own rows, not here.
type User struct {
	ID    uint64 `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Collection is a named item set with its import configuration.
type Collection struct {
	Name            string        `json:"name"`
	SourceType      string        `json:"source_type,omitempty"`
	SourceURL       string        `json:"source_url,omitempty"`
	HarvestInterval time.Duration `json:"harvest_interval,omitempty"`
	Categories      []string      `json:"categories,omitempty"`
	Metadata        string        `json:"metadata,omitempty"`
}

// Rating is an immutable rating fact.
type Rating struct {
	Collection string
	User       uint64
	Item       uint64
	Value      float64
	Stamp      uint64
}

// View is a view fact: the user viewed an item, optionally after it was
// recommended from a source item at a given rank.
type View struct {
	Recommender string
	Collection  string
	User        uint64
	Item        uint64
	Source      uint64
	Rank        uint32
	Stamp       uint64
}

// Recommender types for recommendation-served facts.
const (
	RecTypeUser byte = 'U'
	RecTypeItem byte = 'I'
)

// Recommended is a recommendation-served fact.
type Recommended struct {
	Recommender string
	User        uint64
	Type        byte
	Size        uint32
	Stamp       uint64
}

// GroupedData is an aggregated popularity counter keyed by a dimension
// tuple. Ordering is count descending, then recency, then dimension.
type GroupedData struct {
	Collection  string
	Recommender string
	Item        uint64
	User        uint64
	Count       int64
	Stamp       uint64
}

// Better is the top-K comparator over grouped rows: higher count first,
// then more recent, then lower item id as the stable tie-break.
func (g GroupedData) Better(other GroupedData) bool {
	if g.Count != other.Count {
		return g.Count > other.Count
	}
	if g.Stamp != other.Stamp {
		return g.Stamp > other.Stamp
	}
	if g.Collection != other.Collection {
		return g.Collection < other.Collection
	}
	return g.Item < other.Item
}
