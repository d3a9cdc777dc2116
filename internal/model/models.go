// Package model defines shared data structures for the watch service.
package model

import (
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Category values mirror the listing_category enum used by the catalog.
type Category string

const (
	CategoryForSale    Category = "for_sale"
	CategoryForRent    Category = "for_rent"
	CategoryCommercial Category = "commercial"
)

// ParseCategory converts a raw string to a Category, returning an error for
// unknown values.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	switch c {
	case CategoryForSale, CategoryForRent, CategoryCommercial:
		return c, nil
	}
	return "", fmt.Errorf("unknown listing category %q", s)
}

// StatusPublished is the only catalog status the scanner asks for.
const StatusPublished = "publish"

// Listing is one catalog item. Attributes may be Absent when the catalog
// page did not embed them; the scanner then fetches them by id.
type Listing struct {
	ID         string   `json:"id" yaml:"id"`
	Title      string   `json:"title" yaml:"title"`
	URL        string   `json:"url" yaml:"url"`
	Category   Category `json:"category" yaml:"category"`
	Status     string   `json:"status,omitempty" yaml:"status"`
	Attributes Value    `json:"attributes" yaml:"attributes"`
}

// CriterionKind selects how a Criterion compares values.
type CriterionKind string

const (
	KindExactOrSet CriterionKind = "exact_or_set"
	KindRange      CriterionKind = "range"
	KindWordSearch CriterionKind = "word_search"
)

// WordSearchField is the sentinel field path that searches the listing
// title together with every text attribute.
const WordSearchField = "__word_search"

// Criterion is one field-level rule of a Watch, stored as the user entered it.
type Criterion struct {
	FieldPath string        `json:"field_path"`
	Kind      CriterionKind `json:"kind"`
	Values    []string      `json:"values"`
}

// Owner identifies who a watch belongs to: an authenticated user, or a
// guest e-mail address paired with the watch's deletion token.
type Owner struct {
	UserID        string `json:"user_id,omitempty"`
	GuestEmail    string `json:"guest_email,omitempty"`
	DeletionToken string `json:"-"`
}

// IsGuest reports whether o carries no authenticated user id.
func (o Owner) IsGuest() bool { return o.UserID == "" }

// IsZero reports whether o identifies nobody.
func (o Owner) IsZero() bool { return o.UserID == "" && o.GuestEmail == "" }

// Owns reports whether the requester o may act on a watch owned by target.
// Guests must present both the e-mail address and the deletion token.
func (o Owner) Owns(target Owner) bool {
	if !target.IsGuest() {
		return o.UserID != "" && o.UserID == target.UserID
	}
	if o.GuestEmail == "" || target.GuestEmail == "" || o.DeletionToken == "" {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(o.GuestEmail), strings.TrimSpace(target.GuestEmail)) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(o.DeletionToken), []byte(target.DeletionToken)) == 1
}

// Watch is a saved search plus the set of listings already shown to its owner.
type Watch struct {
	ID             string      `json:"id"`
	Owner          Owner       `json:"owner"`
	Name           string      `json:"name"`
	Category       Category    `json:"category"`
	Criteria       []Criterion `json:"criteria"`
	SeenListingIDs []string    `json:"seen_listing_ids"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	ExpiresAt      *time.Time  `json:"expires_at,omitempty"`
	CreatedByIP    string      `json:"created_by_ip,omitempty"`
	LastRunAt      *time.Time  `json:"last_run_at,omitempty"`
	Version        int64       `json:"version"`
}

// Seen returns the seen listing ids as a set.
func (w *Watch) Seen() map[string]struct{} {
	set := make(map[string]struct{}, len(w.SeenListingIDs))
	for _, id := range w.SeenListingIDs {
		set[id] = struct{}{}
	}
	return set
}

// Expired reports whether a guest watch has outlived its TTL at now.
func (w *Watch) Expired(now time.Time) bool {
	return w.ExpiresAt != nil && !now.Before(*w.ExpiresAt)
}

// MergeSeen returns the sorted union of seen and added with duplicates removed.
func MergeSeen(seen, added []string) []string {
	set := make(map[string]struct{}, len(seen)+len(added))
	for _, id := range seen {
		set[id] = struct{}{}
	}
	for _, id := range added {
		set[id] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MatchEvent records the first time a listing satisfied a watch.
type MatchEvent struct {
	WatchID   string    `json:"watch_id"`
	ListingID string    `json:"listing_id"`
	Hash      string    `json:"hash"`
	MatchedAt time.Time `json:"matched_at"`
}

// NewMatchEvent builds the event for (watchID, listingID) with its dedup hash.
func NewMatchEvent(watchID, listingID string, at time.Time) MatchEvent {
	return MatchEvent{
		WatchID:   watchID,
		ListingID: listingID,
		Hash:      MatchHash(watchID, listingID),
		MatchedAt: at,
	}
}

// MatchHash is the stable content hash of a (watch, listing) pair.
func MatchHash(watchID, listingID string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(watchID+"\x00"+listingID))
}
