package model

import (
	"strings"
	"time"
)

// GroupType categorizes how a group was formed.
type GroupType string

const (
	GroupTypeCompany  GroupType = "company"
	GroupTypeEvent    GroupType = "event"
	GroupTypeLocation GroupType = "location"
	GroupTypeCustom   GroupType = "custom"
	GroupTypeAI       GroupType = "ai"
)

// Venue holds optional enrichment metadata for event groups.
type Venue struct {
	Name           string  `json:"name,omitempty"`
	Address        string  `json:"address,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
	MatchedKeyword string  `json:"matched_keyword,omitempty"`
}

// Group is a named set of contacts produced by either the rules engine or
// the AI grouping job. Names are unique case-insensitively within a user's
// collection; contact id sets are deduplicated on every write.
type Group struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Type        GroupType `json:"type"`
	Description string    `json:"description,omitempty"`
	ContactIDs  []string  `json:"contact_ids"`
	Venue       *Venue    `json:"venue,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NormalizedName returns the case-folded, trimmed name used for
// uniqueness checks and deduplication.
func (g Group) NormalizedName() string {
	return strings.ToLower(strings.TrimSpace(g.Name))
}

// DedupeContactIDs returns ids with duplicates removed, preserving first
// occurrence order.
func DedupeContactIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GroupingResult is the payload attached to a completed grouping job.
type GroupingResult struct {
	Groups         []Group `json:"groups"`
	TotalGenerated int     `json:"total_generated"`
	TotalUnique    int     `json:"total_unique"`
	TotalSaved     int     `json:"total_saved"`
	Message        string  `json:"message,omitempty"`
}

// GroupingStats summarizes a rules-engine run.
type GroupingStats struct {
	ContactsScanned int `json:"contacts_scanned"`
	CompanyGroups   int `json:"company_groups"`
	EventGroups     int `json:"event_groups"`
	LocationGroups  int `json:"location_groups"`
}
