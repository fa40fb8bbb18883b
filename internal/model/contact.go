package model

import (
	"sort"
	"strings"
	"time"
)

// Contact is a single CRM contact. Contacts are read-only inside the
// search pipeline; writes happen through the import path only.
type Contact struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	Name        string            `json:"name"`
	Email       string            `json:"email,omitempty"`
	Company     string            `json:"company,omitempty"`
	JobTitle    string            `json:"job_title,omitempty"`
	Phone       string            `json:"phone,omitempty"`
	Notes       string            `json:"notes,omitempty"`
	Message     string            `json:"message,omitempty"`
	Location    string            `json:"location,omitempty"`
	Latitude    *float64          `json:"latitude,omitempty"`
	Longitude   *float64          `json:"longitude,omitempty"`
	Details     map[string]string `json:"details,omitempty"`
	SubmittedAt time.Time         `json:"submitted_at"`
}

// EmailDomain returns the lowercased domain part of the contact's email,
// or "" when the email is missing or malformed.
func (c Contact) EmailDomain() string {
	at := strings.LastIndex(c.Email, "@")
	if at < 0 || at == len(c.Email)-1 {
		return ""
	}
	return strings.ToLower(c.Email[at+1:])
}

// RankedContact is a contact annotated with retrieval scores. VectorScore
// is set by the vector search stage; the rerank fields are populated only
// when the reranker ran.
type RankedContact struct {
	Contact
	VectorScore float64 `json:"vector_score"`
	RerankScore float64 `json:"rerank_score,omitempty"`
	RerankRank  int     `json:"rerank_rank,omitempty"`
	HybridScore float64 `json:"hybrid_score,omitempty"`
}

// SortByHybridScore orders contacts by descending hybrid score.
func SortByHybridScore(contacts []RankedContact) {
	sort.SliceStable(contacts, func(i, j int) bool {
		return contacts[i].HybridScore > contacts[j].HybridScore
	})
}
