package store

import (
	"context"
	"time"

	"github.com/tapcard/contact-search/internal/model"
)

// ContactEmbedding pairs a contact id with its stored embedding vector.
type ContactEmbedding struct {
	ContactID string
	Vector    []float32
}

// Store defines the persistence interface for the search pipeline.
type Store interface {
	// Contacts
	UpsertContacts(ctx context.Context, contacts []model.Contact) (int, error)
	ListContacts(ctx context.Context, userID string) ([]model.Contact, error)
	CountContacts(ctx context.Context, userID string) (int, error)

	// Contact embeddings (vector index backing)
	SaveEmbedding(ctx context.Context, userID, contactID string, vector []float32) error
	ListEmbeddings(ctx context.Context, userID string) ([]ContactEmbedding, error)

	// Groups. SaveGroups skips groups whose normalized name already exists
	// for the user and returns the count actually inserted; contact id
	// sets are deduplicated on write.
	SaveGroups(ctx context.Context, userID string, groups []model.Group) (int, error)
	ListGroups(ctx context.Context, userID string) ([]model.Group, error)

	// Usage records (append-only)
	AppendUsage(ctx context.Context, rec model.UsageRecord) error
	MonthlyTotals(ctx context.Context, userID string, from, to time.Time) (model.UsageTotals, error)

	// Background jobs
	CreateJob(ctx context.Context, job *model.Job) error
	UpdateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)

	// Monitoring aggregates, across all users
	ListRecentJobs(ctx context.Context, since time.Time) ([]model.Job, error)
	UsageSince(ctx context.Context, since time.Time) (model.UsageTotals, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
