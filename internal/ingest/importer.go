package ingest

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tapcard/contact-search/internal/cost"
	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/pkg/geocode"
	"github.com/tapcard/contact-search/pkg/jina"
)

// DefaultBatchSize is how many contacts are embedded per provider call.
const DefaultBatchSize = 64

// geocodeConcurrency caps in-flight geocode lookups during an import.
const geocodeConcurrency = 4

// ContactWriter is the store surface the importer needs.
type ContactWriter interface {
	UpsertContacts(ctx context.Context, contacts []model.Contact) (int, error)
	SaveEmbedding(ctx context.Context, userID, contactID string, vector []float32) error
	AppendUsage(ctx context.Context, rec model.UsageRecord) error
}

// Stats summarizes one import run.
type Stats struct {
	Upserted int     `json:"upserted"`
	Embedded int     `json:"embedded"`
	Geocoded int     `json:"geocoded"`
	CostUSD  float64 `json:"cost_usd"`
}

// Importer writes contacts and backfills their embeddings so the vector
// index can serve them.
type Importer struct {
	store     ContactWriter
	jina      jina.Client
	calc      *cost.Calculator
	geocoder  geocode.Client
	model     string
	batchSize int
	log       *zap.Logger
}

func NewImporter(store ContactWriter, client jina.Client, calc *cost.Calculator, embedModel string, log *zap.Logger) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Importer{
		store:     store,
		jina:      client,
		calc:      calc,
		model:     embedModel,
		batchSize: DefaultBatchSize,
		log:       log,
	}
}

// WithGeocoder enables coordinate backfill for contacts that carry a
// location string but no latitude/longitude. Location grouping needs the
// coordinates.
func (im *Importer) WithGeocoder(g geocode.Client) *Importer {
	im.geocoder = g
	return im
}

// Run upserts contacts for userID and embeds them in batches. Embedding
// spend is metered against the owner's monthly cost but not the AI run
// quota: a bulk backfill is not a user-facing search run.
func (im *Importer) Run(ctx context.Context, userID string, contacts []model.Contact) (Stats, error) {
	var stats Stats
	if len(contacts) == 0 {
		return stats, nil
	}

	for i := range contacts {
		contacts[i].UserID = userID
	}
	stats.Geocoded = im.geocodeMissing(ctx, contacts)

	upserted, err := im.store.UpsertContacts(ctx, contacts)
	if err != nil {
		return stats, eris.Wrap(err, "ingest: upsert contacts")
	}
	stats.Upserted = upserted

	for start := 0; start < len(contacts); start += im.batchSize {
		end := min(start+im.batchSize, len(contacts))
		batch := contacts[start:end]

		embedded, spent, err := im.embedBatch(ctx, userID, batch)
		stats.Embedded += embedded
		stats.CostUSD += spent
		if err != nil {
			return stats, err
		}
	}

	im.log.Info("import complete",
		zap.String("user_id", userID),
		zap.Int("upserted", stats.Upserted),
		zap.Int("embedded", stats.Embedded),
		zap.Float64("cost_usd", stats.CostUSD),
	)
	return stats, nil
}

// geocodeMissing fills in coordinates for contacts with a location string
// but no lat/lng. Failures are skipped: a contact without coordinates just
// stays out of location clusters. Lookups run concurrently; the geocoder
// applies its own rate limit.
func (im *Importer) geocodeMissing(ctx context.Context, contacts []model.Contact) int {
	if im.geocoder == nil {
		return 0
	}

	var geocoded atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(geocodeConcurrency)
	for i := range contacts {
		c := &contacts[i]
		if c.Location == "" || (c.Latitude != nil && c.Longitude != nil) {
			continue
		}
		g.Go(func() error {
			result, err := im.geocoder.Geocode(ctx, c.Location)
			if err != nil {
				im.log.Warn("geocode failed", zap.Error(err), zap.String("location", c.Location))
				return nil
			}
			if !result.Matched {
				return nil
			}
			lat, lng := result.Latitude, result.Longitude
			c.Latitude = &lat
			c.Longitude = &lng
			geocoded.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(geocoded.Load())
}

func (im *Importer) embedBatch(ctx context.Context, userID string, batch []model.Contact) (int, float64, error) {
	input := make([]string, len(batch))
	for i, c := range batch {
		input[i] = EmbeddingText(c)
	}

	resp, err := im.jina.Embed(ctx, jina.EmbedRequest{
		Model: im.model,
		Input: input,
		Task:  "retrieval.passage",
	})
	if err != nil {
		return 0, 0, eris.Wrap(err, "ingest: embed batch")
	}

	embedded := 0
	for _, emb := range resp.Data {
		if emb.Index < 0 || emb.Index >= len(batch) {
			continue
		}
		contactID := batch[emb.Index].ID
		if err := im.store.SaveEmbedding(ctx, userID, contactID, emb.Embedding); err != nil {
			return embedded, 0, eris.Wrap(err, "ingest: save embedding")
		}
		embedded++
	}

	spent := im.calc.Embedding(resp.Usage.TotalTokens)
	rec := model.UsageRecord{
		UserID:    userID,
		Cost:      spent,
		Model:     im.model,
		Feature:   "contact_embedding",
		Metadata:  map[string]any{"contacts": len(batch)},
		RunType:   model.RunTypeAI,
		Billable:  false,
		CreatedAt: time.Now().UTC(),
	}
	if err := im.store.AppendUsage(ctx, rec); err != nil {
		im.log.Warn("usage record failed", zap.Error(err), zap.String("user_id", userID))
	}
	return embedded, spent, nil
}

// EmbeddingText renders a contact into the passage text that gets
// embedded. All descriptive fields participate so the stored vector is
// tier-independent.
func EmbeddingText(c model.Contact) string {
	parts := make([]string, 0, 8)
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value)
		}
	}
	add("Name", c.Name)
	add("Email", c.Email)
	add("Company", c.Company)
	add("Title", c.JobTitle)
	add("Location", c.Location)
	add("Notes", c.Notes)
	add("Message", c.Message)
	return strings.Join(parts, ". ")
}
