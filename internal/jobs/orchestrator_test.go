package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapcard/contact-search/internal/model"
)

type fakeJobStore struct {
	jobs       map[string]*model.Job
	contacts   []model.Contact
	listErr    error
	saveErr    error
	savedCount int
	saved      []model.Group
	progress   []int
}

func newFakeJobStore(contacts []model.Contact) *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*model.Job{}, contacts: contacts}
}

func (f *fakeJobStore) CreateJob(_ context.Context, job *model.Job) error {
	cp := *job
	f.jobs[job.ID] = &cp
	f.progress = append(f.progress, job.Progress)
	return nil
}

func (f *fakeJobStore) UpdateJob(_ context.Context, job *model.Job) error {
	cp := *job
	f.jobs[job.ID] = &cp
	f.progress = append(f.progress, job.Progress)
	return nil
}

func (f *fakeJobStore) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	return f.jobs[jobID], nil
}

func (f *fakeJobStore) ListContacts(_ context.Context, _ string) ([]model.Contact, error) {
	return f.contacts, f.listErr
}

func (f *fakeJobStore) SaveGroups(_ context.Context, _ string, gs []model.Group) (int, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = gs
	if f.savedCount > 0 {
		return f.savedCount, nil
	}
	return len(gs), nil
}

type fakeEnhancer struct {
	groups []model.Group
	err    error
	delay  time.Duration
	calls  int
}

func (f *fakeEnhancer) Generate(ctx context.Context, user model.User, _ []model.Contact) ([]model.Group, float64, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, 0, f.err
	}
	gs := make([]model.Group, len(f.groups))
	copy(gs, f.groups)
	for i := range gs {
		gs[i].UserID = user.ID
	}
	return gs, 0.01, nil
}

// newSyncOrchestrator runs job bodies inline so tests observe the final
// state without sleeping.
func newSyncOrchestrator(store *fakeJobStore, enhancer Enhancer, cfg Config) *Orchestrator {
	o := NewOrchestrator(store, enhancer, cfg, nil)
	o.detach = func(fn func()) { fn() }
	return o
}

func manyContacts(n int) []model.Contact {
	out := make([]model.Contact, n)
	for i := range out {
		out[i] = model.Contact{ID: string(rune('a' + i)), UserID: "u1", Name: "Contact"}
	}
	return out
}

func proUser() model.User { return model.User{ID: "u1", Tier: "pro"} }

func TestOrchestrator_HappyPath(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(manyContacts(6))
	enhancer := &fakeEnhancer{groups: []model.Group{
		{Name: "Acme Engineering", Type: model.GroupTypeAI, ContactIDs: []string{"a", "b"}},
		{Name: "Investors", Type: model.GroupTypeAI, ContactIDs: []string{"c", "d"}},
		{Name: "acme engineering", Type: model.GroupTypeAI, ContactIDs: []string{"e", "f"}},
	}}
	o := newSyncOrchestrator(store, enhancer, Config{})

	jobID, err := o.Start(context.Background(), proUser())
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	job, err := o.Status(context.Background(), jobID)
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.CompletedAt)
	for _, stage := range job.Stages {
		assert.Equal(t, model.StageStatusCompleted, stage.Status, stage.Name)
	}

	require.NotNil(t, job.Result)
	assert.Equal(t, 3, job.Result.TotalGenerated)
	assert.Equal(t, 2, job.Result.TotalUnique, "duplicate name deduplicated")
	assert.Equal(t, 2, job.Result.TotalSaved)
	assert.Empty(t, job.StageErrors)
}

func TestOrchestrator_ProgressMonotonic(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(manyContacts(6))
	enhancer := &fakeEnhancer{groups: []model.Group{{Name: "G", ContactIDs: []string{"a", "b"}}}}
	o := newSyncOrchestrator(store, enhancer, Config{})

	_, err := o.Start(context.Background(), proUser())
	require.NoError(t, err)

	last := -1
	for _, p := range store.progress {
		assert.GreaterOrEqual(t, p, last, "progress never regresses")
		last = p
	}
	assert.Equal(t, 100, last)
}

func TestOrchestrator_ShortCircuitFewContacts(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(manyContacts(3))
	enhancer := &fakeEnhancer{}
	o := newSyncOrchestrator(store, enhancer, Config{})

	jobID, err := o.Start(context.Background(), proUser())
	require.NoError(t, err)

	job, err := o.Status(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, job.Status, "too few contacts is not an error")
	assert.Zero(t, enhancer.calls, "AI stage skipped entirely")
	require.NotNil(t, job.Result)
	assert.Empty(t, job.Result.Groups)
	assert.Contains(t, job.Result.Message, "5 contacts")

	// Skipped stages stay pending.
	assert.Equal(t, model.StageStatusCompleted, job.Stages[0].Status)
	assert.Equal(t, model.StageStatusPending, job.Stages[1].Status)
}

func TestOrchestrator_AIFailureDegrades(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(manyContacts(6))
	enhancer := &fakeEnhancer{err: errors.New("model overloaded")}
	o := newSyncOrchestrator(store, enhancer, Config{})

	jobID, err := o.Start(context.Background(), proUser())
	require.NoError(t, err)

	job, err := o.Status(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, job.Status, "AI failure alone never fails the job")
	assert.Equal(t, "model overloaded", job.StageErrors["ai_enhancement"])
	require.NotNil(t, job.Result)
	assert.Zero(t, job.Result.TotalGenerated)
	assert.NotEmpty(t, job.Result.Message)
}

func TestOrchestrator_AITimeoutDegrades(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(manyContacts(6))
	enhancer := &fakeEnhancer{delay: time.Second}
	o := newSyncOrchestrator(store, enhancer, Config{AITimeout: 10 * time.Millisecond})

	jobID, err := o.Start(context.Background(), proUser())
	require.NoError(t, err)

	job, err := o.Status(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Contains(t, job.StageErrors["ai_enhancement"], "deadline")
}

func TestOrchestrator_SaveFailureIsFatal(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(manyContacts(6))
	store.saveErr = errors.New("disk full")
	enhancer := &fakeEnhancer{groups: []model.Group{{Name: "G", ContactIDs: []string{"a", "b"}}}}
	o := newSyncOrchestrator(store, enhancer, Config{})

	jobID, err := o.Start(context.Background(), proUser())
	require.NoError(t, err)

	job, err := o.Status(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "disk full")
	require.NotNil(t, job.CompletedAt)
}

func TestOrchestrator_TierGate(t *testing.T) {
	t.Parallel()

	store := newFakeJobStore(manyContacts(6))
	o := newSyncOrchestrator(store, &fakeEnhancer{}, Config{})

	_, err := o.Start(context.Background(), model.User{ID: "u1", Tier: "base"})
	var gateErr *model.FeatureGateError
	require.ErrorAs(t, err, &gateErr)
	assert.Empty(t, store.jobs, "no job record persisted when gated")
}

func TestOrchestrator_CapsGroups(t *testing.T) {
	t.Parallel()

	var many []model.Group
	for i := 0; i < 20; i++ {
		many = append(many, model.Group{Name: string(rune('A' + i)), ContactIDs: []string{"a", "b"}})
	}
	store := newFakeJobStore(manyContacts(6))
	o := newSyncOrchestrator(store, &fakeEnhancer{groups: many}, Config{})

	jobID, err := o.Start(context.Background(), proUser())
	require.NoError(t, err)

	job, err := o.Status(context.Background(), jobID)
	require.NoError(t, err)
	assert.Equal(t, 20, job.Result.TotalGenerated)
	assert.Equal(t, 15, job.Result.TotalUnique)
	assert.Len(t, store.saved, 15)
}
