// Package jobs runs the asynchronous AI group generation job. The caller
// gets a job id back immediately; the work runs detached and the client
// polls the persisted job record for progress.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tapcard/contact-search/internal/groups"
	"github.com/tapcard/contact-search/internal/model"
	"github.com/tapcard/contact-search/internal/tier"
)

// Stage names, in execution order.
const (
	StageFetch  = "Fetching Contacts"
	StageAI     = "AI Analysis"
	StageDedupe = "Deduplicating Groups"
	StageSave   = "Saving Results"
)

// Progress checkpoints. Coarse but monotonic; the polling client never
// sees progress regress.
const (
	progressQueued   = 5
	progressFetched  = 15
	progressAnalyzed = 85
	progressDeduped  = 95
	progressDone     = 100
)

// MinContacts is the smallest contact set worth grouping. Below it the job
// completes immediately with an explanatory message rather than failing.
const MinContacts = 5

// Store is the persistence surface the orchestrator needs.
type Store interface {
	CreateJob(ctx context.Context, job *model.Job) error
	UpdateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListContacts(ctx context.Context, userID string) ([]model.Contact, error)
	SaveGroups(ctx context.Context, userID string, gs []model.Group) (int, error)
}

// Enhancer produces candidate groups from a contact set.
type Enhancer interface {
	Generate(ctx context.Context, user model.User, contacts []model.Contact) ([]model.Group, float64, error)
}

// Config tunes the orchestrator.
type Config struct {
	// AITimeout bounds the AI analysis stage. On expiry the job degrades
	// instead of failing.
	AITimeout time.Duration `yaml:"ai_timeout" mapstructure:"ai_timeout"`
	// MaxGroups caps the persisted group count.
	MaxGroups int `yaml:"max_groups" mapstructure:"max_groups"`
}

func (c Config) withDefaults() Config {
	if c.AITimeout == 0 {
		c.AITimeout = 2 * time.Minute
	}
	if c.MaxGroups == 0 {
		c.MaxGroups = groups.DefaultMaxGroups
	}
	return c
}

// Orchestrator starts and executes AI grouping jobs.
type Orchestrator struct {
	store    Store
	enhancer Enhancer
	cfg      Config
	log      *zap.Logger
	now      func() time.Time

	// detach runs the job body. Tests replace it to run synchronously.
	detach func(func())
}

func NewOrchestrator(store Store, enhancer Enhancer, cfg Config, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		store:    store,
		enhancer: enhancer,
		cfg:      cfg.withDefaults(),
		log:      log,
		now:      time.Now,
		detach:   func(fn func()) { go fn() },
	}
}

// Start persists a queued job and returns its id immediately. The job body
// runs detached with a fresh context so it survives the request's
// cancellation.
func (o *Orchestrator) Start(ctx context.Context, user model.User) (string, error) {
	if err := tier.GateAIGrouping(tier.Name(user.Tier)); err != nil {
		return "", err
	}

	now := o.now().UTC()
	job := &model.Job{
		ID:     uuid.New().String(),
		UserID: user.ID,
		Type:   model.JobTypeAIGroupGeneration,
		Status: model.JobStatusQueued,
		Stages: []model.JobStage{
			{Name: StageFetch, Status: model.StageStatusPending},
			{Name: StageAI, Status: model.StageStatusPending},
			{Name: StageDedupe, Status: model.StageStatusPending},
			{Name: StageSave, Status: model.StageStatusPending},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.store.CreateJob(ctx, job); err != nil {
		return "", eris.Wrap(err, "jobs: create job")
	}

	o.detach(func() { o.run(job, user) })
	return job.ID, nil
}

// Status fetches the current job record.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*model.Job, error) {
	return o.store.GetJob(ctx, jobID)
}

// run executes the job body. Any error outside the guarded AI stage is
// fatal; the AI stage itself degrades into a stage error and an empty or
// partial group set.
func (o *Orchestrator) run(job *model.Job, user model.User) {
	ctx := context.Background()
	log := o.log.With(zap.String("job_id", job.ID), zap.String("user_id", user.ID))

	if err := o.execute(ctx, job, user, log); err != nil {
		log.Error("job failed", zap.Error(err))
		job.Status = model.JobStatusFailed
		job.Error = err.Error()
		done := o.now().UTC()
		job.CompletedAt = &done
		if uerr := o.store.UpdateJob(ctx, job); uerr != nil {
			log.Error("failed to persist job failure", zap.Error(uerr))
		}
	}
}

func (o *Orchestrator) execute(ctx context.Context, job *model.Job, user model.User, log *zap.Logger) error {
	// Stage 1: fetch.
	job.Status = model.JobStatusProcessing
	o.setStage(job, StageFetch, model.StageStatusInProgress, progressQueued)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return eris.Wrap(err, "jobs: mark processing")
	}

	contacts, err := o.store.ListContacts(ctx, user.ID)
	if err != nil {
		return eris.Wrap(err, "jobs: fetch contacts")
	}

	if len(contacts) < MinContacts {
		// Too few contacts is a normal outcome, not an error.
		o.setStage(job, StageFetch, model.StageStatusCompleted, progressDone)
		job.Status = model.JobStatusCompleted
		job.Result = &model.GroupingResult{
			Groups:  []model.Group{},
			Message: fmt.Sprintf("At least %d contacts are needed for AI grouping; you have %d.", MinContacts, len(contacts)),
		}
		done := o.now().UTC()
		job.CompletedAt = &done
		return eris.Wrap(o.store.UpdateJob(ctx, job), "jobs: complete short-circuit")
	}

	// Stage 2: AI analysis, guarded. Timeout or provider failure degrades.
	o.setStage(job, StageFetch, model.StageStatusCompleted, progressFetched)
	o.setStage(job, StageAI, model.StageStatusInProgress, progressFetched)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return eris.Wrap(err, "jobs: mark analysis")
	}

	candidates := o.guardedGenerate(ctx, job, user, contacts, log)

	// Stage 3: dedupe + cap.
	o.setStage(job, StageAI, model.StageStatusCompleted, progressAnalyzed)
	o.setStage(job, StageDedupe, model.StageStatusInProgress, progressAnalyzed)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return eris.Wrap(err, "jobs: mark dedupe")
	}

	totalGenerated := len(candidates)
	unique := groups.Cap(groups.Dedupe(candidates), o.cfg.MaxGroups)

	// Stage 4: persist.
	o.setStage(job, StageDedupe, model.StageStatusCompleted, progressDeduped)
	o.setStage(job, StageSave, model.StageStatusInProgress, progressDeduped)
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return eris.Wrap(err, "jobs: mark save")
	}

	saved := 0
	if len(unique) > 0 {
		saved, err = o.store.SaveGroups(ctx, user.ID, unique)
		if err != nil {
			return eris.Wrap(err, "jobs: save groups")
		}
	}

	o.setStage(job, StageSave, model.StageStatusCompleted, progressDone)
	job.Status = model.JobStatusCompleted
	job.Result = &model.GroupingResult{
		Groups:         unique,
		TotalGenerated: totalGenerated,
		TotalUnique:    len(unique),
		TotalSaved:     saved,
	}
	if len(unique) == 0 {
		job.Result.Message = "No groups could be generated from your contacts."
	}
	done := o.now().UTC()
	job.CompletedAt = &done

	log.Info("job completed",
		zap.Int("generated", totalGenerated),
		zap.Int("unique", len(unique)),
		zap.Int("saved", saved),
	)
	return eris.Wrap(o.store.UpdateJob(ctx, job), "jobs: complete")
}

// guardedGenerate runs the enhancer under the AI timeout. Failures are
// recorded as a stage error and the job continues with whatever groups
// (possibly none) were produced.
func (o *Orchestrator) guardedGenerate(ctx context.Context, job *model.Job, user model.User, contacts []model.Contact, log *zap.Logger) []model.Group {
	aiCtx, cancel := context.WithTimeout(ctx, o.cfg.AITimeout)
	defer cancel()

	generated, spent, err := o.enhancer.Generate(aiCtx, user, contacts)
	if err != nil {
		log.Warn("ai analysis degraded", zap.Error(err), zap.Float64("spent_usd", spent))
		if job.StageErrors == nil {
			job.StageErrors = map[string]string{}
		}
		job.StageErrors["ai_enhancement"] = err.Error()
		return generated
	}
	return generated
}

func (o *Orchestrator) setStage(job *model.Job, name string, status model.StageStatus, progress int) {
	for i := range job.Stages {
		if job.Stages[i].Name == name {
			job.Stages[i].Status = status
			if status == model.StageStatusCompleted {
				job.Stages[i].Progress = 100
			}
		}
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	job.UpdatedAt = o.now().UTC()
}
