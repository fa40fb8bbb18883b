package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tapcard/contact-search/internal/model"
)

// Pool abstracts the pgxpool operations used by PostgresStore so tests
// can substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS contacts (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	email        TEXT,
	company      TEXT,
	job_title    TEXT,
	phone        TEXT,
	notes        TEXT,
	message      TEXT,
	location     TEXT,
	latitude     DOUBLE PRECISION,
	longitude    DOUBLE PRECISION,
	details      JSONB,
	submitted_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS contact_embeddings (
	contact_id TEXT PRIMARY KEY REFERENCES contacts(id),
	user_id    TEXT NOT NULL,
	vector     JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	type            TEXT NOT NULL,
	description     TEXT,
	contact_ids     JSONB NOT NULL,
	venue           JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	UNIQUE(user_id, normalized_name)
);

CREATE TABLE IF NOT EXISTS usage_records (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	cost       DOUBLE PRECISION NOT NULL CHECK (cost >= 0),
	model      TEXT,
	feature    TEXT,
	metadata   JSONB,
	run_type   TEXT NOT NULL,
	billable   BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	type         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	progress     INTEGER NOT NULL DEFAULT 0,
	stages       JSONB NOT NULL,
	result       JSONB,
	error        TEXT,
	stage_errors JSONB,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_contacts_user_id ON contacts(user_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_user_id ON contact_embeddings(user_id);
CREATE INDEX IF NOT EXISTS idx_groups_user_id ON groups(user_id);
CREATE INDEX IF NOT EXISTS idx_usage_user_month ON usage_records(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_user_id ON jobs(user_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertContacts(ctx context.Context, contacts []model.Contact) (int, error) {
	count := 0
	for _, c := range contacts {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		detailsJSON, err := json.Marshal(c.Details)
		if err != nil {
			return count, eris.Wrap(err, "postgres: marshal contact details")
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO contacts (id, user_id, name, email, company, job_title, phone, notes, message, location, latitude, longitude, details, submitted_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, email = EXCLUDED.email, company = EXCLUDED.company,
				job_title = EXCLUDED.job_title, phone = EXCLUDED.phone, notes = EXCLUDED.notes,
				message = EXCLUDED.message, location = EXCLUDED.location,
				latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
				details = EXCLUDED.details`,
			c.ID, c.UserID, c.Name, c.Email, c.Company, c.JobTitle, c.Phone, c.Notes,
			c.Message, c.Location, c.Latitude, c.Longitude, detailsJSON, c.SubmittedAt.UTC(),
		)
		if err != nil {
			return count, eris.Wrapf(err, "postgres: upsert contact %s", c.ID)
		}
		count++
	}
	return count, nil
}

func (s *PostgresStore) ListContacts(ctx context.Context, userID string) ([]model.Contact, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, COALESCE(email,''), COALESCE(company,''), COALESCE(job_title,''),
			COALESCE(phone,''), COALESCE(notes,''), COALESCE(message,''), COALESCE(location,''),
			latitude, longitude, COALESCE(details, '{}'::jsonb), submitted_at
		 FROM contacts WHERE user_id = $1 ORDER BY submitted_at`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list contacts for %s", userID)
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		var detailsJSON []byte
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Company, &c.JobTitle,
			&c.Phone, &c.Notes, &c.Message, &c.Location, &c.Latitude, &c.Longitude,
			&detailsJSON, &c.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contact")
		}
		if err := json.Unmarshal(detailsJSON, &c.Details); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal details for %s", c.ID)
		}
		contacts = append(contacts, c)
	}
	return contacts, eris.Wrap(rows.Err(), "postgres: iterate contacts")
}

func (s *PostgresStore) CountContacts(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM contacts WHERE user_id = $1`, userID,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: count contacts for %s", userID)
}

func (s *PostgresStore) SaveEmbedding(ctx context.Context, userID, contactID string, vector []float32) error {
	vecJSON, err := json.Marshal(vector)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal embedding")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO contact_embeddings (contact_id, user_id, vector) VALUES ($1, $2, $3)
		 ON CONFLICT (contact_id) DO UPDATE SET vector = EXCLUDED.vector`,
		contactID, userID, vecJSON,
	)
	return eris.Wrapf(err, "postgres: save embedding for %s", contactID)
}

func (s *PostgresStore) ListEmbeddings(ctx context.Context, userID string) ([]ContactEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT contact_id, vector FROM contact_embeddings WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list embeddings for %s", userID)
	}
	defer rows.Close()

	var embeddings []ContactEmbedding
	for rows.Next() {
		var e ContactEmbedding
		var vecJSON []byte
		if err := rows.Scan(&e.ContactID, &vecJSON); err != nil {
			return nil, eris.Wrap(err, "postgres: scan embedding")
		}
		if err := json.Unmarshal(vecJSON, &e.Vector); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal embedding for %s", e.ContactID)
		}
		embeddings = append(embeddings, e)
	}
	return embeddings, eris.Wrap(rows.Err(), "postgres: iterate embeddings")
}

func (s *PostgresStore) SaveGroups(ctx context.Context, userID string, groups []model.Group) (int, error) {
	now := time.Now().UTC()
	saved := 0
	for _, g := range groups {
		if g.ID == "" {
			g.ID = uuid.New().String()
		}
		g.ContactIDs = model.DedupeContactIDs(g.ContactIDs)

		idsJSON, err := json.Marshal(g.ContactIDs)
		if err != nil {
			return saved, eris.Wrap(err, "postgres: marshal contact ids")
		}
		var venueJSON []byte
		if g.Venue != nil {
			venueJSON, err = json.Marshal(g.Venue)
			if err != nil {
				return saved, eris.Wrap(err, "postgres: marshal venue")
			}
		}

		tag, err := s.pool.Exec(ctx,
			`INSERT INTO groups (id, user_id, name, normalized_name, type, description, contact_ids, venue, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (user_id, normalized_name) DO NOTHING`,
			g.ID, userID, g.Name, g.NormalizedName(), string(g.Type), g.Description,
			idsJSON, venueJSON, now, now,
		)
		if err != nil {
			return saved, eris.Wrapf(err, "postgres: insert group %q", g.Name)
		}
		saved += int(tag.RowsAffected())
	}
	return saved, nil
}

func (s *PostgresStore) ListGroups(ctx context.Context, userID string) ([]model.Group, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, name, type, COALESCE(description,''), contact_ids, venue, created_at, updated_at
		 FROM groups WHERE user_id = $1 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list groups for %s", userID)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		var typ string
		var idsJSON, venueJSON []byte
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &typ, &g.Description, &idsJSON, &venueJSON, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan group")
		}
		g.Type = model.GroupType(typ)
		if err := json.Unmarshal(idsJSON, &g.ContactIDs); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal contact ids for %s", g.ID)
		}
		if len(venueJSON) > 0 {
			g.Venue = &model.Venue{}
			if err := json.Unmarshal(venueJSON, g.Venue); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal venue for %s", g.ID)
			}
		}
		groups = append(groups, g)
	}
	return groups, eris.Wrap(rows.Err(), "postgres: iterate groups")
}

func (s *PostgresStore) AppendUsage(ctx context.Context, rec model.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal usage metadata")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO usage_records (id, user_id, cost, model, feature, metadata, run_type, billable, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.UserID, rec.Cost, rec.Model, rec.Feature, metaJSON,
		string(rec.RunType), rec.Billable, rec.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: append usage")
}

func (s *PostgresStore) MonthlyTotals(ctx context.Context, userID string, from, to time.Time) (model.UsageTotals, error) {
	var totals model.UsageTotals
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost), 0),
			COALESCE(SUM(CASE WHEN run_type = 'ai' AND billable THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN run_type = 'api' AND billable THEN 1 ELSE 0 END), 0)
		 FROM usage_records WHERE user_id = $1 AND created_at >= $2 AND created_at < $3`,
		userID, from.UTC(), to.UTC(),
	).Scan(&totals.CostUSD, &totals.RunsAI, &totals.RunsAPI)
	return totals, eris.Wrapf(err, "postgres: monthly totals for %s", userID)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *model.Job) error {
	stagesJSON, resultJSON, stageErrsJSON, err := marshalJobJSON(job)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, user_id, type, status, progress, stages, result, error, stage_errors, created_at, updated_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.UserID, string(job.Type), string(job.Status), job.Progress,
		stagesJSON, resultJSON, job.Error, stageErrsJSON,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(), job.CompletedAt,
	)
	return eris.Wrapf(err, "postgres: create job %s", job.ID)
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job *model.Job) error {
	stagesJSON, resultJSON, stageErrsJSON, err := marshalJobJSON(job)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, progress = $2, stages = $3, result = $4, error = $5, stage_errors = $6, updated_at = $7, completed_at = $8
		 WHERE id = $9`,
		string(job.Status), job.Progress, stagesJSON, resultJSON, job.Error, stageErrsJSON,
		time.Now().UTC(), job.CompletedAt, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: job %s not found", job.ID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	var typ, status string
	var stagesJSON, resultJSON, stageErrsJSON []byte
	var errMsg *string
	var completedAt *time.Time

	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, type, status, progress, stages, result, error, stage_errors, created_at, updated_at, completed_at
		 FROM jobs WHERE id = $1`,
		jobID,
	).Scan(&job.ID, &job.UserID, &typ, &status, &job.Progress, &stagesJSON,
		&resultJSON, &errMsg, &stageErrsJSON, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}

	job.Type = model.JobType(typ)
	job.Status = model.JobStatus(status)
	if errMsg != nil {
		job.Error = *errMsg
	}
	if err := json.Unmarshal(stagesJSON, &job.Stages); err != nil {
		return nil, eris.Wrapf(err, "postgres: unmarshal stages for %s", jobID)
	}
	if len(resultJSON) > 0 {
		job.Result = &model.GroupingResult{}
		if err := json.Unmarshal(resultJSON, job.Result); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal result for %s", jobID)
		}
	}
	if len(stageErrsJSON) > 0 {
		if err := json.Unmarshal(stageErrsJSON, &job.StageErrors); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal stage errors for %s", jobID)
		}
	}
	job.CompletedAt = completedAt
	return &job, nil
}

func (s *PostgresStore) ListRecentJobs(ctx context.Context, since time.Time) ([]model.Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, type, status, progress, stages, result, error, stage_errors, created_at, updated_at, completed_at
		 FROM jobs WHERE created_at >= $1 ORDER BY created_at DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recent jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var job model.Job
		var typ, status string
		var stagesJSON, resultJSON, stageErrsJSON []byte
		var errMsg *string
		var completedAt *time.Time

		if err := rows.Scan(&job.ID, &job.UserID, &typ, &status, &job.Progress, &stagesJSON,
			&resultJSON, &errMsg, &stageErrsJSON, &job.CreatedAt, &job.UpdatedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		job.Type = model.JobType(typ)
		job.Status = model.JobStatus(status)
		if errMsg != nil {
			job.Error = *errMsg
		}
		if err := json.Unmarshal(stagesJSON, &job.Stages); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal stages for %s", job.ID)
		}
		if len(resultJSON) > 0 {
			job.Result = &model.GroupingResult{}
			if err := json.Unmarshal(resultJSON, job.Result); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal result for %s", job.ID)
			}
		}
		if len(stageErrsJSON) > 0 {
			if err := json.Unmarshal(stageErrsJSON, &job.StageErrors); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal stage errors for %s", job.ID)
			}
		}
		job.CompletedAt = completedAt
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: iterate jobs")
}

func (s *PostgresStore) UsageSince(ctx context.Context, since time.Time) (model.UsageTotals, error) {
	var totals model.UsageTotals
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(cost), 0),
			COALESCE(SUM(CASE WHEN run_type = 'ai' AND billable THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN run_type = 'api' AND billable THEN 1 ELSE 0 END), 0)
		 FROM usage_records WHERE created_at >= $1`,
		since.UTC(),
	).Scan(&totals.CostUSD, &totals.RunsAI, &totals.RunsAPI)
	return totals, eris.Wrap(err, "postgres: usage since")
}

func marshalJobJSON(job *model.Job) (stages, result, stageErrs []byte, err error) {
	stages, err = json.Marshal(job.Stages)
	if err != nil {
		return nil, nil, nil, eris.Wrap(err, "postgres: marshal stages")
	}
	if job.Result != nil {
		result, err = json.Marshal(job.Result)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "postgres: marshal result")
		}
	}
	if len(job.StageErrors) > 0 {
		stageErrs, err = json.Marshal(job.StageErrors)
		if err != nil {
			return nil, nil, nil, eris.Wrap(err, "postgres: marshal stage errors")
		}
	}
	return stages, result, stageErrs, nil
}
