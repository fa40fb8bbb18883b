package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tapcard/contact-search/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	latitude     REAL,
	longitude    REAL,
	details      TEXT,
	submitted_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS contact_embeddings (
	contact_id TEXT PRIMARY KEY REFERENCES contacts(id),
	user_id    TEXT NOT NULL,
	vector     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	type            TEXT NOT NULL,
	description     TEXT,
	contact_ids     TEXT NOT NULL,
	venue           TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	UNIQUE(user_id, normalized_name)
);

CREATE TABLE IF NOT EXISTS usage_records (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	cost       REAL NOT NULL CHECK (cost >= 0),
	model      TEXT,
	feature    TEXT,
	metadata   TEXT,
	run_type   TEXT NOT NULL,
	billable   INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL,
	type         TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'queued',
	progress     INTEGER NOT NULL DEFAULT 0,
	stages       TEXT NOT NULL,
	result       TEXT,
	error        TEXT,
	stage_errors TEXT,
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_contacts_user_id ON contacts(user_id);
CREATE INDEX IF NOT EXISTS idx_embeddings_user_id ON contact_embeddings(user_id);
CREATE INDEX IF NOT EXISTS idx_groups_user_id ON groups(user_id);
CREATE INDEX IF NOT EXISTS idx_usage_user_month ON usage_records(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_user_id ON jobs(user_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertContacts(ctx context.Context, contacts []model.Contact) (int, error) {
	if len(contacts) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert contacts")
	}
	defer tx.Rollback()

	count := 0
	for _, c := range contacts {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		detailsJSON, err := json.Marshal(c.Details)
		if err != nil {
			return count, eris.Wrap(err, "sqlite: marshal contact details")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO contacts (id, user_id, name, email, company, job_title, phone, notes, message, location, latitude, longitude, details, submitted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, email = excluded.email, company = excluded.company,
				job_title = excluded.job_title, phone = excluded.phone, notes = excluded.notes,
				message = excluded.message, location = excluded.location,
				latitude = excluded.latitude, longitude = excluded.longitude,
				details = excluded.details`,
			c.ID, c.UserID, c.Name, c.Email, c.Company, c.JobTitle, c.Phone, c.Notes,
			c.Message, c.Location, c.Latitude, c.Longitude, string(detailsJSON), c.SubmittedAt.UTC(),
		)
		if err != nil {
			return count, eris.Wrapf(err, "sqlite: upsert contact %s", c.ID)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return count, eris.Wrap(err, "sqlite: commit upsert contacts")
	}
	return count, nil
}

func (s *SQLiteStore) ListContacts(ctx context.Context, userID string) ([]model.Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, COALESCE(email,''), COALESCE(company,''), COALESCE(job_title,''),
			COALESCE(phone,''), COALESCE(notes,''), COALESCE(message,''), COALESCE(location,''),
			latitude, longitude, COALESCE(details,'{}'), submitted_at
		 FROM contacts WHERE user_id = ? ORDER BY submitted_at`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list contacts for %s", userID)
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		var detailsJSON string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Email, &c.Company, &c.JobTitle,
			&c.Phone, &c.Notes, &c.Message, &c.Location, &c.Latitude, &c.Longitude,
			&detailsJSON, &c.SubmittedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contact")
		}
		if err := json.Unmarshal([]byte(detailsJSON), &c.Details); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal details for %s", c.ID)
		}
		contacts = append(contacts, c)
	}
	return contacts, eris.Wrap(rows.Err(), "sqlite: iterate contacts")
}

func (s *SQLiteStore) CountContacts(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM contacts WHERE user_id = ?`, userID,
	).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: count contacts for %s", userID)
}

func (s *SQLiteStore) SaveEmbedding(ctx context.Context, userID, contactID string, vector []float32) error {
	vecJSON, err := json.Marshal(vector)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal embedding")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contact_embeddings (contact_id, user_id, vector) VALUES (?, ?, ?)
		 ON CONFLICT(contact_id) DO UPDATE SET vector = excluded.vector`,
		contactID, userID, string(vecJSON),
	)
	return eris.Wrapf(err, "sqlite: save embedding for %s", contactID)
}

func (s *SQLiteStore) ListEmbeddings(ctx context.Context, userID string) ([]ContactEmbedding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT contact_id, vector FROM contact_embeddings WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list embeddings for %s", userID)
	}
	defer rows.Close()

	var embeddings []ContactEmbedding
	for rows.Next() {
		var e ContactEmbedding
		var vecJSON string
		if err := rows.Scan(&e.ContactID, &vecJSON); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan embedding")
		}
		if err := json.Unmarshal([]byte(vecJSON), &e.Vector); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal embedding for %s", e.ContactID)
		}
		embeddings = append(embeddings, e)
	}
	return embeddings, eris.Wrap(rows.Err(), "sqlite: iterate embeddings")
}

func (s *SQLiteStore) SaveGroups(ctx context.Context, userID string, groups []model.Group) (int, error) {
	if len(groups) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin save groups")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	saved := 0
	for _, g := range groups {
		if g.ID == "" {
			g.ID = uuid.New().String()
		}
		g.ContactIDs = model.DedupeContactIDs(g.ContactIDs)

		idsJSON, err := json.Marshal(g.ContactIDs)
		if err != nil {
			return saved, eris.Wrap(err, "sqlite: marshal contact ids")
		}
		var venueJSON any
		if g.Venue != nil {
			data, err := json.Marshal(g.Venue)
			if err != nil {
				return saved, eris.Wrap(err, "sqlite: marshal venue")
			}
			venueJSON = string(data)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO groups (id, user_id, name, normalized_name, type, description, contact_ids, venue, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(user_id, normalized_name) DO NOTHING`,
			g.ID, userID, g.Name, g.NormalizedName(), string(g.Type), g.Description,
			string(idsJSON), venueJSON, now, now,
		)
		if err != nil {
			return saved, eris.Wrapf(err, "sqlite: insert group %q", g.Name)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return saved, eris.Wrap(err, "sqlite: rows affected")
		}
		saved += int(n)
	}

	if err := tx.Commit(); err != nil {
		return saved, eris.Wrap(err, "sqlite: commit save groups")
	}
	return saved, nil
}

func (s *SQLiteStore) ListGroups(ctx context.Context, userID string) ([]model.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, name, type, COALESCE(description,''), contact_ids, venue, created_at, updated_at
		 FROM groups WHERE user_id = ? ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list groups for %s", userID)
	}
	defer rows.Close()

	var groups []model.Group
	for rows.Next() {
		var g model.Group
		var typ, idsJSON string
		var venueJSON sql.NullString
		if err := rows.Scan(&g.ID, &g.UserID, &g.Name, &typ, &g.Description, &idsJSON, &venueJSON, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan group")
		}
		g.Type = model.GroupType(typ)
		if err := json.Unmarshal([]byte(idsJSON), &g.ContactIDs); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal contact ids for %s", g.ID)
		}
		if venueJSON.Valid && venueJSON.String != "" {
			g.Venue = &model.Venue{}
			if err := json.Unmarshal([]byte(venueJSON.String), g.Venue); err != nil {
				return nil, eris.Wrapf(err, "sqlite: unmarshal venue for %s", g.ID)
			}
		}
		groups = append(groups, g)
	}
	return groups, eris.Wrap(rows.Err(), "sqlite: iterate groups")
}

func (s *SQLiteStore) AppendUsage(ctx context.Context, rec model.UsageRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	metaJSON, err := json.Marshal(rec.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal usage metadata")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO usage_records (id, user_id, cost, model, feature, metadata, run_type, billable, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.Cost, rec.Model, rec.Feature, string(metaJSON),
		string(rec.RunType), rec.Billable, rec.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: append usage")
}

func (s *SQLiteStore) MonthlyTotals(ctx context.Context, userID string, from, to time.Time) (model.UsageTotals, error) {
	var totals model.UsageTotals
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0),
			COALESCE(SUM(CASE WHEN run_type = 'ai' AND billable THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN run_type = 'api' AND billable THEN 1 ELSE 0 END), 0)
		 FROM usage_records WHERE user_id = ? AND created_at >= ? AND created_at < ?`,
		userID, from.UTC(), to.UTC(),
	).Scan(&totals.CostUSD, &totals.RunsAI, &totals.RunsAPI)
	return totals, eris.Wrapf(err, "sqlite: monthly totals for %s", userID)
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	stagesJSON, resultJSON, stageErrsJSON, err := marshalJobFields(job)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, user_id, type, status, progress, stages, result, error, stage_errors, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.UserID, string(job.Type), string(job.Status), job.Progress,
		stagesJSON, resultJSON, job.Error, stageErrsJSON,
		job.CreatedAt.UTC(), job.UpdatedAt.UTC(), nullableTime(job.CompletedAt),
	)
	return eris.Wrapf(err, "sqlite: create job %s", job.ID)
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.Job) error {
	stagesJSON, resultJSON, stageErrsJSON, err := marshalJobFields(job)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, progress = ?, stages = ?, result = ?, error = ?, stage_errors = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(job.Status), job.Progress, stagesJSON, resultJSON, job.Error, stageErrsJSON,
		time.Now().UTC(), nullableTime(job.CompletedAt), job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: job %s not found", job.ID)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	var typ, status, stagesJSON string
	var resultJSON, errMsg, stageErrsJSON sql.NullString
	var completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, type, status, progress, stages, result, error, stage_errors, created_at, updated_at, completed_at
		 FROM jobs WHERE id = ?`,
		jobID,
	).Scan(&job.ID, &job.UserID, &typ, &status, &job.Progress, &stagesJSON,
		&resultJSON, &errMsg, &stageErrsJSON, &job.CreatedAt, &job.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}

	job.Type = model.JobType(typ)
	job.Status = model.JobStatus(status)
	job.Error = errMsg.String
	if err := decodeJobJSON(&job, stagesJSON, resultJSON, stageErrsJSON); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode job %s", jobID)
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func (s *SQLiteStore) ListRecentJobs(ctx context.Context, since time.Time) ([]model.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, type, status, progress, stages, result, error, stage_errors, created_at, updated_at, completed_at
		 FROM jobs WHERE created_at >= ? ORDER BY created_at DESC`,
		since.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recent jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []model.Job
	for rows.Next() {
		var job model.Job
		var typ, status, stagesJSON string
		var resultJSON, errMsg, stageErrsJSON sql.NullString
		var completedAt sql.NullTime

		if err := rows.Scan(&job.ID, &job.UserID, &typ, &status, &job.Progress, &stagesJSON,
			&resultJSON, &errMsg, &stageErrsJSON, &job.CreatedAt, &job.UpdatedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		job.Type = model.JobType(typ)
		job.Status = model.JobStatus(status)
		job.Error = errMsg.String
		if err := decodeJobJSON(&job, stagesJSON, resultJSON, stageErrsJSON); err != nil {
			return nil, eris.Wrapf(err, "sqlite: decode job %s", job.ID)
		}
		if completedAt.Valid {
			t := completedAt.Time
			job.CompletedAt = &t
		}
		jobs = append(jobs, job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: iterate jobs")
}

func (s *SQLiteStore) UsageSince(ctx context.Context, since time.Time) (model.UsageTotals, error) {
	var totals model.UsageTotals
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(cost), 0),
			COALESCE(SUM(CASE WHEN run_type = 'ai' AND billable THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN run_type = 'api' AND billable THEN 1 ELSE 0 END), 0)
		 FROM usage_records WHERE created_at >= ?`,
		since.UTC(),
	).Scan(&totals.CostUSD, &totals.RunsAI, &totals.RunsAPI)
	return totals, eris.Wrap(err, "sqlite: usage since")
}

func decodeJobJSON(job *model.Job, stagesJSON string, resultJSON, stageErrsJSON sql.NullString) error {
	if err := json.Unmarshal([]byte(stagesJSON), &job.Stages); err != nil {
		return eris.Wrap(err, "unmarshal stages")
	}
	if resultJSON.Valid && resultJSON.String != "" {
		job.Result = &model.GroupingResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), job.Result); err != nil {
			return eris.Wrap(err, "unmarshal result")
		}
	}
	if stageErrsJSON.Valid && stageErrsJSON.String != "" {
		if err := json.Unmarshal([]byte(stageErrsJSON.String), &job.StageErrors); err != nil {
			return eris.Wrap(err, "unmarshal stage errors")
		}
	}
	return nil
}

func marshalJobFields(job *model.Job) (stages string, result, stageErrs any, err error) {
	stagesData, err := json.Marshal(job.Stages)
	if err != nil {
		return "", nil, nil, eris.Wrap(err, "sqlite: marshal stages")
	}
	stages = string(stagesData)

	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return "", nil, nil, eris.Wrap(err, "sqlite: marshal result")
		}
		result = string(data)
	}
	if len(job.StageErrors) > 0 {
		data, err := json.Marshal(job.StageErrors)
		if err != nil {
			return "", nil, nil, eris.Wrap(err, "sqlite: marshal stage errors")
		}
		stageErrs = string(data)
	}
	return stages, result, stageErrs, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
