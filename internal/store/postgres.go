package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/argus-advisory/advisor-cli/internal/db"
	"github.com/argus-advisory/advisor-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Tests use it to inject a mock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	business_description TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'active',
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	filename   TEXT NOT NULL,
	blob_key   TEXT NOT NULL,
	profile    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	stage      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS kpis (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	status     TEXT NOT NULL DEFAULT 'proposed',
	definition JSONB NOT NULL,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	body       JSONB NOT NULL,
	blob_key   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_datasets_project_id ON datasets(project_id);
CREATE INDEX IF NOT EXISTS idx_jobs_project_id ON jobs(project_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_kpis_project_id ON kpis(project_id);
CREATE INDEX IF NOT EXISTS idx_kpis_status ON kpis(status);
CREATE INDEX IF NOT EXISTS idx_reports_project_created ON reports(project_id, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Projects

func (s *PostgresStore) CreateProject(ctx context.Context, p model.Project) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, business_description, status, created_at) VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, p.BusinessDescription, p.Status, p.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert project")
}

func (s *PostgresStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, business_description, status, created_at FROM projects WHERE id = $1`,
		projectID,
	)

	var p model.Project
	err := row.Scan(&p.ID, &p.Name, &p.BusinessDescription, &p.Status, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get project")
	}
	return &p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, business_description, status, created_at FROM projects ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.BusinessDescription, &p.Status, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		projects = append(projects, p)
	}
	return projects, eris.Wrap(rows.Err(), "postgres: list projects iterate")
}

// Datasets

func (s *PostgresStore) CreateDataset(ctx context.Context, d model.Dataset) error {
	var profileJSON []byte
	if d.Profile != nil {
		var err error
		profileJSON, err = json.Marshal(d.Profile)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal profile")
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO datasets (id, project_id, filename, blob_key, profile, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.ProjectID, d.Filename, d.BlobKey, profileJSON, d.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert dataset")
}

func (s *PostgresStore) GetDataset(ctx context.Context, datasetID string) (*model.Dataset, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, filename, blob_key, profile, created_at FROM datasets WHERE id = $1`,
		datasetID,
	)
	d, err := scanPgDataset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return d, err
}

func (s *PostgresStore) ListDatasets(ctx context.Context, projectID string) ([]model.Dataset, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, filename, blob_key, profile, created_at FROM datasets
		 WHERE project_id = $1 ORDER BY created_at`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list datasets")
	}
	defer rows.Close()

	var datasets []model.Dataset
	for rows.Next() {
		d, err := scanPgDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *d)
	}
	return datasets, eris.Wrap(rows.Err(), "postgres: list datasets iterate")
}

func (s *PostgresStore) UpdateDatasetProfile(ctx context.Context, datasetID string, profile *model.DatasetProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE datasets SET profile = $1 WHERE id = $2`,
		profileJSON, datasetID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update dataset profile %s", datasetID)
	}
	return checkPgRowsAffected(tag.RowsAffected(), "dataset", datasetID)
}

// Jobs

func (s *PostgresStore) CreateJob(ctx context.Context, j model.Job) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, project_id, stage, status, error, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		j.ID, j.ProjectID, string(j.Stage), string(j.Status), j.Error, j.CreatedAt, j.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert job")
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, stage, status, error, created_at, updated_at FROM jobs WHERE id = $1`,
		jobID,
	)

	var j model.Job
	err := row.Scan(&j.ID, &j.ProjectID, &j.Stage, &j.Status, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get job")
	}
	return &j, nil
}

func (s *PostgresStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job status %s", jobID)
	}
	return checkPgRowsAffected(tag.RowsAffected(), "job", jobID)
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, project_id, stage, status, error, created_at, updated_at FROM jobs WHERE 1=1`
	var args []any

	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		query += ` AND project_id = $` + strconv.Itoa(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Stage, &j.Status, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

// KPIs

func (s *PostgresStore) CreateKPI(ctx context.Context, k model.KPI) error {
	defJSON, err := json.Marshal(kpiDefinition(k))
	if err != nil {
		return eris.Wrap(err, "postgres: marshal kpi definition")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO kpis (id, project_id, status, definition, created_at) VALUES ($1, $2, $3, $4, $5)`,
		k.ID, k.ProjectID, string(k.Status), defJSON, k.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert kpi")
}

func (s *PostgresStore) GetKPI(ctx context.Context, kpiID string) (*model.KPI, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, status, definition, result, created_at FROM kpis WHERE id = $1`,
		kpiID,
	)
	k, err := scanPgKPI(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return k, err
}

func (s *PostgresStore) ListKPIs(ctx context.Context, projectID string, status model.KPIStatus) ([]model.KPI, error) {
	query := `SELECT id, project_id, status, definition, result, created_at FROM kpis WHERE project_id = $1`
	args := []any{projectID}
	if status != "" {
		args = append(args, string(status))
		query += ` AND status = $2`
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list kpis")
	}
	defer rows.Close()

	var kpis []model.KPI
	for rows.Next() {
		k, err := scanPgKPI(rows)
		if err != nil {
			return nil, err
		}
		kpis = append(kpis, *k)
	}
	return kpis, eris.Wrap(rows.Err(), "postgres: list kpis iterate")
}

func (s *PostgresStore) UpdateKPIStatus(ctx context.Context, kpiID string, status model.KPIStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE kpis SET status = $1 WHERE id = $2`,
		string(status), kpiID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update kpi status %s", kpiID)
	}
	return checkPgRowsAffected(tag.RowsAffected(), "kpi", kpiID)
}

func (s *PostgresStore) UpdateKPIResult(ctx context.Context, kpiID string, result model.KPIResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal kpi result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE kpis SET result = $1 WHERE id = $2`,
		resultJSON, kpiID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update kpi result %s", kpiID)
	}
	return checkPgRowsAffected(tag.RowsAffected(), "kpi", kpiID)
}

// Reports

func (s *PostgresStore) CreateReport(ctx context.Context, r model.AdvisoryReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reports (id, project_id, body, blob_key, created_at) VALUES ($1, $2, $3, $4, $5)`,
		r.ID, r.ProjectID, body, r.BlobKey, r.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert report")
}

func (s *PostgresStore) GetReport(ctx context.Context, reportID string) (*model.AdvisoryReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT body FROM reports WHERE id = $1`,
		reportID,
	)
	return scanPgReport(row)
}

func (s *PostgresStore) LatestReport(ctx context.Context, projectID string) (*model.AdvisoryReport, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT body FROM reports WHERE project_id = $1 ORDER BY created_at DESC LIMIT 1`,
		projectID,
	)
	return scanPgReport(row)
}

func (s *PostgresStore) UpdateReportRecommendations(ctx context.Context, reportID string, recs []model.Recommendation) error {
	report, err := s.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	if report == nil {
		return eris.Errorf("report not found: %s", reportID)
	}

	report.Recommendations = recs
	body, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal report")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET body = $1 WHERE id = $2`,
		body, reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update report %s", reportID)
	}
	return checkPgRowsAffected(tag.RowsAffected(), "report", reportID)
}

// helpers

func checkPgRowsAffected(n int64, entity, id string) error {
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func scanPgDataset(row scannable) (*model.Dataset, error) {
	var d model.Dataset
	var profileJSON []byte

	err := row.Scan(&d.ID, &d.ProjectID, &d.Filename, &d.BlobKey, &profileJSON, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan dataset")
	}

	if len(profileJSON) > 0 {
		d.Profile = &model.DatasetProfile{}
		if err := json.Unmarshal(profileJSON, d.Profile); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal profile")
		}
	}
	return &d, nil
}

func scanPgKPI(row scannable) (*model.KPI, error) {
	var k model.KPI
	var defJSON, resultJSON []byte

	err := row.Scan(&k.ID, &k.ProjectID, &k.Status, &defJSON, &resultJSON, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan kpi")
	}

	var def model.KPIProposal
	if err := json.Unmarshal(defJSON, &def); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal kpi definition")
	}
	k.Name = def.Name
	k.Description = def.Description
	k.Rationale = def.Rationale
	k.Formula = def.Formula
	k.Plan = def.Plan
	k.Target = def.Target
	k.Unit = def.Unit

	if len(resultJSON) > 0 {
		var result model.KPIResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal kpi result")
		}
		k.Value = result.Value
		k.ValueLabel = result.ValueLabel
		k.ValueBreakdown = result.ValueBreakdown
		computedAt := result.ComputedAt
		k.ComputedAt = &computedAt
	}
	return &k, nil
}

func scanPgReport(row scannable) (*model.AdvisoryReport, error) {
	var body []byte
	err := row.Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan report")
	}

	var r model.AdvisoryReport
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal report")
	}
	return &r, nil
}
