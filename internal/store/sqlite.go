package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/argus-advisory/advisor-cli/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id                   TEXT PRIMARY KEY,
	name                 TEXT NOT NULL,
	business_description TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'active',
	created_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS datasets (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	filename   TEXT NOT NULL,
	blob_key   TEXT NOT NULL,
	profile    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	stage      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS kpis (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	status     TEXT NOT NULL DEFAULT 'proposed',
	definition TEXT NOT NULL,
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id),
	body       TEXT NOT NULL,
	blob_key   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_datasets_project_id ON datasets(project_id);
CREATE INDEX IF NOT EXISTS idx_jobs_project_id ON jobs(project_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_kpis_project_id ON kpis(project_id);
CREATE INDEX IF NOT EXISTS idx_kpis_status ON kpis(status);
CREATE INDEX IF NOT EXISTS idx_reports_project_id ON reports(project_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Projects

func (s *SQLiteStore) CreateProject(ctx context.Context, p model.Project) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, business_description, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.BusinessDescription, p.Status, p.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert project")
}

func (s *SQLiteStore) GetProject(ctx context.Context, projectID string) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, business_description, status, created_at FROM projects WHERE id = ?`,
		projectID,
	)

	var p model.Project
	err := row.Scan(&p.ID, &p.Name, &p.BusinessDescription, &p.Status, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get project")
	}
	return &p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, business_description, status, created_at FROM projects ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close()

	var projects []model.Project
	for rows.Next() {
		var p model.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.BusinessDescription, &p.Status, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project")
		}
		projects = append(projects, p)
	}
	return projects, eris.Wrap(rows.Err(), "sqlite: list projects iterate")
}

// Datasets

func (s *SQLiteStore) CreateDataset(ctx context.Context, d model.Dataset) error {
	var profileJSON any
	if d.Profile != nil {
		b, err := json.Marshal(d.Profile)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal profile")
		}
		profileJSON = string(b)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO datasets (id, project_id, filename, blob_key, profile, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.ProjectID, d.Filename, d.BlobKey, profileJSON, d.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert dataset")
}

func (s *SQLiteStore) GetDataset(ctx context.Context, datasetID string) (*model.Dataset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, filename, blob_key, profile, created_at FROM datasets WHERE id = ?`,
		datasetID,
	)
	d, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return d, err
}

func (s *SQLiteStore) ListDatasets(ctx context.Context, projectID string) ([]model.Dataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, filename, blob_key, profile, created_at FROM datasets
		 WHERE project_id = ? ORDER BY created_at`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list datasets")
	}
	defer rows.Close()

	var datasets []model.Dataset
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *d)
	}
	return datasets, eris.Wrap(rows.Err(), "sqlite: list datasets iterate")
}

func (s *SQLiteStore) UpdateDatasetProfile(ctx context.Context, datasetID string, profile *model.DatasetProfile) error {
	profileJSON, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE datasets SET profile = ? WHERE id = ?`,
		string(profileJSON), datasetID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update dataset profile %s", datasetID)
	}
	return checkRowsAffected(res, "dataset", datasetID)
}

// Jobs

func (s *SQLiteStore) CreateJob(ctx context.Context, j model.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, project_id, stage, status, error, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ProjectID, string(j.Stage), string(j.Status), j.Error, j.CreatedAt, j.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert job")
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, stage, status, error, created_at, updated_at FROM jobs WHERE id = ?`,
		jobID,
	)

	var j model.Job
	err := row.Scan(&j.ID, &j.ProjectID, &j.Stage, &j.Status, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get job")
	}
	return &j, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, jobID string, status model.JobStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), errMsg, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job status %s", jobID)
	}
	return checkRowsAffected(res, "job", jobID)
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT id, project_id, stage, status, error, created_at, updated_at FROM jobs WHERE 1=1`
	var args []any

	if filter.ProjectID != "" {
		query += ` AND project_id = ?`
		args = append(args, filter.ProjectID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		var j model.Job
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Stage, &j.Status, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

// KPIs

func (s *SQLiteStore) CreateKPI(ctx context.Context, k model.KPI) error {
	defJSON, err := json.Marshal(kpiDefinition(k))
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal kpi definition")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kpis (id, project_id, status, definition, created_at) VALUES (?, ?, ?, ?, ?)`,
		k.ID, k.ProjectID, string(k.Status), string(defJSON), k.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert kpi")
}

func (s *SQLiteStore) GetKPI(ctx context.Context, kpiID string) (*model.KPI, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, status, definition, result, created_at FROM kpis WHERE id = ?`,
		kpiID,
	)
	k, err := scanKPI(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return k, err
}

func (s *SQLiteStore) ListKPIs(ctx context.Context, projectID string, status model.KPIStatus) ([]model.KPI, error) {
	query := `SELECT id, project_id, status, definition, result, created_at FROM kpis WHERE project_id = ?`
	args := []any{projectID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list kpis")
	}
	defer rows.Close()

	var kpis []model.KPI
	for rows.Next() {
		k, err := scanKPI(rows)
		if err != nil {
			return nil, err
		}
		kpis = append(kpis, *k)
	}
	return kpis, eris.Wrap(rows.Err(), "sqlite: list kpis iterate")
}

func (s *SQLiteStore) UpdateKPIStatus(ctx context.Context, kpiID string, status model.KPIStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE kpis SET status = ? WHERE id = ?`,
		string(status), kpiID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update kpi status %s", kpiID)
	}
	return checkRowsAffected(res, "kpi", kpiID)
}

func (s *SQLiteStore) UpdateKPIResult(ctx context.Context, kpiID string, result model.KPIResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal kpi result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE kpis SET result = ? WHERE id = ?`,
		string(resultJSON), kpiID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update kpi result %s", kpiID)
	}
	return checkRowsAffected(res, "kpi", kpiID)
}

// Reports

func (s *SQLiteStore) CreateReport(ctx context.Context, r model.AdvisoryReport) error {
	body, err := json.Marshal(r)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal report")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, project_id, body, blob_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.ProjectID, string(body), r.BlobKey, r.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert report")
}

func (s *SQLiteStore) GetReport(ctx context.Context, reportID string) (*model.AdvisoryReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body FROM reports WHERE id = ?`,
		reportID,
	)
	return scanReport(row)
}

func (s *SQLiteStore) LatestReport(ctx context.Context, projectID string) (*model.AdvisoryReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT body FROM reports WHERE project_id = ? ORDER BY created_at DESC LIMIT 1`,
		projectID,
	)
	return scanReport(row)
}

func (s *SQLiteStore) UpdateReportRecommendations(ctx context.Context, reportID string, recs []model.Recommendation) error {
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
		return eris.Wrap(err, "sqlite: marshal report")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE reports SET body = ? WHERE id = ?`,
		string(body), reportID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update report %s", reportID)
	}
	return checkRowsAffected(res, "report", reportID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

// kpiDefinition strips a KPI down to its proposal fields for storage; the
// scalar columns carry the rest.
func kpiDefinition(k model.KPI) model.KPIProposal {
	return model.KPIProposal{
		Name:        k.Name,
		Description: k.Description,
		Rationale:   k.Rationale,
		Formula:     k.Formula,
		Plan:        k.Plan,
		Target:      k.Target,
		Unit:        k.Unit,
	}
}

func scanDataset(row scannable) (*model.Dataset, error) {
	var d model.Dataset
	var profileJSON sql.NullString

	err := row.Scan(&d.ID, &d.ProjectID, &d.Filename, &d.BlobKey, &profileJSON, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan dataset")
	}

	if profileJSON.Valid {
		d.Profile = &model.DatasetProfile{}
		if err := json.Unmarshal([]byte(profileJSON.String), d.Profile); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal profile")
		}
	}
	return &d, nil
}

func scanKPI(row scannable) (*model.KPI, error) {
	var k model.KPI
	var defJSON string
	var resultJSON sql.NullString

	err := row.Scan(&k.ID, &k.ProjectID, &k.Status, &defJSON, &resultJSON, &k.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan kpi")
	}

	var def model.KPIProposal
	if err := json.Unmarshal([]byte(defJSON), &def); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal kpi definition")
	}
	k.Name = def.Name
	k.Description = def.Description
	k.Rationale = def.Rationale
	k.Formula = def.Formula
	k.Plan = def.Plan
	k.Target = def.Target
	k.Unit = def.Unit

	if resultJSON.Valid {
		var result model.KPIResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal kpi result")
		}
		k.Value = result.Value
		k.ValueLabel = result.ValueLabel
		k.ValueBreakdown = result.ValueBreakdown
		computedAt := result.ComputedAt
		k.ComputedAt = &computedAt
	}
	return &k, nil
}

func scanReport(row scannable) (*model.AdvisoryReport, error) {
	var body string
	err := row.Scan(&body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan report")
	}

	var r model.AdvisoryReport
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal report")
	}
	return &r, nil
}
