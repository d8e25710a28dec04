package worker

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/store"
	"github.com/argus-advisory/advisor-cli/pkg/advisor"
)

// fakeStore is an in-memory store.Store that preserves insertion order for
// list calls.
type fakeStore struct {
	mu sync.Mutex

	projects map[string]model.Project
	datasets map[string]model.Dataset
	jobs     map[string]model.Job
	kpis     map[string]model.KPI
	reports  map[string]model.AdvisoryReport

	datasetOrder []string
	kpiOrder     []string
	reportOrder  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects: make(map[string]model.Project),
		datasets: make(map[string]model.Dataset),
		jobs:     make(map[string]model.Job),
		kpis:     make(map[string]model.KPI),
		reports:  make(map[string]model.AdvisoryReport),
	}
}

func (s *fakeStore) CreateProject(_ context.Context, p model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	return nil
}

func (s *fakeStore) GetProject(_ context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.projects[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (s *fakeStore) ListProjects(_ context.Context) ([]model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) CreateDataset(_ context.Context, d model.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.ID] = d
	s.datasetOrder = append(s.datasetOrder, d.ID)
	return nil
}

func (s *fakeStore) GetDataset(_ context.Context, id string) (*model.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.datasets[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (s *fakeStore) ListDatasets(_ context.Context, projectID string) ([]model.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Dataset
	for _, id := range s.datasetOrder {
		if d := s.datasets[id]; d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateDatasetProfile(_ context.Context, id string, profile *model.DatasetProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[id]
	if !ok {
		return eris.Errorf("dataset %s not found", id)
	}
	d.Profile = profile
	s.datasets[id] = d
	return nil
}

func (s *fakeStore) CreateJob(_ context.Context, j model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	return nil
}

func (s *fakeStore) GetJob(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[id]; ok {
		return &j, nil
	}
	return nil, nil
}

func (s *fakeStore) UpdateJobStatus(_ context.Context, id string, status model.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return eris.Errorf("job %s not found", id)
	}
	j.Status = status
	j.Error = errMsg
	s.jobs[id] = j
	return nil
}

func (s *fakeStore) ListJobs(_ context.Context, filter store.JobFilter) ([]model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Job
	for _, j := range s.jobs {
		if filter.ProjectID != "" && j.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// jobsInStage returns the jobs for a project at a stage, in no particular
// order.
func (s *fakeStore) jobsInStage(projectID string, stage model.JobStage) []model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Job
	for _, j := range s.jobs {
		if j.ProjectID == projectID && j.Stage == stage {
			out = append(out, j)
		}
	}
	return out
}

func (s *fakeStore) CreateKPI(_ context.Context, k model.KPI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kpis[k.ID] = k
	s.kpiOrder = append(s.kpiOrder, k.ID)
	return nil
}

func (s *fakeStore) GetKPI(_ context.Context, id string) (*model.KPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if k, ok := s.kpis[id]; ok {
		return &k, nil
	}
	return nil, nil
}

func (s *fakeStore) ListKPIs(_ context.Context, projectID string, status model.KPIStatus) ([]model.KPI, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.KPI
	for _, id := range s.kpiOrder {
		k := s.kpis[id]
		if k.ProjectID != projectID {
			continue
		}
		if status != "" && k.Status != status {
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

func (s *fakeStore) UpdateKPIStatus(_ context.Context, id string, status model.KPIStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.kpis[id]
	if !ok {
		return eris.Errorf("kpi %s not found", id)
	}
	k.Status = status
	s.kpis[id] = k
	return nil
}

func (s *fakeStore) UpdateKPIResult(_ context.Context, id string, result model.KPIResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.kpis[id]
	if !ok {
		return eris.Errorf("kpi %s not found", id)
	}
	k.Value = result.Value
	k.ValueLabel = result.ValueLabel
	k.ValueBreakdown = result.ValueBreakdown
	computedAt := result.ComputedAt
	k.ComputedAt = &computedAt
	s.kpis[id] = k
	return nil
}

func (s *fakeStore) CreateReport(_ context.Context, r model.AdvisoryReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
	s.reportOrder = append(s.reportOrder, r.ID)
	return nil
}

func (s *fakeStore) GetReport(_ context.Context, id string) (*model.AdvisoryReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.reports[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *fakeStore) LatestReport(_ context.Context, projectID string) (*model.AdvisoryReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.reportOrder) - 1; i >= 0; i-- {
		if r := s.reports[s.reportOrder[i]]; r.ProjectID == projectID {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateReportRecommendations(_ context.Context, id string, recs []model.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return eris.Errorf("report %s not found", id)
	}
	r.Recommendations = recs
	s.reports[id] = r
	return nil
}

func (s *fakeStore) Migrate(context.Context) error { return nil }
func (s *fakeStore) Close() error                  { return nil }

// fakeBlob is an in-memory blob.Storage counting accesses.
type fakeBlob struct {
	mu        sync.Mutex
	objects   map[string][]byte
	downloads int
	uploads   int
}

func newFakeBlob() *fakeBlob {
	return &fakeBlob{objects: make(map[string][]byte)}
}

func (b *fakeBlob) Upload(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.uploads++
	return nil
}

func (b *fakeBlob) Download(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.downloads++
	data, ok := b.objects[key]
	if !ok {
		return nil, eris.Errorf("blob %s not found", key)
	}
	return data, nil
}

func (b *fakeBlob) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

// fakeAdvisor returns canned advisory responses and counts calls.
type fakeAdvisor struct {
	mu sync.Mutex

	summary   string
	proposals []model.KPIProposal
	draft     *advisor.ReportDraft
	err       error

	summarizeCalls int
	proposeCalls   int
	reportCalls    int
	reportCtx      advisor.ReportContext
}

func (a *fakeAdvisor) SummarizeBusinessModel(context.Context, advisor.ProjectContext) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summarizeCalls++
	return a.summary, a.err
}

func (a *fakeAdvisor) ProposeKPIs(context.Context, advisor.ProjectContext, int) ([]model.KPIProposal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.proposeCalls++
	return a.proposals, a.err
}

func (a *fakeAdvisor) ProposeCustomKPI(context.Context, advisor.ProjectContext, string) (*model.KPIProposal, error) {
	return nil, eris.New("not used")
}

func (a *fakeAdvisor) GenerateReport(_ context.Context, rc advisor.ReportContext) (*advisor.ReportDraft, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reportCalls++
	a.reportCtx = rc
	return a.draft, a.err
}

func (a *fakeAdvisor) lastReportContext() advisor.ReportContext {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reportCtx
}

func (a *fakeAdvisor) calls() (summarize, propose, report int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summarizeCalls, a.proposeCalls, a.reportCalls
}

// fakeExporter records exported reports.
type fakeExporter struct {
	mu       sync.Mutex
	exported []string
	err      error
}

func (e *fakeExporter) Export(_ context.Context, _ string, report *model.AdvisoryReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exported = append(e.exported, report.ID)
	return e.err
}

// cancelStore refuses work once its context is cancelled, the way a real
// database or SDK client would.
type cancelStore struct {
	store.Store
}

func (s *cancelStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.GetJob(ctx, id)
}

func (s *cancelStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Store.GetProject(ctx, id)
}

func (s *cancelStore) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Store.UpdateJobStatus(ctx, id, status, errMsg)
}
