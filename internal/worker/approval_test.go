package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/queue"
)

func seedProposals(t *testing.T, st *fakeStore, projectID string, names ...string) []model.KPI {
	t.Helper()
	kpis := make([]model.KPI, 0, len(names))
	for _, name := range names {
		k := model.NewKPI(projectID, model.KPIProposal{
			Name: name,
			Plan: model.Plan{Metric: model.MetricCount},
		})
		require.NoError(t, st.CreateKPI(context.Background(), k))
		kpis = append(kpis, k)
	}
	return kpis
}

func TestApproveKPIs_EnqueuesExactlyOneComputeJob(t *testing.T) {
	st := newFakeStore()
	q := queue.NewMemory()
	a := NewApprovals(st, q)
	kpis := seedProposals(t, st, "p1", "Revenue", "Orders", "Margin")

	result, err := a.ApproveKPIs(context.Background(), "p1", map[string]model.KPIStatus{
		kpis[0].ID: model.KPIStatusApproved,
		kpis[1].ID: model.KPIStatusApproved,
		kpis[2].ID: model.KPIStatusRejected,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Approved)
	assert.Equal(t, 1, result.Rejected)
	require.NotEmpty(t, result.JobID)

	computeJobs := st.jobsInStage("p1", model.StageComputeKPIs)
	require.Len(t, computeJobs, 1)
	assert.Equal(t, result.JobID, computeJobs[0].ID)
	assert.Equal(t, model.JobStatusQueued, computeJobs[0].Status)

	pending, _ := q.Depth()
	require.Equal(t, 1, pending)
	deliveries, err := q.Receive(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, result.JobID, deliveries[0].Message.JobID)
	assert.Equal(t, model.StageComputeKPIs, deliveries[0].Message.Stage)

	approved, err := st.ListKPIs(context.Background(), "p1", model.KPIStatusApproved)
	require.NoError(t, err)
	assert.Len(t, approved, 2)
}

func TestApproveKPIs_AllRejectedEnqueuesNothing(t *testing.T) {
	st := newFakeStore()
	q := queue.NewMemory()
	a := NewApprovals(st, q)
	kpis := seedProposals(t, st, "p1", "Revenue")

	result, err := a.ApproveKPIs(context.Background(), "p1", map[string]model.KPIStatus{
		kpis[0].ID: model.KPIStatusRejected,
	})
	require.NoError(t, err)
	assert.Zero(t, result.Approved)
	assert.Empty(t, result.JobID)

	assert.Empty(t, st.jobsInStage("p1", model.StageComputeKPIs))
	pending, _ := q.Depth()
	assert.Zero(t, pending)
}

func TestApproveKPIs_RejectsBadDecision(t *testing.T) {
	st := newFakeStore()
	a := NewApprovals(st, queue.NewMemory())
	kpis := seedProposals(t, st, "p1", "Revenue")

	_, err := a.ApproveKPIs(context.Background(), "p1", map[string]model.KPIStatus{
		kpis[0].ID: model.KPIStatus("maybe"),
	})
	assert.Error(t, err)
}

func TestApproveKPIs_EmptyDecisions(t *testing.T) {
	a := NewApprovals(newFakeStore(), queue.NewMemory())
	_, err := a.ApproveKPIs(context.Background(), "p1", nil)
	assert.Error(t, err)
}

func TestApproveRecommendations(t *testing.T) {
	st := newFakeStore()
	a := NewApprovals(st, queue.NewMemory())
	ctx := context.Background()

	report := model.NewAdvisoryReport("p1")
	report.Recommendations = []model.Recommendation{
		{Title: "Expand delivery", RequiresApproval: true},
		{Title: "Renew lease", RequiresApproval: true},
	}
	require.NoError(t, st.CreateReport(ctx, report))

	updated, err := a.ApproveRecommendations(ctx, report.ID, map[int]bool{0: true, 1: false})
	require.NoError(t, err)
	require.NotNil(t, updated.Recommendations[0].Approved)
	assert.True(t, *updated.Recommendations[0].Approved)
	require.NotNil(t, updated.Recommendations[1].Approved)
	assert.False(t, *updated.Recommendations[1].Approved)

	stored, err := st.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.True(t, *stored.Recommendations[0].Approved)
}

func TestApproveRecommendations_IndexOutOfRange(t *testing.T) {
	st := newFakeStore()
	a := NewApprovals(st, queue.NewMemory())
	ctx := context.Background()

	report := model.NewAdvisoryReport("p1")
	report.Recommendations = []model.Recommendation{{Title: "Only one"}}
	require.NoError(t, st.CreateReport(ctx, report))

	_, err := a.ApproveRecommendations(ctx, report.ID, map[int]bool{0: true, 3: true})
	assert.Error(t, err)

	// Nothing was written.
	stored, err := st.GetReport(ctx, report.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Recommendations[0].Approved)
}

func TestApproveRecommendations_MissingReport(t *testing.T) {
	a := NewApprovals(newFakeStore(), queue.NewMemory())
	_, err := a.ApproveRecommendations(context.Background(), "nope", map[int]bool{0: true})
	assert.Error(t, err)
}
