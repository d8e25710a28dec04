package notion

import (
	"context"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

type fakeClient struct {
	req  *notionapi.PageCreateRequest
	page *notionapi.Page
	err  error
}

func (f *fakeClient) CreatePage(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

func sampleReport() *model.AdvisoryReport {
	approved := true
	return &model.AdvisoryReport{
		ID:                   "r1",
		ProjectID:            "p1",
		BusinessModelSummary: "Coffee retail with growing online share.",
		Risks: []model.RiskSignal{
			{Title: "Concentration", Description: "One region dominates", Severity: "medium"},
		},
		ComplianceNotes: []model.ComplianceNote{
			{Regulation: "Sales tax nexus", Observation: "Online sales cross state lines", ActionRequired: true},
		},
		Forecasts: []model.Forecast{
			{KPIName: "Total Revenue", HorizonDays: 90, Trend: "up", Narrative: "Seasonal lift"},
		},
		Recommendations: []model.Recommendation{
			{Title: "Expand delivery", Description: "Add a second courier", RequiresApproval: true},
			{Title: "Renew lease", Description: "Current terms are favorable", Approved: &approved},
		},
	}
}

func TestExportReport(t *testing.T) {
	fake := &fakeClient{page: &notionapi.Page{URL: "https://notion.so/abc123"}}

	url, err := ExportReport(context.Background(), fake, "parent-page", "Corner Coffee", sampleReport())
	require.NoError(t, err)
	assert.Equal(t, "https://notion.so/abc123", url)

	require.NotNil(t, fake.req)
	assert.Equal(t, notionapi.ParentTypePageID, fake.req.Parent.Type)
	assert.Equal(t, notionapi.PageID("parent-page"), fake.req.Parent.PageID)

	title, ok := fake.req.Properties["title"].(notionapi.TitleProperty)
	require.True(t, ok)
	require.Len(t, title.Title, 1)
	assert.Equal(t, "Advisory Report: Corner Coffee", title.Title[0].Text.Content)

	// Summary paragraph, 4 section headings, and one bullet per item.
	assert.Len(t, fake.req.Children, 1+4+1+1+1+2)
}

func TestReportBlocks_SkipsEmptySections(t *testing.T) {
	report := &model.AdvisoryReport{BusinessModelSummary: "Just a summary."}
	blocks := reportBlocks(report)
	require.Len(t, blocks, 1)

	p, ok := blocks[0].(*notionapi.ParagraphBlock)
	require.True(t, ok)
	assert.Equal(t, "Just a summary.", p.Paragraph.RichText[0].Text.Content)
}

func TestReportBlocks_RecommendationApprovalMarkers(t *testing.T) {
	blocks := reportBlocks(sampleReport())

	var bullets []string
	for _, b := range blocks {
		if item, ok := b.(*notionapi.BulletedListItemBlock); ok {
			bullets = append(bullets, item.BulletedListItem.RichText[0].Text.Content)
		}
	}
	assert.Contains(t, bullets, "Expand delivery: Add a second courier (awaiting approval)")
	assert.Contains(t, bullets, "Renew lease: Current terms are favorable (approved)")
	assert.Contains(t, bullets, "[medium] Concentration: One region dominates")
	assert.Contains(t, bullets, "Sales tax nexus: Online sales cross state lines (action required)")
}

func TestExportReport_CreateFails(t *testing.T) {
	fake := &fakeClient{err: assert.AnError}
	_, err := ExportReport(context.Background(), fake, "parent", "p", sampleReport())
	assert.Error(t, err)
}
