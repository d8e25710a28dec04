package notion

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

// ExportReport renders an advisory report as a child page under parentPageID
// and returns the created page URL.
func ExportReport(ctx context.Context, client Client, parentPageID, projectName string, report *model.AdvisoryReport) (string, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:   notionapi.ParentTypePageID,
			PageID: notionapi.PageID(parentPageID),
		},
		Properties: notionapi.Properties{
			"title": notionapi.TitleProperty{
				Title: richText(fmt.Sprintf("Advisory Report: %s", projectName)),
			},
		},
		Children: reportBlocks(report),
	}

	page, err := client.CreatePage(ctx, req)
	if err != nil {
		return "", eris.Wrapf(err, "notion: export report %s", report.ID)
	}

	zap.L().Info("notion: exported report",
		zap.String("report_id", report.ID),
		zap.String("page_url", page.URL),
	)
	return page.URL, nil
}

func reportBlocks(report *model.AdvisoryReport) []notionapi.Block {
	blocks := []notionapi.Block{
		paragraph(report.BusinessModelSummary),
	}

	if len(report.Risks) > 0 {
		blocks = append(blocks, heading("Risks"))
		for _, r := range report.Risks {
			blocks = append(blocks, bullet(fmt.Sprintf("[%s] %s: %s", r.Severity, r.Title, r.Description)))
		}
	}

	if len(report.ComplianceNotes) > 0 {
		blocks = append(blocks, heading("Compliance"))
		for _, n := range report.ComplianceNotes {
			line := fmt.Sprintf("%s: %s", n.Regulation, n.Observation)
			if n.ActionRequired {
				line += " (action required)"
			}
			blocks = append(blocks, bullet(line))
		}
	}

	if len(report.Forecasts) > 0 {
		blocks = append(blocks, heading("Forecasts"))
		for _, f := range report.Forecasts {
			blocks = append(blocks, bullet(fmt.Sprintf("%s, next %d days, trend %s: %s",
				f.KPIName, f.HorizonDays, f.Trend, f.Narrative)))
		}
	}

	if len(report.Recommendations) > 0 {
		blocks = append(blocks, heading("Recommendations"))
		for _, rec := range report.Recommendations {
			line := fmt.Sprintf("%s: %s", rec.Title, rec.Description)
			switch {
			case rec.Approved != nil && *rec.Approved:
				line += " (approved)"
			case rec.RequiresApproval:
				line += " (awaiting approval)"
			}
			blocks = append(blocks, bullet(line))
		}
	}

	return blocks
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

func heading(s string) notionapi.Block {
	return &notionapi.Heading2Block{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeHeading2,
		},
		Heading2: notionapi.Heading{RichText: richText(s)},
	}
}

func paragraph(s string) notionapi.Block {
	return &notionapi.ParagraphBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeParagraph,
		},
		Paragraph: notionapi.Paragraph{RichText: richText(s)},
	}
}

func bullet(s string) notionapi.Block {
	return &notionapi.BulletedListItemBlock{
		BasicBlock: notionapi.BasicBlock{
			Object: notionapi.ObjectTypeBlock,
			Type:   notionapi.BlockTypeBulletedListItem,
		},
		BulletedListItem: notionapi.ListItem{RichText: richText(s)},
	}
}
