package advisor

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/argus-advisory/advisor-cli/internal/model"
)

// extractJSON pulls the first JSON object or array out of model output.
// Models sometimes wrap JSON in markdown fences or add prose around it
// despite the system prompt, so this is tolerant of both.
func extractJSON(text string) (string, error) {
	text = strings.TrimSpace(text)

	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return "", eris.New("advisor: no JSON found in model output")
	}

	open := text[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", eris.New("advisor: unterminated JSON in model output")
}

func decodeInto(text string, dst any) error {
	raw, err := extractJSON(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return eris.Wrap(err, "advisor: decode model JSON")
	}
	return nil
}

// validProposals filters proposals down to the ones whose plans pass
// structural validation and reference only profiled columns. Invalid
// proposals are logged and dropped rather than failing the call.
func validProposals(proposals []model.KPIProposal, profile model.DatasetProfile) []model.KPIProposal {
	known := make(map[string]bool, len(profile.Columns))
	for _, c := range profile.Columns {
		known[c.Name] = true
	}

	kept := proposals[:0]
	for _, p := range proposals {
		if p.Name == "" {
			zap.L().Warn("advisor: dropping unnamed proposal")
			continue
		}
		if err := p.Plan.Validate(); err != nil {
			zap.L().Warn("advisor: dropping invalid proposal",
				zap.String("kpi", p.Name),
				zap.Error(err),
			)
			continue
		}
		if col, ok := unknownPlanColumn(p.Plan, known); !ok {
			zap.L().Warn("advisor: dropping proposal with unknown column",
				zap.String("kpi", p.Name),
				zap.String("column", col),
			)
			continue
		}
		kept = append(kept, p)
	}
	return kept
}

// unknownPlanColumn reports the first plan column not present in the
// profile. Filter columns are exempt: the evaluator skips unknown filters
// on its own, which is more useful than rejecting the whole proposal.
func unknownPlanColumn(plan model.Plan, known map[string]bool) (string, bool) {
	cols := []string{plan.Column, plan.NumeratorColumn, plan.DenominatorColumn, plan.TimeColumn}
	cols = append(cols, plan.GroupBy...)
	for _, c := range cols {
		if c != "" && !known[c] {
			return c, false
		}
	}
	return "", true
}
