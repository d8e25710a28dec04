package advisor

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/argus-advisory/advisor-cli/internal/model"
	"github.com/argus-advisory/advisor-cli/internal/resilience"
	"github.com/argus-advisory/advisor-cli/pkg/anthropic"
)

// Options configures the Anthropic-backed advisor.
type Options struct {
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute float64 `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

func (o *Options) applyDefaults() {
	if o.Model == "" {
		o.Model = "claude-sonnet-4-5-20250929"
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 4096
	}
	if o.RequestsPerMinute <= 0 {
		o.RequestsPerMinute = 30
	}
}

// anthropicAdvisor implements Client on the message API, with a rate
// limiter, retry, and a circuit breaker shared across all operations.
type anthropicAdvisor struct {
	llm       anthropic.Client
	opts      Options
	limiter   *rate.Limiter
	breaker   *resilience.CircuitBreaker
	retry     resilience.RetryConfig
	system    []anthropic.SystemBlock
	sleepFunc func(time.Duration) // test seam for the repair pause
}

// New builds an advisor over the given Anthropic client.
func New(llm anthropic.Client, opts Options) Client {
	opts.applyDefaults()
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")

	return &anthropicAdvisor{
		llm:     llm,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RequestsPerMinute/60.0), 1),
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			ShouldTrip: resilience.IsTransient,
		}),
		retry:     retry,
		system:    anthropic.BuildCachedSystemBlocks(systemPrompt),
		sleepFunc: time.Sleep,
	}
}

// call sends one conversation through the limiter, the retry loop, and the
// breaker, and returns the concatenated text output. phase labels the cost
// log line.
func (a *anthropicAdvisor) call(ctx context.Context, phase string, msgs []anthropic.Message) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "advisor: rate limit wait")
	}

	resp, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.ExecuteVal(ctx, a.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return a.llm.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     a.opts.Model,
				MaxTokens: a.opts.MaxTokens,
				System:    a.system,
				Messages:  msgs,
			})
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "advisor: %s", phase)
	}

	resp.Usage.LogCost(a.opts.Model, phase)
	return resp.Text(), nil
}

func (a *anthropicAdvisor) SummarizeBusinessModel(ctx context.Context, pc ProjectContext) (string, error) {
	text, err := a.call(ctx, "summarize_business_model", []anthropic.Message{
		{Role: "user", Content: summaryPrompt(pc)},
	})
	if err != nil {
		return "", err
	}

	var out struct {
		Summary string `json:"summary"`
	}
	if err := decodeInto(text, &out); err != nil {
		return "", err
	}
	if out.Summary == "" {
		return "", eris.New("advisor: empty business model summary")
	}
	return out.Summary, nil
}

func (a *anthropicAdvisor) ProposeKPIs(ctx context.Context, pc ProjectContext, maxKPIs int) ([]model.KPIProposal, error) {
	if maxKPIs <= 0 {
		maxKPIs = 8
	}
	prompt := proposalPrompt(pc, maxKPIs)
	msgs := []anthropic.Message{{Role: "user", Content: prompt}}

	proposals, raw, err := a.askForProposals(ctx, "propose_kpis", msgs, pc.Profile)
	if err != nil {
		return nil, err
	}

	// One repair round: feed the invalid output back and ask again.
	if len(proposals) == 0 {
		zap.L().Warn("advisor: no valid proposals, retrying once")
		a.sleepFunc(time.Second)
		msgs = append(msgs,
			anthropic.Message{Role: "assistant", Content: raw},
			anthropic.Message{Role: "user", Content: repairMessage},
		)
		proposals, _, err = a.askForProposals(ctx, "propose_kpis_repair", msgs, pc.Profile)
		if err != nil {
			return nil, err
		}
		if len(proposals) == 0 {
			return nil, eris.New("advisor: no valid KPI proposals after retry")
		}
	}

	if len(proposals) > maxKPIs {
		proposals = proposals[:maxKPIs]
	}
	return proposals, nil
}

const repairMessage = `None of those KPIs were valid. Re-read the plan schema
and the dataset profile, then respond again with the same JSON shape. Use
only profiled column names and only the listed metrics and operators.`

func (a *anthropicAdvisor) askForProposals(ctx context.Context, phase string, msgs []anthropic.Message, profile model.DatasetProfile) ([]model.KPIProposal, string, error) {
	text, err := a.call(ctx, phase, msgs)
	if err != nil {
		return nil, "", err
	}

	var out struct {
		KPIs []model.KPIProposal `json:"kpis"`
	}
	if err := decodeInto(text, &out); err != nil {
		// Unparsable output is repairable, not fatal.
		zap.L().Warn("advisor: unparsable proposal output", zap.Error(err))
		return nil, text, nil
	}
	return validProposals(out.KPIs, profile), text, nil
}

func (a *anthropicAdvisor) ProposeCustomKPI(ctx context.Context, pc ProjectContext, request string) (*model.KPIProposal, error) {
	if request == "" {
		return nil, eris.New("advisor: empty custom KPI request")
	}

	text, err := a.call(ctx, "propose_custom_kpi", []anthropic.Message{
		{Role: "user", Content: customKPIPrompt(pc, request)},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		KPI model.KPIProposal `json:"kpi"`
	}
	if err := decodeInto(text, &out); err != nil {
		return nil, err
	}

	valid := validProposals([]model.KPIProposal{out.KPI}, pc.Profile)
	if len(valid) == 0 {
		return nil, eris.Errorf("advisor: custom KPI %q is not computable from the profiled columns", request)
	}
	return &valid[0], nil
}

func (a *anthropicAdvisor) GenerateReport(ctx context.Context, rc ReportContext) (*ReportDraft, error) {
	text, err := a.call(ctx, "generate_report", []anthropic.Message{
		{Role: "user", Content: reportPrompt(rc)},
	})
	if err != nil {
		return nil, err
	}

	var draft ReportDraft
	if err := decodeInto(text, &draft); err != nil {
		return nil, err
	}
	if draft.BusinessModelSummary == "" {
		return nil, eris.New("advisor: report draft missing business model summary")
	}
	return &draft, nil
}
