// Package cost prices LLM token usage for the end-of-run report.
//
// Rates are USD per one million tokens, split by direction. The table is a
// maintenance point: update it when providers reprice or new models ship.
// Unknown models aggregate raw token counts with Priced=false so the report
// can still show what was spent, just not what it cost.
package cost

import "sort"

// rate holds USD per one million tokens for a single model.
type rate struct {
	inputUSD  float64
	outputUSD float64
}

var rates = map[string]rate{
	"gemini-2.0-flash":  {0.10, 0.40},
	"gemini-1.5-flash":  {0.075, 0.30},
	"deepseek-chat":     {0.27, 1.10},
	"deepseek-reasoner": {0.55, 2.19},
	"gpt-4o":            {2.50, 10.00},
	"gpt-4o-mini":       {0.15, 0.60},
	"o4-mini":           {1.10, 4.40},
}

const tokensPerRate = 1_000_000

// Price returns the USD cost of one model call. ok reports whether the model
// is in the pricing table; when false the cost is zero and callers should
// surface raw token counts instead.
func Price(model string, inputTokens, outputTokens int) (usd float64, ok bool) {
	r, ok := rates[model]
	if !ok {
		return 0, false
	}
	usd = float64(inputTokens)/tokensPerRate*r.inputUSD +
		float64(outputTokens)/tokensPerRate*r.outputUSD
	return usd, true
}

// ModelUsage aggregates every call made to one model.
type ModelUsage struct {
	Model        string
	Calls        int
	InputTokens  int
	OutputTokens int
	USD          float64
	Priced       bool // false when the model is missing from the rates table
}

// Summary accumulates token usage across segments and stages. Not safe for
// concurrent use; the orchestrator fills it after the worker pools drain.
type Summary struct {
	perModel map[string]*ModelUsage
}

func NewSummary() *Summary {
	return &Summary{perModel: make(map[string]*ModelUsage)}
}

// Add records one model call.
func (s *Summary) Add(model string, inputTokens, outputTokens int) {
	u := s.perModel[model]
	if u == nil {
		_, priced := rates[model]
		u = &ModelUsage{Model: model, Priced: priced}
		s.perModel[model] = u
	}
	u.Calls++
	u.InputTokens += inputTokens
	u.OutputTokens += outputTokens
	usd, _ := Price(model, inputTokens, outputTokens)
	u.USD += usd
}

// Models returns per-model usage sorted by model name for stable reports.
func (s *Summary) Models() []ModelUsage {
	out := make([]ModelUsage, 0, len(s.perModel))
	for _, u := range s.perModel {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// TotalUSD sums the cost of every priced model.
func (s *Summary) TotalUSD() float64 {
	var total float64
	for _, u := range s.perModel {
		total += u.USD
	}
	return total
}

// TotalTokens sums input and output tokens across all models, priced or not.
func (s *Summary) TotalTokens() int {
	var total int
	for _, u := range s.perModel {
		total += u.InputTokens + u.OutputTokens
	}
	return total
}
