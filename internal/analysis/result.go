package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Result is the structured scorecard returned by the analysis model.
type Result struct {
	Outcome          string           `json:"outcome"`
	OutcomeScore     int              `json:"outcome_score"`
	ExecutiveSummary string           `json:"executive_summary"`
	Strengths        []string         `json:"strengths"`
	Improvements     []string         `json:"improvements"`
	PrincipleScores  []PrincipleScore `json:"principle_scores"`
	Objections       []Objection      `json:"objections"`
	RevivalScripts   []RevivalScript  `json:"revival_scripts"`
}

// PrincipleScore rates one framework principle.
type PrincipleScore struct {
	Principle      string `json:"principle"`
	Score          int    `json:"score"`
	Evidence       string `json:"evidence"`
	Recommendation string `json:"recommendation"`
}

// Objection is a concern raised by the prospect.
type Objection struct {
	Objection  string `json:"objection"`
	Response   string `json:"response"`
	Handled    bool   `json:"handled"`
	Suggestion string `json:"suggestion"`
}

// RevivalScript is a follow-up message intended to reopen a stalled deal.
type RevivalScript struct {
	Channel string `json:"channel"`
	Script  string `json:"script"`
}

// wireResult tolerates fractional scores from the model.
type wireResult struct {
	Outcome          string          `json:"outcome"`
	OutcomeScore     *float64        `json:"outcome_score"`
	ExecutiveSummary string          `json:"executive_summary"`
	Strengths        []string        `json:"strengths"`
	Improvements     []string        `json:"improvements"`
	PrincipleScores  []wirePrinciple `json:"principle_scores"`
	Objections       []Objection     `json:"objections"`
	RevivalScripts   []RevivalScript `json:"revival_scripts"`
}

type wirePrinciple struct {
	Principle      string  `json:"principle"`
	Score          float64 `json:"score"`
	Evidence       string  `json:"evidence"`
	Recommendation string  `json:"recommendation"`
}

// ParseResult extracts and decodes a model response into a Result with
// every list field present.
func ParseResult(content string) (Result, error) {
	body := ExtractPayload(content)
	if body == "" {
		return Result{}, fmt.Errorf("empty payload")
	}
	var wire wireResult
	if err := json.Unmarshal([]byte(body), &wire); err != nil {
		return Result{}, err
	}
	outcome := strings.ToLower(strings.TrimSpace(wire.Outcome))
	if outcome == "" {
		return Result{}, fmt.Errorf("missing outcome")
	}
	if wire.OutcomeScore == nil {
		return Result{}, fmt.Errorf("missing outcome_score")
	}

	result := Result{
		Outcome:          outcome,
		OutcomeScore:     clampScore(*wire.OutcomeScore),
		ExecutiveSummary: strings.TrimSpace(wire.ExecutiveSummary),
		Strengths:        nonNil(wire.Strengths),
		Improvements:     nonNil(wire.Improvements),
		PrincipleScores:  make([]PrincipleScore, 0, len(wire.PrincipleScores)),
		Objections:       nonNil(wire.Objections),
		RevivalScripts:   nonNil(wire.RevivalScripts),
	}
	for _, p := range wire.PrincipleScores {
		result.PrincipleScores = append(result.PrincipleScores, PrincipleScore{
			Principle:      strings.TrimSpace(p.Principle),
			Score:          clampScore(p.Score),
			Evidence:       p.Evidence,
			Recommendation: p.Recommendation,
		})
	}
	return result, nil
}

func clampScore(value float64) int {
	if math.IsNaN(value) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, value))))
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// ExtractPayload returns the innermost fenced block that holds JSON, or the
// trimmed response when no fence is present.
func ExtractPayload(content string) string {
	trimmed := strings.TrimSpace(content)
	const fence = "```"
	var marks []int
	for offset := 0; ; {
		idx := strings.Index(trimmed[offset:], fence)
		if idx < 0 {
			break
		}
		marks = append(marks, offset+idx)
		offset += idx + len(fence)
	}
	if len(marks) < 2 {
		return trimJSONObject(trimmed)
	}
	for i := 0; i+1 < len(marks); i++ {
		block := fenceBody(trimmed[marks[i]+len(fence) : marks[i+1]])
		if strings.HasPrefix(block, "{") || strings.HasPrefix(block, "[") {
			return block
		}
	}
	return trimJSONObject(fenceBody(trimmed[marks[0]+len(fence) : marks[len(marks)-1]]))
}

// fenceBody drops an info string such as "json" from the opening line.
func fenceBody(block string) string {
	if nl := strings.IndexByte(block, '\n'); nl >= 0 {
		info := strings.TrimSpace(block[:nl])
		if info == "" || !strings.ContainsAny(info, "{[") {
			block = block[nl+1:]
		}
	}
	return strings.TrimSpace(block)
}

func trimJSONObject(text string) string {
	if text == "" || text[0] == '{' || text[0] == '[' {
		return text
	}
	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			return strings.TrimSpace(text[start : end+1])
		}
	}
	return text
}
