package review

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Scorer defaults. Unparseable narratives degrade to low-but-not-zero
// confidence and an iterate recommendation, never to success.
const (
	DefaultConfidence = 50
)

var (
	confidenceRe = regexp.MustCompile(`(?i)confidence[^0-9]{0,10}(\d{1,3})`)
	issueLineRe  = regexp.MustCompile(`^\s*\d+[.)]\s+(.+)$`)
	summaryRe    = regexp.MustCompile(`(?im)^#*\s*summary\s*:?\s*$`)
)

// Narrative keywords mapped to recommendations, checked in priority order so
// an explicit escalation is never shadowed by a stray "approve" elsewhere.
var recommendationKeywords = []struct {
	keyword string
	rec     Recommendation
}{
	{"escalate", RecommendEscalate},
	{"request changes", RecommendRequestChanges},
	{"request-changes", RecommendRequestChanges},
	{"approve", RecommendApprove},
	{"iterate", RecommendIterate},
}

// Markers searched for on the line containing an acceptance criterion.
// Fail markers are checked first so "not passed" never reads as a pass.
var (
	passMarkers = []string{"[x]", "pass", "✓", "✅", "met", "satisfied"}
	failMarkers = []string{"[ ]", "not pass", "fail", "✗", "❌", "not met", "unmet", "unsatisfied"}
)

// Score parses a semi-structured review narrative against the plan's
// acceptance criteria. It is pure and lenient: anything it cannot extract
// falls back to a documented conservative default.
func Score(narrative string, criteria []string) Result {
	result := Result{
		Confidence:     extractConfidence(narrative),
		Recommendation: extractRecommendation(narrative),
		Summary:        extractSummary(narrative),
		Issues:         extractIssues(narrative),
		CreatedAt:      time.Now().UTC(),
	}
	result.Tier = TierFor(result.Confidence)

	for _, criterion := range criteria {
		result.CriteriaResults = append(result.CriteriaResults, matchCriterion(narrative, criterion))
	}

	return result
}

// extractConfidence pulls the first "confidence: NN" style number, clamped to
// 0-100. Absent or malformed values default to 50.
func extractConfidence(narrative string) int {
	m := confidenceRe.FindStringSubmatch(narrative)
	if m == nil {
		return DefaultConfidence
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return DefaultConfidence
	}
	if n > 100 {
		return 100
	}
	return n
}

// extractRecommendation scans a "recommendation" line first, then the whole
// narrative, for a known action keyword. Defaults to iterate.
func extractRecommendation(narrative string) Recommendation {
	lower := strings.ToLower(narrative)

	// Prefer an explicit recommendation line when present.
	for _, line := range strings.Split(lower, "\n") {
		if !strings.Contains(line, "recommendation") && !strings.Contains(line, "recommended action") {
			continue
		}
		for _, kw := range recommendationKeywords {
			if strings.Contains(line, kw.keyword) {
				return kw.rec
			}
		}
	}

	for _, kw := range recommendationKeywords {
		if strings.Contains(lower, kw.keyword) {
			return kw.rec
		}
	}
	return RecommendIterate
}

// extractSummary returns the text between a "Summary" heading and the next
// heading or blank-line-delimited section. Falls back to the first non-empty
// line of the narrative.
func extractSummary(narrative string) string {
	lines := strings.Split(narrative, "\n")

	loc := summaryRe.FindStringIndex(narrative)
	if loc != nil {
		rest := narrative[loc[1]:]
		var collected []string
		for _, line := range strings.Split(rest, "\n") {
			trimmed := strings.TrimSpace(line)
			if trimmed == "" {
				if len(collected) > 0 {
					break
				}
				continue
			}
			if strings.HasPrefix(trimmed, "#") {
				break
			}
			collected = append(collected, trimmed)
		}
		if len(collected) > 0 {
			return strings.Join(collected, " ")
		}
	}

	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// extractIssues collects every "1. ..." / "2) ..." numbered line.
func extractIssues(narrative string) []string {
	var issues []string
	for _, line := range strings.Split(narrative, "\n") {
		if m := issueLineRe.FindStringSubmatch(line); m != nil {
			issues = append(issues, strings.TrimSpace(m[1]))
		}
	}
	return issues
}

// matchCriterion finds the narrative line containing the criterion (substring
// containment, case-insensitive) and treats it as passed when that line also
// carries a pass marker. Unmatched criteria are not passed. Containment can
// both false-positive and false-negative; the behavior is deliberately
// best-effort with a conservative default.
func matchCriterion(narrative, criterion string) CriterionResult {
	lowerCriterion := strings.ToLower(criterion)

	for _, line := range strings.Split(narrative, "\n") {
		lowerLine := strings.ToLower(line)
		if !strings.Contains(lowerLine, lowerCriterion) {
			continue
		}
		for _, marker := range failMarkers {
			if strings.Contains(lowerLine, marker) {
				return CriterionResult{Criterion: criterion, Passed: false, Evidence: strings.TrimSpace(line)}
			}
		}
		for _, marker := range passMarkers {
			if strings.Contains(lowerLine, marker) {
				return CriterionResult{Criterion: criterion, Passed: true, Evidence: strings.TrimSpace(line)}
			}
		}
		return CriterionResult{Criterion: criterion, Passed: false, Evidence: strings.TrimSpace(line)}
	}

	return CriterionResult{Criterion: criterion, Passed: false}
}
