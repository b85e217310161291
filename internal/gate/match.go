package gate

import (
	"fmt"
	"sort"
	"strings"
)

// Component weights. Interests carry the most signal, then whether the
// contact offers what the owner is looking for, then shared goals.
const (
	weightInterests = 0.50
	weightNeeds     = 0.30
	weightGoals     = 0.20
)

// Engine scores compatibility between two profiles. Scoring is pure and
// deterministic: the same pair always yields the same score and reason.
type Engine struct {
	threshold float64
}

// NewEngine returns an engine using the given high-match threshold, or the
// default when threshold is not positive.
func NewEngine(threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultHighMatchThreshold
	}
	return &Engine{threshold: threshold}
}

// Threshold returns the engine's high-match threshold.
func (e *Engine) Threshold() float64 { return e.threshold }

// MatchScore returns a compatibility score in [0, 1]: weighted overlap of
// interests, of the owner's looking-for list against the contact's skills
// and role, and of goals. Profiles with nothing in common score 0.
func (e *Engine) MatchScore(owner, other Profile) float64 {
	score := weightInterests*overlapFraction(owner.Interests, other.Interests) +
		weightNeeds*needsFraction(owner, other) +
		weightGoals*overlapFraction(owner.Goals, other.Goals)
	if score > 1 {
		score = 1
	}
	return score
}

// IsHighMatch reports whether a score meets the threshold. The boundary
// counts: a score exactly at the threshold is a high match.
func (e *Engine) IsHighMatch(score float64) bool {
	return score >= e.threshold
}

// MatchReason explains a score in one line, naming the attributes that
// contributed. Attribute lists are sorted so the text is stable.
func (e *Engine) MatchReason(owner, other Profile, score float64) string {
	var parts []string
	if shared := sharedTokens(owner.Interests, other.Interests); len(shared) > 0 {
		parts = append(parts, "shared interests: "+strings.Join(shared, ", "))
	}
	if covered := coveredNeeds(owner, other); len(covered) > 0 {
		parts = append(parts, "they offer what you're looking for: "+strings.Join(covered, ", "))
	}
	if shared := sharedTokens(owner.Goals, other.Goals); len(shared) > 0 {
		parts = append(parts, "shared goals: "+strings.Join(shared, ", "))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("no overlapping attributes (%.0f%% match)", score*100)
	}
	return fmt.Sprintf("%s (%.0f%% match)", strings.Join(parts, "; "), score*100)
}

// SharedAttributes returns every attribute the two profiles have in
// common, sorted. Used to annotate approval requests.
func SharedAttributes(owner, other Profile) []string {
	seen := map[string]bool{}
	var out []string
	add := func(tokens []string) {
		for _, t := range tokens {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	add(sharedTokens(owner.Interests, other.Interests))
	add(coveredNeeds(owner, other))
	add(sharedTokens(owner.Goals, other.Goals))
	sort.Strings(out)
	return out
}

// overlapFraction is |a ∩ b| over the smaller list's size, 0 when either
// side is empty.
func overlapFraction(a, b []string) float64 {
	na, nb := normalize(a), normalize(b)
	if len(na) == 0 || len(nb) == 0 {
		return 0
	}
	shared := intersect(na, nb)
	smaller := len(na)
	if len(nb) < smaller {
		smaller = len(nb)
	}
	return float64(len(shared)) / float64(smaller)
}

// needsFraction is the share of the owner's looking-for entries the other
// profile satisfies through skills or role.
func needsFraction(owner, other Profile) float64 {
	needs := normalize(owner.LookingFor)
	if len(needs) == 0 {
		return 0
	}
	return float64(len(matchedNeeds(needs, other))) / float64(len(needs))
}

func coveredNeeds(owner, other Profile) []string {
	covered := matchedNeeds(normalize(owner.LookingFor), other)
	sort.Strings(covered)
	return covered
}

func matchedNeeds(needs []string, other Profile) []string {
	offers := map[string]bool{}
	for _, s := range normalize(other.Skills) {
		offers[s] = true
	}
	role := strings.ToLower(strings.TrimSpace(other.Role))
	var matched []string
	for _, need := range needs {
		if offers[need] || (role != "" && strings.Contains(role, need)) {
			matched = append(matched, need)
		}
	}
	return matched
}

func sharedTokens(a, b []string) []string {
	shared := intersect(normalize(a), normalize(b))
	sort.Strings(shared)
	return shared
}

func normalize(items []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, item := range items {
		t := strings.ToLower(strings.TrimSpace(item))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func intersect(a, b []string) []string {
	inB := map[string]bool{}
	for _, t := range b {
		inB[t] = true
	}
	var out []string
	for _, t := range a {
		if inB[t] {
			out = append(out, t)
		}
	}
	return out
}
