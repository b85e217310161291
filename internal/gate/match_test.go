package gate

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// TestMatchScore verifies the weighted components and that scoring is
// insensitive to list order and letter case.
func TestMatchScore(t *testing.T) {
	tests := []struct {
		name  string
		owner Profile
		other Profile
		want  float64
	}{
		{
			name:  "empty profiles",
			owner: Profile{},
			other: Profile{},
			want:  0,
		},
		{
			name:  "full overlap everywhere",
			owner: Profile{Interests: []string{"go", "coffee"}, LookingFor: []string{"designer"}, Goals: []string{"ship v1"}},
			other: Profile{Interests: []string{"go", "coffee"}, Skills: []string{"designer"}, Goals: []string{"ship v1"}},
			want:  1.0,
		},
		{
			name:  "interests only",
			owner: Profile{Interests: []string{"go", "coffee"}},
			other: Profile{Interests: []string{"coffee", "go"}},
			want:  0.5,
		},
		{
			name:  "case and order insensitive",
			owner: Profile{Interests: []string{"Go", "COFFEE"}},
			other: Profile{Interests: []string{"coffee", "go"}},
			want:  0.5,
		},
		{
			name:  "half the needs covered by role",
			owner: Profile{LookingFor: []string{"designer", "investor"}},
			other: Profile{Role: "Product Designer"},
			want:  0.15,
		},
		{
			name:  "partial goals",
			owner: Profile{Goals: []string{"ship v1", "hire"}},
			other: Profile{Goals: []string{"ship v1", "fundraise"}},
			want:  0.1,
		},
		{
			name:  "no common ground",
			owner: Profile{Interests: []string{"go"}, Goals: []string{"hire"}},
			other: Profile{Interests: []string{"sailing"}, Goals: []string{"fundraise"}},
			want:  0,
		},
	}
	eng := NewEngine(DefaultHighMatchThreshold)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := eng.MatchScore(tt.owner, tt.other)
			if !almostEqual(got, tt.want) {
				t.Errorf("MatchScore() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestMatchScoreDeterministic verifies repeated scoring of the same pair
// never drifts.
func TestMatchScoreDeterministic(t *testing.T) {
	eng := NewEngine(0)
	owner := Profile{Interests: []string{"go", "espresso", "climbing"}, LookingFor: []string{"designer"}, Goals: []string{"ship v1"}}
	other := Profile{Interests: []string{"climbing", "go"}, Skills: []string{"designer", "figma"}, Goals: []string{"ship v1", "hire"}}
	first := eng.MatchScore(owner, other)
	for i := 0; i < 10; i++ {
		if got := eng.MatchScore(owner, other); got != first {
			t.Fatalf("MatchScore() run %d = %v, want %v", i, got, first)
		}
	}
}

// TestIsHighMatchBoundary verifies a score exactly at the threshold counts
// as a high match.
func TestIsHighMatchBoundary(t *testing.T) {
	eng := NewEngine(0.75)
	tests := []struct {
		score float64
		want  bool
	}{
		{0.75, true},
		{0.7499, false},
		{0.76, true},
		{0, false},
		{1, true},
	}
	for _, tt := range tests {
		if got := eng.IsHighMatch(tt.score); got != tt.want {
			t.Errorf("IsHighMatch(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

// TestNewEngineDefaultThreshold verifies a non-positive threshold falls
// back to the default.
func TestNewEngineDefaultThreshold(t *testing.T) {
	if got := NewEngine(0).Threshold(); got != DefaultHighMatchThreshold {
		t.Errorf("NewEngine(0).Threshold() = %v, want %v", got, DefaultHighMatchThreshold)
	}
	if got := NewEngine(0.9).Threshold(); got != 0.9 {
		t.Errorf("NewEngine(0.9).Threshold() = %v, want 0.9", got)
	}
}

// TestMatchReasonStable verifies the justification text is identical
// across calls and names attributes in sorted order.
func TestMatchReasonStable(t *testing.T) {
	eng := NewEngine(0)
	owner := Profile{Interests: []string{"espresso", "go"}, Goals: []string{"ship v1"}}
	other := Profile{Interests: []string{"go", "espresso"}, Goals: []string{"ship v1"}}
	score := eng.MatchScore(owner, other)

	first := eng.MatchReason(owner, other, score)
	second := eng.MatchReason(owner, other, score)
	if first != second {
		t.Fatalf("MatchReason() not stable: %q vs %q", first, second)
	}
	want := "shared interests: espresso, go; shared goals: ship v1 (70% match)"
	if first != want {
		t.Errorf("MatchReason() = %q, want %q", first, want)
	}
}

// TestMatchReasonEmpty verifies disjoint profiles still produce a
// readable explanation.
func TestMatchReasonEmpty(t *testing.T) {
	eng := NewEngine(0)
	got := eng.MatchReason(Profile{}, Profile{}, 0)
	want := "no overlapping attributes (0% match)"
	if got != want {
		t.Errorf("MatchReason() = %q, want %q", got, want)
	}
}

// TestSharedAttributes verifies the attribute union is sorted and
// deduplicated.
func TestSharedAttributes(t *testing.T) {
	owner := Profile{Interests: []string{"go", "coffee"}, LookingFor: []string{"go"}, Goals: []string{"ship v1"}}
	other := Profile{Interests: []string{"coffee", "go"}, Skills: []string{"go"}, Goals: []string{"ship v1"}}
	got := SharedAttributes(owner, other)
	want := []string{"coffee", "go", "ship v1"}
	if len(got) != len(want) {
		t.Fatalf("SharedAttributes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SharedAttributes()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
