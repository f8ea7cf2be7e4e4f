package synth

import (
	"reflect"
	"testing"
)

func TestDedupeCandidates(t *testing.T) {
	tests := []struct {
		name string
		in   []Candidate
		want []Candidate
	}{
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
		{
			name: "duplicate keeps max confidence",
			in: []Candidate{
				{Title: "Take On Me", Artist: "a-ha", Confidence: 0.6},
				{Title: "take on me", Artist: "A-HA", Confidence: 0.9, Reason: "strong match"},
			},
			want: []Candidate{
				{Title: "take on me", Artist: "A-HA", Confidence: 0.9, Reason: "strong match"},
			},
		},
		{
			name: "sorted descending",
			in: []Candidate{
				{Title: "B", Artist: "X", Confidence: 0.3},
				{Title: "A", Artist: "X", Confidence: 0.8},
				{Title: "C", Artist: "X", Confidence: 0.5},
			},
			want: []Candidate{
				{Title: "A", Artist: "X", Confidence: 0.8},
				{Title: "C", Artist: "X", Confidence: 0.5},
				{Title: "B", Artist: "X", Confidence: 0.3},
			},
		},
		{
			name: "truncated to five",
			in: []Candidate{
				{Title: "1", Artist: "X", Confidence: 0.9},
				{Title: "2", Artist: "X", Confidence: 0.8},
				{Title: "3", Artist: "X", Confidence: 0.7},
				{Title: "4", Artist: "X", Confidence: 0.6},
				{Title: "5", Artist: "X", Confidence: 0.5},
				{Title: "6", Artist: "X", Confidence: 0.4},
			},
			want: []Candidate{
				{Title: "1", Artist: "X", Confidence: 0.9},
				{Title: "2", Artist: "X", Confidence: 0.8},
				{Title: "3", Artist: "X", Confidence: 0.7},
				{Title: "4", Artist: "X", Confidence: 0.6},
				{Title: "5", Artist: "X", Confidence: 0.5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DedupeCandidates(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DedupeCandidates() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDedupeCandidatesIdempotent(t *testing.T) {
	in := []Candidate{
		{Title: "Take On Me", Artist: "a-ha", Confidence: 0.9},
		{Title: "The Sun Always Shines on T.V.", Artist: "a-ha", Confidence: 0.4},
	}
	once := DedupeCandidates(in)
	twice := DedupeCandidates(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second pass changed result:\n once %+v\ntwice %+v", once, twice)
	}
}

func TestCandidateKey(t *testing.T) {
	a := Candidate{Title: " Take On Me ", Artist: "A-HA"}
	b := Candidate{Title: "take on me", Artist: "a-ha"}
	if a.Key() != b.Key() {
		t.Errorf("keys differ: %q vs %q", a.Key(), b.Key())
	}
}

func TestResultNoMatch(t *testing.T) {
	if !(Result{}).NoMatch() {
		t.Error("empty result should be no-match")
	}
	if (Result{Candidates: []Candidate{{Title: "x", Artist: "y"}}}).NoMatch() {
		t.Error("result with candidates should not be no-match")
	}
	if (Result{Answer: &Answer{Text: "hi"}}).NoMatch() {
		t.Error("result with answer should not be no-match")
	}
}
