package engine

import (
	"testing"

	"github.com/andresmejia3/reframe/internal/types"
)

func TestSamplerIntervals(t *testing.T) {
	s := NewSampler(map[types.LayoutMode]int{types.Single: 5, types.Dual: 30})

	var sampled []int
	for f := 0; f < 16; f++ {
		if s.Next(types.Single) {
			sampled = append(sampled, f)
		}
	}
	want := []int{0, 5, 10, 15}
	if len(sampled) != len(want) {
		t.Fatalf("sampled %v, want %v", sampled, want)
	}
	for i := range want {
		if sampled[i] != want[i] {
			t.Errorf("sampled %v, want %v", sampled, want)
			break
		}
	}
}

func TestSamplerFallbackInterval(t *testing.T) {
	s := NewSampler(map[types.LayoutMode]int{types.Single: 4, types.Dual: 30})
	if got := s.Interval(types.NoSubject); got != 4 {
		t.Errorf("Interval(NoSubject) = %d, want 4", got)
	}
	if got := s.Interval(types.Crowd); got != 4 {
		t.Errorf("Interval(Crowd) = %d, want 4", got)
	}
	if got := s.Interval(types.Dual); got != 30 {
		t.Errorf("Interval(Dual) = %d, want 30", got)
	}
}

func TestSamplerReset(t *testing.T) {
	s := NewSampler(map[types.LayoutMode]int{types.Single: 5})
	s.Next(types.Single)
	s.Next(types.Single)
	s.Reset()
	if !s.Next(types.Single) {
		t.Error("expected a sample right after Reset")
	}
}

func TestWantsLookahead(t *testing.T) {
	tests := []struct {
		mode   types.LayoutMode
		usable int
		want   bool
	}{
		{types.Dual, 1, true},
		{types.Dual, 2, false},
		{types.Single, 0, true},
		{types.Single, 1, false},
		{types.NoSubject, 0, false},
	}
	for _, tt := range tests {
		if got := WantsLookahead(tt.mode, tt.usable); got != tt.want {
			t.Errorf("WantsLookahead(%s, %d) = %v, want %v", tt.mode, tt.usable, got, tt.want)
		}
	}
}
