package engine

import (
	"testing"

	"github.com/andresmejia3/reframe/internal/types"
)

func box(cx, cy, w, h float64) types.BBox {
	return face(cx, cy, w, h, 1).Box
}

func TestStabilizerDeadZone(t *testing.T) {
	s := NewStabilizer(40)

	p := s.Propose(0, types.Single, []types.BBox{box(500, 500, 100, 100)}, false)
	if !p.Accepted || !p.Jump {
		t.Fatalf("first proposal = %+v, want an accepted jump", p)
	}

	p = s.Propose(5, types.Single, []types.BBox{box(530, 500, 100, 100)}, false)
	if p.Accepted {
		t.Errorf("30px move accepted, want it absorbed by the dead zone")
	}
	if got := s.Stable()[0].Center().X; got != 500 {
		t.Errorf("stable center = %v, want 500", got)
	}

	p = s.Propose(10, types.Single, []types.BBox{box(540, 500, 100, 100)}, false)
	if !p.Accepted || p.Jump {
		t.Fatalf("40px move = %+v, want an accepted non-jump", p)
	}
	if p.From[0].Center().X != 500 || p.To[0].Center().X != 540 {
		t.Errorf("from/to = %v/%v, want 500/540", p.From[0].Center().X, p.To[0].Center().X)
	}
}

func TestStabilizerSceneCutJumps(t *testing.T) {
	s := NewStabilizer(40)
	s.Propose(0, types.Single, []types.BBox{box(500, 500, 100, 100)}, false)
	p := s.Propose(5, types.Single, []types.BBox{box(1200, 500, 100, 100)}, true)
	if !p.Accepted || !p.Jump {
		t.Errorf("cut proposal = %+v, want an accepted jump", p)
	}
}

func TestStabilizerDualKeepsIdentity(t *testing.T) {
	s := NewStabilizer(40)
	p := s.Propose(0, types.Dual, []types.BBox{
		box(1400, 500, 100, 100),
		box(400, 500, 100, 100),
	}, false)
	if p.To[0].Center().X != 400 {
		t.Fatalf("dual jump did not order left to right: %v", p.To[0].Center().X)
	}

	// Same people, reported in the opposite order and both shifted right.
	p = s.Propose(30, types.Dual, []types.BBox{
		box(1500, 500, 100, 100),
		box(500, 500, 100, 100),
	}, false)
	if !p.Accepted {
		t.Fatal("100px move not accepted")
	}
	if p.To[0].Center().X != 500 || p.To[1].Center().X != 1500 {
		t.Errorf("slots swapped: %v, %v", p.To[0].Center().X, p.To[1].Center().X)
	}
}

func TestStabilizerCanHold(t *testing.T) {
	s := NewStabilizer(40)
	if s.CanHold(0, 90) {
		t.Error("empty stabilizer should not hold")
	}
	s.Propose(10, types.Single, []types.BBox{box(500, 500, 100, 100)}, false)
	if !s.CanHold(99, 90) {
		t.Error("expected hold one frame short of the timeout")
	}
	if s.CanHold(100, 90) {
		t.Error("expected no hold once the timeout has elapsed")
	}
	s.Reset()
	if s.CanHold(11, 90) {
		t.Error("expected no hold after reset")
	}
}
