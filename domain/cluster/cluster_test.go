package cluster

import "testing"

func TestSelectionPolicy(t *testing.T) {
	clusters := []Cluster{
		{Rank: 1, Size: 12, Peak: 0.41},
		{Rank: 2, Size: 7, Peak: -0.83},
		{Rank: 3, Size: 5, Peak: 0.50},
	}

	if got := SelectLargest.Select(clusters); got != 0 {
		t.Errorf("largest: expected index 0, got %d", got)
	}
	if got := SelectPeak.Select(clusters); got != 1 {
		t.Errorf("peak: expected index 1, got %d", got)
	}
	if got := SelectLargest.Select(nil); got != -1 {
		t.Errorf("empty set: expected -1, got %d", got)
	}
}

func TestParsers(t *testing.T) {
	if p, err := ParseSelectionPolicy(" Peak "); err != nil || p != SelectPeak {
		t.Errorf("expected peak policy, got %q (%v)", p, err)
	}
	if _, err := ParseSelectionPolicy("biggest"); err == nil {
		t.Error("expected error for unknown policy")
	}
	if m, err := ParseCenterMode(""); err != nil || m != CenterUnweighted {
		t.Errorf("expected unweighted default, got %q (%v)", m, err)
	}
	if err := Connectivity(4).Validate(); err == nil {
		t.Error("expected NN=4 to be rejected")
	}
}

func TestFromRAS(t *testing.T) {
	// left dorsolateral prefrontal point in MNI (RAS+)
	c := FromRAS([3]float64{-40.2, 52.3, 28.0})
	if c.Space != SpaceNative {
		t.Fatalf("expected native space, got %q", c.Space)
	}
	if c.X != 40.2 || c.Y != -52.3 || c.Z != 28.0 {
		t.Errorf("expected RAI (40.2, -52.3, 28.0), got %s", c)
	}
}
