package relay

import "testing"

func TestCutoff_Bands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		length  int
		isGroup bool
		want    int
	}{
		{0, false, 15},
		{50, false, 15},
		{51, false, 25},
		{200, false, 25},
		{201, false, 45},
		{1000, false, 45},
		{1001, false, 90},
		{0, true, 50},
		{50, true, 50},
		{51, true, 90},
		{200, true, 90},
		{201, true, 120},
		{1000, true, 120},
		{1001, true, 180},
	}
	for _, tt := range tests {
		if got := Cutoff(tt.length, tt.isGroup); got != tt.want {
			t.Errorf("Cutoff(%d, %v) = %d, want %d", tt.length, tt.isGroup, got, tt.want)
		}
	}
}

func TestCutoff_MonotoneAndGroupStricter(t *testing.T) {
	t.Parallel()

	prevDM, prevGroup := 0, 0
	for n := 0; n <= 5000; n++ {
		dm, group := Cutoff(n, false), Cutoff(n, true)
		if dm < prevDM {
			t.Fatalf("direct cutoff decreased at length %d: %d < %d", n, dm, prevDM)
		}
		if group < prevGroup {
			t.Fatalf("group cutoff decreased at length %d: %d < %d", n, group, prevGroup)
		}
		if group < dm {
			t.Fatalf("group cutoff %d below direct cutoff %d at length %d", group, dm, n)
		}
		prevDM, prevGroup = dm, group
	}
}
