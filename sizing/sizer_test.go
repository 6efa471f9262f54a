package sizing

import "testing"

func TestContracts(t *testing.T) {
	tests := []struct {
		name   string
		target float64
		move   float64
		delta  float64
		live   bool
		want   int
		wantOk bool
	}{
		{"rounds up to cover the target", 1000, 1.0, 0.80, true, 13, true},
		{"exact division", 1000, 1.0, 0.50, true, 20, true},
		{"negative delta sized by magnitude", 1000, 1.0, -0.80, true, 13, true},
		{"larger move needs fewer contracts", 1000, 2.0, 0.50, true, 10, true},
		{"refuses theoretical delta", 1000, 1.0, 0.80, false, 0, false},
		{"refuses zero target", 0, 1.0, 0.80, true, 0, false},
		{"refuses zero move", 1000, 0, 0.80, true, 0, false},
		{"refuses zero delta", 1000, 1.0, 0, true, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Contracts(tt.target, tt.move, tt.delta, tt.live)
			if got != tt.want || ok != tt.wantOk {
				t.Errorf("Contracts(%.0f, %.1f, %.2f, %v) = (%d, %v), want (%d, %v)",
					tt.target, tt.move, tt.delta, tt.live, got, ok, tt.want, tt.wantOk)
			}
		})
	}
}
