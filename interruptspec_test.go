package gic

import "testing"

func TestInterruptSpecResolve(t *testing.T) {
	cases := []struct {
		spec     InterruptSpec
		wantID   IntID
		wantMode TriggerMode
	}{
		// Typical device-tree lines: a UART SPI and the per-core timer PPI.
		{InterruptSpec{Type: SpecTypeSPI, Num: 1, Flags: SpecFlagLevelHigh}, SPI(1), TriggerLevel},
		{InterruptSpec{Type: SpecTypePPI, Num: 14, Flags: SpecFlagLevelHigh}, PPI(14), TriggerLevel},
		{InterruptSpec{Type: SpecTypeSPI, Num: 40, Flags: SpecFlagEdgeRising}, SPI(40), TriggerEdge},
	}

	for _, tc := range cases {
		id, mode, err := tc.spec.Resolve()
		if err != nil {
			t.Fatalf("Resolve(%+v): %v", tc.spec, err)
		}
		if id != tc.wantID || mode != tc.wantMode {
			t.Fatalf("Resolve(%+v) = %v/%v, want %v/%v", tc.spec, id, mode, tc.wantID, tc.wantMode)
		}
	}
}

func TestInterruptSpecResolveRejectsBadCells(t *testing.T) {
	bad := []InterruptSpec{
		{Type: 2, Num: 0, Flags: SpecFlagLevelHigh},              // unknown type
		{Type: SpecTypePPI, Num: 16, Flags: SpecFlagLevelHigh},   // PPI index out of range
		{Type: SpecTypeSPI, Num: 988, Flags: SpecFlagEdgeRising}, // SPI index out of range
		{Type: SpecTypeSPI, Num: 0, Flags: 2},                    // falling-edge sense unsupported
	}
	for _, spec := range bad {
		if _, _, err := spec.Resolve(); err == nil {
			t.Fatalf("Resolve(%+v) accepted malformed cells", spec)
		}
	}
}

func TestCellsRoundTrip(t *testing.T) {
	for _, id := range []IntID{PPI(0), PPI(15), SPI(0), SPI(987)} {
		for _, mode := range []TriggerMode{TriggerEdge, TriggerLevel} {
			spec, err := Cells(id, mode)
			if err != nil {
				t.Fatalf("Cells(%v, %v): %v", id, mode, err)
			}
			back, backMode, err := spec.Resolve()
			if err != nil {
				t.Fatalf("Resolve(Cells(%v, %v)): %v", id, mode, err)
			}
			if back != id || backMode != mode {
				t.Fatalf("round trip of %v/%v gave %v/%v", id, mode, back, backMode)
			}
		}
	}
}

func TestCellsRejectsSGIAndSpecial(t *testing.T) {
	if _, err := Cells(SGI(0), TriggerEdge); err == nil {
		t.Fatalf("Cells accepted an SGI")
	}
	if _, err := Cells(Spurious, TriggerLevel); err == nil {
		t.Fatalf("Cells accepted a special identifier")
	}
}
