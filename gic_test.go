package gic

import "testing"

func TestTranslate(t *testing.T) {
	cases := []struct {
		class Class
		index uint32
		want  IntID
		ok    bool
	}{
		{ClassSGI, 0, 0, true},
		{ClassPPI, 0, 16, true},
		{ClassSPI, 0, 32, true},
		{ClassSGI, 15, 15, true},
		{ClassPPI, 15, 31, true},
		{ClassSGI, 16, 0, false},
		{ClassPPI, 16, 0, false},
		{ClassSPI, 16, 48, true},
		{ClassSGI, 32, 0, false},
		{ClassPPI, 32, 0, false},
		{ClassSPI, 32, 64, true},
		{ClassSPI, 987, 1019, true},
		{ClassSPI, 988, 0, false},
	}

	for _, tc := range cases {
		got, ok := Translate(tc.class, tc.index)
		if ok != tc.ok {
			t.Fatalf("Translate(%v, %d) ok=%v, want %v", tc.class, tc.index, ok, tc.ok)
		}
		if ok && got != tc.want {
			t.Fatalf("Translate(%v, %d) = %v (%d), want %d", tc.class, tc.index, got, uint32(got), uint32(tc.want))
		}
	}
}

func TestTranslateAgreesWithConstructors(t *testing.T) {
	for n := uint32(0); n < 16; n++ {
		if id, ok := Translate(ClassSGI, n); !ok || id != SGI(n) {
			t.Fatalf("Translate(SGI, %d) = %v/%v, constructor gives %v", n, id, ok, SGI(n))
		}
		if id, ok := Translate(ClassPPI, n); !ok || id != PPI(n) {
			t.Fatalf("Translate(PPI, %d) = %v/%v, constructor gives %v", n, id, ok, PPI(n))
		}
	}
	for n := uint32(0); n < 988; n++ {
		if id, ok := Translate(ClassSPI, n); !ok || id != SPI(n) {
			t.Fatalf("Translate(SPI, %d) = %v/%v, constructor gives %v", n, id, ok, SPI(n))
		}
	}
}

func TestRangePartitioning(t *testing.T) {
	// Every ordinary identifier belongs to exactly one class and the classes
	// tile [0, 1020).
	for raw := uint32(0); raw < uint32(MaxIntID); raw++ {
		id := IntID(raw)
		sgi := id.IsSGI()
		ppi := id.IsPrivate() && !id.IsSGI()
		spi := !id.IsPrivate()

		count := 0
		for _, in := range []bool{sgi, ppi, spi} {
			if in {
				count++
			}
		}
		if count != 1 {
			t.Fatalf("identifier %d matched %d classes", raw, count)
		}
		if id.IsSpecial() {
			t.Fatalf("identifier %d below MaxIntID reported special", raw)
		}
	}
	if !IntID(1020).IsSpecial() || !Spurious.IsSpecial() {
		t.Fatalf("special range not recognised")
	}
}

func TestRoundTrip(t *testing.T) {
	for raw := uint32(0); raw < uint32(MaxIntID); raw++ {
		id := IntID(raw)
		var back IntID
		switch {
		case id.IsSGI():
			back = SGI(uint32(id - SGIBase))
		case id.IsPrivate():
			back = PPI(uint32(id - PPIBase))
		default:
			back = SPI(uint32(id - SPIBase))
		}
		if back != id {
			t.Fatalf("round trip of %d gave %d", raw, uint32(back))
		}
	}
}

func TestConstructorsPanicOutOfRange(t *testing.T) {
	cases := []struct {
		name string
		fn   func()
	}{
		{"SGI", func() { SGI(16) }},
		{"PPI", func() { PPI(16) }},
		{"SPI", func() { SPI(988) }},
	}

	for _, tc := range cases {
		func() {
			defer func() {
				if recover() == nil {
					t.Fatalf("%s constructor accepted an out-of-range index", tc.name)
				}
			}()
			tc.fn()
		}()
	}
}

func TestIntIDString(t *testing.T) {
	cases := []struct {
		id   IntID
		want string
	}{
		{SGI(5), "SGI 5"},
		{PPI(3), "PPI 3"},
		{SPI(0), "SPI 0"},
		{SPI(987), "SPI 987"},
		{IntID(1020), "Special IntID 1020"},
		{Spurious, "Special IntID 1023"},
	}
	for _, tc := range cases {
		if got := tc.id.String(); got != tc.want {
			t.Fatalf("String() of %d = %q, want %q", uint32(tc.id), got, tc.want)
		}
	}
}

func TestPredicates(t *testing.T) {
	if !SGI(0).IsSGI() || !SGI(15).IsPrivate() {
		t.Fatalf("SGI predicates wrong")
	}
	if PPI(0).IsSGI() {
		t.Fatalf("PPI 0 reported as SGI")
	}
	if !PPI(15).IsPrivate() {
		t.Fatalf("PPI 15 not private")
	}
	if SPI(0).IsPrivate() || SPI(0).IsSGI() {
		t.Fatalf("SPI 0 reported private")
	}
}
