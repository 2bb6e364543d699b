package numeric

import "testing"

func mustFromString(t *testing.T, s string, scale int) Decimal {
	t.Helper()
	d, err := FromString(s, scale)
	if err != nil {
		t.Fatalf("FromString(%q, %d): %v", s, scale, err)
	}
	return d
}

func TestFromStringRendersAtScale(t *testing.T) {
	cases := []struct {
		in    string
		scale int
		want  string
	}{
		{"10.00", 2, "10.00"},
		{"10", 2, "10.00"},
		{"-3.5", 1, "-3.5"},
		{"0.0825", 4, "0.0825"},
		{"1", 0, "1"},
	}
	for _, c := range cases {
		got := mustFromString(t, c.in, c.scale).String()
		if got != c.want {
			t.Errorf("FromString(%q, %d) = %s, want %s", c.in, c.scale, got, c.want)
		}
	}
}

func TestFromStringRoundsHalfToEven(t *testing.T) {
	cases := []struct {
		in    string
		scale int
		want  string
	}{
		{"2.345", 2, "2.34"}, // 4 is even, ties round down
		{"2.355", 2, "2.36"}, // 5 is odd, ties round up
		{"2.3451", 2, "2.35"},
		{"2.344", 2, "2.34"},
	}
	for _, c := range cases {
		got := mustFromString(t, c.in, c.scale).String()
		if got != c.want {
			t.Errorf("FromString(%q, %d) = %s, want %s", c.in, c.scale, got, c.want)
		}
	}
}

func TestRescaleHalfToEven(t *testing.T) {
	d := mustFromString(t, "1.25", 2)
	if got := d.Rescale(1).String(); got != "1.2" {
		t.Errorf("Rescale(1.25 → 1) = %s, want 1.2", got)
	}
	d = mustFromString(t, "1.35", 2)
	if got := d.Rescale(1).String(); got != "1.4" {
		t.Errorf("Rescale(1.35 → 1) = %s, want 1.4", got)
	}
	d = mustFromString(t, "-1.25", 2)
	if got := d.Rescale(1).String(); got != "-1.2" {
		t.Errorf("Rescale(-1.25 → 1) = %s, want -1.2", got)
	}
}

func TestAddMixedScales(t *testing.T) {
	a := mustFromString(t, "10.00", 2)
	b := mustFromString(t, "0.0825", 4)
	if got := Add(a, b).String(); got != "10.0825" {
		t.Errorf("Add = %s, want 10.0825", got)
	}
}

func TestMulIntPreservesScale(t *testing.T) {
	a := mustFromString(t, "10.00", 2)
	got := MulInt(a, 3)
	if got.String() != "30.00" || got.Scale != 2 {
		t.Errorf("MulInt = %s (scale %d), want 30.00 scale 2", got.String(), got.Scale)
	}
}

func TestDivIntHalfToEven(t *testing.T) {
	a := mustFromString(t, "5", 0)
	got, err := DivInt(a, 2)
	if err != nil {
		t.Fatalf("DivInt: %v", err)
	}
	if got.String() != "2" {
		t.Errorf("5/2 = %s, want 2 (half-to-even)", got.String())
	}
	a = mustFromString(t, "7", 0)
	got, _ = DivInt(a, 2)
	if got.String() != "4" {
		t.Errorf("7/2 = %s, want 4 (half-to-even)", got.String())
	}
	if _, err := DivInt(a, 0); err == nil {
		t.Fatal("expected division-by-zero error")
	}
}

func TestCheckOverflow(t *testing.T) {
	d := mustFromString(t, "99.99", 2)
	if _, err := CheckOverflow(d, 4, 2); err != nil {
		t.Fatalf("99.99 should fit Decimal{4,2}: %v", err)
	}
	d = mustFromString(t, "100.00", 2)
	if _, err := CheckOverflow(d, 4, 2); err == nil {
		t.Fatal("100.00 must overflow Decimal{4,2}")
	}
}

func TestCmpAcrossScales(t *testing.T) {
	a := mustFromString(t, "1.5", 1)
	b := mustFromString(t, "1.50", 2)
	if Cmp(a, b) != 0 {
		t.Errorf("1.5 and 1.50 must compare equal")
	}
	c := mustFromString(t, "1.51", 2)
	if Cmp(a, c) >= 0 {
		t.Errorf("1.5 must compare below 1.51")
	}
}

func TestPromotedScale(t *testing.T) {
	p, s := PromotedScale(0, 500, 4, 2)
	if p != 6 || s != 2 {
		t.Errorf("PromotedScale = (%d,%d), want (6,2)", p, s)
	}
	p, s = PromotedScale(-1000, 10, 10, 4)
	if p != 10 || s != 4 {
		t.Errorf("PromotedScale = (%d,%d), want (10,4)", p, s)
	}
}
