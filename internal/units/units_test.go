package units

import "testing"

func TestCompute_InchToMillimeter(t *testing.T) {
	f := Compute("INCH", "MILLIMETER", false, 0)
	if !f.Required {
		t.Fatal("INCH->MILLIMETER should require conversion")
	}
	got := f.Apply(1)
	if got != 25.4 {
		t.Errorf("1 INCH = %v mm, want 25.4", got)
	}
}

func TestCompute_SameUnitsIsIdentity(t *testing.T) {
	f := Compute("MILLIMETER", "MILLIMETER", false, 0)
	if f.Required {
		t.Error("identical native/target units should not require conversion")
	}
	if f.Apply(3) != 3 {
		t.Errorf("Apply(3) = %v, want 3", f.Apply(3))
	}
}

func TestCompute_Fahrenheit(t *testing.T) {
	f := Compute("FAHRENHEIT", "CELSIUS", false, 0)
	got := f.Apply(32)
	if got != 0 {
		t.Errorf("32 FAHRENHEIT = %v C, want 0", got)
	}
	got212 := f.Apply(212)
	if got212 != 100 {
		t.Errorf("212 FAHRENHEIT = %v C, want 100", got212)
	}
}

func TestCompute_RevolutionPerMinute(t *testing.T) {
	f := Compute("REVOLUTION/MINUTE", "REVOLUTION/MINUTE", false, 0)
	if f.Required {
		t.Error("REVOLUTION/MINUTE should be a no-op")
	}
}

func TestCompute_RevolutionPerSecondToMinute(t *testing.T) {
	f := Compute("REVOLUTION/SECOND", "REVOLUTION/MINUTE", false, 0)
	if !f.Required {
		t.Fatal("REVOLUTION/SECOND should require conversion")
	}
	if f.Apply(1) != 60 {
		t.Errorf("1 REVOLUTION/SECOND = %v per minute, want 60", f.Apply(1))
	}
}

func TestCompute_PowerDenominator(t *testing.T) {
	f := Compute("MILLIMETER/SECOND^2", "MILLIMETER/SECOND^2", false, 0)
	if !f.Required {
		t.Fatal("expected the power-denominator branch to mark conversion required")
	}
}

func TestCompute_NativeScaleDivides(t *testing.T) {
	f := Compute("MILLIMETER", "MILLIMETER", true, 2)
	if !f.Required {
		t.Fatal("a native scale should force conversion to be required")
	}
	if f.Apply(10) != 5 {
		t.Errorf("Apply(10) with native scale 2 = %v, want 5", f.Apply(10))
	}
}

func TestApplyTriple(t *testing.T) {
	f := Compute("INCH", "MILLIMETER", false, 0)
	x, y, z := f.ApplyTriple(1, 2, 3)
	// 3 * 25.4 rounds to 76.19999999999999 in float64.
	if x != 25.4 || y != 50.8 || z != 76.19999999999999 {
		t.Errorf("ApplyTriple(1,2,3) = (%v, %v, %v)", x, y, z)
	}
}

func TestIdentity(t *testing.T) {
	if Identity.Required {
		t.Error("Identity should not require conversion")
	}
	if Identity.Apply(5) != 5 {
		t.Errorf("Identity.Apply(5) = %v, want 5", Identity.Apply(5))
	}
}
