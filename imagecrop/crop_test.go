package imagecrop

import (
	"errors"
	"image"
	"math"
	"testing"
)

func TestPlanCropLandscape(t *testing.T) {
	got, err := PlanCrop(Spec{SourceWidth: 4000, SourceHeight: 3000, TargetWidth: 1200, TargetHeight: 1440})
	if err != nil {
		t.Fatalf("PlanCrop returned error: %v", err)
	}
	want := Rect{X: 750, Y: 0, Width: 2500, Height: 3000}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestPlanCropPortrait(t *testing.T) {
	got, err := PlanCrop(Spec{SourceWidth: 2000, SourceHeight: 3000, TargetWidth: 1200, TargetHeight: 1440})
	if err != nil {
		t.Fatalf("PlanCrop returned error: %v", err)
	}
	want := Rect{X: 0, Y: 300, Width: 2000, Height: 2400}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestPlanCropEqualAspectIsFullSource(t *testing.T) {
	for _, s := range []Spec{
		{SourceWidth: 2400, SourceHeight: 2880, TargetWidth: 1200, TargetHeight: 1440},
		{SourceWidth: 1200, SourceHeight: 1440, TargetWidth: 1200, TargetHeight: 1440},
		{SourceWidth: 500, SourceHeight: 600, TargetWidth: 5, TargetHeight: 6},
	} {
		got, err := PlanCrop(s)
		if err != nil {
			t.Fatalf("PlanCrop(%+v) returned error: %v", s, err)
		}
		want := Rect{Width: float64(s.SourceWidth), Height: float64(s.SourceHeight)}
		if got != want {
			t.Fatalf("PlanCrop(%+v): expected full source %+v, got %+v", s, want, got)
		}
	}
}

func TestPlanCropAspectIsExact(t *testing.T) {
	for sw := 1; sw <= 4000; sw += 173 {
		for sh := 1; sh <= 4000; sh += 211 {
			s := Spec{SourceWidth: sw, SourceHeight: sh, TargetWidth: 1200, TargetHeight: 1440}
			r, err := PlanCrop(s)
			if err != nil {
				t.Fatalf("PlanCrop(%+v) returned error: %v", s, err)
			}
			if math.Abs(r.Aspect()-s.TargetAspect()) > 1e-9 {
				t.Fatalf("PlanCrop(%+v): aspect %v, want %v", s, r.Aspect(), s.TargetAspect())
			}
			if r.X < 0 || r.Y < 0 || r.X+r.Width > float64(sw)+1e-9 || r.Y+r.Height > float64(sh)+1e-9 {
				t.Fatalf("PlanCrop(%+v): window %+v leaves the source", s, r)
			}
			if r.X != 0 && r.Y != 0 {
				t.Fatalf("PlanCrop(%+v): both axes cropped: %+v", s, r)
			}
			// centered: margins on the cropped axis are equal
			if math.Abs(r.X-(float64(sw)-r.Width-r.X)) > 1e-9 || math.Abs(r.Y-(float64(sh)-r.Height-r.Y)) > 1e-9 {
				t.Fatalf("PlanCrop(%+v): window %+v is not centered", s, r)
			}
		}
	}
}

func TestPlanCropRejectsInvalidSpec(t *testing.T) {
	for _, s := range []Spec{
		{SourceWidth: 0, SourceHeight: 10, TargetWidth: 5, TargetHeight: 6},
		{SourceWidth: 10, SourceHeight: -1, TargetWidth: 5, TargetHeight: 6},
		{SourceWidth: 10, SourceHeight: 10, TargetWidth: 0, TargetHeight: 6},
		{SourceWidth: 10, SourceHeight: 10, TargetWidth: 5, TargetHeight: 0},
	} {
		if _, err := PlanCrop(s); !errors.Is(err, ErrInvalidSpec) {
			t.Fatalf("PlanCrop(%+v): expected ErrInvalidSpec, got %v", s, err)
		}
	}
}

func TestRectBoundsRoundsAndOffsets(t *testing.T) {
	r := Rect{X: 0.4, Y: 10.5, Width: 20.2, Height: 24.24}
	got := r.Bounds(image.Pt(100, 200))
	want := image.Rect(100, 211, 121, 235)
	if got != want {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
