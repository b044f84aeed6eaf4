package geometry

import (
	"errors"
	"math"
	"testing"
)

const eps = 1e-9

func square() Polygon {
	return Polygon{Pt(0, 0), Pt(1, 0), Pt(1, 1), Pt(0, 1)}
}

func TestValidateStructure(t *testing.T) {
	tests := []struct {
		name string
		p    Polygon
		want bool
	}{
		{"nil", nil, false},
		{"one point", Polygon{Pt(0.5, 0.5)}, false},
		{"two points", Polygon{Pt(0, 0), Pt(1, 1)}, false},
		{"triangle", Polygon{Pt(0, 0), Pt(1, 0), Pt(0, 1)}, true},
		{"square", square(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateStructure(tt.p); got != tt.want {
				t.Errorf("ValidateStructure() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasSelfIntersections(t *testing.T) {
	tests := []struct {
		name string
		p    Polygon
		want bool
	}{
		{"triangle short-circuits", Polygon{Pt(0, 0), Pt(1, 1), Pt(1, 0)}, false},
		{"convex square", square(), false},
		{"bowtie", Polygon{Pt(0, 0), Pt(1, 1), Pt(1, 0), Pt(0, 1)}, true},
		{"concave arrow", Polygon{Pt(0, 0), Pt(0.5, 0.3), Pt(1, 0), Pt(0.5, 1)}, false},
		{"pentagram order", Polygon{
			Pt(0.5, 0), Pt(0.8, 1), Pt(0, 0.35), Pt(1, 0.35), Pt(0.2, 1),
		}, true},
		{"hexagon", Polygon{
			Pt(0.25, 0), Pt(0.75, 0), Pt(1, 0.5), Pt(0.75, 1), Pt(0.25, 1), Pt(0, 0.5),
		}, false},
		{"figure eight hexagon", Polygon{
			Pt(0, 0), Pt(0.5, 0), Pt(0.5, 1), Pt(1, 1), Pt(1, 0.6), Pt(0, 0.6),
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasSelfIntersections(tt.p); got != tt.want {
				t.Errorf("HasSelfIntersections() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(square()); err != nil {
		t.Fatalf("square rejected: %v", err)
	}

	err := Validate(Polygon{Pt(0, 0), Pt(1, 1)})
	var geomErr *GeometryError
	if !errors.As(err, &geomErr) || !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("expected too-few-points GeometryError, got %v", err)
	}

	err = Validate(Polygon{Pt(0, 0), Pt(1, 1), Pt(1, 0), Pt(0, 1)})
	if !errors.Is(err, ErrSelfIntersecting) {
		t.Errorf("expected self-intersection error, got %v", err)
	}
}

func TestValidateInFrame(t *testing.T) {
	if err := ValidateInFrame(square()); err != nil {
		t.Fatalf("square rejected: %v", err)
	}

	err := ValidateInFrame(Polygon{Pt(0.5, 0.5), Pt(1.5, 0.5), Pt(1.5, 1.5), Pt(0.5, 1.5)})
	var geomErr *GeometryError
	if !errors.As(err, &geomErr) || !errors.Is(err, ErrOutOfFrame) {
		t.Errorf("expected out-of-frame GeometryError, got %v", err)
	}

	err = ValidateInFrame(Polygon{Pt(0, 0), Pt(1, 1)})
	if !errors.Is(err, ErrTooFewPoints) {
		t.Errorf("structural errors take precedence, got %v", err)
	}
}

func TestSnap(t *testing.T) {
	tests := []struct {
		name   string
		box    BoundingBox
		frameW float64
		frameH float64
		want   BoundingBox
	}{
		{"integral", BoundingBox{MinX: 78, MinY: 58, Width: 244, Height: 184}, 800, 600, BoundingBox{MinX: 78, MinY: 58, Width: 244, Height: 184}},
		{"fractional", BoundingBox{MinX: 96.72, MinY: 138.7, Width: 359.52, Height: 270.64}, 800, 600, BoundingBox{MinX: 96, MinY: 138, Width: 361, Height: 272}},
		{"float noise", BoundingBox{MinX: 77.99999999, MinY: 58.00000001, Width: 244.00000002, Height: 184}, 800, 600, BoundingBox{MinX: 78, MinY: 58, Width: 244, Height: 184}},
		{"clamped", BoundingBox{MinX: 0, MinY: 0.5, Width: 99.6, Height: 99.4}, 99.5, 99.5, BoundingBox{MinX: 0, MinY: 0, Width: 99.5, Height: 99.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.box.Snap(tt.frameW, tt.frameH)
			if got != tt.want {
				t.Errorf("Snap(%+v) = %+v, want %+v", tt.box, got, tt.want)
			}
			if again := got.Snap(tt.frameW, tt.frameH); again != got {
				t.Errorf("Snap is not idempotent: %+v -> %+v", got, again)
			}
		})
	}
}

func TestComputeBoundingBox(t *testing.T) {
	p := Polygon{Pt(0.1, 0.1), Pt(0.4, 0.1), Pt(0.4, 0.4), Pt(0.1, 0.4)}
	box := ComputeBoundingBox(p, 800, 600, DefaultPadding)

	want := BoundingBox{MinX: 78, MinY: 58, Width: 244, Height: 184}
	if math.Abs(box.MinX-want.MinX) > eps || math.Abs(box.MinY-want.MinY) > eps ||
		math.Abs(box.Width-want.Width) > eps || math.Abs(box.Height-want.Height) > eps {
		t.Fatalf("box = %+v, want %+v", box, want)
	}

	w, h := box.PixelSize()
	if w != 244 || h != 184 {
		t.Errorf("PixelSize() = %dx%d, want 244x184", w, h)
	}
}

func TestComputeBoundingBoxClampsToFrame(t *testing.T) {
	box := ComputeBoundingBox(square(), 320, 200, DefaultPadding)
	if box.MinX != 0 || box.MinY != 0 {
		t.Errorf("min = (%v, %v), want (0, 0)", box.MinX, box.MinY)
	}
	if box.Width != 320 || box.Height != 200 {
		t.Errorf("size = %vx%v, want 320x200", box.Width, box.Height)
	}

	corner := Polygon{Pt(0, 0), Pt(0.05, 0), Pt(0, 0.05)}
	box = ComputeBoundingBox(corner, 100, 100, DefaultPadding)
	if box.MinX != 0 || box.MinY != 0 {
		t.Errorf("corner min = (%v, %v), want (0, 0)", box.MinX, box.MinY)
	}
	if !box.Within(100, 100) {
		t.Errorf("box %+v escapes the frame", box)
	}
}

func TestComputeBoundingBoxEmptyPolygon(t *testing.T) {
	box := ComputeBoundingBox(nil, 640, 480, DefaultPadding)
	if box != (BoundingBox{Width: 640, Height: 480}) {
		t.Errorf("box = %+v, want full frame", box)
	}
}

func TestRebaseRoundTrip(t *testing.T) {
	const W, H = 1024.0, 768.0
	p := Polygon{Pt(0.13, 0.27), Pt(0.61, 0.22), Pt(0.55, 0.71), Pt(0.2, 0.66)}
	box := ComputeBoundingBox(p, W, H, DefaultPadding)
	cropped := Rebase(p, W, H, box)

	for i, pt := range p {
		wantX := (pt.X*W - box.MinX) / box.Width
		wantY := (pt.Y*H - box.MinY) / box.Height
		if math.Abs(cropped[i].X-wantX) > eps || math.Abs(cropped[i].Y-wantY) > eps {
			t.Errorf("point %d = %+v, want (%v, %v)", i, cropped[i], wantX, wantY)
		}
		if cropped[i].X < 0 || cropped[i].X > 1 || cropped[i].Y < 0 || cropped[i].Y > 1 {
			t.Errorf("point %d = %+v leaves the crop frame", i, cropped[i])
		}
	}
}

func TestAnchor(t *testing.T) {
	x, y := Anchor(BoundingBox{MinX: 78, MinY: 58, Width: 244, Height: 184}, 800, 600)
	if math.Abs(x-0.0975) > eps {
		t.Errorf("anchor x = %v, want 0.0975", x)
	}
	if math.Abs(y-58.0/600.0) > eps {
		t.Errorf("anchor y = %v, want %v", y, 58.0/600.0)
	}
}

func TestUncropInvertsRebase(t *testing.T) {
	const W, H = 800.0, 600.0
	p := Polygon{Pt(0.1, 0.1), Pt(0.4, 0.1), Pt(0.4, 0.4), Pt(0.1, 0.4)}
	box := ComputeBoundingBox(p, W, H, DefaultPadding)
	cropped := Rebase(p, W, H, box)
	ax, ay := Anchor(box, W, H)

	back := Uncrop(cropped, box.Width, box.Height, ax, ay, W, H)
	if !ApproxEqual(back, p, eps) {
		t.Errorf("Uncrop() = %v, want %v", back, p)
	}

	m := CropFrame(W, H, box.Width, box.Height, ax, ay)
	if !m.Multiply(m.Invert()).IsIdentity() {
		t.Error("CropFrame times its inverse is not the identity")
	}
}

func TestAbsoluteToRelativeZeroFrame(t *testing.T) {
	if got := AbsoluteToRelative(Pt(5, 5), 0, 0); got != (Point{}) {
		t.Errorf("AbsoluteToRelative() = %+v, want origin", got)
	}
}

func TestPolygonHelpers(t *testing.T) {
	p := square()
	c := p.Clone()
	c[0].X = 0.5
	if p[0].X != 0 {
		t.Error("Clone shares memory with the original")
	}

	if !p.InUnitSquare() {
		t.Error("unit square reported out of range")
	}
	if p.Translate(0.1, 0).InUnitSquare() {
		t.Error("translated square reported in range")
	}
	if (Polygon{Pt(math.NaN(), 0)}).InUnitSquare() {
		t.Error("NaN reported in range")
	}
}
