package lightmatrix

import (
	"testing"

	"github.com/pkg/errors"
)

func TestAllImagesParse(t *testing.T) {
	for _, name := range Names() {
		if _, err := Lookup(name); err != nil {
			t.Errorf("Built-in image %s: %v", name, err)
		}
	}
}

func TestParse(t *testing.T) {
	f, err := Parse("90000:09000:00900:00090:00009")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < Size; i++ {
		if f[i][i] != 9 {
			t.Errorf("Expected diagonal pixel %d lit", i)
		}
	}

	for _, bad := range []string{"", "0000:00000:00000:00000:00000", "00000:00000:00000:00000", "0000a:00000:00000:00000:00000"} {
		if _, err := Parse(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("ARROW_UP")
	if !errors.Is(err, ErrUnknownImage) {
		t.Fatalf("Expected ErrUnknownImage, got %v", err)
	}
}

func TestRender(t *testing.T) {
	f, err := Lookup("ARROW_S")
	if err != nil {
		t.Fatal(err)
	}
	const px = 10
	img := Render(f, px)
	if b := img.Bounds(); b.Dx() != Size*px || b.Dy() != Size*px {
		t.Fatalf("Unexpected image size %v", b)
	}
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			red, _, _, _ := img.At(c*px+px/2, r*px+px/2).RGBA()
			lit := red > 0
			if lit != (f[r][c] > 0) {
				t.Errorf("Pixel %d,%d: lit=%v, brightness %d", r, c, lit, f[r][c])
			}
		}
	}
}
