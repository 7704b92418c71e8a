// Package lightmatrix knows the hub's 5x5 built-in images and draws them.
package lightmatrix

import (
	"image"
	"sort"
	"strings"

	"github.com/fogleman/gg"
	"github.com/pkg/errors"
)

const Size = 5

var ErrUnknownImage = errors.New("unknown light matrix image")

// Frame holds a brightness of 0 to 9 per pixel, indexed [row][column].
type Frame [Size][Size]uint8

// Built-in images, in the hub's "rrrrr:rrrrr:..." notation.
var images = map[string]string{
	"ARROW_N":     "00900:09990:90909:00900:00900",
	"ARROW_NE":    "00999:00099:00909:09000:90000",
	"ARROW_E":     "00900:00090:99999:00090:00900",
	"ARROW_SE":    "90000:09000:00909:00099:00999",
	"ARROW_S":     "00900:00900:90909:09990:00900",
	"ARROW_SW":    "00009:00090:90900:99000:99900",
	"ARROW_W":     "00900:09000:99999:09000:00900",
	"ARROW_NW":    "99900:99000:90900:00090:00009",
	"GO_RIGHT":    "09000:09900:09990:09900:09000",
	"GO_LEFT":     "00090:00990:09990:00990:00090",
	"HAPPY":       "00000:09090:00000:90009:09990",
	"SAD":         "00000:09090:00000:09990:90009",
	"HEART":       "09090:99999:99999:09990:00900",
	"HEART_SMALL": "00000:09090:09990:00900:00000",
	"YES":         "00000:00009:00090:90900:09000",
	"NO":          "90009:09090:00900:09090:90009",
	"SQUARE":      "99999:90009:90009:90009:99999",
	"TARGET":      "00900:09990:99099:09990:00900",
}

// Parse reads the "rrrrr:rrrrr:rrrrr:rrrrr:rrrrr" notation.
func Parse(s string) (Frame, error) {
	var f Frame
	rows := strings.Split(s, ":")
	if len(rows) != Size {
		return f, errors.Errorf("image %q: expected %d rows, got %d", s, Size, len(rows))
	}
	for r, row := range rows {
		if len(row) != Size {
			return f, errors.Errorf("image %q: row %d has %d pixels", s, r, len(row))
		}
		for c := 0; c < Size; c++ {
			if row[c] < '0' || row[c] > '9' {
				return f, errors.Errorf("image %q: bad brightness %q", s, row[c])
			}
			f[r][c] = row[c] - '0'
		}
	}
	return f, nil
}

func Lookup(name string) (Frame, error) {
	s, ok := images[name]
	if !ok {
		return Frame{}, errors.Wrap(ErrUnknownImage, name)
	}
	return Parse(s)
}

// Names returns the built-in image names, sorted.
func Names() []string {
	names := make([]string, 0, len(images))
	for n := range images {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Render draws the frame with each pixel as a pixelSize square on black.
func Render(f Frame, pixelSize int) image.Image {
	return draw(f, pixelSize).Image()
}

func SavePNG(f Frame, pixelSize int, path string) error {
	return errors.Wrapf(draw(f, pixelSize).SavePNG(path), "saving light matrix image to %s", path)
}

func draw(f Frame, pixelSize int) *gg.Context {
	s := float64(pixelSize)
	dc := gg.NewContext(Size*pixelSize, Size*pixelSize)
	dc.SetRGB(0, 0, 0)
	dc.Clear()
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if f[r][c] == 0 {
				continue
			}
			dc.SetRGBA(1, 0.9, 0.7, float64(f[r][c])/9)
			dc.DrawRoundedRectangle(float64(c)*s+s/8, float64(r)*s+s/8, s*3/4, s*3/4, s/8)
			dc.Fill()
		}
	}
	return dc
}
