package game

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"simfleet/agent/navigate"
)

// Grabber captures the current screen contents.
type Grabber interface {
	Capture(ctx context.Context) (image.Image, error)
}

// TemplateMatcher locates reference images on the live screen. Templates
// are PNG files under dir, named by the template id in the script. Scoring
// is mean absolute pixel difference on grayscale, mapped to [0,1] where 1
// is a pixel-perfect match; menus are static renders, so near-exact
// comparison is enough and keeps the rig free of a vision stack.
type TemplateMatcher struct {
	grab Grabber
	dir  string
}

func NewTemplateMatcher(grab Grabber, dir string) *TemplateMatcher {
	return &TemplateMatcher{grab: grab, dir: dir}
}

var _ navigate.Matcher = (*TemplateMatcher)(nil)

func (m *TemplateMatcher) Match(ctx context.Context, template string, region navigate.Region) (navigate.Match, error) {
	tmpl, err := m.loadTemplate(template)
	if err != nil {
		return navigate.Match{}, err
	}

	screen, err := m.grab.Capture(ctx)
	if err != nil {
		return navigate.Match{}, fmt.Errorf("capture screen: %w", err)
	}
	gray := toGray(screen)

	// Fractional region to pixel bounds of the search window.
	b := gray.Bounds()
	x0 := b.Min.X + int(region.X0*float64(b.Dx()))
	y0 := b.Min.Y + int(region.Y0*float64(b.Dy()))
	x1 := b.Min.X + int(region.X1*float64(b.Dx()))
	y1 := b.Min.Y + int(region.Y1*float64(b.Dy()))

	score, px, py := bestMatch(gray, tmpl, image.Rect(x0, y0, x1, y1))
	return navigate.Match{
		Score: score,
		X:     float64(px-b.Min.X) / float64(b.Dx()),
		Y:     float64(py-b.Min.Y) / float64(b.Dy()),
	}, nil
}

func (m *TemplateMatcher) loadTemplate(name string) (*image.Gray, error) {
	path := filepath.Join(m.dir, name+".png")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", name, err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("template %q: %w", name, err)
	}
	return toGray(img), nil
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g.Set(x, y, img.At(x, y))
		}
	}
	return g
}

// bestMatch slides the template over the search window and returns the
// best similarity score with the top-left position of the best placement.
// Score is 1 - meanAbsDiff/255.
func bestMatch(screen, tmpl *image.Gray, window image.Rectangle) (score float64, x, y int) {
	window = window.Intersect(screen.Bounds())
	tw, th := tmpl.Bounds().Dx(), tmpl.Bounds().Dy()
	if tw == 0 || th == 0 || window.Dx() < tw || window.Dy() < th {
		return 0, window.Min.X, window.Min.Y
	}

	best := -1.0
	bx, by := window.Min.X, window.Min.Y
	for oy := window.Min.Y; oy+th <= window.Max.Y; oy++ {
		for ox := window.Min.X; ox+tw <= window.Max.X; ox++ {
			s := similarityAt(screen, tmpl, ox, oy)
			if s > best {
				best, bx, by = s, ox, oy
			}
		}
	}
	return best, bx, by
}

func similarityAt(screen, tmpl *image.Gray, ox, oy int) float64 {
	tb := tmpl.Bounds()
	var sum, count int64
	for ty := tb.Min.Y; ty < tb.Max.Y; ty++ {
		for tx := tb.Min.X; tx < tb.Max.X; tx++ {
			sp := screen.GrayAt(ox+tx-tb.Min.X, oy+ty-tb.Min.Y).Y
			tp := tmpl.GrayAt(tx, ty).Y
			d := int64(sp) - int64(tp)
			if d < 0 {
				d = -d
			}
			sum += d
			count++
		}
	}
	return 1 - float64(sum)/(255*float64(count))
}
