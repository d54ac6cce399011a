package videobackend

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"io"
	"math"
	"sync"
	"time"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/tauraamui/framerelay/pkg/video/videoframe"
	"github.com/tauraamui/xerror"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

const mockFPS = 25

type mockVideoBackend struct {
	fps int
}

// Mock renders an offline test card for every source instead of decoding
// a real stream.
func Mock() Backend {
	return &mockVideoBackend{fps: mockFPS}
}

// MockWithFPS is Mock at a custom frame rate.
func MockWithFPS(fps int) Backend {
	if fps <= 0 {
		fps = mockFPS
	}
	return &mockVideoBackend{fps: fps}
}

func (b *mockVideoBackend) Name() string { return "mock" }

func (b *mockVideoBackend) Connect(ctx context.Context, sett Settings) (Connection, error) {
	if !sett.Geometry.Valid() {
		return nil, xerror.New("mock video connection needs a valid frame geometry")
	}
	if _, err := pixelFormat(sett.Geometry.BPP); err != nil {
		return nil, err
	}

	face, err := loadFontFace(sett.Geometry.H)
	if err != nil {
		return nil, err
	}

	return &mockVideoConnection{
		title:    sett.ID,
		geometry: sett.Geometry,
		face:     face,
		base:     renderBaseFrameCanvas(sett.Geometry.W, sett.Geometry.H),
		ticker:   time.NewTicker(time.Second / time.Duration(b.fps)),
		started:  time.Now(),
		closed:   make(chan struct{}),
	}, nil
}

type mockVideoConnection struct {
	title     string
	geometry  videoframe.Geometry
	face      font.Face
	base      *image.RGBA
	ticker    *time.Ticker
	started   time.Time
	closed    chan struct{}
	closeOnce sync.Once
}

func (mvc *mockVideoConnection) Read() (videoframe.Raw, error) {
	select {
	case <-mvc.closed:
		return videoframe.Raw{}, io.EOF
	case <-mvc.ticker.C:
	}

	now := time.Now()
	canvas := cloneImage(mvc.base)
	drawText(canvas, mvc.face, 5, mvc.geometry.H/4, "FR_OFFLINE_STREAM")
	drawText(canvas, mvc.face, 5, mvc.geometry.H/2, mvc.title)
	drawText(canvas, mvc.face, 5, 3*mvc.geometry.H/4, now.Format("2006-01-02 15:04:05.000"))

	return videoframe.Raw{
		Data:   toPixels(canvas, mvc.geometry.BPP),
		PTS:    now.Sub(mvc.started),
		HasPTS: true,
	}, nil
}

func (mvc *mockVideoConnection) Close() error {
	mvc.closeOnce.Do(func() {
		mvc.ticker.Stop()
		close(mvc.closed)
	})
	return nil
}

// toPixels packs the canvas in the byte order the decoders emit:
// gray, bgr24 or bgra.
func toPixels(img *image.RGBA, bpp int) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*bpp)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			switch bpp {
			case 1:
				out = append(out, color.GrayModel.Convert(c).(color.Gray).Y)
			case 3:
				out = append(out, c.B, c.G, c.R)
			case 4:
				out = append(out, c.B, c.G, c.R, c.A)
			}
		}
	}
	return out
}

func loadFontFace(height int) (font.Face, error) {
	ttf, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, xerror.Errorf("unable to load offline stream font: %w", err)
	}
	size := math.Max(float64(height)/10, 6)
	return truetype.NewFace(ttf, &truetype.Options{
		Size:    size,
		Hinting: font.HintingFull,
	}), nil
}

func renderBaseFrameCanvas(w, h int) *image.RGBA {
	hw, hh := float64(w)/2, float64(h)/2
	r := math.Min(hw, hh) / 2
	θ := 2 * math.Pi / 3
	cr := &circle{hw - r*math.Sin(0), hh - r*math.Cos(0), r * 1.5}
	cg := &circle{hw - r*math.Sin(θ), hh - r*math.Cos(θ), r * 1.5}
	cb := &circle{hw - r*math.Sin(-θ), hh - r*math.Cos(-θ), r * 1.5}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.SetRGBA(x, y, color.RGBA{
				cr.Brightness(float64(x), float64(y)),
				cg.Brightness(float64(x), float64(y)),
				cb.Brightness(float64(x), float64(y)),
				255,
			})
		}
	}
	return img
}

func cloneImage(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

func drawText(canvas *image.RGBA, face font.Face, x, y int, text string) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

type circle struct {
	X, Y, R float64
}

func (c *circle) Brightness(x, y float64) uint8 {
	var dx, dy float64 = c.X - x, c.Y - y
	d := math.Sqrt(dx*dx+dy*dy) / c.R
	if d > 1 {
		return 0
	}
	return 255
}
