package normalize

import (
	"fmt"
	"hash/fnv"
	"image/color"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	placeholderSize    = 500
	placeholderExcerpt = 400
	placeholderPadding = 36
)

var (
	fontsOnce   sync.Once
	fontsErr    error
	regularFont *truetype.Font
	boldFont    *truetype.Font
)

func loadFonts() error {
	fontsOnce.Do(func() {
		regularFont, fontsErr = truetype.Parse(goregular.TTF)
		if fontsErr != nil {
			fontsErr = fmt.Errorf("failed to parse TTF: %w", fontsErr)
			return
		}
		boldFont, fontsErr = truetype.Parse(gobold.TTF)
		if fontsErr != nil {
			fontsErr = fmt.Errorf("failed to parse TTF: %w", fontsErr)
		}
	})
	return fontsErr
}

// newFace builds a face per render; truetype faces are not safe for concurrent use.
func newFace(f *truetype.Font, size float64) font.Face {
	return truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingNone})
}

// textPlaceholder renders a square preview card for a text upload.
func textPlaceholder(title, text string) ([]byte, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}
	const size = placeholderSize
	dc := gg.NewContext(size, size)

	c1, c2 := gradientColors(text)
	grad := gg.NewLinearGradient(0, 0, size, size)
	grad.AddColorStop(0, c1)
	grad.AddColorStop(1, c2)
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, size, size)
	dc.Fill()

	// Card
	dc.SetColor(color.RGBA{R: 255, G: 255, B: 255, A: 230})
	dc.DrawRoundedRectangle(placeholderPadding/2, placeholderPadding/2, size-placeholderPadding, size-placeholderPadding, 18)
	dc.Fill()

	width := float64(size - 2*placeholderPadding)
	dc.SetColor(color.RGBA{R: 30, G: 30, B: 40, A: 255})
	y := float64(placeholderPadding)
	if t := strings.TrimSpace(title); t != "" {
		dc.SetFontFace(newFace(boldFont, 26))
		dc.DrawStringWrapped(excerpt(t, 60), placeholderPadding, y, 0, 0, width, 1.3, gg.AlignLeft)
		lines := dc.WordWrap(excerpt(t, 60), width)
		y += float64(len(lines))*26*1.3 + 12
	}

	dc.SetFontFace(newFace(regularFont, 20))
	dc.SetColor(color.RGBA{R: 60, G: 60, B: 72, A: 255})
	dc.DrawStringWrapped(excerpt(text, placeholderExcerpt), placeholderPadding, y, 0, 0, width, 1.4, gg.AlignLeft)

	return encodeJPEG(dc.Image(), previewJPEGQuality)
}

// excerpt collapses whitespace and keeps the first n runes.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}

func gradientColors(seed string) (color.RGBA, color.RGBA) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum32()

	r1 := uint8(64 + (sum & 0x7F))
	g1 := uint8(48 + ((sum >> 7) & 0x7F))
	b1 := uint8(96 + ((sum >> 14) & 0x7F))

	r2 := uint8(48 + ((sum >> 5) & 0x7F))
	g2 := uint8(96 + ((sum >> 12) & 0x7F))
	b2 := uint8(64 + ((sum >> 19) & 0x7F))

	return color.RGBA{R: r1, G: g1, B: b1, A: 255}, color.RGBA{R: r2, G: g2, B: b2, A: 255}
}
