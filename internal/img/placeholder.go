package img

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

const minPlaceholderEdge = 64

var (
	placeholderFontOnce sync.Once
	placeholderFont     *truetype.Font
	placeholderFontErr  error
)

func loadPlaceholderFont() (*truetype.Font, error) {
	placeholderFontOnce.Do(func() {
		placeholderFont, placeholderFontErr = freetype.ParseFont(goregular.TTF)
	})
	return placeholderFont, placeholderFontErr
}

// Placeholder renders a stand-in JPEG for sources the transcoder cannot
// decode. It shows the upper-cased extension prominently and the base
// filename underneath, so a RAW file is still recognizable in a grid.
func Placeholder(filename string, boxW, boxH int) ([]byte, error) {
	if boxW < minPlaceholderEdge {
		boxW = minPlaceholderEdge
	}
	if boxH < minPlaceholderEdge {
		boxH = minPlaceholderEdge
	}

	fnt, err := loadPlaceholderFont()
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, boxW, boxH))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.RGBA{R: 0x2b, G: 0x2f, B: 0x36, A: 0xff}), image.Point{}, draw.Src)

	ext := strings.ToUpper(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		ext = "FILE"
	}
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(fnt)
	c.SetClip(dst.Bounds())
	c.SetDst(dst)

	extSize := float64(boxH) / 5
	nameSize := float64(boxH) / 14
	margin := boxW / 10

	c.SetFontSize(extSize)
	c.SetSrc(image.NewUniform(color.RGBA{R: 0xe8, G: 0xea, B: 0xed, A: 0xff}))
	if _, err := c.DrawString(ext, freetype.Pt(margin, boxH/2)); err != nil {
		return nil, fmt.Errorf("draw extension: %w", err)
	}

	c.SetFontSize(nameSize)
	c.SetSrc(image.NewUniform(color.RGBA{R: 0x9a, G: 0xa0, B: 0xa6, A: 0xff}))
	if _, err := c.DrawString(truncateLabel(base, boxW, nameSize), freetype.Pt(margin, boxH/2+int(nameSize)*2)); err != nil {
		return nil, fmt.Errorf("draw filename: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, dst, imaging.JPEG, imaging.JPEGQuality(DefaultQuality)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}

// truncateLabel trims the label so it roughly fits the canvas width. Freetype
// gives no cheap text measurement, so this estimates with an average glyph
// width of 0.55em.
func truncateLabel(label string, boxW int, fontSize float64) string {
	maxChars := int(float64(boxW) * 0.8 / (fontSize * 0.55))
	if maxChars < 4 {
		maxChars = 4
	}
	runes := []rune(label)
	if len(runes) <= maxChars {
		return label
	}
	return string(runes[:maxChars-1]) + "…"
}
