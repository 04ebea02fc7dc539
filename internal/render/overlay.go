// Package render rasterizes board drawings into PNG overlays.
package render

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/tactiboard/engine/pkg/core"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

// DefaultWidth is the overlay width in pixels when Options.Width is zero.
const DefaultWidth = 1050

// Options controls overlay rendering.
type Options struct {
	Width      int  // pixels; height follows the field aspect ratio
	WithTokens bool // draw token markers and numbers
}

var (
	passColor     = color.RGBA{R: 0xf5, G: 0xc5, B: 0x18, A: 0xff}
	movementColor = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	homeColor     = color.RGBA{R: 0xd6, G: 0x28, B: 0x28, A: 0xff}
	awayColor     = color.RGBA{R: 0x1e, G: 0x5a, B: 0xc8, A: 0xff}
	neutralColor  = color.RGBA{R: 0x20, G: 0x20, B: 0x20, A: 0xff}
)

var (
	fontOnce sync.Once
	ttfFont  *truetype.Font
	fontErr  error
)

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		ttfFont, fontErr = truetype.Parse(gomono.TTF)
	})
	return ttfFont, fontErr
}

// Overlay draws the snapshot's connectors and paths on a transparent
// canvas and returns it PNG-encoded.
func Overlay(snap core.Snapshot, opts Options) ([]byte, error) {
	view := snap.View
	if view.FieldWidth <= 0 || view.FieldHeight <= 0 {
		return nil, fmt.Errorf("render overlay: invalid field %vx%v", view.FieldWidth, view.FieldHeight)
	}
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}
	scale := float64(width) / view.FieldWidth
	height := int(math.Round(view.FieldHeight * scale))

	dc := gg.NewContext(width, height)
	dc.SetLineCap(gg.LineCapRound)

	for _, c := range snap.Connectors {
		drawLine(dc, c.Points, c.Style, c.Type, scale, true)
	}
	for _, p := range snap.Paths {
		drawLine(dc, p.Points, p.Style, p.Type, scale, false)
	}

	if opts.WithTokens {
		f, err := loadFont()
		if err != nil {
			return nil, fmt.Errorf("failed to parse font: %v", err)
		}
		face := truetype.NewFace(f, &truetype.Options{
			Size:    math.Max(8, scale*1.4),
			DPI:     72,
			Hinting: font.HintingFull,
		})
		dc.SetFontFace(face)
		for _, t := range snap.Tokens {
			drawToken(dc, t, scale)
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode overlay: %w", err)
	}
	return buf.Bytes(), nil
}

// OverlayFunc binds opts for use as a phase overlay rasterizer.
func OverlayFunc(opts Options) func(core.Snapshot) ([]byte, error) {
	return func(snap core.Snapshot) ([]byte, error) {
		return Overlay(snap, opts)
	}
}

func drawLine(dc *gg.Context, pts []core.Point, style core.LineStyle, kind core.LineType, scale float64, arrow bool) {
	if len(pts) < 2 {
		return
	}
	if kind == core.LinePass {
		dc.SetColor(passColor)
	} else {
		dc.SetColor(movementColor)
	}
	dc.SetLineWidth(math.Max(1, scale*0.3))
	if style == core.StyleDashed {
		dc.SetDash(scale, scale*0.8)
	} else {
		dc.SetDash()
	}

	dc.MoveTo(pts[0].X*scale, pts[0].Y*scale)
	for _, p := range pts[1:] {
		dc.LineTo(p.X*scale, p.Y*scale)
	}
	dc.Stroke()
	dc.SetDash()

	if arrow {
		from, to := pts[len(pts)-2], pts[len(pts)-1]
		drawArrowHead(dc, from.X*scale, from.Y*scale, to.X*scale, to.Y*scale, scale*1.5)
	}
}

func drawArrowHead(dc *gg.Context, fx, fy, tx, ty, size float64) {
	dx := tx - fx
	dy := ty - fy
	length := math.Sqrt(dx*dx + dy*dy)
	if length < 0.1 {
		return
	}
	dx /= length
	dy /= length

	const spread = 0.5
	dc.MoveTo(tx, ty)
	dc.LineTo(tx-size*dx+size*dy*spread, ty-size*dy-size*dx*spread)
	dc.LineTo(tx-size*dx-size*dy*spread, ty-size*dy+size*dx*spread)
	dc.ClosePath()
	dc.Fill()
}

func drawToken(dc *gg.Context, t core.Token, scale float64) {
	radius := scale * 1.2
	if t.Size > 0 {
		radius *= t.Size
	}
	x, y := t.Position.X*scale, t.Position.Y*scale

	switch t.Team {
	case core.TeamHome:
		dc.SetColor(homeColor)
	case core.TeamAway:
		dc.SetColor(awayColor)
	default:
		dc.SetColor(neutralColor)
	}
	dc.DrawCircle(x, y, radius)
	dc.Fill()

	if t.Kind == core.TokenPlayer && t.Number > 0 {
		dc.SetColor(color.White)
		dc.DrawStringAnchored(strconv.Itoa(t.Number), x, y, 0.5, 0.35)
	}
}
