package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var (
	fontLarge   font.Face
	fontRegular font.Face
	fontSmall   font.Face
	fontOnce    sync.Once
	fontErr     error
)

func loadFonts() {
	fontOnce.Do(func() {
		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse go bold: %w", err)
			return
		}
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse go regular: %w", err)
			return
		}

		faces := []struct {
			dst  *font.Face
			src  *opentype.Font
			size float64
		}{
			{&fontLarge, bold, 120},
			{&fontRegular, regular, 36},
			{&fontSmall, regular, 24},
		}
		for _, f := range faces {
			*f.dst, err = opentype.NewFace(f.src, &opentype.FaceOptions{
				Size:    f.size,
				DPI:     72,
				Hinting: font.HintingFull,
			})
			if err != nil {
				fontErr = fmt.Errorf("create %.0fpt face: %w", f.size, err)
				return
			}
		}
	})
}

// BandCount is one bar of the score distribution drawn on a card.
type BandCount struct {
	Label string
	Count int
}

// CardData is what a summary card shows.
type CardData struct {
	Title          string // course tag, or "All courses"
	Students       int
	MeanFinal      float64 // NaN renders as "–"
	MeanAttendance float64
	Bands          []BandCount
}

// CardCache holds rendered cards per key for a short period.
type CardCache struct {
	cache *cache.Cache
	ttl   time.Duration
}

// NewCardCache keeps cards for ttl; a non-positive ttl caches nothing.
func NewCardCache(ttl time.Duration) *CardCache {
	return &CardCache{cache: cache.New(ttl, 2*ttl), ttl: ttl}
}

// Get returns the cached card for key if still valid.
func (c *CardCache) Get(key string) ([]byte, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (c *CardCache) Set(key string, data []byte) {
	if c.ttl <= 0 {
		return
	}
	c.cache.Set(key, data, cache.DefaultExpiration)
}

// Invalidate drops every cached card; called after rosters change.
func (c *CardCache) Invalidate() {
	c.cache.Flush()
}

// Card dimensions match the Open Graph preview size.
const (
	CardWidth  = 1200
	CardHeight = 630
)

var bandColors = []color.RGBA{
	{220, 38, 38, 255},
	{249, 115, 22, 255},
	{234, 179, 8, 255},
	{34, 197, 94, 255},
	{37, 99, 235, 255},
}

// GenerateCard renders a summary card over a generated background image.
func GenerateCard(background []byte, data CardData) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	src, _, err := image.Decode(bytes.NewReader(background))
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	coverCrop(dst, src)
	drawGradientOverlay(dst)
	drawCard(dst, data)
	return encode(dst)
}

// GenerateFallbackCard renders a card on a plain gradient.
func GenerateFallbackCard(data CardData) ([]byte, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}

	img := image.NewRGBA(image.Rect(0, 0, CardWidth, CardHeight))
	for y := 0; y < CardHeight; y++ {
		progress := float64(y) / float64(CardHeight)
		c := color.RGBA{uint8(18 + progress*12), uint8(28 + progress*18), uint8(48 + progress*24), 255}
		for x := 0; x < CardWidth; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	drawCard(img, data)
	return encode(img)
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

// coverCrop scales src to fill dst and centre-crops it, nearest neighbour.
func coverCrop(dst *image.RGBA, src image.Image) {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	scale := math.Max(float64(CardWidth)/float64(srcW), float64(CardHeight)/float64(srcH))

	offsetX := (int(float64(srcW)*scale) - CardWidth) / 2
	offsetY := (int(float64(srcH)*scale) - CardHeight) / 2

	for y := 0; y < CardHeight; y++ {
		for x := 0; x < CardWidth; x++ {
			sx := int(float64(x+offsetX) / scale)
			sy := int(float64(y+offsetY) / scale)
			if sx >= 0 && sx < srcW && sy >= 0 && sy < srcH {
				dst.Set(x, y, src.At(b.Min.X+sx, b.Min.Y+sy))
			}
		}
	}
}

// drawGradientOverlay darkens the left side so text stays readable.
func drawGradientOverlay(img *image.RGBA) {
	b := img.Bounds()
	for x := b.Min.X; x < b.Max.X; x++ {
		progress := 1 - float64(x)/float64(b.Dx())
		alpha := 0.35 + progress*progress*0.5
		for y := b.Min.Y; y < b.Max.Y; y++ {
			c := img.RGBAAt(x, y)
			c.R = uint8(float64(c.R) * (1 - alpha))
			c.G = uint8(float64(c.G) * (1 - alpha))
			c.B = uint8(float64(c.B) * (1 - alpha))
			img.SetRGBA(x, y, c)
		}
	}
}

func drawCard(img *image.RGBA, data CardData) {
	white := color.RGBA{255, 255, 255, 255}
	lightGray := color.RGBA{200, 200, 200, 255}

	drawText(img, data.Title, 60, 90, white, fontRegular)
	drawText(img, FormatScore(data.MeanFinal), 60, 250, white, fontLarge)
	drawText(img, "mean final score", 60, 295, lightGray, fontSmall)

	drawText(img, fmt.Sprintf("%s attendance", FormatPct(data.MeanAttendance)), 60, 400, white, fontRegular)
	drawText(img, fmt.Sprintf("%d students", data.Students), 60, 450, lightGray, fontRegular)
	drawText(img, "rollbook", 60, CardHeight-40, lightGray, fontSmall)

	drawBands(img, data.Bands)
}

// drawBands draws the score distribution as vertical bars on the right half.
func drawBands(img *image.RGBA, bands []BandCount) {
	if len(bands) == 0 {
		return
	}
	maxCount := 0
	for _, b := range bands {
		maxCount = max(maxCount, b.Count)
	}

	const (
		left    = 640
		right   = CardWidth - 60
		bottom  = CardHeight - 110
		maxBarH = 330
	)
	slot := (right - left) / len(bands)
	barW := slot * 2 / 3

	for i, b := range bands {
		x0 := left + i*slot + (slot-barW)/2
		h := 0
		if maxCount > 0 {
			h = b.Count * maxBarH / maxCount
		}
		fillRect(img, image.Rect(x0, bottom-h, x0+barW, bottom), bandColors[i%len(bandColors)])

		label := color.RGBA{220, 220, 220, 255}
		drawText(img, fmt.Sprintf("%d", b.Count), x0, bottom-h-12, label, fontSmall)
		drawText(img, b.Label, x0, bottom+34, label, fontSmall)
	}
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// FormatScore renders a score to one decimal, or a dash when undefined.
func FormatScore(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "–"
	}
	return fmt.Sprintf("%.1f", v)
}

// FormatPct renders a percentage without decimals, or a dash when undefined.
func FormatPct(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "–"
	}
	return fmt.Sprintf("%.0f%%", v)
}
