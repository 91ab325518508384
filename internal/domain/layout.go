package domain

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canvas and element geometry of the card, in CSS pixels.
const (
	CanvasWidth  = 1200
	CanvasHeight = 675

	CanvasPadding      = 40
	IllustrationWidth  = 750
	IllustrationHeight = 620
	AvatarDiameter     = 280
	AvatarBorder       = 8
	AvatarMarginBottom = 40
	TextFontSize       = 32
	TextLineGap        = 15
)

// MaxFieldRunes caps the name and role drawn on the card. Longer input is cut.
const MaxFieldRunes = 200

// Layout is the declarative description of one card. It is built per request
// and consumed immediately by a rasterizer.
type Layout struct {
	Width      int
	Height     int
	Padding    int
	FontFamily string
	Background Gradient

	Illustration Illustration
	Avatar       AvatarFrame
	Lines        []TextLine
}

// Gradient is a linear gradient at Angle degrees.
type Gradient struct {
	Angle int
	Stops []ColorStop
}

// ColorStop is a hex color at Offset in [0,1].
type ColorStop struct {
	Color  string
	Offset float64
}

// Illustration is the static artwork on the left side of the card.
type Illustration struct {
	URL    string
	Width  int
	Height int
}

// AvatarFrame is the circular profile picture on the right side.
type AvatarFrame struct {
	Src          string
	Placeholder  bool
	Diameter     int
	Border       int
	BorderColor  string
	MarginBottom int
}

// TextLine is one centered, bold caption line under the avatar.
type TextLine struct {
	Text     string
	FontSize int
	Bold     bool
	Color    string
	Gap      int
}

// BuildLayout assembles the card for sub. It performs no I/O; every asset is
// referenced by URL and baseURL is the address the rasterizer reaches this
// service on.
func BuildLayout(sub Submission, avatar AvatarRef, baseURL string) Layout {
	base := strings.TrimRight(baseURL, "/")
	// Casers keep state between calls and must not be shared across requests.
	upper := cases.Upper(language.Und)

	return Layout{
		Width:      CanvasWidth,
		Height:     CanvasHeight,
		Padding:    CanvasPadding,
		FontFamily: "Inter, sans-serif",
		Background: Gradient{
			Angle: 135,
			Stops: []ColorStop{
				{Color: "#1e1b4b", Offset: 0},
				{Color: "#312e81", Offset: 0.5},
				{Color: "#1e40af", Offset: 1},
			},
		},
		Illustration: Illustration{
			URL:    base + IllustrationPath,
			Width:  IllustrationWidth,
			Height: IllustrationHeight,
		},
		Avatar: AvatarFrame{
			Src:          avatar.Src(base),
			Placeholder:  avatar.IsPlaceholder(),
			Diameter:     AvatarDiameter,
			Border:       AvatarBorder,
			BorderColor:  "#1e40af",
			MarginBottom: AvatarMarginBottom,
		},
		Lines: []TextLine{
			captionLine("NAME: "+upper.String(truncateRunes(sub.FullName, MaxFieldRunes)), TextLineGap),
			captionLine("ROLE: "+upper.String(truncateRunes(sub.Role, MaxFieldRunes)), 0),
		},
	}
}

func captionLine(text string, gap int) TextLine {
	return TextLine{
		Text:     text,
		FontSize: TextFontSize,
		Bold:     true,
		Color:    "#ffffff",
		Gap:      gap,
	}
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
