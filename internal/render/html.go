package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"eventcard/internal/domain"
)

var cardTemplate = template.Must(template.New("card").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<style>
*{box-sizing:border-box}
html,body{margin:0;padding:0;overflow:hidden}
</style>
</head>
<body>
<div id="card" style="{{.Root}}">
  <div style="display:flex">
    <img src="{{.IllustrationSrc}}" alt="" width="{{.IllustrationWidth}}" height="{{.IllustrationHeight}}">
  </div>
  <div style="display:flex;flex-direction:column;align-items:center;flex:1">
    <div style="{{.Frame}}">
      <img src="{{.AvatarSrc}}" alt="profile" style="width:100%;height:100%;display:flex;object-fit:cover">
    </div>
    <div style="text-align:center;display:flex;flex-direction:column;align-items:center">
      {{- range .Lines}}
      <div style="{{.Style}}">{{.Text}}</div>
      {{- end}}
    </div>
  </div>
</div>
</body>
</html>
`))

type htmlLine struct {
	Style template.CSS
	Text  string
}

type htmlView struct {
	Root               template.CSS
	IllustrationSrc    template.URL
	IllustrationWidth  int
	IllustrationHeight int
	Frame              template.CSS
	AvatarSrc          template.URL
	Lines              []htmlLine
}

// LayoutHTML renders the layout as a self-contained HTML document sized to the canvas.
func LayoutHTML(l domain.Layout) (string, error) {
	v := htmlView{
		Root: template.CSS(fmt.Sprintf(
			"width:%dpx;height:%dpx;display:flex;position:relative;padding:%dpx;background:%s;font-family:%s",
			l.Width, l.Height, l.Padding, gradientCSS(l.Background), l.FontFamily,
		)),
		// Sources are built by BuildLayout from the configured base URL or an
		// inline data URI, never from raw user text.
		IllustrationSrc:    template.URL(l.Illustration.URL),
		IllustrationWidth:  l.Illustration.Width,
		IllustrationHeight: l.Illustration.Height,
		Frame: template.CSS(fmt.Sprintf(
			"width:%dpx;height:%dpx;border-radius:50%%;overflow:hidden;display:flex;border:%dpx solid %s;background-color:%s;margin-bottom:%dpx",
			l.Avatar.Diameter, l.Avatar.Diameter, l.Avatar.Border, l.Avatar.BorderColor, l.Avatar.BorderColor, l.Avatar.MarginBottom,
		)),
		AvatarSrc: template.URL(l.Avatar.Src),
	}
	for _, line := range l.Lines {
		weight := 400
		if line.Bold {
			weight = 700
		}
		v.Lines = append(v.Lines, htmlLine{
			Style: template.CSS(fmt.Sprintf("font-size:%dpx;font-weight:%d;color:%s;display:flex;margin-bottom:%dpx",
				line.FontSize, weight, line.Color, line.Gap)),
			Text: line.Text,
		})
	}

	var buf bytes.Buffer
	if err := cardTemplate.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("render card html: %w", err)
	}
	return buf.String(), nil
}

func gradientCSS(g domain.Gradient) string {
	stops := make([]string, 0, len(g.Stops))
	for _, s := range g.Stops {
		stops = append(stops, fmt.Sprintf("%s %g%%", s.Color, s.Offset*100))
	}
	return fmt.Sprintf("linear-gradient(%ddeg, %s)", g.Angle, strings.Join(stops, ", "))
}
