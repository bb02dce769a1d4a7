package app

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/raster"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"

	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/storage"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkLength = 5
	lineWidth      = 3

	defaultWidth  = 1600
	defaultHeight = 800

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 90
	defaultBottomBorder = 60
	defaultRightBorder  = 90

	defaultTimeFormat     = "15:04:05"
	defaultDatetimeFormat = time.DateTime
)

var (
	ErrEmptySeries = errors.New("flight has no samples or status reports")

	backgroundColor   = color.White
	gridColor         = color.RGBA{R: 0xdd, G: 0xdd, B: 0xdd, A: 0xff}
	windowColor       = color.RGBA{R: 0xd8, G: 0xf0, B: 0xd8, A: 0xff}
	altitudeColor     = color.RGBA{R: 0x1f, G: 0x4e, B: 0xb4, A: 0xff}
	spinRateColor     = color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff}
	qdmColor          = color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff}
	ignitionColor     = color.RGBA{R: 0x94, G: 0x00, B: 0x00, A: 0xff}
	stabilizedColor   = color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 0xff}
	failedReportColor = color.RGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff}
)

// BorderConfig defines the sizes of white space around the plot
type BorderConfig struct {
	Top    int // Space for event labels
	Left   int // Space for altitude scale
	Bottom int // Space for time scale and information bar
	Right  int // Space for spin rate scale
}

// RenderConfig holds the chart options
type RenderConfig struct {
	Width, Height  int
	TimeFormat     string
	DatetimeFormat string
	Location       *time.Location
	FontSize       float64
	BorderConfig   BorderConfig
}

// ChartRenderer draws altitude and filtered spin rate over time, with the
// launch window shaded and status reports marked
type ChartRenderer struct {
	config RenderConfig
	font   *truetype.Font
}

func NewChartRenderer(config RenderConfig) (*ChartRenderer, error) {
	if config.Width == 0 {
		config.Width = defaultWidth
	}
	if config.Height == 0 {
		config.Height = defaultHeight
	}
	if config.TimeFormat == "" {
		config.TimeFormat = defaultTimeFormat
	}
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BorderConfig == (BorderConfig{}) {
		config.BorderConfig = BorderConfig{
			Top:    defaultTopBorder,
			Left:   defaultLeftBorder,
			Bottom: defaultBottomBorder,
			Right:  defaultRightBorder,
		}
	}

	b := config.BorderConfig
	if config.Width-b.Left-b.Right < 100 || config.Height-b.Top-b.Bottom < 100 {
		return nil, fmt.Errorf("image %dx%d is too small for the chart borders", config.Width, config.Height)
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	return &ChartRenderer{config: config, font: parsedFont}, nil
}

// Render creates the chart image for the series
func (r *ChartRenderer) Render(series *FlightSeries) (*image.RGBA, error) {
	if series.Empty() {
		return nil, ErrEmptySeries
	}

	img := image.NewRGBA(image.Rect(0, 0, r.config.Width, r.config.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	b := r.config.BorderConfig
	plot := image.Rect(b.Left, b.Top, r.config.Width-b.Right, r.config.Height-b.Bottom)
	s := newScales(series, plot)

	r.drawWindow(img, plot, s, series)
	r.drawGrid(img, plot, s)
	r.drawSpinLimit(img, plot, s, series)

	r.strokeSeries(img, plot, series.Points, spinRateColor, func(p Point) (int, int) {
		return s.time.pos(p.Timestamp), s.spin.pos(p.SpinRate)
	})
	r.strokeSeries(img, plot, series.Points, altitudeColor, func(p Point) (int, int) {
		return s.time.pos(p.Timestamp), s.altitude.pos(p.Altitude)
	})

	r.drawEvents(img, plot, s, series.Events)

	ann := newAnnotator(r.font, r.config)
	defer ann.Close()

	if err := ann.annotate(img, plot, s, series); err != nil {
		return nil, fmt.Errorf("drawing annotations: %w", err)
	}

	return img, nil
}

// drawWindow shades the altitude band of the launch window
func (r *ChartRenderer) drawWindow(img *image.RGBA, plot image.Rectangle, s *scales, series *FlightSeries) {
	top := s.altitude.pos(series.Limits.MaxAltitude)
	bottom := s.altitude.pos(series.Limits.MinAltitude)

	band := image.Rect(plot.Min.X, top, plot.Max.X, bottom).Intersect(plot)
	if band.Empty() {
		return
	}
	draw.Draw(img, band, image.NewUniform(windowColor), image.Point{}, draw.Src)
}

func (r *ChartRenderer) drawGrid(img *image.RGBA, plot image.Rectangle, s *scales) {
	for _, v := range s.altitude.ticks() {
		y := s.altitude.pos(v)
		for x := plot.Min.X; x < plot.Max.X; x += 2 {
			img.Set(x, y, gridColor)
		}
	}

	for _, t := range s.timeTicks() {
		x := s.time.pos(t)
		for y := plot.Min.Y; y < plot.Max.Y; y += 2 {
			img.Set(x, y, gridColor)
		}
	}

	// frame
	for x := plot.Min.X; x <= plot.Max.X; x++ {
		img.Set(x, plot.Min.Y, color.Black)
		img.Set(x, plot.Max.Y, color.Black)
	}
	for y := plot.Min.Y; y <= plot.Max.Y; y++ {
		img.Set(plot.Min.X, y, color.Black)
		img.Set(plot.Max.X, y, color.Black)
	}
}

// drawSpinLimit draws the maximum spin rate as a dashed line on the spin scale
func (r *ChartRenderer) drawSpinLimit(img *image.RGBA, plot image.Rectangle, s *scales, series *FlightSeries) {
	y := s.spin.pos(series.Limits.MaxSpinRate)
	for x := plot.Min.X; x < plot.Max.X; x++ {
		if (x/6)%2 == 0 {
			img.Set(x, y, spinRateColor)
		}
	}
}

// strokeSeries draws points as an anti-aliased polyline clipped to the plot
func (r *ChartRenderer) strokeSeries(img *image.RGBA, plot image.Rectangle, points []Point, c color.Color, project func(Point) (int, int)) {
	if len(points) == 0 {
		return
	}

	var path raster.Path
	for i, p := range points {
		x, y := project(p)
		pt := fixed.P(x, y)
		if i == 0 {
			path.Start(pt)
			continue
		}
		path.Add1(pt)
	}
	if len(points) == 1 {
		// a single sample still gets a dot
		x, y := project(points[0])
		path.Add1(fixed.P(x+1, y))
	}

	rasterizer := raster.NewRasterizer(img.Bounds().Dx(), img.Bounds().Dy())
	rasterizer.UseNonZeroWinding = true
	rasterizer.AddStroke(path, fixed.I(lineWidth), nil, nil)

	painter := raster.NewRGBAPainter(img.SubImage(plot).(*image.RGBA))
	painter.SetColor(c)
	rasterizer.Rasterize(painter)
}

// drawEvents marks every status report with a vertical line in the colour of
// the action it reports
func (r *ChartRenderer) drawEvents(img *image.RGBA, plot image.Rectangle, s *scales, events []storage.StatusEvent) {
	for _, e := range events {
		x := s.time.pos(e.Timestamp)
		c := eventColor(e)
		for y := plot.Min.Y; y < plot.Max.Y; y++ {
			img.Set(x, y, c)
		}
	}
}

func eventColor(e storage.StatusEvent) color.Color {
	switch {
	case e.Ignition == status.OK:
		return ignitionColor
	case e.QDM == status.OK:
		return qdmColor
	case e.Stabilization == status.OK:
		return stabilizedColor
	default:
		return failedReportColor
	}
}

// eventLabel names the actions a status report confirms
func eventLabel(e storage.StatusEvent) string {
	var parts []string
	if e.QDM == status.OK {
		parts = append(parts, "QDM")
	}
	if e.Ignition == status.OK {
		parts = append(parts, "IGN")
	}
	if e.Stabilization == status.OK {
		parts = append(parts, "STAB")
	}
	if len(parts) == 0 {
		return "FAIL"
	}
	return strings.Join(parts, "+")
}

// linear maps a value range onto a pixel range
type linear struct {
	min, max float64
	from, to int
}

func (l linear) pos(v float64) int {
	if l.max == l.min {
		return (l.from + l.to) / 2
	}
	return l.from + int(math.Round((v-l.min)/(l.max-l.min)*float64(l.to-l.from)))
}

// ticks returns round values inside the range, about every 100 pixels
func (l linear) ticks() []float64 {
	span := l.max - l.min
	pixels := math.Abs(float64(l.to - l.from))
	if span <= 0 || pixels == 0 {
		return []float64{l.min}
	}

	step := niceStep(span / (pixels / 100))
	var values []float64
	for v := math.Ceil(l.min/step) * step; v <= l.max; v += step {
		values = append(values, v)
	}
	return values
}

// timeScale maps timestamps onto the horizontal pixel range
type timeScale struct {
	start time.Time
	linear
}

func (t timeScale) pos(ts time.Time) int {
	return t.linear.pos(ts.Sub(t.start).Seconds())
}

type scales struct {
	time     timeScale
	altitude linear
	spin     linear
}

func newScales(series *FlightSeries, plot image.Rectangle) *scales {
	altMin, altMax := series.AltitudeMin, series.AltitudeMax
	if len(series.Points) == 0 {
		altMin, altMax = series.Limits.MinAltitude, series.Limits.MaxAltitude
	}
	altMin = min(altMin, series.Limits.MinAltitude)
	altMax = max(altMax, series.Limits.MaxAltitude)
	pad := (altMax - altMin) * 0.05
	if pad == 0 {
		pad = 100
	}

	spinMax := max(series.SpinRateMax, series.Limits.MaxSpinRate) * 1.1

	return &scales{
		time: timeScale{
			start:  series.TimestampStart,
			linear: linear{min: 0, max: series.Duration().Seconds(), from: plot.Min.X, to: plot.Max.X},
		},
		// pixel rows grow downwards
		altitude: linear{min: max(0, altMin-pad), max: altMax + pad, from: plot.Max.Y, to: plot.Min.Y},
		spin:     linear{min: 0, max: spinMax, from: plot.Max.Y, to: plot.Min.Y},
	}
}

// timeTicks returns label positions on round time steps
func (s *scales) timeTicks() []time.Time {
	duration := time.Duration(s.time.max * float64(time.Second))
	step := calculateNiceTimeStep(duration)

	start := s.time.start.Truncate(step)
	if start.Before(s.time.start) {
		start = start.Add(step)
	}

	var ticks []time.Time
	end := s.time.start.Add(duration)
	for t := start; !t.After(end); t = t.Add(step) {
		ticks = append(ticks, t)
	}
	return ticks
}

// niceStep rounds a raw step up to 1, 2 or 5 times a power of ten
func niceStep(raw float64) float64 {
	if raw <= 0 {
		return 1
	}

	magnitude := math.Pow(10, math.Floor(math.Log10(raw)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= raw {
			return step
		}
	}
	return 10 * magnitude
}

func calculateNiceTimeStep(duration time.Duration) time.Duration {
	roughStep := duration / 8 // Aim for about 8 time labels

	niceIntervals := []time.Duration{
		time.Second,
		5 * time.Second,
		10 * time.Second,
		30 * time.Second,
		time.Minute,
		5 * time.Minute,
		10 * time.Minute,
		15 * time.Minute,
		30 * time.Minute,
		time.Hour,
		2 * time.Hour,
	}

	for _, interval := range niceIntervals {
		if roughStep <= interval {
			return interval
		}
	}

	return 4 * time.Hour
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	fontFace font.Face
}

func newAnnotator(parsedFont *truetype.Font, config RenderConfig) *annotator {
	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}
}

func (a *annotator) Close() error {
	return a.fontFace.Close()
}

func (a *annotator) annotate(img *image.RGBA, plot image.Rectangle, s *scales, series *FlightSeries) error {
	a.context.SetClip(img.Bounds())
	a.context.SetDst(img)

	ops := []struct {
		msg string
		fn  func() error
	}{
		{"drawing altitude scale", func() error { return a.drawAltitudeScale(img, plot, s) }},
		{"drawing spin rate scale", func() error { return a.drawSpinScale(img, plot, s) }},
		{"drawing time scale", func() error { return a.drawTimeScale(img, plot, s) }},
		{"drawing event labels", func() error { return a.drawEventLabels(plot, s, series.Events) }},
		{"drawing info bar", func() error { return a.drawInfoBar(img, plot, series) }},
	}
	for _, op := range ops {
		if err := op.fn(); err != nil {
			return fmt.Errorf("%s: %w", op.msg, err)
		}
	}

	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawAltitudeScale(img *image.RGBA, plot image.Rectangle, s *scales) error {
	a.context.SetSrc(image.NewUniform(altitudeColor))
	defer a.context.SetSrc(image.Black)

	for _, v := range s.altitude.ticks() {
		y := s.altitude.pos(v)
		for x := plot.Min.X - tickMarkLength; x < plot.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := humanize.SIWithDigits(v, 1, "m")
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(plot.Min.X-tickMarkLength-3-width, y+a.fontHeight()/3)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawSpinScale(img *image.RGBA, plot image.Rectangle, s *scales) error {
	a.context.SetSrc(image.NewUniform(spinRateColor))
	defer a.context.SetSrc(image.Black)

	for _, v := range s.spin.ticks() {
		y := s.spin.pos(v)
		for x := plot.Max.X; x < plot.Max.X+tickMarkLength; x++ {
			img.Set(x, y, color.Black)
		}

		label := humanize.FtoaWithDigits(v, 2) + " °/s"
		pt := freetype.Pt(plot.Max.X+tickMarkLength+3, y+a.fontHeight()/3)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawTimeScale(img *image.RGBA, plot image.Rectangle, s *scales) error {
	textY := plot.Max.Y + tickMarkLength + a.fontHeight()

	for _, t := range s.timeTicks() {
		x := s.time.pos(t)
		for y := plot.Max.Y; y < plot.Max.Y+tickMarkLength; y++ {
			img.Set(x, y, color.Black)
		}

		label := t.In(a.config.Location).Format(a.config.TimeFormat)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(x-width/2, textY)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawEventLabels(plot image.Rectangle, s *scales, events []storage.StatusEvent) error {
	defer a.context.SetSrc(image.Black)

	// alternate rows so reports close in time stay readable
	for i, e := range events {
		a.context.SetSrc(image.NewUniform(eventColor(e)))

		label := eventLabel(e)
		width := font.MeasureString(a.fontFace, label).Round()
		y := plot.Min.Y - 4 - (i%2)*a.fontHeight()
		if _, err := a.context.DrawString(label, freetype.Pt(s.time.pos(e.Timestamp)-width/2, y)); err != nil {
			return err
		}
	}
	return nil
}

func (a *annotator) drawInfoBar(img *image.RGBA, plot image.Rectangle, series *FlightSeries) error {
	var sb strings.Builder

	if series.Flight != nil {
		sb.WriteString(fmt.Sprintf("Flight %s (%s); ", series.Flight.ID, series.Flight.Mode))
	}
	sb.WriteString(fmt.Sprintf("Time: %s - %s; ",
		series.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		series.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat)))
	sb.WriteString(fmt.Sprintf("Samples: %s, %s in launch window; ",
		humanize.Comma(int64(len(series.Points))), humanize.Comma(int64(series.InWindow))))
	sb.WriteString(fmt.Sprintf("Window: %s - %s, spin <= %s °/s",
		humanize.SIWithDigits(series.Limits.MinAltitude, 2, "m"),
		humanize.SIWithDigits(series.Limits.MaxAltitude, 2, "m"),
		humanize.Ftoa(series.Limits.MaxSpinRate)))

	metrics := a.fontFace.Metrics()
	textY := img.Bounds().Max.Y - metrics.Descent.Round() - 4

	if _, err := a.context.DrawString(sb.String(), freetype.Pt(plot.Min.X, textY)); err != nil {
		return fmt.Errorf("drawing info text: %w", err)
	}
	return nil
}
