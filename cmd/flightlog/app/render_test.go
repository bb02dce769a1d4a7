package app

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/roman-kulish/flight-control/internal/status"
	"github.com/roman-kulish/flight-control/internal/storage"
)

func testSeries(start time.Time) *FlightSeries {
	series := NewFlightSeries(&storage.Flight{ID: "f-1", Mode: "test", StartTime: start})
	for i := 0; i < 600; i++ {
		series.Update(&storage.SampleRecord{
			Timestamp: start.Add(time.Duration(i) * time.Second),
			Altitude:  float64(i) * 45,
			GyroX:     float64(i%7) - 3,
			GyroZ:     2,
		})
	}
	series.AddEvents([]storage.StatusEvent{
		{Timestamp: start.Add(300 * time.Second), Stabilization: status.OK},
		{Timestamp: start.Add(550 * time.Second), Ignition: status.OK},
	})
	return series
}

func countColor(img *image.RGBA, c color.RGBA) int {
	n := 0
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

func TestChartRenderer_Render(t *testing.T) {
	renderer, err := NewChartRenderer(RenderConfig{Width: 800, Height: 400, Location: time.UTC})
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	img, err := renderer.Render(testSeries(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Failed to render: %v", err)
	}

	if size := img.Bounds().Size(); size.X != 800 || size.Y != 400 {
		t.Fatalf("Expected 800x400 image, got %v", size)
	}
	if img.RGBAAt(0, 0) != (color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
		t.Errorf("Expected white background, got %v", img.RGBAAt(0, 0))
	}

	testCases := []struct {
		name  string
		color color.RGBA
	}{
		{"launch window", windowColor},
		{"altitude", altitudeColor},
		{"spin rate", spinRateColor},
		{"stabilization report", stabilizedColor},
		{"ignition report", ignitionColor},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if countColor(img, tc.color) == 0 {
				t.Errorf("Expected %s to be drawn", tc.name)
			}
		})
	}

	if countColor(img, qdmColor) != 0 {
		t.Error("No QDM report was recorded")
	}
}

func TestChartRenderer_SinglePoint(t *testing.T) {
	renderer, err := NewChartRenderer(RenderConfig{Width: 400, Height: 300})
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	series := NewFlightSeries(nil)
	series.Update(&storage.SampleRecord{Timestamp: time.Now(), Altitude: 25000})

	if _, err = renderer.Render(series); err != nil {
		t.Fatalf("Failed to render single sample: %v", err)
	}
}

func TestChartRenderer_Errors(t *testing.T) {
	if _, err := NewChartRenderer(RenderConfig{Width: 150, Height: 150}); err == nil {
		t.Error("Expected error for an image smaller than its borders")
	}

	renderer, err := NewChartRenderer(RenderConfig{})
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	if _, err = renderer.Render(NewFlightSeries(nil)); !errors.Is(err, ErrEmptySeries) {
		t.Errorf("Expected ErrEmptySeries, got %v", err)
	}
}

func TestLinear(t *testing.T) {
	l := linear{min: 0, max: 100, from: 500, to: 100}

	testCases := []struct {
		value    float64
		expected int
	}{
		{0, 500},
		{50, 300},
		{100, 100},
	}
	for _, tc := range testCases {
		if got := l.pos(tc.value); got != tc.expected {
			t.Errorf("pos(%v): expected %d, got %d", tc.value, tc.expected, got)
		}
	}

	flat := linear{min: 5, max: 5, from: 0, to: 100}
	if flat.pos(5) != 50 {
		t.Errorf("Expected a flat range to map to the middle, got %d", flat.pos(5))
	}

	ticks := l.ticks()
	if len(ticks) == 0 || ticks[0] != 0 || ticks[len(ticks)-1] > 100 {
		t.Errorf("Unexpected ticks: %v", ticks)
	}
}

func TestNiceSteps(t *testing.T) {
	stepCases := []struct {
		raw      float64
		expected float64
	}{
		{0, 1},
		{1, 1},
		{1.5, 2},
		{3, 5},
		{7, 10},
		{1200, 2000},
	}
	for _, tc := range stepCases {
		if got := niceStep(tc.raw); got != tc.expected {
			t.Errorf("niceStep(%v): expected %v, got %v", tc.raw, tc.expected, got)
		}
	}

	timeCases := []struct {
		duration time.Duration
		expected time.Duration
	}{
		{0, time.Second},
		{40 * time.Second, 5 * time.Second},
		{10 * time.Minute, 5 * time.Minute},
		{3 * time.Hour, 30 * time.Minute},
		{48 * time.Hour, 4 * time.Hour},
	}
	for _, tc := range timeCases {
		if got := calculateNiceTimeStep(tc.duration); got != tc.expected {
			t.Errorf("calculateNiceTimeStep(%s): expected %s, got %s", tc.duration, tc.expected, got)
		}
	}
}

func TestEventLabel(t *testing.T) {
	testCases := []struct {
		event    storage.StatusEvent
		expected string
	}{
		{storage.StatusEvent{}, "FAIL"},
		{storage.StatusEvent{QDM: status.OK}, "QDM"},
		{storage.StatusEvent{Ignition: status.OK, Stabilization: status.OK}, "IGN+STAB"},
	}
	for _, tc := range testCases {
		if got := eventLabel(tc.event); got != tc.expected {
			t.Errorf("Expected %q, got %q", tc.expected, got)
		}
	}
}
