package sensor

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/roman-kulish/flight-control/internal/telemetry"
)

const (
	// HistoryCapacity is the number of gyro samples kept per axis
	HistoryCapacity = 100

	// FilterWindow is the number of most recent samples averaged by FilteredSpinRate
	FilterWindow = 10
)

// ErrInsufficientData is returned when the spin rate is requested before any
// gyro sample was ingested. Callers treat it as "not ready yet".
var ErrInsufficientData = errors.New("insufficient sensor data")

// History keeps a bounded rolling window of gyroscope readings in three
// parallel buffers, one per axis. The buffers always have the same length:
// an overflow evicts the oldest x, y and z values together.
type History struct {
	capacity int
	window   int

	mu sync.RWMutex
	gx []float64
	gy []float64
	gz []float64
}

// NewHistory creates a gyro history with the default capacity and filter window
func NewHistory() *History {
	h, _ := NewHistoryWithCapacity(HistoryCapacity, FilterWindow)
	return h
}

// NewHistoryWithCapacity creates a gyro history keeping up to capacity samples
// and averaging the last window samples when computing the spin rate.
func NewHistoryWithCapacity(capacity, window int) (*History, error) {
	if capacity <= 0 || window <= 0 || window > capacity {
		return nil, fmt.Errorf("invalid history parameters: capacity=%d, window=%d", capacity, window)
	}
	return &History{
		capacity: capacity,
		window:   window,
		gx:       make([]float64, 0, capacity),
		gy:       make([]float64, 0, capacity),
		gz:       make([]float64, 0, capacity),
	}, nil
}

// Ingest appends the gyro reading of s. Nil samples are ignored.
func (h *History) Ingest(s *telemetry.Sample) {
	if s == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.gx) == h.capacity {
		// shift in place, the backing arrays never grow past capacity
		copy(h.gx, h.gx[1:])
		copy(h.gy, h.gy[1:])
		copy(h.gz, h.gz[1:])

		h.gx = h.gx[:h.capacity-1]
		h.gy = h.gy[:h.capacity-1]
		h.gz = h.gz[:h.capacity-1]
	}

	h.gx = append(h.gx, s.Gyro.X)
	h.gy = append(h.gy, s.Gyro.Y)
	h.gz = append(h.gz, s.Gyro.Z)
}

// FilteredSpinRate returns the magnitude of the per-axis mean over the most
// recent min(window, Len()) samples, in degrees per second.
func (h *History) FilteredSpinRate() (float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	length := len(h.gx)
	if length == 0 {
		return 0, ErrInsufficientData
	}

	n := min(h.window, length)

	var gx, gy, gz float64
	for i := length - n; i < length; i++ {
		gx += h.gx[i]
		gy += h.gy[i]
		gz += h.gz[i]
	}

	gx /= float64(n)
	gy /= float64(n)
	gz /= float64(n)

	return math.Sqrt(gx*gx + gy*gy + gz*gz), nil
}

// Len returns the number of samples currently held
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.gx)
}

// Snapshot returns copies of the x, y and z buffers, oldest first
func (h *History) Snapshot() (x, y, z []float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return append([]float64(nil), h.gx...),
		append([]float64(nil), h.gy...),
		append([]float64(nil), h.gz...)
}

// Clear removes all samples
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.gx = h.gx[:0]
	h.gy = h.gy[:0]
	h.gz = h.gz[:0]
}
