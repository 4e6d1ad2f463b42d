package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Bar renders a single-line progress bar for a known number of items.
type Bar struct {
	total      int64
	current    int64
	width      int
	writer     io.Writer
	mu         sync.Mutex
	label      string
	lastUpdate time.Time
	interval   time.Duration
}

func New(total int64, w io.Writer) *Bar {
	return &Bar{
		total:    total,
		width:    40,
		writer:   w,
		interval: 100 * time.Millisecond,
	}
}

// Increment advances the bar by one item and shows label as the current item.
func (b *Bar) Increment(label string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current++
	b.label = label

	// Redraw at most every interval to reduce flickering
	now := time.Now()
	if now.Sub(b.lastUpdate) >= b.interval || b.current == b.total {
		b.lastUpdate = now
		b.render()
	}
}

// render must be called with mu already locked
func (b *Bar) render() {
	if b.total == 0 {
		return
	}

	current := b.current
	if current > b.total {
		current = b.total
	}

	percent := float64(current) / float64(b.total) * 100
	filledWidth := int(float64(b.width) * float64(current) / float64(b.total))

	bar := strings.Repeat("█", filledWidth) + strings.Repeat("░", b.width-filledWidth)

	label := b.label
	if len(label) > 40 {
		label = "..." + label[len(label)-37:]
	}
	if label != "" {
		label = " | " + label
	}

	// Clear the line and write progress
	fmt.Fprintf(b.writer, "\r\033[K[%s] %3d%% (%d/%d)%s",
		bar, int(percent), current, b.total, label)
}

func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.current = b.total
	b.label = ""
	b.render()
	fmt.Fprintf(b.writer, "\n")
}
