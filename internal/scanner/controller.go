package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/FranksOps/endpoints/internal/endpoint"
	"github.com/FranksOps/endpoints/internal/metrics"
)

// State is the lifecycle position of the controller's current or last scan.
type State int

const (
	// StateIdle means no scan has been started yet.
	StateIdle State = iota
	// StateRunning means a scan is in flight.
	StateRunning
	// StateCompleted means the last scan processed every item.
	StateCompleted
	// StateStopped means the last scan observed a stop and ended early.
	StateStopped
	// StateFailed means the last scan could not load its items or panicked.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Source loads the items to scan. It runs on the scan goroutine.
type Source func(ctx context.Context) ([]endpoint.Item, error)

// Items returns a Source yielding a fixed list.
func Items(items ...endpoint.Item) Source {
	return func(context.Context) ([]endpoint.Item, error) {
		return items, nil
	}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithProgress forwards every progress snapshot to fn.
func WithProgress(fn ProgressFunc) ControllerOption {
	return func(c *Controller) {
		c.onProgress = fn
	}
}

// Controller lets at most one scan run at a time on a background goroutine.
// Start and Stop never block on the scan itself.
type Controller struct {
	scanner    *Scanner
	logger     *slog.Logger
	onProgress ProgressFunc

	mu       sync.Mutex
	scanning bool
	cancel   context.CancelFunc
	state    State
	status   string
	result   *endpoint.ScanResult
	records  []endpoint.Record
	done     chan struct{}
}

// NewController wraps scanner in a single-flight controller.
func NewController(scanner *Scanner, logger *slog.Logger, opts ...ControllerOption) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	done := make(chan struct{})
	close(done)

	c := &Controller{
		scanner: scanner,
		logger:  logger,
		state:   StateIdle,
		done:    done,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches a scan of the items produced by src. It returns false, and
// leaves the running scan alone, if one is already in flight.
func (c *Controller) Start(src Source) bool {
	c.mu.Lock()
	if c.scanning {
		c.status = "Scan already running."
		c.mu.Unlock()
		c.logger.Warn("scan already running")
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.scanning = true
	c.cancel = cancel
	c.state = StateRunning
	c.status = "Scanning started."
	c.done = done
	c.mu.Unlock()

	c.logger.Info("scan started")
	go c.run(ctx, src, done)
	return true
}

// ScanSelected starts a scan of an explicit selection of items.
func (c *Controller) ScanSelected(items []endpoint.Item) bool {
	if len(items) == 0 {
		c.setStatus("No selected messages.")
		return false
	}
	return c.Start(Items(items...))
}

// Stop asks the running scan to stop and returns immediately. The scan
// notices between items. It returns false if no scan is running.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.scanning {
		c.status = "No scan in progress."
		return false
	}
	c.cancel()
	c.status = "Stop requested."
	return true
}

func (c *Controller) run(ctx context.Context, src Source, done chan struct{}) {
	defer close(done)

	res, records, err := c.execute(ctx, src)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.scanning = false
	c.cancel()
	c.cancel = nil

	if err != nil {
		c.state = StateFailed
		c.status = "Scan failed."
		c.logger.Error("scan failed", "err", err)
		metrics.RecordFailure()
		return
	}

	c.result = &res
	c.records = records

	summary := fmt.Sprintf("%d/%d, errors=%d, unique=%d",
		res.ProcessedItems, res.TotalItems, res.ErrorCount, res.UniqueEndpoints)
	// a stop that lands after the last item leaves the scan complete
	if res.Stopped {
		c.state = StateStopped
		c.status = "Stopped: " + summary
		return
	}
	c.state = StateCompleted
	c.status = "Completed: " + summary
}

func (c *Controller) execute(ctx context.Context, src Source) (res endpoint.ScanResult, records []endpoint.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scan worker panic: %v", r)
		}
	}()

	items, err := src(ctx)
	if err != nil {
		return res, nil, fmt.Errorf("load history items: %w", err)
	}

	res = c.scanner.Scan(ctx, items, c.progress)
	return res, c.scanner.Records(), nil
}

func (c *Controller) progress(p endpoint.Progress) {
	c.setStatus(fmt.Sprintf("Scanning: %d/%d, errors=%d, unique=%d",
		p.ProcessedItems, p.TotalItems, p.ErrorCount, p.UniqueEndpoints))
	if c.onProgress != nil {
		c.onProgress(p)
	}
}

func (c *Controller) setStatus(msg string) {
	c.mu.Lock()
	c.status = msg
	c.mu.Unlock()
}

// Scanning reports whether a scan is in flight.
func (c *Controller) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// State returns the state of the current or last scan.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the latest human-readable status line.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Result returns the result of the last scan that finished without failing.
func (c *Controller) Result() (endpoint.ScanResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return endpoint.ScanResult{}, false
	}
	return *c.result, true
}

// Records returns a copy of the records captured when the last scan finished.
func (c *Controller) Records() []endpoint.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]endpoint.Record, len(c.records))
	copy(out, c.records)
	return out
}

// Filtered returns the last scan's records matching keyword.
func (c *Controller) Filtered(keyword string) []endpoint.Record {
	return endpoint.Filter(c.Records(), keyword)
}

// Done returns a channel closed when the current or last scan has finished.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}
