package notifier

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ramonzeraa/teste-crypto/internal/logger"
)

// Priority ranks an alert. Critical and high alerts reach the external
// channel; informational ones are logged only.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityInfo     Priority = "info"
)

// Alert is one event surfaced to the operator.
type Alert struct {
	Priority Priority
	Title    string
	Lines    []string
	At       time.Time
}

func (a Alert) render() string {
	icon := "ℹ️"
	switch a.Priority {
	case PriorityCritical:
		icon = "🚨"
	case PriorityHigh:
		icon = "⚠️"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s*\n", icon, a.Title)
	for _, line := range a.Lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("- " + line + "\n")
	}
	at := a.At
	if at.IsZero() {
		at = time.Now()
	}
	b.WriteString(at.UTC().Format("2006-01-02 15:04:05 MST"))
	return b.String()
}

// Dispatcher fans alerts out to the configured channel without ever letting
// a slow or failing channel block the trading pipeline: delivery runs on a
// single background goroutine over a bounded queue.
type Dispatcher struct {
	sink   TextNotifier
	queue  chan Alert
	wg     sync.WaitGroup
	once   sync.Once
	closed chan struct{}
}

func NewDispatcher(sink TextNotifier) *Dispatcher {
	if sink == nil {
		sink = Noop{}
	}
	d := &Dispatcher{
		sink:   sink,
		queue:  make(chan Alert, 64),
		closed: make(chan struct{}),
	}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for {
		select {
		case alert := <-d.queue:
			if err := d.sink.SendText(alert.render()); err != nil {
				logger.Errorf("alert delivery failed (%s: %s): %v", alert.Priority, alert.Title, err)
			}
		case <-d.closed:
			// Drain what is already queued before shutting down.
			for {
				select {
				case alert := <-d.queue:
					if err := d.sink.SendText(alert.render()); err != nil {
						logger.Errorf("alert delivery failed (%s: %s): %v", alert.Priority, alert.Title, err)
					}
				default:
					return
				}
			}
		}
	}
}

// Dispatch logs the alert and, for critical/high priority, queues it for
// external delivery. A full queue drops to log-only rather than blocking.
func (d *Dispatcher) Dispatch(alert Alert) {
	if alert.At.IsZero() {
		alert.At = time.Now()
	}
	switch alert.Priority {
	case PriorityCritical:
		logger.Errorf("ALERT [%s] %s: %s", alert.Priority, alert.Title, strings.Join(alert.Lines, "; "))
	case PriorityHigh:
		logger.Warnf("ALERT [%s] %s: %s", alert.Priority, alert.Title, strings.Join(alert.Lines, "; "))
	default:
		logger.Infof("ALERT [%s] %s: %s", alert.Priority, alert.Title, strings.Join(alert.Lines, "; "))
		return
	}
	select {
	case d.queue <- alert:
	default:
		logger.Warnf("alert queue full, dropped external delivery of %q", alert.Title)
	}
}

func (d *Dispatcher) Criticalf(title, format string, v ...any) {
	d.Dispatch(Alert{Priority: PriorityCritical, Title: title, Lines: []string{fmt.Sprintf(format, v...)}})
}

func (d *Dispatcher) Highf(title, format string, v ...any) {
	d.Dispatch(Alert{Priority: PriorityHigh, Title: title, Lines: []string{fmt.Sprintf(format, v...)}})
}

func (d *Dispatcher) Infof(title, format string, v ...any) {
	d.Dispatch(Alert{Priority: PriorityInfo, Title: title, Lines: []string{fmt.Sprintf(format, v...)}})
}

// Close flushes queued alerts and stops the worker.
func (d *Dispatcher) Close() {
	d.once.Do(func() { close(d.closed) })
	d.wg.Wait()
}
