package alert

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier delivers one rendered alert message to an external channel.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Alerter is what the executor and commands depend on. A nil Alerter is
// valid and drops everything.
type Alerter interface {
	Important(event string, fields map[string]string)
}

const defaultAlertQueueSize = 64

// Manager fans important events out to a Notifier from a bounded queue so a
// slow channel can never stall the trading loop. Overflow is dropped and
// counted, never blocked on.
type Manager struct {
	symbol       string
	instanceID   string
	notifier     Notifier
	queue        chan alertEvent
	stop         chan struct{}
	done         chan struct{}
	droppedTotal uint64
	log          *logrus.Entry

	mu     sync.RWMutex
	closed bool
}

type alertEvent struct {
	event  string
	fields map[string]string
}

func NewManager(symbol, instanceID string, notifier Notifier, log *logrus.Logger) *Manager {
	if notifier == nil {
		return nil
	}
	if log == nil {
		log = logrus.New()
	}
	m := &Manager{
		symbol:     symbol,
		instanceID: instanceID,
		notifier:   notifier,
		queue:      make(chan alertEvent, defaultAlertQueueSize),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        log.WithField("component", "alert"),
	}
	go m.loop()
	return m
}

func (m *Manager) Important(event string, fields map[string]string) {
	if m == nil || m.notifier == nil {
		return
	}
	ev := alertEvent{event: event, fields: cloneFields(fields)}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	select {
	case m.queue <- ev:
	default:
		dropped := atomic.AddUint64(&m.droppedTotal, 1)
		m.log.WithFields(logrus.Fields{
			"target_event":  event,
			"dropped_total": dropped,
		}).Warn("alert queue full, event dropped")
	}
}

// Close drains the queue and waits for in-flight sends, bounded by ctx.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) send(ev alertEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if err := m.notifier.Notify(ctx, m.buildMessage(ev.event, ev.fields)); err != nil {
		m.log.WithError(err).WithField("target_event", ev.event).Error("alert delivery failed")
	}
}

func (m *Manager) buildMessage(event string, fields map[string]string) string {
	lines := []string{
		"[option-taker] important",
		"time: " + time.Now().UTC().Format(time.RFC3339),
		"symbol: " + m.symbol,
		"instance: " + m.instanceID,
		"event: " + event,
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+fields[k])
	}
	return strings.Join(lines, "\n")
}

func cloneFields(fields map[string]string) map[string]string {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}
