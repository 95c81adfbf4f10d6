/*
monitor.go - Background transit monitor

PURPOSE:
  Periodically scans in-transit transfers and raises an alert log line for
  each one that has been on the road longer than the configured threshold
  (transit_alert_minutes). The same rows also surface the alert flag through
  GET /api/transfers; this monitor exists so an overdue envelope is noticed
  even when nobody has the screen open.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each transfer alerts once; the flag resets when it leaves transit
  - Threshold lookups go through the parameters table on every check, so
    operator changes take effect without a restart

CONFIGURATION:
  - CheckInterval: How often to scan (default: 1 minute)
  - Enabled: Whether the monitor is active (default: true)

USAGE:
  monitor := NewTransitMonitor(handler)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - custody/transfer.go: TransitAlert threshold logic
  - custody/parameters.go: transit_alert_minutes
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/warp/cash-custody/custody"
)

// TransitMonitor watches cash in motion.
type TransitMonitor struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// alertMu guards alerted: the ticker goroutine and RunNow callers may
	// scan concurrently. It is separate from mu because Stop holds mu
	// while waiting for an in-flight scan to finish.
	alertMu sync.Mutex
	alerted map[custody.TransferID]bool

	log *logrus.Logger
}

// NewTransitMonitor creates a monitor wired to the handler's store.
func NewTransitMonitor(h *Handler) *TransitMonitor {
	return &TransitMonitor{
		Handler:       h,
		CheckInterval: time.Minute,
		Enabled:       true,
		stop:          make(chan struct{}),
		alerted:       make(map[custody.TransferID]bool),
		log:           h.log,
	}
}

// Start begins the monitor.
func (m *TransitMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.log.Info("transit monitor disabled, not starting")
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.wg.Add(1)
	go m.run()

	m.log.WithField("interval", m.CheckInterval.String()).Info("transit monitor started")
}

// Stop stops the monitor and waits for the scan loop to exit.
func (m *TransitMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.log.Info("transit monitor stopped")
	}
}

func (m *TransitMonitor) run() {
	defer m.wg.Done()

	// Scan immediately on start.
	m.scan()

	for {
		select {
		case <-m.ticker.C:
			m.scan()
		case <-m.stop:
			return
		}
	}
}

// RunNow triggers an immediate scan (for admin use).
func (m *TransitMonitor) RunNow() {
	m.scan()
}

func (m *TransitMonitor) scan() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pending, err := m.Handler.Store.ListTransfers(ctx, []custody.TransferState{custody.TransferInTransit})
	if err != nil {
		m.log.WithError(err).Error("transit monitor scan failed")
		return
	}

	inTransit := make(map[custody.TransferID]bool, len(pending))
	for _, t := range pending {
		inTransit[t.ID] = true

		alert, err := m.Handler.Transfers.TransitAlert(ctx, t)
		if err != nil {
			m.log.WithError(err).WithField("transfer_id", t.ID).Error("transit alert check failed")
			continue
		}
		if !alert || !m.markAlerted(t.ID) {
			continue
		}

		m.log.WithFields(logrus.Fields{
			"transfer_id":        t.ID,
			"source_id":          t.SourceID,
			"amount_cents":       t.Amount.Cents(),
			"minutes_in_transit": m.Handler.Transfers.MinutesInTransit(t),
		}).Warn("transfer overdue in transit")
	}

	m.pruneAlerted(inTransit)
}

// markAlerted flags a transfer as warned. It returns false when an
// earlier scan already warned about it.
func (m *TransitMonitor) markAlerted(id custody.TransferID) bool {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	if m.alerted[id] {
		return false
	}
	m.alerted[id] = true
	return true
}

// pruneAlerted forgets transfers that left transit so the map stays
// bounded.
func (m *TransitMonitor) pruneAlerted(inTransit map[custody.TransferID]bool) {
	m.alertMu.Lock()
	defer m.alertMu.Unlock()
	for id := range m.alerted {
		if !inTransit[id] {
			delete(m.alerted, id)
		}
	}
}
