package jobs

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"ms-service-orders/internal/logger"
	"ms-service-orders/internal/orderid"
)

// StatsSource is anything that can report on the order id pool, usually *order.OrderService.
type StatsSource interface {
	AllocatorStats() orderid.Stats
}

// PoolMonitor periodically logs how much of the order id pool is in use and warns when the pool
// is close to a reset.
type PoolMonitor struct {
	source      StatsSource
	logger      *logger.Logger
	scheduler   *cron.Cron
	schedule    string
	warnPercent int
	jobID       cron.EntryID
}

func NewPoolMonitor(source StatsSource, schedule string, warnPercent int, log *logger.Logger) *PoolMonitor {
	if schedule == "" {
		schedule = "@every 1h"
	}
	if warnPercent <= 0 || warnPercent > 100 {
		warnPercent = 90
	}
	return &PoolMonitor{
		source:      source,
		logger:      log,
		scheduler:   cron.New(),
		schedule:    schedule,
		warnPercent: warnPercent,
	}
}

// Start schedules the check and runs it once immediately.
func (m *PoolMonitor) Start() error {
	id, err := m.scheduler.AddFunc(m.schedule, func() { m.Check() })
	if err != nil {
		return fmt.Errorf("error scheduling pool monitor %q: %w", m.schedule, err)
	}
	m.jobID = id
	m.scheduler.Start()
	m.logger.Info("MONITOR", fmt.Sprintf("Order id pool monitor scheduled (%s, warn at %d%%)", m.schedule, m.warnPercent))

	m.Check()
	return nil
}

// Stop waits for a running check to finish.
func (m *PoolMonitor) Stop() {
	if m.scheduler == nil {
		return
	}
	<-m.scheduler.Stop().Done()
	m.logger.Info("MONITOR", "Order id pool monitor stopped")
}

// Check logs the current pool usage and reports whether it crossed the warning threshold.
func (m *PoolMonitor) Check() bool {
	stats := m.source.AllocatorStats()
	msg := fmt.Sprintf("%d/%d ids used (%d%%), %d available, %d resets",
		stats.Used, stats.Total, stats.Percentage, stats.Available, stats.Resets)

	if stats.Percentage >= m.warnPercent {
		m.logger.Warn("ORDER_ID", "Order id pool nearly exhausted: "+msg)
		return true
	}
	m.logger.LogAllocator("stats", msg)
	return false
}
