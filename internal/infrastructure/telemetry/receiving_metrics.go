package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor gets a nil meter
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// Scan results
const (
	ScanAccepted        = "accepted"
	ScanNotFound        = "not_found"
	ScanAlreadyReceived = "already_received"
)

// Finalize outcomes
const (
	FinalizeSucceeded = "succeeded"
	FinalizeFailed    = "failed"
)

// ReceivingMetrics records intake workflow activity. A nil *ReceivingMetrics
// is valid and records nothing.
type ReceivingMetrics struct {
	scansTotal       *Counter
	itemsQueuedTotal *Counter
	rejectionsTotal  *Counter
	finalizeTotal    *Counter
	finalizeDuration *Histogram
	receiptValue     *Histogram
	activeSessions   *UpDownCounter
}

// NewReceivingMetrics creates the receiving instruments on meter
func NewReceivingMetrics(meter metric.Meter) (*ReceivingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	m := &ReceivingMetrics{}
	var err error

	if m.scansTotal, err = NewCounter(meter,
		"erp_receiving_scans_total",
		"Barcode scans processed, by result",
		"{scans}",
	); err != nil {
		return nil, err
	}
	if m.itemsQueuedTotal, err = NewCounter(meter,
		"erp_receiving_items_queued_total",
		"Confirmed quantities added to receiving queues",
		"{confirmations}",
	); err != nil {
		return nil, err
	}
	if m.rejectionsTotal, err = NewCounter(meter,
		"erp_receiving_rejections_total",
		"Rejected workflow operations, by operation and error code",
		"{rejections}",
	); err != nil {
		return nil, err
	}
	if m.finalizeTotal, err = NewCounter(meter,
		"erp_receiving_finalize_total",
		"Finalization attempts, by outcome",
		"{attempts}",
	); err != nil {
		return nil, err
	}
	if m.finalizeDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "erp_receiving_finalize_duration_seconds",
		Description: "Duration of the finalization call to the ERP",
		Unit:        "s",
		Boundaries:  UpstreamDurationBuckets,
	}); err != nil {
		return nil, err
	}
	if m.receiptValue, err = NewHistogram(meter, HistogramOpts{
		Name:        "erp_receiving_receipt_value",
		Description: "Total value of finalized receipts",
		Unit:        "{currency}",
	}); err != nil {
		return nil, err
	}
	if m.activeSessions, err = NewUpDownCounter(meter,
		"erp_receiving_active_sessions",
		"Receiving sessions currently held in memory",
		"{sessions}",
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordScan counts a scan by result
func (m *ReceivingMetrics) RecordScan(ctx context.Context, tenantID uuid.UUID, result string) {
	if m == nil {
		return
	}
	m.scansTotal.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrResult.String(result))
}

// RecordItemQueued counts a confirmed quantity, by how the line was reached
func (m *ReceivingMetrics) RecordItemQueued(ctx context.Context, tenantID uuid.UUID, source string) {
	if m == nil {
		return
	}
	m.itemsQueuedTotal.Inc(ctx, AttrTenantID.String(tenantID.String()), AttrSource.String(source))
}

// RecordRejection counts a refused operation
func (m *ReceivingMetrics) RecordRejection(ctx context.Context, tenantID uuid.UUID, operation, code string) {
	if m == nil {
		return
	}
	m.rejectionsTotal.Inc(ctx,
		AttrTenantID.String(tenantID.String()),
		AttrOperation.String(operation),
		AttrCode.String(code),
	)
}

// RecordFinalize records a finalization attempt. value is only recorded on success.
func (m *ReceivingMetrics) RecordFinalize(ctx context.Context, tenantID uuid.UUID, outcome string, d time.Duration, value decimal.Decimal) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{AttrTenantID.String(tenantID.String()), AttrOutcome.String(outcome)}
	m.finalizeTotal.Inc(ctx, attrs...)
	m.finalizeDuration.RecordDuration(ctx, d, attrs...)
	if outcome == FinalizeSucceeded {
		m.receiptValue.Record(ctx, value.InexactFloat64(), AttrTenantID.String(tenantID.String()))
	}
}

// SessionOpened increments the active session gauge
func (m *ReceivingMetrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// SessionClosed decrements the active session gauge
func (m *ReceivingMetrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}
