package receiving

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/erp/receiving/internal/infrastructure/logger"
	"github.com/erp/receiving/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Controller runs the intake workflow for one scanning device. Commands are
// executed one at a time, in submission order, on a dedicated goroutine;
// that goroutine is the only writer of the session state and the queue.
type Controller struct {
	sessionID uuid.UUID
	tenantID  uuid.UUID
	deviceID  string

	catalog     OrderCatalog
	gateway     FinalizationGateway
	journal     receiving.ReceiptJournal
	publisher   shared.EventPublisher
	metrics     *telemetry.ReceivingMetrics
	logger      *zap.Logger
	now         func() time.Time
	autoConfirm bool

	queue *receiving.ReceivingQueue

	// owned by the command loop
	state       receiving.SessionState
	detail      *receiving.OrderDetail
	pending     *pendingConfirmation
	lastError   *ErrorView
	lastReceipt *FinalizeResult
	// submission keys the finalize attempts of the current queue contents;
	// it is rolled whenever the queue changes or a receipt is accepted
	submission uuid.UUID

	viewMu sync.RWMutex
	view   SessionView

	commands  chan command
	inflight  atomic.Int32
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type pendingConfirmation struct {
	line     *receiving.OrderLine
	proposed decimal.Decimal
	source   receiving.EntrySource
}

type command struct {
	ctx   context.Context
	op    string
	fn    func(ctx context.Context) (Outcome, error)
	reply chan commandResult
}

type commandResult struct {
	outcome Outcome
	err     error
}

// Option configures a Controller
type Option func(*Controller)

// WithAutoConfirm makes a successful scan queue the proposed quantity at once
func WithAutoConfirm(enabled bool) Option {
	return func(c *Controller) {
		c.autoConfirm = enabled
	}
}

// WithLogger sets the controller logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEventPublisher sets where session events are published
func WithEventPublisher(p shared.EventPublisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.publisher = p
		}
	}
}

// WithJournal records every finalization attempt in j
func WithJournal(j receiving.ReceiptJournal) Option {
	return func(c *Controller) {
		c.journal = j
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m *telemetry.ReceivingMetrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithClock overrides the clock used for default receiving dates
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSessionID fixes the session ID instead of generating one
func WithSessionID(id uuid.UUID) Option {
	return func(c *Controller) {
		c.sessionID = id
	}
}

// NewController creates a controller in SELECTING_ORDER and starts its
// command loop. Call Close to stop it.
func NewController(tenantID uuid.UUID, deviceID string, catalog OrderCatalog, gateway FinalizationGateway, opts ...Option) *Controller {
	c := &Controller{
		sessionID: uuid.New(),
		tenantID:  tenantID,
		deviceID:  deviceID,
		catalog:   catalog,
		gateway:   gateway,
		publisher: shared.NopPublisher{},
		logger:    zap.NewNop(),
		now:       time.Now,
		queue:     receiving.NewReceivingQueue(uuid.Nil),
		state:     receiving.StateSelectingOrder,
		commands:  make(chan command),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(
		zap.String("session_id", c.sessionID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("device_id", deviceID),
	)
	c.refreshView()

	go c.run()
	return c
}

// SessionID returns the session identifier
func (c *Controller) SessionID() uuid.UUID { return c.sessionID }

// TenantID returns the tenant the session belongs to
func (c *Controller) TenantID() uuid.UUID { return c.tenantID }

// DeviceID returns the device the session belongs to
func (c *Controller) DeviceID() string { return c.deviceID }

// Close stops the command loop. Pending and later commands fail with SESSION_CLOSED.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

// Busy reports whether a command is queued or running
func (c *Controller) Busy() bool {
	return c.inflight.Load() > 0
}

// Done is closed once the controller has stopped
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case cmd := <-c.commands:
			cmd.reply <- c.handle(cmd)
		}
	}
}

func (c *Controller) handle(cmd command) (res commandResult) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("receiving command panicked",
				zap.String("operation", cmd.op),
				zap.Any("panic", r),
				zap.Stack("stacktrace"),
			)
			res = commandResult{err: asTransportError(cmd.op+" failed", fmt.Errorf("internal error: %v", r))}
			c.recoverState(cmd.ctx, res.err)
			res.outcome.State = c.state
			c.refreshView()
		}
	}()

	if err := cmd.ctx.Err(); err != nil {
		res.err = err
	} else {
		res.outcome, res.err = cmd.fn(cmd.ctx)
	}
	if res.err != nil {
		c.reject(cmd.ctx, cmd.op, res.err)
	}
	if res.outcome.State == "" {
		res.outcome.State = c.state
	}
	c.refreshView()
	return res
}

// recoverState leaves the in-flight states a panicking command was in.
// The queue is kept.
func (c *Controller) recoverState(ctx context.Context, err error) {
	switch c.state {
	case receiving.StateFinalizing:
		c.lastError = NewErrorView(err)
		c.moveTo(ctx, receiving.StateSummarizing)
	case receiving.StateLoadingDetail:
		c.lastError = NewErrorView(err)
		c.moveTo(ctx, receiving.StateError)
	}
}

func (c *Controller) exec(ctx context.Context, op string, fn func(ctx context.Context) (Outcome, error)) (Outcome, error) {
	c.inflight.Add(1)
	defer c.inflight.Add(-1)

	reply := make(chan commandResult, 1)
	select {
	case c.commands <- command{ctx: ctx, op: op, fn: fn, reply: reply}:
	case <-c.stop:
		return Outcome{}, shared.NewDomainError(receiving.CodeSessionClosed, "Receiving session is closed")
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
	res := <-reply
	return res.outcome, res.err
}

// ListOrders returns the orders awaiting receipt. It does not touch the session.
func (c *Controller) ListOrders(ctx context.Context) ([]receiving.OrderSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "receiving.list_orders")
	defer span.End()

	orders, err := c.catalog.ListPending(ctx, c.tenantID)
	if err != nil {
		err = asTransportError("Could not load pending orders", err)
		telemetry.RecordError(span, err)
		c.log(ctx).Error("failed to list pending orders", zap.Error(err))
		return nil, err
	}
	telemetry.SetAttributes(span, "orders", len(orders))
	return orders, nil
}

// SelectOrder loads the order's detail and starts scanning against it.
// A failed load leaves the session in ERROR.
func (c *Controller) SelectOrder(ctx context.Context, orderID uuid.UUID) (Outcome, error) {
	return c.exec(ctx, "select_order", func(ctx context.Context) (Outcome, error) {
		if c.state != receiving.StateSelectingOrder && c.state != receiving.StateError {
			return Outcome{}, c.invalidState("select an order")
		}
		c.lastError = nil
		c.lastReceipt = nil
		c.moveTo(ctx, receiving.StateLoadingDetail)
		c.refreshView()

		detail, err := c.loadDetail(ctx, orderID)
		if err != nil {
			c.lastError = NewErrorView(err)
			c.moveTo(ctx, receiving.StateError)
			return Outcome{}, err
		}

		c.detail = detail
		c.pending = nil
		c.queue.Reset(detail.ID)
		c.submission = uuid.New()
		c.moveTo(ctx, receiving.StateScanning)
		c.publish(ctx, receiving.NewSessionStartedEvent(c.ref(), detail))
		c.log(ctx).Info("receiving session started",
			zap.String("order_id", detail.ID.String()),
			zap.String("order_number", detail.OrderNumber),
			zap.Int("lines", len(detail.Lines)),
		)

		return Outcome{Lines: c.lineViews(detail.Lines), Warnings: c.duplicateBarcodeWarnings(ctx, detail)}, nil
	})
}

func (c *Controller) loadDetail(ctx context.Context, orderID uuid.UUID) (*receiving.OrderDetail, error) {
	ctx, span := telemetry.StartSpan(ctx, "receiving.load_detail",
		telemetry.WithAttribute("order_id", orderID.String()),
	)
	defer span.End()

	detail, err := c.catalog.GetDetail(ctx, c.tenantID, orderID)
	if err == nil && detail == nil {
		err = receiving.NewOrderNotFoundError(fmt.Sprintf("Order %s not found", orderID), nil)
	}
	if err == nil {
		err = detail.Validate()
	}
	if err != nil {
		err = asTransportError("Could not load order detail", err)
		telemetry.RecordError(span, err)
		return nil, err
	}
	return detail, nil
}

func (c *Controller) duplicateBarcodeWarnings(ctx context.Context, detail *receiving.OrderDetail) []receiving.Warning {
	dups := detail.DuplicateBarcodes()
	if len(dups) == 0 {
		return nil
	}
	codes := make([]string, 0, len(dups))
	for code := range dups {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	warnings := make([]receiving.Warning, 0, len(codes))
	for _, code := range codes {
		c.log(ctx).Warn("barcode shared by several order lines",
			zap.String("barcode", code),
			zap.Int("lines", len(dups[code])),
		)
		warnings = append(warnings, receiving.Warning{
			Code:    receiving.WarningDuplicateBarcode,
			Message: fmt.Sprintf("Barcode %s is on %d lines; scans resolve to the first", code, len(dups[code])),
		})
	}
	return warnings
}

// AcknowledgeError dismisses a failed order load and returns to order selection
func (c *Controller) AcknowledgeError(ctx context.Context) (Outcome, error) {
	return c.exec(ctx, "acknowledge_error", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("acknowledge an error", receiving.StateError); err != nil {
			return Outcome{}, err
		}
		c.lastError = nil
		c.moveTo(ctx, receiving.StateSelectingOrder)
		return Outcome{}, nil
	})
}

// Scan resolves a decoded barcode against the loaded order
func (c *Controller) Scan(ctx context.Context, barcode string) (Outcome, error) {
	return c.exec(ctx, "scan", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("scan", receiving.StateScanning); err != nil {
			return Outcome{}, err
		}
		line, err := receiving.ResolveBarcode(c.detail, barcode)
		if err != nil {
			c.metrics.RecordScan(ctx, c.tenantID, telemetry.ScanNotFound)
			c.publish(ctx, receiving.NewScanRejectedEvent(c.ref(), barcode, err))
			return Outcome{}, err
		}
		return c.beginConfirmation(ctx, line, receiving.SourceScan, barcode)
	})
}

func (c *Controller) beginConfirmation(ctx context.Context, line *receiving.OrderLine, source receiving.EntrySource, barcode string) (Outcome, error) {
	pendingQty := line.QuantityPending()
	if !pendingQty.IsPositive() {
		err := shared.NewDomainError(receiving.CodeAlreadyReceived,
			fmt.Sprintf("%s (%s) is already fully received", line.ProductName, line.SKU))
		if source == receiving.SourceScan {
			c.metrics.RecordScan(ctx, c.tenantID, telemetry.ScanAlreadyReceived)
		}
		c.publish(ctx, receiving.NewScanRejectedEvent(c.ref(), barcode, err))
		return Outcome{}, err
	}
	if source == receiving.SourceScan {
		c.metrics.RecordScan(ctx, c.tenantID, telemetry.ScanAccepted)
	}

	proposed := decimal.Min(decimal.NewFromInt(1), pendingQty)
	c.pending = &pendingConfirmation{line: line, proposed: proposed, source: source}
	c.moveTo(ctx, receiving.StateConfirmingQuantity)

	if c.autoConfirm && source == receiving.SourceScan {
		return c.confirm(ctx, proposed)
	}
	view := c.lineView(line)
	return Outcome{Line: &view, ProposedQuantity: &proposed}, nil
}

// ConfirmQuantity queues quantity for the line awaiting confirmation. It must
// be positive and no more than the quantity pending when the order was loaded.
func (c *Controller) ConfirmQuantity(ctx context.Context, quantity decimal.Decimal) (Outcome, error) {
	return c.exec(ctx, "confirm_quantity", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("confirm a quantity", receiving.StateConfirmingQuantity); err != nil {
			return Outcome{}, err
		}
		return c.confirm(ctx, quantity)
	})
}

func (c *Controller) confirm(ctx context.Context, quantity decimal.Decimal) (Outcome, error) {
	p := c.pending
	view := c.lineView(p.line)
	pendingQty := p.line.QuantityPending()

	if !quantity.IsPositive() || quantity.GreaterThan(pendingQty) {
		proposed := p.proposed
		return Outcome{Line: &view, ProposedQuantity: &proposed}, shared.NewDomainError(receiving.CodeInvalidQuantity,
			fmt.Sprintf("Quantity %s is invalid; enter more than 0 and at most %s", quantity, pendingQty))
	}

	entry, err := c.queue.Add(p.line.NewQueueEntry(quantity))
	if err != nil {
		return Outcome{Line: &view}, err
	}
	c.pending = nil
	c.submission = uuid.New()
	c.moveTo(ctx, receiving.StateScanning)

	event := receiving.NewItemQueuedEvent(c.ref(), c.detail.ID, p.line, quantity, entry, p.source)
	c.publish(ctx, event)
	c.metrics.RecordItemQueued(ctx, c.tenantID, string(p.source))

	view = c.lineView(p.line)
	out := Outcome{Line: &view, Entry: &entry, Acknowledged: true}
	if event.OverReceipt {
		c.log(ctx).Warn("queued quantity exceeds pending quantity",
			zap.String("order_line_id", p.line.ID.String()),
			zap.String("queued", entry.Quantity.String()),
			zap.String("pending", pendingQty.String()),
		)
		out.Warnings = append(out.Warnings, receiving.Warning{
			Code:    receiving.WarningOverReceipt,
			Message: fmt.Sprintf("%s: %s queued but only %s pending", p.line.ProductName, entry.Quantity, pendingQty),
		})
	}
	return out, nil
}

// CancelConfirmation drops the line awaiting confirmation without queuing anything
func (c *Controller) CancelConfirmation(ctx context.Context) (Outcome, error) {
	return c.exec(ctx, "cancel_confirmation", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("cancel a confirmation", receiving.StateConfirmingQuantity); err != nil {
			return Outcome{}, err
		}
		c.pending = nil
		c.moveTo(ctx, receiving.StateScanning)
		return Outcome{}, nil
	})
}

// OpenManualEntry switches to manual line search, listing every line
func (c *Controller) OpenManualEntry(ctx context.Context) (Outcome, error) {
	return c.exec(ctx, "open_manual_entry", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("open manual entry", receiving.StateScanning); err != nil {
			return Outcome{}, err
		}
		c.moveTo(ctx, receiving.StateManualEntry)
		return Outcome{Lines: c.lineViews(c.detail.Lines)}, nil
	})
}

// SearchLines filters the order's lines by product name or SKU
func (c *Controller) SearchLines(ctx context.Context, query string) ([]LineView, error) {
	out, err := c.exec(ctx, "search_lines", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("search lines", receiving.StateManualEntry); err != nil {
			return Outcome{}, err
		}
		return Outcome{Lines: c.lineViews(receiving.SearchLines(c.detail, query))}, nil
	})
	if err != nil {
		return nil, err
	}
	if out.Lines == nil {
		return []LineView{}, nil
	}
	return out.Lines, nil
}

// SelectLine picks a line from manual search for quantity confirmation
func (c *Controller) SelectLine(ctx context.Context, lineID uuid.UUID) (Outcome, error) {
	return c.exec(ctx, "select_line", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("select a line", receiving.StateManualEntry); err != nil {
			return Outcome{}, err
		}
		line := c.detail.Line(lineID)
		if line == nil {
			return Outcome{}, shared.NewDomainError(receiving.CodeLineNotFound,
				fmt.Sprintf("Line %s is not part of order %s", lineID, c.detail.OrderNumber))
		}
		return c.beginConfirmation(ctx, line, receiving.SourceManual, "")
	})
}

// CloseManualEntry returns from manual search to scanning
func (c *Controller) CloseManualEntry(ctx context.Context) (Outcome, error) {
	return c.exec(ctx, "close_manual_entry", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("close manual entry", receiving.StateManualEntry); err != nil {
			return Outcome{}, err
		}
		c.moveTo(ctx, receiving.StateScanning)
		return Outcome{}, nil
	})
}

// OpenSummary shows the queue for review. An empty queue may be reviewed.
func (c *Controller) OpenSummary(ctx context.Context) (Outcome, error) {
	return c.exec(ctx, "open_summary", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("open the summary", receiving.StateScanning); err != nil {
			return Outcome{}, err
		}
		c.moveTo(ctx, receiving.StateSummarizing)
		snapshot := c.queue.Snapshot()
		return Outcome{Queue: &snapshot}, nil
	})
}

// CloseSummary returns from the summary to scanning
func (c *Controller) CloseSummary(ctx context.Context) (Outcome, error) {
	return c.exec(ctx, "close_summary", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("close the summary", receiving.StateSummarizing); err != nil {
			return Outcome{}, err
		}
		c.moveTo(ctx, receiving.StateScanning)
		return Outcome{}, nil
	})
}

// RemoveEntry deletes a line from the queue while reviewing the summary.
// Removing a line that is not queued changes nothing.
func (c *Controller) RemoveEntry(ctx context.Context, lineID uuid.UUID) (Outcome, error) {
	return c.exec(ctx, "remove_entry", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("remove an entry", receiving.StateSummarizing); err != nil {
			return Outcome{}, err
		}
		if c.queue.Remove(lineID) {
			c.submission = uuid.New()
			c.publish(ctx, receiving.NewItemRemovedEvent(c.ref(), c.detail.ID, lineID))
		}
		snapshot := c.queue.Snapshot()
		return Outcome{Queue: &snapshot}, nil
	})
}

// Finalize submits the queue to the gateway. On success the queue is
// cleared and the session returns to order selection; on failure the queue
// is left exactly as it was and the session stays in the summary.
func (c *Controller) Finalize(ctx context.Context, opts FinalizeOptions) (Outcome, error) {
	return c.exec(ctx, "finalize", func(ctx context.Context) (Outcome, error) {
		if err := c.expect("finalize", receiving.StateSummarizing); err != nil {
			return Outcome{}, err
		}
		if c.queue.IsEmpty() {
			return Outcome{}, shared.NewDomainError(receiving.CodeEmptyQueue, "Nothing has been queued for receipt")
		}
		snapshot := c.queue.Snapshot()
		req, err := c.buildFinalizeRequest(snapshot, opts)
		if err != nil {
			return Outcome{}, err
		}

		c.moveTo(ctx, receiving.StateFinalizing)
		c.refreshView()

		result, attempt, err := c.submit(ctx, req, snapshot)
		warnings := c.recordAttempt(ctx, attempt)

		if err != nil {
			c.lastError = NewErrorView(err)
			c.moveTo(ctx, receiving.StateSummarizing)
			c.publish(ctx, receiving.NewFinalizationFailedEvent(c.ref(), req.OrderID, snapshot.ItemCount, err))
			return Outcome{Queue: &snapshot, Warnings: warnings}, err
		}

		detail := c.detail
		c.queue.Clear()
		c.moveTo(ctx, receiving.StateDone)
		c.publish(ctx, receiving.NewReceiptFinalizedEvent(c.ref(), detail, snapshot, req.ReceivingDate, result.ReceiptNumber, result.FullyReceived))
		c.log(ctx).Info("receipt finalized",
			zap.String("order_number", detail.OrderNumber),
			zap.String("receipt_number", result.ReceiptNumber),
			zap.Int("items", snapshot.ItemCount),
			zap.String("total_value", snapshot.TotalValue.String()),
		)

		c.lastError = nil
		c.lastReceipt = result
		c.detail = nil
		c.pending = nil
		c.submission = uuid.New()
		c.moveTo(ctx, receiving.StateSelectingOrder)

		return Outcome{State: receiving.StateDone, Queue: &snapshot, Receipt: result, Acknowledged: true, Warnings: warnings}, nil
	})
}

func (c *Controller) buildFinalizeRequest(snapshot receiving.QueueSnapshot, opts FinalizeOptions) (FinalizeRequest, error) {
	receivingDate := startOfDay(c.now())
	if opts.ReceivingDate != nil {
		receivingDate = *opts.ReceivingDate
	}

	items := make([]FinalizeItem, 0, len(snapshot.Entries))
	for _, e := range snapshot.Entries {
		if !e.Quantity.IsPositive() {
			return FinalizeRequest{}, shared.NewDomainError(receiving.CodeInvalidQuantity,
				fmt.Sprintf("Queued quantity for %s is not positive", e.SKU))
		}
		items = append(items, FinalizeItem{
			OrderLineID:      e.OrderLineID,
			QuantityReceived: e.Quantity,
			Notes:            opts.LineNotes[e.OrderLineID],
		})
	}

	return FinalizeRequest{
		OrderID:        snapshot.OrderID,
		ReceivingDate:  receivingDate,
		Notes:          opts.Notes,
		Items:          items,
		IdempotencyKey: c.submission,
	}, nil
}

func (c *Controller) submit(ctx context.Context, req FinalizeRequest, snapshot receiving.QueueSnapshot) (*FinalizeResult, *receiving.ReceiptAttempt, error) {
	ctx, span := telemetry.StartSpan(ctx, "receiving.finalize",
		telemetry.WithAttribute("order_id", req.OrderID.String()),
		telemetry.WithAttribute("items", len(req.Items)),
	)
	defer span.End()

	attempt := &receiving.ReceiptAttempt{
		ID:             uuid.New(),
		TenantID:       c.tenantID,
		DeviceID:       c.deviceID,
		SessionID:      c.sessionID,
		OrderID:        req.OrderID,
		OrderNumber:    c.detail.OrderNumber,
		ReceivingDate:  req.ReceivingDate,
		ItemCount:      snapshot.ItemCount,
		TotalQuantity:  snapshot.TotalQuantity,
		TotalValue:     snapshot.TotalValue,
		IdempotencyKey: req.IdempotencyKey,
		AttemptedAt:    c.now(),
	}

	start := time.Now()
	result, err := c.gateway.Finalize(ctx, c.tenantID, req)
	elapsed := time.Since(start)

	if err != nil {
		err = asTransportError("Finalization failed", err)
		telemetry.RecordError(span, err)
		c.metrics.RecordFinalize(ctx, c.tenantID, telemetry.FinalizeFailed, elapsed, snapshot.TotalValue)
		attempt.Outcome = receiving.AttemptFailed
		attempt.ErrorCode = shared.ErrorCode(err)
		attempt.ErrorMessage = err.Error()
		return nil, attempt, err
	}
	if result == nil {
		result = &FinalizeResult{}
	}

	telemetry.SetOK(span)
	telemetry.SetAttributes(span, "receipt_number", result.ReceiptNumber)
	c.metrics.RecordFinalize(ctx, c.tenantID, telemetry.FinalizeSucceeded, elapsed, snapshot.TotalValue)
	attempt.Outcome = receiving.AttemptSucceeded
	attempt.ReceiptNumber = result.ReceiptNumber
	return result, attempt, nil
}

func (c *Controller) recordAttempt(ctx context.Context, attempt *receiving.ReceiptAttempt) []receiving.Warning {
	if c.journal == nil || attempt == nil {
		return nil
	}
	if err := c.journal.Record(ctx, attempt); err != nil {
		c.log(ctx).Error("failed to record finalization attempt",
			zap.String("attempt_id", attempt.ID.String()),
			zap.Error(err),
		)
		return []receiving.Warning{{
			Code:    receiving.WarningJournalWriteFailed,
			Message: "The finalization attempt could not be written to the receipt journal",
		}}
	}
	return nil
}

// Cancel abandons the session: the queue is discarded and the session
// returns to order selection
func (c *Controller) Cancel(ctx context.Context) (Outcome, error) {
	return c.exec(ctx, "cancel", func(ctx context.Context) (Outcome, error) {
		if !c.state.CanCancel() {
			return Outcome{}, c.invalidState("cancel")
		}
		discarded := c.queue.ItemCount()
		orderID := c.detail.ID
		c.queue.Clear()
		c.detail = nil
		c.pending = nil
		c.lastError = nil
		c.moveTo(ctx, receiving.StateSelectingOrder)
		c.publish(ctx, receiving.NewSessionCancelledEvent(c.ref(), orderID, discarded))
		c.log(ctx).Info("receiving session cancelled",
			zap.String("order_id", orderID.String()),
			zap.Int("discarded_items", discarded),
		)
		return Outcome{}, nil
	})
}

// View returns the session as of the last completed command
func (c *Controller) View() SessionView {
	c.viewMu.RLock()
	defer c.viewMu.RUnlock()
	return c.view
}

// State returns the current session state
func (c *Controller) State() receiving.SessionState {
	return c.View().State
}

// Subscribe registers a listener for queue snapshots. The returned function unsubscribes.
func (c *Controller) Subscribe(listener receiving.QueueListener) func() {
	return c.queue.Subscribe(listener)
}

// FeedScans submits every code received on codes to Scan, in arrival order,
// until codes is closed, ctx is done or the session closes. onResult may be nil.
func (c *Controller) FeedScans(ctx context.Context, codes <-chan string, onResult func(code string, out Outcome, err error)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case code, ok := <-codes:
			if !ok {
				return nil
			}
			out, err := c.Scan(ctx, code)
			if onResult != nil {
				onResult(code, out, err)
			}
			if shared.ErrorCode(err) == receiving.CodeSessionClosed {
				return err
			}
		}
	}
}

func (c *Controller) expect(action string, allowed receiving.SessionState) error {
	if c.state != allowed {
		return c.invalidState(action)
	}
	return nil
}

func (c *Controller) invalidState(action string) error {
	return shared.NewDomainError(receiving.CodeInvalidState,
		fmt.Sprintf("Cannot %s while %s", action, c.state))
}

func (c *Controller) moveTo(ctx context.Context, to receiving.SessionState) {
	from := c.state
	if !from.CanTransitionTo(to) {
		c.log(ctx).Error("unexpected session transition",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	c.state = to
	c.publish(ctx, receiving.NewStateChangedEvent(c.ref(), from, to))
}

func (c *Controller) reject(ctx context.Context, op string, err error) {
	code := shared.ErrorCode(err)
	if code == "" {
		code = "UNKNOWN"
	}
	c.metrics.RecordRejection(ctx, c.tenantID, op, code)

	fields := []zap.Field{
		zap.String("operation", op),
		zap.String("code", code),
		zap.String("state", c.state.String()),
		zap.Error(err),
	}
	if receiving.KindOf(err).IsLocal() {
		c.log(ctx).Warn("receiving operation rejected", fields...)
		return
	}
	c.log(ctx).Error("receiving operation failed", fields...)
}

func (c *Controller) publish(ctx context.Context, events ...shared.DomainEvent) {
	if err := c.publisher.Publish(ctx, events...); err != nil {
		c.log(ctx).Error("failed to publish session events", zap.Error(err))
	}
}

func (c *Controller) ref() receiving.SessionRef {
	return receiving.SessionRef{SessionID: c.sessionID, TenantID: c.tenantID, DeviceID: c.deviceID}
}

func (c *Controller) log(ctx context.Context) *logger.ContextLogger {
	return logger.WithLogger(ctx, c.logger)
}

func (c *Controller) lineView(line *receiving.OrderLine) LineView {
	return ToLineView(line, c.queue.QuantityFor(line.ID))
}

func (c *Controller) lineViews(lines []receiving.OrderLine) []LineView {
	views := make([]LineView, 0, len(lines))
	for i := range lines {
		views = append(views, c.lineView(&lines[i]))
	}
	return views
}

func (c *Controller) refreshView() {
	view := SessionView{
		SessionID:   c.sessionID,
		TenantID:    c.tenantID,
		DeviceID:    c.deviceID,
		State:       c.state,
		AutoConfirm: c.autoConfirm,
		Queue:       c.queue.Snapshot(),
		LastError:   c.lastError,
		LastReceipt: c.lastReceipt,
		UpdatedAt:   c.now(),
	}
	if c.detail != nil {
		view.Order = &OrderHeader{
			ID:           c.detail.ID,
			OrderNumber:  c.detail.OrderNumber,
			SupplierName: c.detail.SupplierName,
			LocationName: c.detail.LocationName,
		}
		view.Lines = c.lineViews(c.detail.Lines)
	}
	if c.pending != nil {
		view.Pending = &PendingConfirmation{
			Line:             c.lineView(c.pending.line),
			ProposedQuantity: c.pending.proposed,
			Source:           c.pending.source,
		}
	}

	c.viewMu.Lock()
	c.view = view
	c.viewMu.Unlock()
}

// asTransportError keeps domain errors as they are and wraps anything else
// as a transport failure
func asTransportError(message string, err error) error {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return receiving.NewTransportError(fmt.Sprintf("%s: %v", message, err), err)
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
