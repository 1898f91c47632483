package receiving

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)

type controllerFixture struct {
	tenantID  uuid.UUID
	detail    *receiving.OrderDetail
	catalog   *MockOrderCatalog
	gateway   *MockFinalizationGateway
	publisher *recordingPublisher
	ctrl      *Controller
}

func newFixture(t *testing.T, detail *receiving.OrderDetail, opts ...Option) *controllerFixture {
	t.Helper()
	f := &controllerFixture{
		tenantID:  uuid.New(),
		detail:    detail,
		catalog:   new(MockOrderCatalog),
		gateway:   new(MockFinalizationGateway),
		publisher: &recordingPublisher{},
	}
	base := []Option{
		WithEventPublisher(f.publisher),
		WithClock(func() time.Time { return fixedNow }),
	}
	f.ctrl = NewController(f.tenantID, "scanner-01", f.catalog, f.gateway, append(base, opts...)...)
	t.Cleanup(f.ctrl.Close)
	return f
}

// startScanning selects the fixture order and asserts the session is scanning
func (f *controllerFixture) startScanning(t *testing.T) Outcome {
	t.Helper()
	f.catalog.On("GetDetail", mock.Anything, f.tenantID, f.detail.ID).Return(f.detail, nil).Once()
	out, err := f.ctrl.SelectOrder(context.Background(), f.detail.ID)
	require.NoError(t, err)
	require.Equal(t, receiving.StateScanning, out.State)
	return out
}

func (f *controllerFixture) scanAndConfirm(t *testing.T, barcode string, qty int64) Outcome {
	t.Helper()
	ctx := context.Background()
	out, err := f.ctrl.Scan(ctx, barcode)
	require.NoError(t, err)
	require.Equal(t, receiving.StateConfirmingQuantity, out.State)
	out, err = f.ctrl.ConfirmQuantity(ctx, dec(qty))
	require.NoError(t, err)
	require.Equal(t, receiving.StateScanning, out.State)
	return out
}

func TestController_InitialState(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Widget", "W-1", "111", 5, 0, 2)))

	view := f.ctrl.View()
	assert.Equal(t, receiving.StateSelectingOrder, view.State)
	assert.Equal(t, f.tenantID, view.TenantID)
	assert.Equal(t, "scanner-01", view.DeviceID)
	assert.Nil(t, view.Order)
	assert.Equal(t, 0, view.Queue.ItemCount)
}

func TestController_ScanConfirmAccumulatesOnOneLine(t *testing.T) {
	line := newLine("Product One", "PROD-001", "7891234567890", 20, 5, 10)
	f := newFixture(t, newDetail(line))
	f.startScanning(t)
	ctx := context.Background()

	out, err := f.ctrl.Scan(ctx, "7891234567890")
	require.NoError(t, err)
	require.NotNil(t, out.ProposedQuantity)
	assert.True(t, out.ProposedQuantity.Equal(dec(1)))
	require.NotNil(t, out.Line)
	assert.True(t, out.Line.QuantityPending.Equal(dec(15)))
	_, err = f.ctrl.ConfirmQuantity(ctx, dec(2))
	require.NoError(t, err)

	f.scanAndConfirm(t, "7891234567890", 3)
	out = f.scanAndConfirm(t, "7891234567890", 1)
	assert.True(t, out.Acknowledged)
	assert.False(t, out.HasWarning(receiving.WarningOverReceipt))

	view := f.ctrl.View()
	require.Len(t, view.Queue.Entries, 1)
	assert.Equal(t, 1, view.Queue.ItemCount)
	assert.True(t, view.Queue.Entries[0].Quantity.Equal(dec(6)))
	assert.True(t, view.Queue.TotalValue.Equal(dec(60)))

	// Each confirmation is bounded by the pending quantity at load time, not by what is queued.
	out = f.scanAndConfirm(t, "7891234567890", 10)
	require.NotNil(t, out.Entry)
	assert.True(t, out.Entry.Quantity.Equal(dec(16)))
	assert.True(t, out.HasWarning(receiving.WarningOverReceipt))

	queued := f.publisher.ofType(receiving.EventTypeItemQueued)
	require.Len(t, queued, 4)
	last := queued[3].(*receiving.ItemQueuedEvent)
	assert.True(t, last.OverReceipt)
	assert.Equal(t, receiving.SourceScan, last.Source)
}

func TestController_ScanRejections(t *testing.T) {
	done := newLine("Done Item", "DONE-1", "222", 4, 4, 3)
	open := newLine("Open Item", "OPEN-1", "333", 4, 0, 3)
	f := newFixture(t, newDetail(done, open))
	f.startScanning(t)
	ctx := context.Background()

	t.Run("fully received line never reaches confirmation", func(t *testing.T) {
		out, err := f.ctrl.Scan(ctx, "222")
		require.Error(t, err)
		assert.Equal(t, receiving.CodeAlreadyReceived, shared.ErrorCode(err))
		assert.Equal(t, receiving.KindAlreadyReceived, receiving.KindOf(err))
		assert.Equal(t, receiving.StateScanning, out.State)
	})

	t.Run("unknown barcode", func(t *testing.T) {
		out, err := f.ctrl.Scan(ctx, "999")
		require.Error(t, err)
		assert.Equal(t, receiving.CodeBarcodeNotFound, shared.ErrorCode(err))
		assert.Equal(t, receiving.KindNotFound, receiving.KindOf(err))
		assert.Equal(t, receiving.StateScanning, out.State)
	})

	t.Run("barcode match is exact", func(t *testing.T) {
		_, err := f.ctrl.Scan(ctx, " 333")
		assert.Equal(t, receiving.CodeBarcodeNotFound, shared.ErrorCode(err))
	})

	assert.Len(t, f.publisher.ofType(receiving.EventTypeScanRejected), 3)
	assert.Equal(t, 0, f.ctrl.View().Queue.ItemCount)
}

func TestController_ConfirmQuantityBounds(t *testing.T) {
	line := newLine("Bolt", "B-10", "444", 20, 5, 1)
	f := newFixture(t, newDetail(line))
	f.startScanning(t)
	ctx := context.Background()

	_, err := f.ctrl.Scan(ctx, "444")
	require.NoError(t, err)

	for _, qty := range []int64{0, -1, 16} {
		out, err := f.ctrl.ConfirmQuantity(ctx, dec(qty))
		require.Error(t, err, "quantity %d", qty)
		assert.Equal(t, receiving.CodeInvalidQuantity, shared.ErrorCode(err))
		assert.Equal(t, receiving.StateConfirmingQuantity, out.State)
		assert.Equal(t, 0, f.ctrl.View().Queue.ItemCount)
	}

	out, err := f.ctrl.ConfirmQuantity(ctx, dec(15))
	require.NoError(t, err)
	assert.Equal(t, receiving.StateScanning, out.State)
	assert.True(t, f.ctrl.View().Queue.TotalQuantity.Equal(dec(15)))
}

func TestController_CancelConfirmation(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Nut", "N-1", "555", 3, 0, 1)))
	f.startScanning(t)
	ctx := context.Background()

	_, err := f.ctrl.Scan(ctx, "555")
	require.NoError(t, err)
	assert.NotNil(t, f.ctrl.View().Pending)

	out, err := f.ctrl.CancelConfirmation(ctx)
	require.NoError(t, err)
	assert.Equal(t, receiving.StateScanning, out.State)
	assert.Nil(t, f.ctrl.View().Pending)
	assert.Equal(t, 0, f.ctrl.View().Queue.ItemCount)
}

func TestController_InvalidState(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Nut", "N-1", "555", 3, 0, 1)))
	ctx := context.Background()

	_, err := f.ctrl.Scan(ctx, "555")
	assert.Equal(t, receiving.CodeInvalidState, shared.ErrorCode(err))

	_, err = f.ctrl.ConfirmQuantity(ctx, dec(1))
	assert.Equal(t, receiving.CodeInvalidState, shared.ErrorCode(err))

	_, err = f.ctrl.Finalize(ctx, FinalizeOptions{})
	assert.Equal(t, receiving.CodeInvalidState, shared.ErrorCode(err))

	_, err = f.ctrl.Cancel(ctx)
	assert.Equal(t, receiving.CodeInvalidState, shared.ErrorCode(err))

	assert.Equal(t, receiving.StateSelectingOrder, f.ctrl.State())
}

func TestController_SelectOrderFailure(t *testing.T) {
	detail := newDetail(newLine("Nut", "N-1", "555", 3, 0, 1))
	f := newFixture(t, detail)
	ctx := context.Background()

	f.catalog.On("GetDetail", mock.Anything, f.tenantID, detail.ID).
		Return(nil, errors.New("connection refused")).Once()

	out, err := f.ctrl.SelectOrder(ctx, detail.ID)
	require.Error(t, err)
	assert.Equal(t, receiving.CodeTransportFailure, shared.ErrorCode(err))
	assert.Equal(t, receiving.StateError, out.State)

	view := f.ctrl.View()
	require.NotNil(t, view.LastError)
	assert.Equal(t, receiving.KindTransportFailure, view.LastError.Kind)

	t.Run("retry from error", func(t *testing.T) {
		f.startScanning(t)
		assert.Nil(t, f.ctrl.View().LastError)
		_, err := f.ctrl.Cancel(ctx)
		require.NoError(t, err)
	})

	t.Run("acknowledge returns to selection", func(t *testing.T) {
		f.catalog.On("GetDetail", mock.Anything, f.tenantID, detail.ID).
			Return(nil, receiving.NewOrderNotFoundError("gone", nil)).Once()
		_, err := f.ctrl.SelectOrder(ctx, detail.ID)
		assert.Equal(t, receiving.CodeOrderNotFound, shared.ErrorCode(err))
		assert.Equal(t, receiving.StateError, f.ctrl.State())

		out, err := f.ctrl.AcknowledgeError(ctx)
		require.NoError(t, err)
		assert.Equal(t, receiving.StateSelectingOrder, out.State)
		assert.Nil(t, f.ctrl.View().LastError)
	})
}

func TestController_SelectOrderRejectsMalformedDetail(t *testing.T) {
	detail := newDetail(newLine("Nut", "N-1", "555", 3, 0, 1))
	detail.Lines[0].ID = uuid.Nil
	f := newFixture(t, detail)

	f.catalog.On("GetDetail", mock.Anything, f.tenantID, detail.ID).Return(detail, nil).Once()

	_, err := f.ctrl.SelectOrder(context.Background(), detail.ID)
	assert.Equal(t, receiving.CodeInvalidOrder, shared.ErrorCode(err))
	assert.Equal(t, receiving.StateError, f.ctrl.State())
}

func TestController_DuplicateBarcodeWarning(t *testing.T) {
	first := newLine("Red Cup", "CUP-R", "777", 5, 0, 1)
	second := newLine("Red Cup Bulk", "CUP-RB", "777", 5, 0, 1)
	f := newFixture(t, newDetail(first, second))

	out := f.startScanning(t)
	assert.True(t, out.HasWarning(receiving.WarningDuplicateBarcode))
	assert.Len(t, out.Lines, 2)

	scan, err := f.ctrl.Scan(context.Background(), "777")
	require.NoError(t, err)
	assert.Equal(t, first.ID, scan.Line.ID)
}

func TestController_AutoConfirm(t *testing.T) {
	line := newLine("Tape", "T-1", "888", 10, 0, 4)
	manual := newLine("Loose Tape", "T-2", "", 10, 0, 4)
	f := newFixture(t, newDetail(line, manual), WithAutoConfirm(true))
	f.startScanning(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := f.ctrl.Scan(ctx, "888")
		require.NoError(t, err)
		assert.True(t, out.Acknowledged)
		assert.Equal(t, receiving.StateScanning, out.State)
	}
	assert.True(t, f.ctrl.View().Queue.TotalQuantity.Equal(dec(3)))
	assert.True(t, f.ctrl.View().AutoConfirm)

	// manual selection always asks for a quantity
	_, err := f.ctrl.OpenManualEntry(ctx)
	require.NoError(t, err)
	out, err := f.ctrl.SelectLine(ctx, manual.ID)
	require.NoError(t, err)
	assert.Equal(t, receiving.StateConfirmingQuantity, out.State)
}

func TestController_ManualEntry(t *testing.T) {
	scanned := newLine("Hex Bolt", "HB-8", "100", 10, 0, 2)
	loose := newLine("Washer Pack", "WP-1", "", 6, 1, 3)
	f := newFixture(t, newDetail(scanned, loose))
	f.startScanning(t)
	ctx := context.Background()

	out, err := f.ctrl.OpenManualEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, receiving.StateManualEntry, out.State)
	assert.Len(t, out.Lines, 2)

	lines, err := f.ctrl.SearchLines(ctx, "washer")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, loose.ID, lines[0].ID)

	lines, err = f.ctrl.SearchLines(ctx, "nothing-like-this")
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = f.ctrl.SelectLine(ctx, uuid.New())
	assert.Equal(t, receiving.CodeLineNotFound, shared.ErrorCode(err))
	assert.Equal(t, receiving.StateManualEntry, f.ctrl.State())

	out, err = f.ctrl.SelectLine(ctx, loose.ID)
	require.NoError(t, err)
	assert.Equal(t, receiving.StateConfirmingQuantity, out.State)
	assert.True(t, out.ProposedQuantity.Equal(dec(1)))

	out, err = f.ctrl.ConfirmQuantity(ctx, dec(5))
	require.NoError(t, err)
	assert.Equal(t, receiving.StateScanning, out.State)

	queued := f.publisher.ofType(receiving.EventTypeItemQueued)
	require.Len(t, queued, 1)
	assert.Equal(t, receiving.SourceManual, queued[0].(*receiving.ItemQueuedEvent).Source)

	_, err = f.ctrl.OpenManualEntry(ctx)
	require.NoError(t, err)
	out, err = f.ctrl.CloseManualEntry(ctx)
	require.NoError(t, err)
	assert.Equal(t, receiving.StateScanning, out.State)

	_, err = f.ctrl.SearchLines(ctx, "bolt")
	assert.Equal(t, receiving.CodeInvalidState, shared.ErrorCode(err))
}

func TestController_SummaryAndRemove(t *testing.T) {
	a := newLine("Alpha", "A-1", "A", 5, 0, 2)
	b := newLine("Beta", "B-1", "B", 5, 0, 3)
	f := newFixture(t, newDetail(a, b))
	f.startScanning(t)
	ctx := context.Background()

	f.scanAndConfirm(t, "A", 2)
	f.scanAndConfirm(t, "B", 1)

	out, err := f.ctrl.OpenSummary(ctx)
	require.NoError(t, err)
	require.NotNil(t, out.Queue)
	assert.Equal(t, 2, out.Queue.ItemCount)
	assert.True(t, out.Queue.TotalValue.Equal(dec(7)))

	out, err = f.ctrl.RemoveEntry(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Queue.ItemCount)
	assert.True(t, out.Queue.TotalValue.Equal(dec(3)))

	out, err = f.ctrl.RemoveEntry(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Queue.ItemCount)
	assert.Len(t, f.publisher.ofType(receiving.EventTypeItemRemoved), 1)

	out, err = f.ctrl.CloseSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, receiving.StateScanning, out.State)
}

func TestController_FinalizeEmptyQueue(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	f.startScanning(t)
	ctx := context.Background()

	out, err := f.ctrl.OpenSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, out.Queue.ItemCount)

	out, err = f.ctrl.Finalize(ctx, FinalizeOptions{})
	require.Error(t, err)
	assert.Equal(t, receiving.CodeEmptyQueue, shared.ErrorCode(err))
	assert.Equal(t, receiving.StateSummarizing, out.State)
	f.gateway.AssertNotCalled(t, "Finalize", mock.Anything, mock.Anything, mock.Anything)
}

func TestController_FinalizeSuccess(t *testing.T) {
	a := newLine("Alpha", "A-1", "A", 5, 0, 2)
	b := newLine("Beta", "B-1", "B", 5, 2, 3)
	journal := new(MockReceiptJournal)
	f := newFixture(t, newDetail(a, b), WithJournal(journal))
	f.startScanning(t)
	ctx := context.Background()

	f.scanAndConfirm(t, "A", 2)
	f.scanAndConfirm(t, "B", 3)
	_, err := f.ctrl.OpenSummary(ctx)
	require.NoError(t, err)

	var sent FinalizeRequest
	f.gateway.On("Finalize", mock.Anything, f.tenantID, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(2).(FinalizeRequest) }).
		Return(&FinalizeResult{ReceiptNumber: "GR-0001", OrderStatus: "COMPLETED", FullyReceived: false}, nil).Once()
	journal.On("Record", mock.Anything, mock.MatchedBy(func(attempt *receiving.ReceiptAttempt) bool {
		return attempt.Outcome == receiving.AttemptSucceeded && attempt.ReceiptNumber == "GR-0001" && attempt.ItemCount == 2
	})).Return(nil).Once()

	lineNotes := map[uuid.UUID]string{b.ID: "box dented"}
	out, err := f.ctrl.Finalize(ctx, FinalizeOptions{Notes: "dock 3", LineNotes: lineNotes})
	require.NoError(t, err)

	assert.Equal(t, receiving.StateDone, out.State)
	require.NotNil(t, out.Receipt)
	assert.Equal(t, "GR-0001", out.Receipt.ReceiptNumber)
	assert.Equal(t, 2, out.Queue.ItemCount)
	assert.Empty(t, out.Warnings)

	assert.Equal(t, f.detail.ID, sent.OrderID)
	assert.Equal(t, time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC), sent.ReceivingDate)
	assert.Equal(t, "dock 3", sent.Notes)
	require.Len(t, sent.Items, 2)
	assert.Equal(t, a.ID, sent.Items[0].OrderLineID)
	assert.True(t, sent.Items[0].QuantityReceived.Equal(dec(2)))
	assert.Equal(t, "box dented", sent.Items[1].Notes)
	assert.NotEqual(t, uuid.Nil, sent.IdempotencyKey)

	view := f.ctrl.View()
	assert.Equal(t, receiving.StateSelectingOrder, view.State)
	assert.Equal(t, 0, view.Queue.ItemCount)
	assert.Nil(t, view.Order)
	require.NotNil(t, view.LastReceipt)
	assert.Equal(t, "GR-0001", view.LastReceipt.ReceiptNumber)

	finalized := f.publisher.ofType(receiving.EventTypeReceiptFinalized)
	require.Len(t, finalized, 1)
	event := finalized[0].(*receiving.ReceiptFinalizedEvent)
	assert.Equal(t, "GR-0001", event.ReceiptNumber)
	assert.True(t, event.TotalValue.Equal(dec(13)))

	journal.AssertExpectations(t)
	f.gateway.AssertExpectations(t)
}

func TestController_FinalizeFailureKeepsQueue(t *testing.T) {
	a := newLine("Alpha", "A-1", "A", 5, 0, 2)
	b := newLine("Beta", "B-1", "B", 5, 0, 3)
	journal := new(MockReceiptJournal)
	f := newFixture(t, newDetail(a, b), WithJournal(journal))
	f.startScanning(t)
	ctx := context.Background()

	f.scanAndConfirm(t, "A", 2)
	f.scanAndConfirm(t, "B", 1)
	_, err := f.ctrl.OpenSummary(ctx)
	require.NoError(t, err)
	before := f.ctrl.View().Queue

	var keys []uuid.UUID
	capture := func(args mock.Arguments) {
		keys = append(keys, args.Get(2).(FinalizeRequest).IdempotencyKey)
	}
	f.gateway.On("Finalize", mock.Anything, f.tenantID, mock.Anything).
		Run(capture).Return(nil, errors.New("upstream timeout")).Once()
	journal.On("Record", mock.Anything, mock.MatchedBy(func(attempt *receiving.ReceiptAttempt) bool {
		return attempt.Outcome == receiving.AttemptFailed && attempt.ErrorCode == receiving.CodeTransportFailure
	})).Return(nil).Once()

	out, err := f.ctrl.Finalize(ctx, FinalizeOptions{})
	require.Error(t, err)
	assert.Equal(t, receiving.CodeTransportFailure, shared.ErrorCode(err))
	assert.Equal(t, receiving.StateSummarizing, out.State)

	after := f.ctrl.View()
	assert.Equal(t, before.Entries, after.Queue.Entries)
	assert.True(t, before.TotalValue.Equal(after.Queue.TotalValue))
	require.NotNil(t, after.LastError)
	assert.Len(t, f.publisher.ofType(receiving.EventTypeFinalizationFailed), 1)

	// a retry of the unchanged queue carries the same key
	f.gateway.On("Finalize", mock.Anything, f.tenantID, mock.Anything).
		Run(capture).Return(&FinalizeResult{ReceiptNumber: "GR-0002"}, nil).Once()
	journal.On("Record", mock.Anything, mock.MatchedBy(func(attempt *receiving.ReceiptAttempt) bool {
		return attempt.Outcome == receiving.AttemptSucceeded
	})).Return(errors.New("disk full")).Once()

	out, err = f.ctrl.Finalize(ctx, FinalizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, receiving.StateDone, out.State)
	assert.True(t, out.HasWarning(receiving.WarningJournalWriteFailed))

	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1])
	journal.AssertExpectations(t)
}

func TestController_FinalizeKeyDiffersBetweenReceipts(t *testing.T) {
	detail := newDetail(newLine("Alpha", "A-1", "A", 20, 0, 2))
	ctx := context.Background()

	var keys []uuid.UUID
	capture := func(args mock.Arguments) {
		keys = append(keys, args.Get(2).(FinalizeRequest).IdempotencyKey)
	}
	receive := func(f *controllerFixture) {
		f.startScanning(t)
		f.scanAndConfirm(t, "A", 5)
		_, err := f.ctrl.OpenSummary(ctx)
		require.NoError(t, err)
		_, err = f.ctrl.Finalize(ctx, FinalizeOptions{})
		require.NoError(t, err)
	}

	// the same delivery received twice on one device
	f := newFixture(t, detail)
	f.gateway.On("Finalize", mock.Anything, f.tenantID, mock.Anything).
		Run(capture).Return(&FinalizeResult{ReceiptNumber: "GR-0010"}, nil).Twice()
	receive(f)
	receive(f)

	// and once more from another device
	other := newFixture(t, detail)
	other.gateway.On("Finalize", mock.Anything, other.tenantID, mock.Anything).
		Run(capture).Return(&FinalizeResult{ReceiptNumber: "GR-0011"}, nil).Once()
	receive(other)

	require.Len(t, keys, 3)
	assert.NotEqual(t, keys[0], keys[1])
	assert.NotEqual(t, keys[0], keys[2])
	assert.NotEqual(t, keys[1], keys[2])
}

func TestController_FinalizeKeyChangesWithQueue(t *testing.T) {
	a := newLine("Alpha", "A-1", "A", 5, 0, 2)
	b := newLine("Beta", "B-1", "B", 5, 0, 3)
	f := newFixture(t, newDetail(a, b))
	f.startScanning(t)
	ctx := context.Background()

	f.scanAndConfirm(t, "A", 2)
	_, err := f.ctrl.OpenSummary(ctx)
	require.NoError(t, err)

	var keys []uuid.UUID
	f.gateway.On("Finalize", mock.Anything, f.tenantID, mock.Anything).
		Run(func(args mock.Arguments) {
			keys = append(keys, args.Get(2).(FinalizeRequest).IdempotencyKey)
		}).Return(nil, errors.New("upstream timeout")).Times(3)

	_, err = f.ctrl.Finalize(ctx, FinalizeOptions{})
	require.Error(t, err)

	// leaving and reopening the summary without changes keeps the key
	_, err = f.ctrl.CloseSummary(ctx)
	require.NoError(t, err)
	_, err = f.ctrl.OpenSummary(ctx)
	require.NoError(t, err)
	_, err = f.ctrl.Finalize(ctx, FinalizeOptions{})
	require.Error(t, err)

	// queuing more turns it into a different receipt
	_, err = f.ctrl.CloseSummary(ctx)
	require.NoError(t, err)
	f.scanAndConfirm(t, "B", 1)
	_, err = f.ctrl.OpenSummary(ctx)
	require.NoError(t, err)
	_, err = f.ctrl.Finalize(ctx, FinalizeOptions{})
	require.Error(t, err)

	require.Len(t, keys, 3)
	assert.Equal(t, keys[0], keys[1])
	assert.NotEqual(t, keys[1], keys[2])
}

func TestController_FinalizeKeepsDomainErrors(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	f.startScanning(t)
	ctx := context.Background()

	f.scanAndConfirm(t, "A", 1)
	_, err := f.ctrl.OpenSummary(ctx)
	require.NoError(t, err)

	f.gateway.On("Finalize", mock.Anything, f.tenantID, mock.Anything).
		Return(nil, shared.NewDomainError(receiving.CodeAlreadyReceived, "order already completed")).Once()

	_, err = f.ctrl.Finalize(ctx, FinalizeOptions{})
	assert.Equal(t, receiving.CodeAlreadyReceived, shared.ErrorCode(err))
	assert.Equal(t, receiving.StateSummarizing, f.ctrl.State())
	assert.Equal(t, 1, f.ctrl.View().Queue.ItemCount)
}

func TestController_FinalizePanicReturnsToSummary(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	f.startScanning(t)
	ctx := context.Background()

	f.scanAndConfirm(t, "A", 2)
	_, err := f.ctrl.OpenSummary(ctx)
	require.NoError(t, err)
	before := f.ctrl.View().Queue

	f.gateway.On("Finalize", mock.Anything, f.tenantID, mock.Anything).
		Run(func(mock.Arguments) { panic("nil response body") }).Once()

	out, err := f.ctrl.Finalize(ctx, FinalizeOptions{})
	require.Error(t, err)
	assert.Equal(t, receiving.CodeTransportFailure, shared.ErrorCode(err))
	assert.Equal(t, receiving.StateSummarizing, out.State)

	view := f.ctrl.View()
	assert.Equal(t, receiving.StateSummarizing, view.State)
	assert.Equal(t, before.Entries, view.Queue.Entries)
	require.NotNil(t, view.LastError)

	f.gateway.On("Finalize", mock.Anything, f.tenantID, mock.Anything).
		Return(&FinalizeResult{ReceiptNumber: "GR-0003"}, nil).Once()
	out, err = f.ctrl.Finalize(ctx, FinalizeOptions{})
	require.NoError(t, err)
	assert.Equal(t, receiving.StateDone, out.State)
}

func TestController_SelectOrderPanicEndsInError(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	ctx := context.Background()

	f.catalog.On("GetDetail", mock.Anything, f.tenantID, f.detail.ID).
		Run(func(mock.Arguments) { panic("decoder crashed") }).Once()

	out, err := f.ctrl.SelectOrder(ctx, f.detail.ID)
	require.Error(t, err)
	assert.Equal(t, receiving.StateError, out.State)
	require.NotNil(t, f.ctrl.View().LastError)

	f.startScanning(t)
}

func TestController_Cancel(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	f.startScanning(t)
	ctx := context.Background()

	f.scanAndConfirm(t, "A", 2)

	out, err := f.ctrl.Cancel(ctx)
	require.NoError(t, err)
	assert.Equal(t, receiving.StateSelectingOrder, out.State)
	assert.Equal(t, 0, f.ctrl.View().Queue.ItemCount)
	assert.Nil(t, f.ctrl.View().Order)

	cancelled := f.publisher.ofType(receiving.EventTypeSessionCancelled)
	require.Len(t, cancelled, 1)
	assert.Equal(t, 1, cancelled[0].(*receiving.SessionCancelledEvent).DiscardedItems)
}

func TestController_StateChangeEvents(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	f.startScanning(t)

	changes := f.publisher.ofType(receiving.EventTypeStateChanged)
	require.Len(t, changes, 2)
	first := changes[0].(*receiving.StateChangedEvent)
	assert.Equal(t, receiving.StateSelectingOrder, first.From)
	assert.Equal(t, receiving.StateLoadingDetail, first.To)
	second := changes[1].(*receiving.StateChangedEvent)
	assert.Equal(t, receiving.StateScanning, second.To)
	assert.Equal(t, f.ctrl.SessionID(), second.AggregateID())
}

func TestController_Subscribe(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	f.startScanning(t)

	var mu sync.Mutex
	var snapshots []receiving.QueueSnapshot
	unsubscribe := f.ctrl.Subscribe(func(s receiving.QueueSnapshot) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
	})

	f.scanAndConfirm(t, "A", 1)
	unsubscribe()
	f.scanAndConfirm(t, "A", 1)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snapshots, 1)
	assert.True(t, snapshots[0].TotalQuantity.Equal(dec(1)))
}

func TestController_ListOrders(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	ctx := context.Background()

	orders := []receiving.OrderSummary{{ID: uuid.New(), OrderNumber: "PO-1"}}
	f.catalog.On("ListPending", mock.Anything, f.tenantID).Return(orders, nil).Once()
	got, err := f.ctrl.ListOrders(ctx)
	require.NoError(t, err)
	assert.Equal(t, orders, got)

	f.catalog.On("ListPending", mock.Anything, f.tenantID).Return(nil, errors.New("dial tcp: refused")).Once()
	_, err = f.ctrl.ListOrders(ctx)
	assert.Equal(t, receiving.CodeTransportFailure, shared.ErrorCode(err))
	assert.Equal(t, receiving.StateSelectingOrder, f.ctrl.State())
}

func TestController_Close(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	f.ctrl.Close()
	f.ctrl.Close()

	_, err := f.ctrl.Scan(context.Background(), "A")
	assert.Equal(t, receiving.CodeSessionClosed, shared.ErrorCode(err))

	select {
	case <-f.ctrl.Done():
	default:
		t.Fatal("controller not stopped")
	}
}

func TestController_CancelledContext(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 5, 0, 2)))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.ctrl.SelectOrder(ctx, f.detail.ID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, receiving.StateSelectingOrder, f.ctrl.State())
	f.catalog.AssertNotCalled(t, "GetDetail", mock.Anything, mock.Anything, mock.Anything)
}

func TestController_FeedScans(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 50, 0, 2)), WithAutoConfirm(true))
	f.startScanning(t)

	codes := make(chan string, 4)
	codes <- "A"
	codes <- "A"
	codes <- "missing"
	codes <- "A"
	close(codes)

	var accepted, rejected int
	err := f.ctrl.FeedScans(context.Background(), codes, func(code string, out Outcome, err error) {
		if err != nil {
			rejected++
			return
		}
		accepted++
	})
	require.NoError(t, err)
	assert.Equal(t, 3, accepted)
	assert.Equal(t, 1, rejected)
	assert.True(t, f.ctrl.View().Queue.TotalQuantity.Equal(dec(3)))
}

func TestController_FeedScansStopsOnContext(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 50, 0, 2)), WithAutoConfirm(true))
	f.startScanning(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := f.ctrl.FeedScans(ctx, make(chan string), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestController_ConcurrentScansAreSerialized(t *testing.T) {
	f := newFixture(t, newDetail(newLine("Alpha", "A-1", "A", 1000, 0, 2)), WithAutoConfirm(true))
	f.startScanning(t)

	const workers, perWorker = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, err := f.ctrl.Scan(context.Background(), "A")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	view := f.ctrl.View()
	assert.Equal(t, receiving.StateScanning, view.State)
	assert.True(t, view.Queue.TotalQuantity.Equal(dec(workers*perWorker)))
}
