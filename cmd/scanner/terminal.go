package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	appreceiving "github.com/erp/receiving/internal/application/receiving"
	"github.com/erp/receiving/internal/domain/receiving"
	"github.com/erp/receiving/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const terminalHelp = `Scan a barcode and press Enter, or type a command:
  :q <qty>    confirm the quantity for the pending line
  :x          cancel the pending confirmation
  :m <query>  search lines by name or SKU, then type a result number to pick it
  :s          show the queue summary
  :rm <n>     remove queue entry n (from the summary)
  :f [notes]  finalize the queue
  :c          cancel the session and discard the queue
  :b          back to scanning
  :h          show this help`

// terminal drives one controller from line-oriented input. Keyboard-wedge
// scanners type the decoded code followed by Enter, so a plain line is a scan.
type terminal struct {
	ctrl *appreceiving.Controller
	out  io.Writer

	// lines from the last manual search, numbered from 1
	results []appreceiving.LineView
	// queue entries from the last summary, numbered from 1
	entries []receiving.QueueEntry
}

func newTerminal(ctrl *appreceiving.Controller, out io.Writer) *terminal {
	return &terminal{ctrl: ctrl, out: out}
}

// run reads input until EOF, ctx is done, the session is cancelled or a
// receipt is finalized. It returns the finalized receipt, if any.
func (t *terminal) run(ctx context.Context, in io.Reader) (*appreceiving.FinalizeResult, error) {
	t.printHeader()
	t.prompt()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			done, receipt := t.handle(ctx, line)
			if done {
				return receipt, nil
			}
		}
		t.prompt()
	}
	return nil, scanner.Err()
}

// handle executes one input line and reports whether the session ended
func (t *terminal) handle(ctx context.Context, line string) (bool, *appreceiving.FinalizeResult) {
	if !strings.HasPrefix(line, ":") {
		if t.ctrl.State() == receiving.StateManualEntry {
			if n, err := strconv.Atoi(line); err == nil {
				t.selectResult(ctx, n)
				return false, nil
			}
		}
		out, err := t.ctrl.Scan(ctx, line)
		t.report(out, err)
		return false, nil
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "q":
		qty, err := decimal.NewFromString(arg)
		if err != nil {
			t.printf("! quantity must be a number: %q\n", arg)
			return false, nil
		}
		out, err := t.ctrl.ConfirmQuantity(ctx, qty)
		t.report(out, err)
	case "x":
		out, err := t.ctrl.CancelConfirmation(ctx)
		t.report(out, err)
	case "m":
		t.search(ctx, arg)
	case "s":
		t.summary(ctx)
	case "rm":
		t.remove(ctx, arg)
	case "f":
		return t.finalize(ctx, arg)
	case "c":
		if _, err := t.ctrl.Cancel(ctx); err != nil {
			t.report(appreceiving.Outcome{}, err)
			return false, nil
		}
		t.printf("Session cancelled, queue discarded\n")
		return true, nil
	case "b":
		t.back(ctx)
	case "h", "?":
		t.printf("%s\n", terminalHelp)
	default:
		t.printf("! unknown command :%s (type :h for help)\n", cmd)
	}
	return false, nil
}

func (t *terminal) search(ctx context.Context, query string) {
	if t.ctrl.State() != receiving.StateManualEntry {
		if _, err := t.ctrl.OpenManualEntry(ctx); err != nil {
			t.report(appreceiving.Outcome{}, err)
			return
		}
	}
	lines, err := t.ctrl.SearchLines(ctx, query)
	if err != nil {
		t.report(appreceiving.Outcome{}, err)
		return
	}
	t.results = lines
	if len(lines) == 0 {
		t.printf("No lines match %q\n", query)
		return
	}
	for i, l := range lines {
		t.printf("  %d. %s [%s] pending %s, queued %s\n", i+1, l.ProductName, l.SKU, l.QuantityPending, l.QuantityQueued)
	}
}

func (t *terminal) selectResult(ctx context.Context, n int) {
	if n < 1 || n > len(t.results) {
		t.printf("! no search result %d\n", n)
		return
	}
	out, err := t.ctrl.SelectLine(ctx, t.results[n-1].ID)
	t.report(out, err)
}

func (t *terminal) summary(ctx context.Context) {
	if t.ctrl.State() != receiving.StateSummarizing {
		if _, err := t.ctrl.OpenSummary(ctx); err != nil {
			t.report(appreceiving.Outcome{}, err)
			return
		}
	}
	t.printQueue(t.ctrl.View().Queue)
}

func (t *terminal) remove(ctx context.Context, arg string) {
	if t.ctrl.State() != receiving.StateSummarizing {
		t.printf("! open the summary (:s) before removing entries\n")
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(t.entries) {
		t.printf("! no queue entry %q\n", arg)
		return
	}
	out, err := t.ctrl.RemoveEntry(ctx, t.entries[n-1].OrderLineID)
	if err != nil {
		t.report(out, err)
		return
	}
	if out.Queue != nil {
		t.printQueue(*out.Queue)
	}
}

func (t *terminal) finalize(ctx context.Context, notes string) (bool, *appreceiving.FinalizeResult) {
	if t.ctrl.State() == receiving.StateScanning {
		if _, err := t.ctrl.OpenSummary(ctx); err != nil {
			t.report(appreceiving.Outcome{}, err)
			return false, nil
		}
	}
	out, err := t.ctrl.Finalize(ctx, appreceiving.FinalizeOptions{Notes: notes})
	if err != nil {
		t.report(out, err)
		if shared.ErrorCode(err) == receiving.CodeTransportFailure {
			t.printf("  The queue was kept. Type :f to retry or :b to keep scanning.\n")
		}
		return false, nil
	}
	t.printWarnings(out.Warnings)
	t.printf("Receipt %s recorded (%d items, total %s)\n",
		out.Receipt.ReceiptNumber, out.Queue.ItemCount, out.Queue.TotalValue.StringFixed(2))
	if out.Receipt.FullyReceived {
		t.printf("Order fully received\n")
	}
	return true, out.Receipt
}

// back returns to scanning from whichever sub-state the session is in
func (t *terminal) back(ctx context.Context) {
	var err error
	switch t.ctrl.State() {
	case receiving.StateConfirmingQuantity:
		_, err = t.ctrl.CancelConfirmation(ctx)
	case receiving.StateManualEntry:
		_, err = t.ctrl.CloseManualEntry(ctx)
	case receiving.StateSummarizing:
		_, err = t.ctrl.CloseSummary(ctx)
	case receiving.StateScanning:
	default:
		t.printf("! nothing to go back from while %s\n", t.ctrl.State())
		return
	}
	if err != nil {
		t.report(appreceiving.Outcome{}, err)
	}
}

func (t *terminal) report(out appreceiving.Outcome, err error) {
	if err != nil {
		t.printf("! %s: %s\n", errorCode(err), err.Error())
		t.printWarnings(out.Warnings)
		return
	}
	t.printWarnings(out.Warnings)

	switch {
	case out.Entry != nil:
		t.printf("+ %s [%s] queued %s (%d items in queue)\n", out.Entry.ProductName, out.Entry.SKU,
			out.Entry.Quantity, t.ctrl.View().Queue.ItemCount)
	case out.Line != nil && out.ProposedQuantity != nil:
		t.printf("? %s [%s] pending %s. Quantity? (:q %s)\n", out.Line.ProductName, out.Line.SKU,
			out.Line.QuantityPending, out.ProposedQuantity)
	}
}

func (t *terminal) printHeader() {
	view := t.ctrl.View()
	if view.Order != nil {
		t.printf("Receiving %s from %s at %s, %d lines\n",
			view.Order.OrderNumber, view.Order.SupplierName, view.Order.LocationName, len(view.Lines))
	}
	t.printf("%s\n", terminalHelp)
}

func (t *terminal) printQueue(q receiving.QueueSnapshot) {
	t.entries = q.Entries
	if len(q.Entries) == 0 {
		t.printf("Queue is empty\n")
		return
	}
	for i, e := range q.Entries {
		t.printf("  %d. %s [%s] x%s @ %s = %s\n", i+1, e.ProductName, e.SKU,
			e.Quantity, e.UnitCost.StringFixed(2), e.Value().StringFixed(2))
	}
	t.printf("  %d items, quantity %s, total %s\n", q.ItemCount, q.TotalQuantity, q.TotalValue.StringFixed(2))
}

func (t *terminal) printWarnings(warnings []receiving.Warning) {
	for _, w := range warnings {
		t.printf("~ %s: %s\n", w.Code, w.Message)
	}
}

func (t *terminal) prompt() {
	t.printf("[%s] > ", t.ctrl.State())
}

func (t *terminal) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(t.out, format, args...)
}

func errorCode(err error) string {
	if code := shared.ErrorCode(err); code != "" {
		return code
	}
	return receiving.CodeTransportFailure
}
