package inventory

import (
	"cmp"
	"slices"
	"time"
)

// StockBatch is one received shipment of a product. Seq is the insertion
// order and breaks ties between batches received at the same instant.
type StockBatch struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	ReceivedAt  time.Time `json:"received_at"`
	Seq         int64     `json:"seq"`
	OriginalQty int       `json:"original_qty"`
	Remaining   int       `json:"remaining"`
}

// Allocation records how much of a deduction was drawn from one batch.
type Allocation struct {
	BatchID   string `json:"batch_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// TxnInfo identifies the business transaction behind a ledger mutation.
type TxnInfo struct {
	TxnID  string
	Actor  string
	Source string
	Reason string
}

// AuditEntry is one append-only line of a batch's usage history.
type AuditEntry struct {
	ID             string    `json:"id"`
	BatchID        string    `json:"batch_id"`
	ProductID      string    `json:"product_id"`
	TxnID          string    `json:"txn_id"`
	Actor          string    `json:"actor"`
	Source         string    `json:"source,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	Delta          int       `json:"delta"`
	RemainingAfter int       `json:"remaining_after"`
	At             time.Time `json:"at"`
}

const (
	SourceOnlineOrder = "online_order"
	SourceCancel      = "order_cancel"
	SourceRollback    = "order_rollback"
	SourceReceiving   = "receiving"
)

// SortFIFO orders batches oldest-received first, then by insertion order.
func SortFIFO(batches []StockBatch) {
	slices.SortStableFunc(batches, func(a, b StockBatch) int {
		if c := a.ReceivedAt.Compare(b.ReceivedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

func sumRemaining(batches []StockBatch) int {
	total := 0
	for _, b := range batches {
		total += b.Remaining
	}
	return total
}

// planFIFO draws qty from batches, which must already be in FIFO order and
// hold at least qty in total.
func planFIFO(batches []StockBatch, qty int) []Allocation {
	var out []Allocation
	need := qty
	for _, b := range batches {
		if need == 0 {
			break
		}
		if b.Remaining <= 0 {
			continue
		}
		take := min(b.Remaining, need)
		out = append(out, Allocation{BatchID: b.ID, ProductID: b.ProductID, Quantity: take})
		need -= take
	}
	return out
}
