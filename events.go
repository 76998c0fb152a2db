package hypersync

// Field lists for the event based API. These fields are used for joining,
// so they are always added to a non-empty field selection. An empty set
// stays empty: empty means the kind is not selected at all.
var (
	blockJoinFields = []string{"number"}
	txJoinFields    = []string{"block_number", "transaction_index"}
	logJoinFields   = []string{"log_index", "transaction_index", "block_number"}
)

// addEventJoinFields injects the join columns into the query's field
// selection. Idempotent.
func addEventJoinFields(query *Query) {
	if len(query.FieldSelection.Block) > 0 {
		query.FieldSelection.Block = unionFields(query.FieldSelection.Block, blockJoinFields)
	}
	if len(query.FieldSelection.Transaction) > 0 {
		query.FieldSelection.Transaction = unionFields(query.FieldSelection.Transaction, txJoinFields)
	}
	if len(query.FieldSelection.Log) > 0 {
		query.FieldSelection.Log = unionFields(query.FieldSelection.Log, logJoinFields)
	}
}

// unionFields appends the fields missing from have, preserving order and
// never duplicating. Always returns a fresh slice so the caller's query is
// not aliased.
func unionFields(have, want []string) []string {
	out := make([]string, len(have), len(have)+len(want))
	copy(out, have)
	for _, w := range want {
		found := false
		for _, h := range out {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			out = append(out, w)
		}
	}
	return out
}

type txKey struct {
	blockNumber      uint64
	transactionIndex uint64
}

// joinEvents joins each log to its transaction and block by number and
// index. Transactions and blocks that match no log are dropped; logs whose
// transaction or block was not selected keep a nil reference.
func joinEvents(data QueryResponseData) []Event {
	blocks := make(map[uint64]*Block, len(data.Blocks))
	for i := range data.Blocks {
		blocks[data.Blocks[i].Number] = &data.Blocks[i]
	}
	txs := make(map[txKey]*Transaction, len(data.Transactions))
	for i := range data.Transactions {
		tx := &data.Transactions[i]
		txs[txKey{tx.BlockNumber, tx.TransactionIndex}] = tx
	}

	events := make([]Event, 0, len(data.Logs))
	for _, lg := range data.Logs {
		events = append(events, Event{
			Log:         lg,
			Block:       blocks[lg.BlockNumber],
			Transaction: txs[txKey{lg.BlockNumber, lg.TransactionIndex}],
		})
	}
	return events
}
