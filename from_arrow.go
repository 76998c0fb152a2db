package hypersync

import (
	"math/big"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Decoding of columnar batches into typed rows. Columns are matched by name
// against the archive schema; unknown columns are ignored so the decoder
// keeps working when the server grows its schema. Numbers arrive as arrow
// integers, hashes and addresses as binary, quantities as big-endian binary.

func queryResponseFromArrow(resp *ArrowResponse) *QueryResponse {
	return &QueryResponse{
		ArchiveHeight:      resp.ArchiveHeight,
		NextBlock:          resp.NextBlock,
		TotalExecutionTime: resp.TotalExecutionTime,
		RollbackGuard:      resp.RollbackGuard,
		Data: QueryResponseData{
			Blocks:       blocksFromArrow(resp.Data.Blocks),
			Transactions: transactionsFromArrow(resp.Data.Transactions),
			Logs:         logsFromArrow(resp.Data.Logs),
			Traces:       tracesFromArrow(resp.Data.Traces),
		},
	}
}

func eventResponseFromArrow(resp *ArrowResponse) *EventResponse {
	return &EventResponse{
		ArchiveHeight:      resp.ArchiveHeight,
		NextBlock:          resp.NextBlock,
		TotalExecutionTime: resp.TotalExecutionTime,
		RollbackGuard:      resp.RollbackGuard,
		Data: joinEvents(QueryResponseData{
			Blocks:       blocksFromArrow(resp.Data.Blocks),
			Transactions: transactionsFromArrow(resp.Data.Transactions),
			Logs:         logsFromArrow(resp.Data.Logs),
		}),
	}
}

func blocksFromArrow(records []arrow.Record) []Block {
	var out []Block
	for _, rec := range records {
		rows := make([]Block, rec.NumRows())
		for ci, field := range rec.Schema().Fields() {
			col := rec.Column(ci)
			for ri := range rows {
				if col.IsNull(ri) {
					continue
				}
				setBlockField(&rows[ri], field.Name, col, ri)
			}
		}
		out = append(out, rows...)
	}
	return out
}

func setBlockField(b *Block, name string, col arrow.Array, ri int) {
	switch name {
	case "number":
		b.Number = colUint64(col, ri)
	case "hash":
		b.Hash = common.BytesToHash(colBytes(col, ri))
	case "parent_hash":
		b.ParentHash = common.BytesToHash(colBytes(col, ri))
	case "nonce":
		b.Nonce = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "sha3_uncles":
		b.Sha3Uncles = common.BytesToHash(colBytes(col, ri))
	case "logs_bloom":
		b.LogsBloom = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "transactions_root":
		b.TransactionsRoot = common.BytesToHash(colBytes(col, ri))
	case "state_root":
		b.StateRoot = common.BytesToHash(colBytes(col, ri))
	case "receipts_root":
		b.ReceiptsRoot = common.BytesToHash(colBytes(col, ri))
	case "miner":
		b.Miner = common.BytesToAddress(colBytes(col, ri))
	case "difficulty":
		b.Difficulty = colBig(col, ri)
	case "total_difficulty":
		b.TotalDifficulty = colBig(col, ri)
	case "extra_data":
		b.ExtraData = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "size":
		b.Size = colUint64(col, ri)
	case "gas_limit":
		b.GasLimit = colBig(col, ri)
	case "gas_used":
		b.GasUsed = colBig(col, ri)
	case "timestamp":
		b.Timestamp = colUint64(col, ri)
	case "base_fee_per_gas":
		b.BaseFeePerGas = colBig(col, ri)
	case "blob_gas_used":
		b.BlobGasUsed = colBig(col, ri)
	case "excess_blob_gas":
		b.ExcessBlobGas = colBig(col, ri)
	case "parent_beacon_block_root":
		b.ParentBeaconBlockRoot = colHashPtr(col, ri)
	case "withdrawals_root":
		b.WithdrawalsRoot = colHashPtr(col, ri)
	case "mix_hash":
		b.MixHash = colHashPtr(col, ri)
	}
}

func transactionsFromArrow(records []arrow.Record) []Transaction {
	var out []Transaction
	for _, rec := range records {
		rows := make([]Transaction, rec.NumRows())
		for ci, field := range rec.Schema().Fields() {
			col := rec.Column(ci)
			for ri := range rows {
				if col.IsNull(ri) {
					continue
				}
				setTransactionField(&rows[ri], field.Name, col, ri)
			}
		}
		out = append(out, rows...)
	}
	return out
}

func setTransactionField(t *Transaction, name string, col arrow.Array, ri int) {
	switch name {
	case "block_hash":
		t.BlockHash = common.BytesToHash(colBytes(col, ri))
	case "block_number":
		t.BlockNumber = colUint64(col, ri)
	case "from":
		t.From = colAddressPtr(col, ri)
	case "gas":
		t.Gas = colBig(col, ri)
	case "gas_price":
		t.GasPrice = colBig(col, ri)
	case "hash":
		t.Hash = common.BytesToHash(colBytes(col, ri))
	case "input":
		t.Input = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "nonce":
		t.Nonce = colBig(col, ri)
	case "to":
		t.To = colAddressPtr(col, ri)
	case "transaction_index":
		t.TransactionIndex = colUint64(col, ri)
	case "value":
		t.Value = colBig(col, ri)
	case "v":
		t.V = colBig(col, ri)
	case "r":
		t.R = colBig(col, ri)
	case "s":
		t.S = colBig(col, ri)
	case "y_parity":
		t.YParity = colBig(col, ri)
	case "max_priority_fee_per_gas":
		t.MaxPriorityFeePerGas = colBig(col, ri)
	case "max_fee_per_gas":
		t.MaxFeePerGas = colBig(col, ri)
	case "chain_id":
		t.ChainID = colBig(col, ri)
	case "max_fee_per_blob_gas":
		t.MaxFeePerBlobGas = colBig(col, ri)
	case "cumulative_gas_used":
		t.CumulativeGasUsed = colBig(col, ri)
	case "effective_gas_price":
		t.EffectiveGasPrice = colBig(col, ri)
	case "gas_used":
		t.GasUsed = colBig(col, ri)
	case "contract_address":
		t.ContractAddress = colAddressPtr(col, ri)
	case "logs_bloom":
		t.LogsBloom = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "type":
		v := uint8(colUint64(col, ri))
		t.Kind = &v
	case "root":
		t.Root = colHashPtr(col, ri)
	case "status":
		v := uint8(colUint64(col, ri))
		t.Status = &v
	}
}

func logsFromArrow(records []arrow.Record) []Log {
	var out []Log
	for _, rec := range records {
		rows := make([]Log, rec.NumRows())
		topics := make([][4]*common.Hash, rec.NumRows())
		for ci, field := range rec.Schema().Fields() {
			col := rec.Column(ci)
			for ri := range rows {
				if col.IsNull(ri) {
					continue
				}
				setLogField(&rows[ri], &topics[ri], field.Name, col, ri)
			}
		}
		for ri := range rows {
			for _, topic := range topics[ri] {
				if topic == nil {
					break
				}
				rows[ri].Topics = append(rows[ri].Topics, *topic)
			}
		}
		out = append(out, rows...)
	}
	return out
}

func setLogField(l *Log, topics *[4]*common.Hash, name string, col arrow.Array, ri int) {
	switch name {
	case "removed":
		v := colBool(col, ri)
		l.Removed = &v
	case "log_index":
		l.LogIndex = colUint64(col, ri)
	case "transaction_index":
		l.TransactionIndex = colUint64(col, ri)
	case "transaction_hash":
		l.TransactionHash = common.BytesToHash(colBytes(col, ri))
	case "block_hash":
		l.BlockHash = common.BytesToHash(colBytes(col, ri))
	case "block_number":
		l.BlockNumber = colUint64(col, ri)
	case "address":
		l.Address = common.BytesToAddress(colBytes(col, ri))
	case "data":
		l.Data = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "topic0":
		topics[0] = colHashPtr(col, ri)
	case "topic1":
		topics[1] = colHashPtr(col, ri)
	case "topic2":
		topics[2] = colHashPtr(col, ri)
	case "topic3":
		topics[3] = colHashPtr(col, ri)
	}
}

func tracesFromArrow(records []arrow.Record) []Trace {
	var out []Trace
	for _, rec := range records {
		rows := make([]Trace, rec.NumRows())
		for ci, field := range rec.Schema().Fields() {
			col := rec.Column(ci)
			for ri := range rows {
				if col.IsNull(ri) {
					continue
				}
				setTraceField(&rows[ri], field.Name, col, ri)
			}
		}
		out = append(out, rows...)
	}
	return out
}

func setTraceField(t *Trace, name string, col arrow.Array, ri int) {
	switch name {
	case "from":
		t.From = colAddressPtr(col, ri)
	case "to":
		t.To = colAddressPtr(col, ri)
	case "call_type":
		t.CallType = colString(col, ri)
	case "gas":
		t.Gas = colBig(col, ri)
	case "input":
		t.Input = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "init":
		t.Init = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "value":
		t.Value = colBig(col, ri)
	case "author":
		t.Author = colAddressPtr(col, ri)
	case "reward_type":
		t.RewardType = colString(col, ri)
	case "block_hash":
		t.BlockHash = common.BytesToHash(colBytes(col, ri))
	case "block_number":
		t.BlockNumber = colUint64(col, ri)
	case "address":
		t.Address = colAddressPtr(col, ri)
	case "code":
		t.Code = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "gas_used":
		t.GasUsed = colBig(col, ri)
	case "output":
		t.Output = append(hexutil.Bytes(nil), colBytes(col, ri)...)
	case "subtraces":
		t.Subtraces = colUint64(col, ri)
	case "trace_address":
		t.TraceAddress = colUint64List(col, ri)
	case "transaction_hash":
		t.TransactionHash = colHashPtr(col, ri)
	case "transaction_position":
		v := colUint64(col, ri)
		t.TransactionPosition = &v
	case "type":
		t.Kind = colString(col, ri)
	case "error":
		t.Error = colString(col, ri)
	}
}

// Column accessors. Each tolerates the handful of physical types the archive
// uses for the logical one.

func colUint64(col arrow.Array, ri int) uint64 {
	switch a := col.(type) {
	case *array.Uint64:
		return a.Value(ri)
	case *array.Uint32:
		return uint64(a.Value(ri))
	case *array.Int64:
		return uint64(a.Value(ri))
	case *array.Int32:
		return uint64(a.Value(ri))
	case *array.Uint8:
		return uint64(a.Value(ri))
	default:
		return new(big.Int).SetBytes(colBytes(col, ri)).Uint64()
	}
}

func colBytes(col arrow.Array, ri int) []byte {
	switch a := col.(type) {
	case *array.Binary:
		return a.Value(ri)
	case *array.LargeBinary:
		return a.Value(ri)
	case *array.FixedSizeBinary:
		return a.Value(ri)
	case *array.String:
		return []byte(a.Value(ri))
	default:
		return nil
	}
}

func colString(col arrow.Array, ri int) string {
	switch a := col.(type) {
	case *array.String:
		return a.Value(ri)
	case *array.LargeString:
		return a.Value(ri)
	default:
		return string(colBytes(col, ri))
	}
}

func colBool(col arrow.Array, ri int) bool {
	if a, ok := col.(*array.Boolean); ok {
		return a.Value(ri)
	}
	return false
}

// colBig reads a quantity: big-endian binary, or a plain integer column.
func colBig(col arrow.Array, ri int) *hexutil.Big {
	switch a := col.(type) {
	case *array.Uint64:
		return (*hexutil.Big)(new(big.Int).SetUint64(a.Value(ri)))
	case *array.Int64:
		return (*hexutil.Big)(big.NewInt(a.Value(ri)))
	default:
		return (*hexutil.Big)(new(big.Int).SetBytes(colBytes(col, ri)))
	}
}

func colHashPtr(col arrow.Array, ri int) *common.Hash {
	b := colBytes(col, ri)
	if len(b) == 0 {
		return nil
	}
	h := common.BytesToHash(b)
	return &h
}

func colAddressPtr(col arrow.Array, ri int) *common.Address {
	b := colBytes(col, ri)
	if len(b) == 0 {
		return nil
	}
	a := common.BytesToAddress(b)
	return &a
}

func colUint64List(col arrow.Array, ri int) []uint64 {
	lst, ok := col.(*array.List)
	if !ok {
		return nil
	}
	start, end := lst.ValueOffsets(ri)
	values, ok := lst.ListValues().(*array.Uint64)
	if !ok {
		return nil
	}
	out := make([]uint64, 0, end-start)
	for i := start; i < end; i++ {
		out = append(out, values.Value(int(i)))
	}
	return out
}
