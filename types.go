package hypersync

import (
	"github.com/apache/arrow/go/v16/arrow"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Query describes one request against the archive. Field names follow the
// server's camelCase JSON schema. ToBlock is exclusive; nil means the query
// is open-ended and gets clamped to the archive height at stream start.
type Query struct {
	FromBlock          uint64                 `json:"fromBlock"`
	ToBlock            *uint64                `json:"toBlock,omitempty"`
	Logs               []LogSelection         `json:"logs,omitempty"`
	Transactions       []TransactionSelection `json:"transactions,omitempty"`
	Traces             []TraceSelection       `json:"traces,omitempty"`
	IncludeAllBlocks   bool                   `json:"includeAllBlocks,omitempty"`
	FieldSelection     FieldSelection         `json:"fieldSelection"`
	MaxNumBlocks       uint64                 `json:"maxNumBlocks,omitempty"`
	MaxNumTransactions uint64                 `json:"maxNumTransactions,omitempty"`
	MaxNumLogs         uint64                 `json:"maxNumLogs,omitempty"`
}

// FieldSelection lists the column names wanted per kind. An empty list means
// the kind is not selected at all and the server omits it from the response.
type FieldSelection struct {
	Block       []string `json:"block,omitempty"`
	Transaction []string `json:"transaction,omitempty"`
	Log         []string `json:"log,omitempty"`
	Trace       []string `json:"trace,omitempty"`
}

// LogSelection filters logs by emitting address and topics. Topics are
// position-indexed: Topics[0] matches topic0, etc. Empty slots match any.
type LogSelection struct {
	Address []common.Address `json:"address,omitempty"`
	Topics  [][]common.Hash  `json:"topics,omitempty"`
}

// TransactionSelection filters transactions by participants and calldata.
type TransactionSelection struct {
	From            []common.Address `json:"from,omitempty"`
	To              []common.Address `json:"to,omitempty"`
	SigHash         []hexutil.Bytes  `json:"sighash,omitempty"`
	Status          *uint8           `json:"status,omitempty"`
	ContractAddress []common.Address `json:"contractAddress,omitempty"`
}

// TraceSelection filters traces.
type TraceSelection struct {
	From     []common.Address `json:"from,omitempty"`
	To       []common.Address `json:"to,omitempty"`
	Address  []common.Address `json:"address,omitempty"`
	CallType []string         `json:"callType,omitempty"`
	SigHash  []hexutil.Bytes  `json:"sighash,omitempty"`
	Kind     []string         `json:"type,omitempty"`
}

// ArchiveHeight is the response body of GET /height.
type ArchiveHeight struct {
	Height *uint64 `json:"height"`
}

// RollbackGuard marks a chain reorganisation affecting previously delivered
// blocks. The client carries it through untouched; unwinding is up to the
// consumer.
type RollbackGuard struct {
	BlockNumber              uint64      `json:"blockNumber"`
	Timestamp                int64       `json:"timestamp"`
	Hash                     common.Hash `json:"hash"`
	FirstOrphanedBlockNumber uint64      `json:"firstOrphanedBlockNumber"`
	FirstParentHash          common.Hash `json:"firstParentHash"`
}

// ArrowResponseData holds the record batches of one response, one list per
// kind. DecodedLogs is only present when server-side decoding was requested.
type ArrowResponseData struct {
	Blocks       []arrow.Record
	Transactions []arrow.Record
	Logs         []arrow.Record
	Traces       []arrow.Record
	DecodedLogs  []arrow.Record
}

// Release releases every record batch. Call it once the data has been
// consumed (converted, written out, or discarded).
func (d *ArrowResponseData) Release() {
	for _, recs := range [][]arrow.Record{d.Blocks, d.Transactions, d.Logs, d.Traces, d.DecodedLogs} {
		for _, rec := range recs {
			rec.Release()
		}
	}
}

// ArrowResponse is the server response for one sub-query. NextBlock is the
// first block not yet covered, i.e. the resume point.
type ArrowResponse struct {
	ArchiveHeight      *uint64
	NextBlock          uint64
	TotalExecutionTime uint64
	Data               ArrowResponseData
	RollbackGuard      *RollbackGuard
}

// Release releases the underlying record batches.
func (r *ArrowResponse) Release() {
	r.Data.Release()
}

// QueryResponseData holds typed rows decoded from the columnar data.
type QueryResponseData struct {
	Blocks       []Block       `json:"blocks"`
	Transactions []Transaction `json:"transactions"`
	Logs         []Log         `json:"logs"`
	Traces       []Trace       `json:"traces"`
}

// QueryResponse is the row-oriented projection of an ArrowResponse.
type QueryResponse struct {
	ArchiveHeight      *uint64           `json:"archiveHeight"`
	NextBlock          uint64            `json:"nextBlock"`
	TotalExecutionTime uint64            `json:"totalExecutionTime"`
	Data               QueryResponseData `json:"data"`
	RollbackGuard      *RollbackGuard    `json:"rollbackGuard,omitempty"`
}

// EventResponse is the event-joined projection of an ArrowResponse.
type EventResponse struct {
	ArchiveHeight      *uint64        `json:"archiveHeight"`
	NextBlock          uint64         `json:"nextBlock"`
	TotalExecutionTime uint64         `json:"totalExecutionTime"`
	Data               []Event        `json:"data"`
	RollbackGuard      *RollbackGuard `json:"rollbackGuard,omitempty"`
}
