package hypersync

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Typed row objects decoded from the columnar responses. Field names follow
// the ethereum RPC spec. Only columns present in the field selection are
// populated; everything else stays at its zero value.

// Block is an EVM block header row.
type Block struct {
	Number                uint64         `json:"number"`
	Hash                  common.Hash    `json:"hash"`
	ParentHash            common.Hash    `json:"parentHash"`
	Nonce                 hexutil.Bytes  `json:"nonce,omitempty"`
	Sha3Uncles            common.Hash    `json:"sha3Uncles"`
	LogsBloom             hexutil.Bytes  `json:"logsBloom,omitempty"`
	TransactionsRoot      common.Hash    `json:"transactionsRoot"`
	StateRoot             common.Hash    `json:"stateRoot"`
	ReceiptsRoot          common.Hash    `json:"receiptsRoot"`
	Miner                 common.Address `json:"miner"`
	Difficulty            *hexutil.Big   `json:"difficulty,omitempty"`
	TotalDifficulty       *hexutil.Big   `json:"totalDifficulty,omitempty"`
	ExtraData             hexutil.Bytes  `json:"extraData,omitempty"`
	Size                  uint64         `json:"size"`
	GasLimit              *hexutil.Big   `json:"gasLimit,omitempty"`
	GasUsed               *hexutil.Big   `json:"gasUsed,omitempty"`
	Timestamp             uint64         `json:"timestamp"`
	BaseFeePerGas         *hexutil.Big   `json:"baseFeePerGas,omitempty"`
	BlobGasUsed           *hexutil.Big   `json:"blobGasUsed,omitempty"`
	ExcessBlobGas         *hexutil.Big   `json:"excessBlobGas,omitempty"`
	ParentBeaconBlockRoot *common.Hash   `json:"parentBeaconBlockRoot,omitempty"`
	WithdrawalsRoot       *common.Hash   `json:"withdrawalsRoot,omitempty"`
	MixHash               *common.Hash   `json:"mixHash,omitempty"`
}

// Transaction is an EVM transaction row. The archive merges transaction and
// receipt columns into one table, so receipt fields live here too.
type Transaction struct {
	BlockHash            common.Hash     `json:"blockHash"`
	BlockNumber          uint64          `json:"blockNumber"`
	From                 *common.Address `json:"from,omitempty"`
	Gas                  *hexutil.Big    `json:"gas,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	Hash                 common.Hash     `json:"hash"`
	Input                hexutil.Bytes   `json:"input,omitempty"`
	Nonce                *hexutil.Big    `json:"nonce,omitempty"`
	To                   *common.Address `json:"to,omitempty"`
	TransactionIndex     uint64          `json:"transactionIndex"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	V                    *hexutil.Big    `json:"v,omitempty"`
	R                    *hexutil.Big    `json:"r,omitempty"`
	S                    *hexutil.Big    `json:"s,omitempty"`
	YParity              *hexutil.Big    `json:"yParity,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	ChainID              *hexutil.Big    `json:"chainId,omitempty"`
	MaxFeePerBlobGas     *hexutil.Big    `json:"maxFeePerBlobGas,omitempty"`
	CumulativeGasUsed    *hexutil.Big    `json:"cumulativeGasUsed,omitempty"`
	EffectiveGasPrice    *hexutil.Big    `json:"effectiveGasPrice,omitempty"`
	GasUsed              *hexutil.Big    `json:"gasUsed,omitempty"`
	ContractAddress      *common.Address `json:"contractAddress,omitempty"`
	LogsBloom            hexutil.Bytes   `json:"logsBloom,omitempty"`
	Kind                 *uint8          `json:"type,omitempty"`
	Root                 *common.Hash    `json:"root,omitempty"`
	Status               *uint8          `json:"status,omitempty"`
}

// Log is an EVM log row. Topics are decoded from the topic0..topic3 columns,
// trailing absent topics are dropped.
type Log struct {
	Removed          *bool          `json:"removed,omitempty"`
	LogIndex         uint64         `json:"logIndex"`
	TransactionIndex uint64         `json:"transactionIndex"`
	TransactionHash  common.Hash    `json:"transactionHash"`
	BlockHash        common.Hash    `json:"blockHash"`
	BlockNumber      uint64         `json:"blockNumber"`
	Address          common.Address `json:"address"`
	Data             hexutil.Bytes  `json:"data,omitempty"`
	Topics           []common.Hash  `json:"topics,omitempty"`
}

// Trace is a parity-style trace row as returned by trace_block.
type Trace struct {
	From                *common.Address `json:"from,omitempty"`
	To                  *common.Address `json:"to,omitempty"`
	CallType            string          `json:"callType,omitempty"`
	Gas                 *hexutil.Big    `json:"gas,omitempty"`
	Input               hexutil.Bytes   `json:"input,omitempty"`
	Init                hexutil.Bytes   `json:"init,omitempty"`
	Value               *hexutil.Big    `json:"value,omitempty"`
	Author              *common.Address `json:"author,omitempty"`
	RewardType          string          `json:"rewardType,omitempty"`
	BlockHash           common.Hash     `json:"blockHash"`
	BlockNumber         uint64          `json:"blockNumber"`
	Address             *common.Address `json:"address,omitempty"`
	Code                hexutil.Bytes   `json:"code,omitempty"`
	GasUsed             *hexutil.Big    `json:"gasUsed,omitempty"`
	Output              hexutil.Bytes   `json:"output,omitempty"`
	Subtraces           uint64          `json:"subtraces"`
	TraceAddress        []uint64        `json:"traceAddress,omitempty"`
	TransactionHash     *common.Hash    `json:"transactionHash,omitempty"`
	TransactionPosition *uint64         `json:"transactionPosition,omitempty"`
	Kind                string          `json:"type,omitempty"`
	Error               string          `json:"error,omitempty"`
}

// Event is a log joined to its transaction and block. Transaction and Block
// are nil when the corresponding kind was not selected.
type Event struct {
	Transaction *Transaction `json:"transaction,omitempty"`
	Block       *Block       `json:"block,omitempty"`
	Log         Log          `json:"log"`
}
