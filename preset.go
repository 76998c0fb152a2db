package hypersync

import "github.com/ethereum/go-ethereum/common"

// Preset queries for the common shapes. All ranges are [fromBlock, toBlock)
// with a nil toBlock meaning "up to the archive height".

// PresetQueryBlocksAndTransactions selects every block in the range and its
// transactions, with the common header and transaction columns.
func PresetQueryBlocksAndTransactions(fromBlock uint64, toBlock *uint64) Query {
	return Query{
		FromBlock:        fromBlock,
		ToBlock:          toBlock,
		IncludeAllBlocks: true,
		FieldSelection: FieldSelection{
			Block:       []string{"number", "hash", "parent_hash", "timestamp", "miner", "gas_used", "gas_limit", "base_fee_per_gas"},
			Transaction: []string{"block_number", "transaction_index", "hash", "from", "to", "value", "input", "gas_used", "status"},
		},
	}
}

// PresetQueryBlocksAndTransactionHashes selects block headers plus just
// enough of each transaction to identify it.
func PresetQueryBlocksAndTransactionHashes(fromBlock uint64, toBlock *uint64) Query {
	return Query{
		FromBlock:        fromBlock,
		ToBlock:          toBlock,
		IncludeAllBlocks: true,
		FieldSelection: FieldSelection{
			Block:       []string{"number", "hash", "parent_hash", "timestamp"},
			Transaction: []string{"block_number", "transaction_index", "hash"},
		},
	}
}

// PresetQueryLogs selects all logs emitted by an address.
func PresetQueryLogs(fromBlock uint64, toBlock *uint64, address common.Address) Query {
	return Query{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Logs:      []LogSelection{{Address: []common.Address{address}}},
		FieldSelection: FieldSelection{
			Log: []string{"log_index", "transaction_index", "transaction_hash", "block_number", "address", "data", "topic0", "topic1", "topic2", "topic3"},
		},
	}
}

// PresetQueryLogsOfEvent selects logs of one event signature emitted by an
// address.
func PresetQueryLogsOfEvent(fromBlock uint64, toBlock *uint64, address common.Address, topic0 common.Hash) Query {
	return Query{
		FromBlock: fromBlock,
		ToBlock:   toBlock,
		Logs: []LogSelection{{
			Address: []common.Address{address},
			Topics:  [][]common.Hash{{topic0}},
		}},
		FieldSelection: FieldSelection{
			Log: []string{"log_index", "transaction_index", "transaction_hash", "block_number", "address", "data", "topic0", "topic1", "topic2", "topic3"},
		},
	}
}
