package hypersync

import (
	"reflect"
	"testing"
)

func TestAddEventJoinFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   FieldSelection
		want FieldSelection
	}{
		{
			name: "log selection gets join columns",
			in:   FieldSelection{Log: []string{"data"}},
			want: FieldSelection{Log: []string{"data", "log_index", "transaction_index", "block_number"}},
		},
		{
			name: "empty sets stay empty",
			in:   FieldSelection{Log: []string{"data"}, Block: nil, Transaction: nil},
			want: FieldSelection{Log: []string{"data", "log_index", "transaction_index", "block_number"}},
		},
		{
			name: "all kinds selected",
			in: FieldSelection{
				Block:       []string{"hash"},
				Transaction: []string{"hash"},
				Log:         []string{"address"},
			},
			want: FieldSelection{
				Block:       []string{"hash", "number"},
				Transaction: []string{"hash", "block_number", "transaction_index"},
				Log:         []string{"address", "log_index", "transaction_index", "block_number"},
			},
		},
		{
			name: "no duplicates when already present",
			in:   FieldSelection{Block: []string{"number", "hash"}},
			want: FieldSelection{Block: []string{"number", "hash"}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			q := Query{FieldSelection: tc.in}
			addEventJoinFields(&q)
			if !reflect.DeepEqual(q.FieldSelection, tc.want) {
				t.Fatalf("selection=%+v want %+v", q.FieldSelection, tc.want)
			}
		})
	}
}

func TestAddEventJoinFieldsIdempotent(t *testing.T) {
	t.Parallel()

	q := Query{FieldSelection: FieldSelection{
		Block:       []string{"hash"},
		Transaction: []string{"value"},
		Log:         []string{"data"},
	}}
	addEventJoinFields(&q)
	once := q.FieldSelection
	addEventJoinFields(&q)
	if !reflect.DeepEqual(q.FieldSelection, once) {
		t.Fatalf("second application changed selection: %+v -> %+v", once, q.FieldSelection)
	}
}

func TestAddEventJoinFieldsDoesNotAliasInput(t *testing.T) {
	t.Parallel()

	sel := []string{"data"}
	q := Query{FieldSelection: FieldSelection{Log: sel}}
	addEventJoinFields(&q)
	if len(sel) != 1 || sel[0] != "data" {
		t.Fatalf("input slice mutated: %v", sel)
	}
}

func TestJoinEvents(t *testing.T) {
	t.Parallel()

	data := QueryResponseData{
		Blocks: []Block{{Number: 10}, {Number: 11}},
		Transactions: []Transaction{
			{BlockNumber: 10, TransactionIndex: 0},
			{BlockNumber: 10, TransactionIndex: 1},
			{BlockNumber: 11, TransactionIndex: 0},
		},
		Logs: []Log{
			{BlockNumber: 10, TransactionIndex: 1, LogIndex: 0},
			{BlockNumber: 11, TransactionIndex: 0, LogIndex: 3},
			{BlockNumber: 12, TransactionIndex: 0, LogIndex: 9}, // no match
		},
	}

	events := joinEvents(data)
	if len(events) != 3 {
		t.Fatalf("events=%d want 3", len(events))
	}

	if events[0].Block == nil || events[0].Block.Number != 10 {
		t.Fatalf("event[0].Block=%+v want number 10", events[0].Block)
	}
	if events[0].Transaction == nil || events[0].Transaction.TransactionIndex != 1 {
		t.Fatalf("event[0].Transaction=%+v want index 1", events[0].Transaction)
	}
	if events[1].Block == nil || events[1].Block.Number != 11 {
		t.Fatalf("event[1].Block=%+v want number 11", events[1].Block)
	}
	if events[2].Block != nil || events[2].Transaction != nil {
		t.Fatalf("event[2] joined to %+v/%+v, want nil/nil", events[2].Block, events[2].Transaction)
	}
}
