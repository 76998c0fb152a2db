package hypersync

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/memory"
)

func multiUint64Record(t *testing.T, names []string, columns [][]uint64) arrow.Record {
	t.Helper()

	fields := make([]arrow.Field, len(names))
	for i, name := range names {
		fields[i] = arrow.Field{Name: name, Type: arrow.PrimitiveTypes.Uint64}
	}
	b := array.NewRecordBuilder(memory.DefaultAllocator, arrow.NewSchema(fields, nil))
	defer b.Release()
	for i, col := range columns {
		b.Field(i).(*array.Uint64Builder).AppendValues(col, nil)
	}
	return b.NewRecord()
}

func TestCollectAggregates(t *testing.T) {
	t.Parallel()

	srv := newStubArchive(t, 10_000, nil)
	c := newTestClient(t, srv.srv.URL)

	to := uint64(1000)
	resp, err := c.Collect(context.Background(), &Query{FromBlock: 0, ToBlock: &to}, StreamConfig{BatchSize: 400})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if resp.NextBlock != 1000 {
		t.Fatalf("NextBlock=%d want 1000", resp.NextBlock)
	}
	if len(resp.Data.Blocks) != 1000 {
		t.Fatalf("blocks=%d want 1000", len(resp.Data.Blocks))
	}
	// Execution times are summed over the three sub-queries.
	if resp.TotalExecutionTime != 3 {
		t.Fatalf("TotalExecutionTime=%d want 3", resp.TotalExecutionTime)
	}
	if resp.ArchiveHeight == nil || *resp.ArchiveHeight != 10_000 {
		t.Fatalf("ArchiveHeight=%v want 10000", resp.ArchiveHeight)
	}
	// Blocks arrive in order across batch boundaries.
	for i, b := range resp.Data.Blocks {
		if b.Number != uint64(i) {
			t.Fatalf("block[%d].Number=%d", i, b.Number)
		}
	}
}

func TestCollectRejectsDecoderOptions(t *testing.T) {
	t.Parallel()

	srv := newStubArchive(t, 1000, nil)
	c := newTestClient(t, srv.srv.URL)
	to := uint64(100)
	query := &Query{FromBlock: 0, ToBlock: &to}

	cases := []struct {
		name string
		cfg  StreamConfig
	}{
		{name: "event signature", cfg: StreamConfig{EventSignature: "Transfer(address,address,uint256)"}},
		{name: "column mapping", cfg: StreamConfig{ColumnMapping: &ColumnMapping{Log: map[string]string{"data": "string"}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfgErr *ConfigError

			if _, err := c.Collect(context.Background(), query, tc.cfg); !errors.As(err, &cfgErr) {
				t.Fatalf("Collect err=%v, want ConfigError", err)
			}
			if _, err := c.CollectEvents(context.Background(), query, tc.cfg); !errors.As(err, &cfgErr) {
				t.Fatalf("CollectEvents err=%v, want ConfigError", err)
			}
			if _, err := c.Stream(context.Background(), query, tc.cfg); !errors.As(err, &cfgErr) {
				t.Fatalf("Stream err=%v, want ConfigError", err)
			}
			if _, err := c.StreamEvents(context.Background(), query, tc.cfg); !errors.As(err, &cfgErr) {
				t.Fatalf("StreamEvents err=%v, want ConfigError", err)
			}
		})
	}

	// Rejection happens before any HTTP traffic.
	if got := srv.queryCalls.Load() + srv.heightCalls.Load(); got != 0 {
		t.Fatalf("http calls=%d want 0", got)
	}
}

func TestCollectEventsJoins(t *testing.T) {
	t.Parallel()

	srv := newStubArchive(t, 10_000, nil)
	srv.handle = func(q *Query) ([]byte, int) {
		height := srv.height.Load()
		from, to := q.FromBlock, *q.ToBlock

		blocks := multiUint64Record(t, []string{"number"}, [][]uint64{{from}})
		defer blocks.Release()
		txs := multiUint64Record(t,
			[]string{"block_number", "transaction_index"},
			[][]uint64{{from}, {0}})
		defer txs.Release()
		logs := multiUint64Record(t,
			[]string{"log_index", "transaction_index", "block_number"},
			[][]uint64{{7}, {0}, {from}})
		defer logs.Release()

		return encodeResponse(t, responseHeader{
			ArchiveHeight: &height,
			NextBlock:     to,
		}, []wireSection{
			{name: "blocks", records: []arrow.Record{blocks}},
			{name: "transactions", records: []arrow.Record{txs}},
			{name: "logs", records: []arrow.Record{logs}},
		}), http.StatusOK
	}

	c := newTestClient(t, srv.srv.URL)
	to := uint64(200)
	resp, err := c.CollectEvents(context.Background(), &Query{
		FromBlock: 0,
		ToBlock:   &to,
		FieldSelection: FieldSelection{
			Block:       []string{"hash"},
			Transaction: []string{"hash"},
			Log:         []string{"data"},
		},
	}, StreamConfig{BatchSize: 100})
	if err != nil {
		t.Fatalf("CollectEvents: %v", err)
	}

	// Two 100-block sub-queries cover [0, 200).
	if len(srv.seenRanges()) != 2 {
		t.Fatalf("sub-queries=%d want 2", len(srv.seenRanges()))
	}

	if len(resp.Data) != 2 {
		t.Fatalf("events=%d want 2", len(resp.Data))
	}
	for i, ev := range resp.Data {
		if ev.Log.LogIndex != 7 {
			t.Fatalf("event[%d].Log.LogIndex=%d want 7", i, ev.Log.LogIndex)
		}
		if ev.Block == nil || ev.Block.Number != ev.Log.BlockNumber {
			t.Fatalf("event[%d] not joined to its block", i)
		}
		if ev.Transaction == nil || ev.Transaction.BlockNumber != ev.Log.BlockNumber {
			t.Fatalf("event[%d] not joined to its transaction", i)
		}
	}
	if resp.NextBlock != 200 {
		t.Fatalf("NextBlock=%d want 200", resp.NextBlock)
	}
}

func TestStreamTypedConversion(t *testing.T) {
	t.Parallel()

	srv := newStubArchive(t, 10_000, nil)
	c := newTestClient(t, srv.srv.URL)

	to := uint64(300)
	ch, err := c.Stream(context.Background(), &Query{FromBlock: 0, ToBlock: &to}, StreamConfig{BatchSize: 100})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var got []uint64
	for item := range ch {
		if item.Err != nil {
			t.Fatalf("stream failed: %v", item.Err)
		}
		for _, b := range item.Response.Data.Blocks {
			got = append(got, b.Number)
		}
	}
	if len(got) != 300 {
		t.Fatalf("blocks=%d want 300", len(got))
	}
	for i, n := range got {
		if n != uint64(i) {
			t.Fatalf("block[%d]=%d", i, n)
		}
	}
}

func TestCollectArrowAggregates(t *testing.T) {
	t.Parallel()

	srv := newStubArchive(t, 10_000, nil)
	c := newTestClient(t, srv.srv.URL)

	to := uint64(500)
	resp, err := c.CollectArrow(context.Background(), &Query{FromBlock: 0, ToBlock: &to}, StreamConfig{BatchSize: 200})
	if err != nil {
		t.Fatalf("CollectArrow: %v", err)
	}
	defer resp.Release()

	if len(resp.Data.Blocks) != 3 {
		t.Fatalf("block batches=%d want 3", len(resp.Data.Blocks))
	}
	var rows int64
	for _, rec := range resp.Data.Blocks {
		rows += rec.NumRows()
	}
	if rows != 500 {
		t.Fatalf("rows=%d want 500", rows)
	}
	if resp.NextBlock != 500 {
		t.Fatalf("NextBlock=%d want 500", resp.NextBlock)
	}
}
