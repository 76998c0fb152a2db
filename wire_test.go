package hypersync

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/array"
	"github.com/apache/arrow/go/v16/arrow/ipc"
	"github.com/apache/arrow/go/v16/arrow/memory"
)

// Test-side encoder for the /query/arrow-ipc wire format, mirroring
// parseQueryResponse.

type wireSection struct {
	name    string
	records []arrow.Record
}

func encodeResponse(t *testing.T, hdr responseHeader, sections []wireSection) []byte {
	t.Helper()

	header, err := json.Marshal(hdr)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(header)))
	buf.Write(header)

	for _, sec := range sections {
		body := encodeIPC(t, sec.records)
		binary.Write(&buf, binary.LittleEndian, uint32(len(sec.name)))
		buf.WriteString(sec.name)
		binary.Write(&buf, binary.LittleEndian, uint64(len(body)))
		buf.Write(body)
	}
	return buf.Bytes()
}

func encodeIPC(t *testing.T, records []arrow.Record) []byte {
	t.Helper()
	if len(records) == 0 {
		return nil
	}

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(records[0].Schema()), ipc.WithAllocator(memory.DefaultAllocator))
	for _, rec := range records {
		if err := w.Write(rec); err != nil {
			t.Fatalf("write ipc record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close ipc writer: %v", err)
	}
	return buf.Bytes()
}

// blockNumbersRecord builds a blocks batch with a number column spanning
// [from, to).
func blockNumbersRecord(t *testing.T, from, to uint64) arrow.Record {
	t.Helper()
	numbers := make([]uint64, 0, to-from)
	for n := from; n < to; n++ {
		numbers = append(numbers, n)
	}
	return uint64Record(t, "number", numbers)
}

func uint64Record(t *testing.T, field string, values []uint64) arrow.Record {
	t.Helper()
	schema := arrow.NewSchema([]arrow.Field{{Name: field, Type: arrow.PrimitiveTypes.Uint64}}, nil)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()
	b.Field(0).(*array.Uint64Builder).AppendValues(values, nil)
	return b.NewRecord()
}

// stubArchive is a fake archive server. It records every sub-query range it
// sees plus the high-water mark of concurrent query requests.
type stubArchive struct {
	t      *testing.T
	srv    *httptest.Server
	height atomic.Uint64

	handle func(q *Query) ([]byte, int)

	heightCalls atomic.Int64
	queryCalls  atomic.Int64
	inflight    atomic.Int64
	maxInflight atomic.Int64

	mu     sync.Mutex
	ranges [][2]uint64
}

// newStubArchive starts a fake archive. A nil handle answers every sub-query
// with a full-range blocks response.
func newStubArchive(t *testing.T, height uint64, handle func(q *Query) ([]byte, int)) *stubArchive {
	t.Helper()

	s := &stubArchive{t: t, handle: handle}
	s.height.Store(height)
	if s.handle == nil {
		s.handle = func(q *Query) ([]byte, int) {
			return s.fullResponse(q), http.StatusOK
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/height", func(w http.ResponseWriter, r *http.Request) {
		s.heightCalls.Add(1)
		fmt.Fprintf(w, `{"height":%d}`, s.height.Load())
	})
	mux.HandleFunc("/query/arrow-ipc", func(w http.ResponseWriter, r *http.Request) {
		cur := s.inflight.Add(1)
		defer s.inflight.Add(-1)
		for {
			m := s.maxInflight.Load()
			if cur <= m || s.maxInflight.CompareAndSwap(m, cur) {
				break
			}
		}
		s.queryCalls.Add(1)

		var q Query
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if q.ToBlock != nil {
			s.mu.Lock()
			s.ranges = append(s.ranges, [2]uint64{q.FromBlock, *q.ToBlock})
			s.mu.Unlock()
		}

		body, status := s.handle(&q)
		if status != http.StatusOK {
			http.Error(w, string(body), status)
			return
		}
		w.Write(body)
	})

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

// fullResponse answers a sub-query completely: next_block = requested
// to_block, one blocks batch covering the range.
func (s *stubArchive) fullResponse(q *Query) []byte {
	height := s.height.Load()
	to := height
	if q.ToBlock != nil {
		to = *q.ToBlock
	}
	rec := blockNumbersRecord(s.t, q.FromBlock, to)
	defer rec.Release()
	return encodeResponse(s.t, responseHeader{
		ArchiveHeight:      &height,
		NextBlock:          to,
		TotalExecutionTime: 1,
	}, []wireSection{{name: "blocks", records: []arrow.Record{rec}}})
}

func (s *stubArchive) seenRanges() [][2]uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][2]uint64, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// newTestClient builds a client against the stub with a fast retry schedule.
func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{
		URL:            url,
		MaxNumRetries:  2,
		RetryBaseMs:    1,
		RetryBackoffMs: 1,
		RetryCeilingMs: 2,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}
