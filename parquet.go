package hypersync

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/parquet"
	"github.com/apache/arrow/go/v16/parquet/compress"
	"github.com/apache/arrow/go/v16/parquet/pqarrow"
	"golang.org/x/sync/errgroup"
)

// Rows a single parquet file accumulates before the sink rolls over to a
// fresh file.
const defaultRowsPerFile = 1_000_000

// CollectParquet streams the query and writes the columnar data under path,
// one file per kind (blocks.parquet, transactions.parquet, logs.parquet,
// traces.parquet). When a file crosses the rollover threshold a numbered
// follow-up file is opened (blocks_1.parquet, ...); the numbering sequence
// is shared across kinds.
func (c *Client) CollectParquet(ctx context.Context, path string, query *Query, config StreamConfig) error {
	if err := checkSimpleStreamParams(config); err != nil {
		return err
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return &SinkError{Err: err}
	}

	stream, err := c.StreamArrow(ctx, query, config)
	if err != nil {
		return err
	}

	sink := newParquetSink(path, defaultRowsPerFile)
	for item := range stream {
		if item.Err != nil {
			sink.closeAll()
			return item.Err
		}
		err := sink.writeResponse(item.Response)
		item.Response.Release()
		if err != nil {
			sink.closeAll()
			return err
		}
	}
	if err := sink.closeAll(); err != nil {
		return err
	}
	log.Printf("[parquet] wrote %d rows to %s", sink.totalRows.Load(), path)
	return nil
}

type parquetSink struct {
	dir         string
	rowsPerFile int64

	mu      sync.Mutex
	writers map[string]*parquetKindWriter
	seq     atomic.Int64

	totalRows atomic.Int64
}

func newParquetSink(dir string, rowsPerFile int64) *parquetSink {
	return &parquetSink{
		dir:         dir,
		rowsPerFile: rowsPerFile,
		writers:     map[string]*parquetKindWriter{},
	}
}

// writeResponse appends each kind's batches to its writer. Kinds are written
// concurrently; each kind's writer is only ever touched by one goroutine at
// a time because responses are consumed sequentially.
func (s *parquetSink) writeResponse(resp *ArrowResponse) error {
	g := new(errgroup.Group)
	for _, kind := range []struct {
		name    string
		records []arrow.Record
	}{
		{"blocks", resp.Data.Blocks},
		{"transactions", resp.Data.Transactions},
		{"logs", resp.Data.Logs},
		{"traces", resp.Data.Traces},
	} {
		if len(kind.records) == 0 {
			continue
		}
		g.Go(func() error {
			return s.append(kind.name, kind.records)
		})
	}
	return g.Wait()
}

func (s *parquetSink) append(kind string, records []arrow.Record) error {
	w, err := s.writerFor(kind, records[0].Schema())
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := w.write(rec); err != nil {
			return &SinkError{Err: err}
		}
		s.totalRows.Add(rec.NumRows())
		if w.rows >= s.rowsPerFile {
			if err := w.rollover(s.seq.Add(1)); err != nil {
				return &SinkError{Err: err}
			}
		}
	}
	return nil
}

func (s *parquetSink) writerFor(kind string, schema *arrow.Schema) (*parquetKindWriter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.writers[kind]; ok {
		return w, nil
	}
	w := &parquetKindWriter{
		kind:   kind,
		dir:    s.dir,
		schema: schema,
	}
	if err := w.open(fmt.Sprintf("%s.parquet", kind)); err != nil {
		return nil, &SinkError{Err: err}
	}
	s.writers[kind] = w
	return w, nil
}

// closeAll finalises every writer. All close attempts run even if one
// fails; the first failure wins.
func (s *parquetSink) closeAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := new(errgroup.Group)
	for _, w := range s.writers {
		g.Go(w.close)
	}
	s.writers = map[string]*parquetKindWriter{}
	if err := g.Wait(); err != nil {
		return &SinkError{Err: err}
	}
	return nil
}

type parquetKindWriter struct {
	kind   string
	dir    string
	schema *arrow.Schema
	file   *os.File
	fw     *pqarrow.FileWriter
	rows   int64
}

func (w *parquetKindWriter) open(name string) error {
	f, err := os.Create(filepath.Join(w.dir, name))
	if err != nil {
		return err
	}
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Zstd))
	fw, err := pqarrow.NewFileWriter(w.schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return err
	}
	w.file = f
	w.fw = fw
	w.rows = 0
	return nil
}

func (w *parquetKindWriter) write(rec arrow.Record) error {
	if err := w.fw.Write(rec); err != nil {
		return err
	}
	w.rows += rec.NumRows()
	return nil
}

// rollover finalises the current file and starts kind_{seq}.parquet.
func (w *parquetKindWriter) rollover(seq int64) error {
	if err := w.close(); err != nil {
		return err
	}
	return w.open(fmt.Sprintf("%s_%d.parquet", w.kind, seq))
}

func (w *parquetKindWriter) close() error {
	if w.fw == nil {
		return nil
	}
	err := w.fw.Close()
	w.fw = nil
	w.file = nil
	return err
}
