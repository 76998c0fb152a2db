package hypersync

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/apache/arrow/go/v16/arrow"
	"github.com/apache/arrow/go/v16/arrow/ipc"
	"github.com/apache/arrow/go/v16/arrow/memory"
)

// Wire layout of a /query/arrow-ipc response body:
//
//	u32 header length | header JSON
//	repeated sections:
//	  u32 name length | name | u64 body length | Arrow IPC stream
//
// All integers little-endian. The header carries the scalar response fields;
// section names are the kinds (blocks, transactions, logs, traces,
// decoded_logs). A kind that was not selected has no section. Unknown
// sections are skipped so the server can add kinds without breaking older
// clients.

type responseHeader struct {
	ArchiveHeight      *uint64        `json:"archiveHeight"`
	NextBlock          uint64         `json:"nextBlock"`
	TotalExecutionTime uint64         `json:"totalExecutionTime"`
	RollbackGuard      *RollbackGuard `json:"rollbackGuard,omitempty"`
}

// parseQueryResponse decodes a full response body. Record batches in the
// returned response are retained and must be released by the consumer.
func parseQueryResponse(buf []byte) (*ArrowResponse, error) {
	rd := bytes.NewReader(buf)

	var headerLen uint32
	if err := binary.Read(rd, binary.LittleEndian, &headerLen); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("read header length: %w", err)}
	}
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(rd, header); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("read header: %w", err)}
	}

	var hdr responseHeader
	if err := json.Unmarshal(header, &hdr); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("unmarshal header: %w", err)}
	}

	resp := &ArrowResponse{
		ArchiveHeight:      hdr.ArchiveHeight,
		NextBlock:          hdr.NextBlock,
		TotalExecutionTime: hdr.TotalExecutionTime,
		RollbackGuard:      hdr.RollbackGuard,
	}

	for {
		name, body, err := readSection(rd)
		if err == io.EOF {
			return resp, nil
		}
		if err != nil {
			resp.Release()
			return nil, err
		}

		records, err := readIPCStream(body)
		if err != nil {
			resp.Release()
			return nil, err
		}

		switch name {
		case "blocks":
			resp.Data.Blocks = records
		case "transactions":
			resp.Data.Transactions = records
		case "logs":
			resp.Data.Logs = records
		case "traces":
			resp.Data.Traces = records
		case "decoded_logs":
			resp.Data.DecodedLogs = records
		default:
			for _, rec := range records {
				rec.Release()
			}
		}
	}
}

func readSection(rd *bytes.Reader) (string, []byte, error) {
	var nameLen uint32
	if err := binary.Read(rd, binary.LittleEndian, &nameLen); err != nil {
		if err == io.EOF {
			return "", nil, io.EOF
		}
		return "", nil, &DecodeError{Err: fmt.Errorf("read section name length: %w", err)}
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(rd, name); err != nil {
		return "", nil, &DecodeError{Err: fmt.Errorf("read section name: %w", err)}
	}
	var bodyLen uint64
	if err := binary.Read(rd, binary.LittleEndian, &bodyLen); err != nil {
		return "", nil, &DecodeError{Err: fmt.Errorf("read section %s body length: %w", name, err)}
	}
	if bodyLen > uint64(rd.Len()) {
		return "", nil, &DecodeError{Err: fmt.Errorf("section %s truncated: want %d bytes, have %d", name, bodyLen, rd.Len())}
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(rd, body); err != nil {
		return "", nil, &DecodeError{Err: fmt.Errorf("read section %s body: %w", name, err)}
	}
	return string(name), body, nil
}

// readIPCStream parses one Arrow IPC stream into retained record batches.
func readIPCStream(body []byte) ([]arrow.Record, error) {
	if len(body) == 0 {
		return nil, nil
	}

	rdr, err := ipc.NewReader(bytes.NewReader(body), ipc.WithAllocator(memory.DefaultAllocator))
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("open ipc stream: %w", err)}
	}
	defer rdr.Release()

	var records []arrow.Record
	for rdr.Next() {
		rec := rdr.Record()
		rec.Retain()
		records = append(records, rec)
	}
	if err := rdr.Err(); err != nil && err != io.EOF {
		for _, rec := range records {
			rec.Release()
		}
		return nil, &DecodeError{Err: fmt.Errorf("read ipc stream: %w", err)}
	}
	return records, nil
}
