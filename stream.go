package hypersync

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ArrowStreamItem is one element of a raw columnar stream. Err is set on the
// terminal element of a failed stream; the channel is closed right after.
type ArrowStreamItem struct {
	Response *ArrowResponse
	Err      error
}

// QueryStreamItem is one element of a typed row stream.
type QueryStreamItem struct {
	Response *QueryResponse
	Err      error
}

// EventStreamItem is one element of an event stream.
type EventStreamItem struct {
	Response *EventResponse
	Err      error
}

// StreamArrow partitions the query across the archive height and runs the
// partitions with bounded concurrency, delivering responses strictly in
// partition order. Channel closure is the only end-of-stream signal.
//
// Cancel ctx to abandon the stream; in-flight sub-queries are dropped whole,
// never delivered partially.
func (c *Client) StreamArrow(ctx context.Context, query *Query, config StreamConfig) (<-chan ArrowStreamItem, error) {
	if err := validateQuery(query); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()

	// The height is sampled once: an open-ended query streams up to the
	// archive height observed here and ignores later growth.
	toBlock := uint64(0)
	if query.ToBlock != nil {
		toBlock = *query.ToBlock
	} else {
		height, err := c.GetHeight(ctx)
		if err != nil {
			return nil, fmt.Errorf("get archive height for open-ended query: %w", err)
		}
		toBlock = height
	}

	out := make(chan ArrowStreamItem, config.Concurrency)
	go c.runStream(ctx, *query, toBlock, config, out)
	return out, nil
}

type rangeResult struct {
	responses []*ArrowResponse
	err       error
}

// runStream is the dispatch pool: a partitioner goroutine admits sub-queries
// into a FIFO of one-shot result channels, and this goroutine forwards the
// FIFO head's result downstream. Admission is bounded so that at most
// config.Concurrency sub-queries are in flight: one held here plus the
// queue's capacity.
func (c *Client) runStream(ctx context.Context, query Query, toBlock uint64, config StreamConfig, out chan<- ArrowStreamItem) {
	defer close(out)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan chan rangeResult, config.Concurrency-1)
	var lastResponseSize atomic.Uint64

	go func() {
		defer close(queue)
		step := config.BatchSize
		for cursor := query.FromBlock; cursor < toBlock; {
			end := min(cursor+step, toBlock)
			sub := query
			sub.FromBlock = cursor
			sub.ToBlock = &end

			slot := make(chan rangeResult, 1)
			select {
			case queue <- slot:
			case <-ctx.Done():
				return
			}
			go c.fetchRange(ctx, sub, end, slot, &lastResponseSize)

			cursor = end
			step = nextStep(step, config, lastResponseSize.Load())
		}
	}()

	for slot := range queue {
		var result rangeResult
		select {
		case result = <-slot:
		case <-ctx.Done():
			return
		}

		for _, resp := range result.responses {
			select {
			case out <- ArrowStreamItem{Response: resp}:
			case <-ctx.Done():
				return
			}
		}
		if result.err != nil {
			select {
			case out <- ArrowStreamItem{Err: result.err}:
			case <-ctx.Done():
			}
			return
		}
	}
}

// fetchRange drives one partition to completion. The server may truncate a
// sub-query and report a smaller next_block than requested; the server is
// authoritative on progress, so the range is re-queried from next_block
// until it is covered. Each response is delivered as its own stream element.
func (c *Client) fetchRange(ctx context.Context, sub Query, toBlock uint64, slot chan<- rangeResult, lastResponseSize *atomic.Uint64) {
	var responses []*ArrowResponse

	for {
		resp, size, err := c.getArrowSized(ctx, &sub)
		if err != nil {
			slot <- rangeResult{responses: responses, err: err}
			return
		}
		lastResponseSize.Store(size)
		responses = append(responses, resp)

		if resp.NextBlock >= toBlock {
			slot <- rangeResult{responses: responses}
			return
		}
		if resp.NextBlock <= sub.FromBlock {
			slot <- rangeResult{responses: responses, err: &DecodeError{
				Err: fmt.Errorf("server reported non-advancing next_block %d for range [%d, %d)", resp.NextBlock, sub.FromBlock, toBlock),
			}}
			return
		}
		sub.FromBlock = resp.NextBlock
	}
}

// nextStep adapts the partition span to the observed response size. With no
// ceiling configured the span stays fixed.
func nextStep(step uint64, config StreamConfig, observedSize uint64) uint64 {
	if config.ResponseSizeCeiling == 0 || observedSize == 0 {
		return step
	}
	if observedSize < config.ResponseSizeCeiling/2 {
		return min(step*2, config.MaxBatchSize)
	}
	if observedSize > config.ResponseSizeCeiling {
		return max(step/2, config.MinBatchSize)
	}
	return step
}

// Stream runs StreamArrow and converts every response to typed rows.
func (c *Client) Stream(ctx context.Context, query *Query, config StreamConfig) (<-chan QueryStreamItem, error) {
	if err := checkSimpleStreamParams(config); err != nil {
		return nil, err
	}

	inner, err := c.StreamArrow(ctx, query, config)
	if err != nil {
		return nil, err
	}

	out := make(chan QueryStreamItem, config.withDefaults().Concurrency)
	go func() {
		defer close(out)
		for item := range inner {
			if item.Err != nil {
				out <- QueryStreamItem{Err: item.Err}
				return
			}
			resp := queryResponseFromArrow(item.Response)
			item.Response.Release()
			select {
			case out <- QueryStreamItem{Response: resp}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// StreamEvents runs StreamArrow with the join columns added to the field
// selection and joins every response's logs to their transactions and
// blocks.
func (c *Client) StreamEvents(ctx context.Context, query *Query, config StreamConfig) (<-chan EventStreamItem, error) {
	if err := checkSimpleStreamParams(config); err != nil {
		return nil, err
	}
	if err := validateQuery(query); err != nil {
		return nil, err
	}

	q := *query
	addEventJoinFields(&q)

	inner, err := c.StreamArrow(ctx, &q, config)
	if err != nil {
		return nil, err
	}

	out := make(chan EventStreamItem, config.withDefaults().Concurrency)
	go func() {
		defer close(out)
		for item := range inner {
			if item.Err != nil {
				out <- EventStreamItem{Err: item.Err}
				return
			}
			resp := eventResponseFromArrow(item.Response)
			item.Response.Release()
			select {
			case out <- EventStreamItem{Response: resp}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
