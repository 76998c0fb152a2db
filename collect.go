package hypersync

import "context"

// Collect drains a typed stream into a single aggregated response: batches
// concatenated, the final archive height and next block kept, execution
// times summed. Either the full aggregated response is returned or an error;
// there is no partial success.
func (c *Client) Collect(ctx context.Context, query *Query, config StreamConfig) (*QueryResponse, error) {
	if err := checkSimpleStreamParams(config); err != nil {
		return nil, err
	}

	stream, err := c.StreamArrow(ctx, query, config)
	if err != nil {
		return nil, err
	}

	agg := &QueryResponse{}
	for item := range stream {
		if item.Err != nil {
			return nil, item.Err
		}
		resp := queryResponseFromArrow(item.Response)
		item.Response.Release()

		agg.Data.Blocks = append(agg.Data.Blocks, resp.Data.Blocks...)
		agg.Data.Transactions = append(agg.Data.Transactions, resp.Data.Transactions...)
		agg.Data.Logs = append(agg.Data.Logs, resp.Data.Logs...)
		agg.Data.Traces = append(agg.Data.Traces, resp.Data.Traces...)

		agg.ArchiveHeight = resp.ArchiveHeight
		agg.NextBlock = resp.NextBlock
		agg.TotalExecutionTime += resp.TotalExecutionTime
		if resp.RollbackGuard != nil {
			agg.RollbackGuard = resp.RollbackGuard
		}
	}
	return agg, nil
}

// CollectEvents drains an event stream into a single aggregated response.
// The field selection is augmented with the join columns first.
func (c *Client) CollectEvents(ctx context.Context, query *Query, config StreamConfig) (*EventResponse, error) {
	if err := checkSimpleStreamParams(config); err != nil {
		return nil, err
	}
	if err := validateQuery(query); err != nil {
		return nil, err
	}

	q := *query
	addEventJoinFields(&q)

	stream, err := c.StreamArrow(ctx, &q, config)
	if err != nil {
		return nil, err
	}

	agg := &EventResponse{}
	for item := range stream {
		if item.Err != nil {
			return nil, item.Err
		}
		resp := eventResponseFromArrow(item.Response)
		item.Response.Release()

		agg.Data = append(agg.Data, resp.Data...)
		agg.ArchiveHeight = resp.ArchiveHeight
		agg.NextBlock = resp.NextBlock
		agg.TotalExecutionTime += resp.TotalExecutionTime
		if resp.RollbackGuard != nil {
			agg.RollbackGuard = resp.RollbackGuard
		}
	}
	return agg, nil
}

// CollectArrow drains a raw columnar stream into a single aggregated
// response. The caller owns the record batches and must release them.
func (c *Client) CollectArrow(ctx context.Context, query *Query, config StreamConfig) (*ArrowResponse, error) {
	stream, err := c.StreamArrow(ctx, query, config)
	if err != nil {
		return nil, err
	}

	agg := &ArrowResponse{}
	for item := range stream {
		if item.Err != nil {
			agg.Release()
			return nil, item.Err
		}
		resp := item.Response

		agg.Data.Blocks = append(agg.Data.Blocks, resp.Data.Blocks...)
		agg.Data.Transactions = append(agg.Data.Transactions, resp.Data.Transactions...)
		agg.Data.Logs = append(agg.Data.Logs, resp.Data.Logs...)
		agg.Data.Traces = append(agg.Data.Traces, resp.Data.Traces...)
		agg.Data.DecodedLogs = append(agg.Data.DecodedLogs, resp.Data.DecodedLogs...)

		agg.ArchiveHeight = resp.ArchiveHeight
		agg.NextBlock = resp.NextBlock
		agg.TotalExecutionTime += resp.TotalExecutionTime
		if resp.RollbackGuard != nil {
			agg.RollbackGuard = resp.RollbackGuard
		}
	}
	return agg, nil
}
