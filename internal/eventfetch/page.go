package eventfetch

import (
	"context"
	"fmt"

	"chainforge/internal/starknetrpc"
	"chainforge/pkg/felt"
)

// PageFilter is a single get_events request as internal/rpc's surface
// receives it.
type PageFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Address   *felt.Felt
	Keys      [][]felt.Felt
	ChunkSize int
}

// PageResult is one page of a paginated get_events response.
type PageResult struct {
	Events    []starknetrpc.RawEvent
	NextToken string
	HasNext   bool
}

func (f PageFilter) toRPCFilter(from, to uint64, continuation string) starknetrpc.EventFilter {
	rf := starknetrpc.EventFilter{
		FromBlock:    starknetrpc.ByNumber(from),
		ToBlock:      starknetrpc.ByNumber(to),
		Continuation: continuation,
		ChunkSize:    f.ChunkSize,
	}
	if f.Address != nil {
		rf.Address = f.Address.Hex()
	}
	for _, group := range f.Keys {
		row := make([]string, len(group))
		for i, k := range group {
			row[i] = k.Hex()
		}
		rf.Keys = append(rf.Keys, row)
	}
	return rf
}

// GetEventsPage serves one page of a get_events request,
// applying the forked-event-merging rule: while the requested range still
// overlaps [.., forkPoint], the upstream client answers it and its own
// continuation token is round-tripped to the caller wrapped in a Forked
// token. Once the upstream side is exhausted, the local client takes over
// starting at forkPoint+1, filling out the remainder of the same page
// before returning. forkPoint == nil means there is no fork: every request
// goes straight to local.
func GetEventsPage(ctx context.Context, local, upstream Client, forkPoint *uint64, filter PageFilter, incoming string, maxPageSize int) (PageResult, error) {
	tok, err := ParseToken(incoming)
	if err != nil {
		return PageResult{}, err
	}

	servesForked := forkPoint != nil && filter.FromBlock <= *forkPoint && (tok == Token{} || tok.Forked)
	if servesForked {
		upstreamTo := filter.ToBlock
		if upstreamTo > *forkPoint {
			upstreamTo = *forkPoint
		}
		rf := filter.toRPCFilter(filter.FromBlock, upstreamTo, tok.Inner)
		pages, err := upstream.BatchGetEvents(ctx, []starknetrpc.EventFilter{rf})
		if err != nil {
			return PageResult{}, fmt.Errorf("eventfetch: forked get_events: %w", err)
		}
		page := pages[0]
		events := capPage(page.Events, maxPageSize)

		if page.ContinuationToken != "" {
			return PageResult{Events: events, NextToken: Token{Forked: true, Inner: page.ContinuationToken}.Encode(), HasNext: true}, nil
		}
		if len(events) >= maxPageSize {
			return PageResult{Events: events, NextToken: "", HasNext: false}, nil
		}
		// Forked range exhausted with capacity to spare: continue into the
		// local range starting at forkPoint+1, filling the same page.
		remaining := maxPageSize - len(events)
		localFrom := *forkPoint + 1
		if localFrom > filter.ToBlock {
			return PageResult{Events: events, NextToken: "", HasNext: false}, nil
		}
		rf = filter.toRPCFilter(localFrom, filter.ToBlock, "")
		rf.ChunkSize = remaining
		localPages, err := local.BatchGetEvents(ctx, []starknetrpc.EventFilter{rf})
		if err != nil {
			return PageResult{}, fmt.Errorf("eventfetch: local get_events: %w", err)
		}
		localPage := localPages[0]
		localEvents := capPage(localPage.Events, remaining)
		events = append(events, localEvents...)
		if localPage.ContinuationToken != "" {
			return PageResult{Events: events, NextToken: Token{Forked: false, Inner: localPage.ContinuationToken}.Encode(), HasNext: true}, nil
		}
		return PageResult{Events: events, NextToken: "", HasNext: false}, nil
	}

	from := filter.FromBlock
	if forkPoint != nil && from <= *forkPoint {
		from = *forkPoint + 1
	}
	rf := filter.toRPCFilter(from, filter.ToBlock, tok.Inner)
	rf.ChunkSize = maxPageSize
	pages, err := local.BatchGetEvents(ctx, []starknetrpc.EventFilter{rf})
	if err != nil {
		return PageResult{}, fmt.Errorf("eventfetch: local get_events: %w", err)
	}
	page := pages[0]
	events := capPage(page.Events, maxPageSize)
	if page.ContinuationToken == "" {
		return PageResult{Events: events, NextToken: "", HasNext: false}, nil
	}
	return PageResult{Events: events, NextToken: Token{Forked: false, Inner: page.ContinuationToken}.Encode(), HasNext: true}, nil
}

func capPage(events []starknetrpc.RawEvent, max int) []starknetrpc.RawEvent {
	if max <= 0 || len(events) <= max {
		return events
	}
	return events[:max]
}
