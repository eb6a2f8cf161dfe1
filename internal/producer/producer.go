// Package producer implements the MessageProducer of spec §4.3: it
// drives a source→parser loop and emits a stream of
// (bytes_consumed, Item|Skipped|Done) to a bounded output channel, the
// channel itself providing the backpressure spec §5 requires ("the
// producer does not read faster than downstream writers accept").
//
// Per the Open Question resolution in DESIGN.md (spec §9 design note b),
// Incomplete is never surfaced as an event: the producer loops on it
// internally, calling Load again. Consecutive Skipped spans are coalesced
// into a single Skipped event emitted immediately before the next Item
// (or before Done, if the stream ends mid-skip).
package producer

import (
	"context"
	"time"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/logparse"
	"github.com/loglens/obscore/internal/source"
	"github.com/loglens/obscore/internal/types"
)

// EventKind discriminates one producer-emitted event.
type EventKind int

const (
	EventItem EventKind = iota
	EventSkipped
	EventDone
)

// Event is one item of the producer's output stream.
type Event struct {
	Kind     EventKind
	Consumed int          // bytes consumed from the source for this event
	Record   types.Record // valid only for EventItem
}

// Notifier is an optional capability a Source can implement to wake a
// producer that is waiting for more bytes, instead of it polling on a
// fixed timer. source.FileSource implements this via fsnotify.
type Notifier interface {
	Notify() <-chan struct{}
}

// Config tunes the producer's idle-wait behavior when a Load call
// reports no new bytes and the source is not exhausted.
type Config struct {
	QueueDepth   int
	PollInterval time.Duration
}

// Producer drives one source through one parser.
type Producer struct {
	src    source.Source
	parser logparse.Parser
	cfg    Config
	events chan Event
}

// New constructs a Producer. The returned Events channel has capacity
// cfg.QueueDepth (spec §5's bounded backpressure channel) and is closed
// when Run returns.
func New(src source.Source, parser logparse.Parser, cfg Config) *Producer {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &Producer{
		src:    src,
		parser: parser,
		cfg:    cfg,
		events: make(chan Event, cfg.QueueDepth),
	}
}

// Events returns the producer's output stream.
func (p *Producer) Events() <-chan Event {
	return p.events
}

// Run drives the loop until the parser reports Done, the source fails, or
// ctx is cancelled. It always closes the Events channel before returning.
func (p *Producer) Run(ctx context.Context) error {
	defer close(p.events)

	var skipped int
	final := false

	flushSkipped := func() error {
		if skipped == 0 {
			return nil
		}
		ev := Event{Kind: EventSkipped, Consumed: skipped}
		skipped = 0
		return p.emit(ctx, ev)
	}

	for {
		if err := ctx.Err(); err != nil {
			return errkind.Cancelled("producer.Run")
		}

		slice := p.src.CurrentSlice()
		res, err := p.parser.Parse(slice, final)
		if err != nil {
			return errkind.Parsing("producer.parse", err)
		}

		switch res.Kind {
		case logparse.KindItem:
			if err := flushSkipped(); err != nil {
				return err
			}
			if err := p.src.Consume(res.Consumed); err != nil {
				return err
			}
			if err := p.emit(ctx, Event{Kind: EventItem, Consumed: res.Consumed, Record: res.Record}); err != nil {
				return err
			}

		case logparse.KindSkipped:
			skipped += res.Consumed
			if err := p.src.Consume(res.Consumed); err != nil {
				return err
			}

		case logparse.KindDone:
			if err := flushSkipped(); err != nil {
				return err
			}
			return p.emit(ctx, Event{Kind: EventDone})

		case logparse.KindIncomplete:
			if final {
				return errkind.Parsing("producer.parse", errTruncatedTail)
			}
			loadRes, err := p.src.Load()
			if err != nil {
				return err
			}
			if loadRes.EOF {
				final = true
				continue
			}
			if loadRes.Info.NewlyLoaded == 0 {
				if err := p.idle(ctx); err != nil {
					return err
				}
			}
		}
	}
}

// emit sends ev, respecting cancellation so a blocked send on a full
// queue doesn't outlive the operation's token (spec §5 suspension-point
// rule).
func (p *Producer) emit(ctx context.Context, ev Event) error {
	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		return errkind.Cancelled("producer.emit")
	}
}

// idle waits briefly before the next Load attempt when the previous one
// returned no new bytes and the source isn't exhausted, preferring a
// source-provided Notify channel over a fixed poll interval.
func (p *Producer) idle(ctx context.Context) error {
	if notifier, ok := p.src.(Notifier); ok {
		select {
		case <-notifier.Notify():
			return nil
		case <-ctx.Done():
			return errkind.Cancelled("producer.idle")
		case <-time.After(p.cfg.PollInterval):
			return nil
		}
	}
	select {
	case <-ctx.Done():
		return errkind.Cancelled("producer.idle")
	case <-time.After(p.cfg.PollInterval):
		return nil
	}
}

type sentinelErr string

func (s sentinelErr) Error() string { return string(s) }

const errTruncatedTail = sentinelErr("truncated record at end of stream")
