package writer

import (
	"context"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/mapindex"
	"github.com/loglens/obscore/internal/producer"
	"github.com/loglens/obscore/internal/types"
)

// StreamObserver is notified after the pipeline has durably applied one
// or more producer events and advanced the Map — the signal an Observe
// operation turns into a StreamUpdated(rows) event (spec §2).
type StreamObserver func(rowsTotal uint64)

// AttachmentObserver is notified each time a record's attachment payload
// is written (or de-duplicated against an existing blob) — the signal an
// Observe operation turns into an AttachmentsUpdated event (spec §6).
type AttachmentObserver func(att *types.Attachment)

// Pipeline drains a Producer's event stream into a TextWriter, an
// optional BinaryWriter, and the Map that indexes the text file, one
// record at a time. This is the "text writer + binary writer" stage of
// spec §2's data flow diagram.
type Pipeline struct {
	text   *TextWriter
	binary *BinaryWriter
	attach *AttachmentStore
	m      *mapindex.Map

	observers       []StreamObserver
	attachObservers []AttachmentObserver
}

// NewPipeline builds a pipeline over the given writers and map. binary
// and attach may be nil if the observed source carries no binary
// projection or attachments.
func NewPipeline(text *TextWriter, binary *BinaryWriter, attach *AttachmentStore, m *mapindex.Map) *Pipeline {
	return &Pipeline{text: text, binary: binary, attach: attach, m: m}
}

// OnStreamUpdated registers a callback fired after each record is
// durably written and the map advanced.
func (p *Pipeline) OnStreamUpdated(obs StreamObserver) {
	p.observers = append(p.observers, obs)
}

// OnAttachment registers a callback fired whenever a record's attachment
// payload is persisted (new or deduplicated).
func (p *Pipeline) OnAttachment(obs AttachmentObserver) {
	p.attachObservers = append(p.attachObservers, obs)
}

// Run drains events until the channel closes (producer.Run returned) or
// ctx is cancelled. It returns the first write error encountered, or nil
// if the stream drained to completion.
func (p *Pipeline) Run(ctx context.Context, events <-chan producer.Event) error {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := p.apply(ev); err != nil {
				return err
			}
		case <-ctx.Done():
			return errkind.Cancelled("writer.pipeline.Run")
		}
	}
}

func (p *Pipeline) apply(ev producer.Event) error {
	switch ev.Kind {
	case producer.EventItem:
		before := p.text.BytesOnDisk()
		after, err := p.text.Append(ev.Record.Text)
		if err != nil {
			return err
		}
		if p.binary != nil && len(ev.Record.Binary) > 0 {
			if _, err := p.binary.Append(ev.Record.Binary); err != nil {
				return err
			}
		}
		row := p.m.RowsTotal()
		p.m.Append(uint64(after-before), 1)
		if p.attach != nil && ev.Record.Attachment != nil {
			att, err := p.attach.Put(ev.Record.Attachment.Data, ev.Record.Attachment.Ext, row)
			if err != nil {
				return err
			}
			for _, obs := range p.attachObservers {
				obs(att)
			}
		}
		for _, obs := range p.observers {
			obs(p.m.RowsTotal())
		}
	case producer.EventSkipped, producer.EventDone:
		// Neither advances the row/byte map: Skipped bytes were never
		// framed as a record, and Done carries no payload.
	}
	return nil
}
