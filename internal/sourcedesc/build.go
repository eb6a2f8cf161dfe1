package sourcedesc

import (
	"fmt"
	"time"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/logparse"
	"github.com/loglens/obscore/internal/source"
)

// Built is the concrete pair an Observe call drives: a Source to read
// bytes from and the Parser that decodes them into records.
type Built struct {
	Source source.Source
	Parser logparse.Parser
}

// Build constructs the Source + Parser pair described by d. Reconnect
// only applies to tcp; file/udp/serial/process are deliberately
// non-reconnectable, matching the adapters built in internal/source.
func Build(d *Descriptor) (*Built, error) {
	parser, err := buildParser(d.Parser)
	if err != nil {
		return nil, err
	}

	switch d.Kind {
	case "file":
		if d.Path == "" {
			return nil, errkind.InvalidArgs("sourcedesc.Build", fmt.Errorf("file source requires a path"))
		}
		src, err := source.NewFileSource(d.Path, source.FileSourceConfig{
			RingBufferCapacity: d.RingBufferCapacity,
			ReadChunkSize:      d.ReadChunkSize,
			Follow:             d.Follow,
		})
		if err != nil {
			return nil, err
		}
		return &Built{Source: src, Parser: parser}, nil

	case "tcp":
		if d.Address == "" {
			return nil, errkind.InvalidArgs("sourcedesc.Build", fmt.Errorf("tcp source requires an address"))
		}
		observer := make(chan source.StateTransition, 8)
		src, err := source.NewTCPSource(source.TCPConfig{
			Address:            d.Address,
			RingBufferCapacity: d.RingBufferCapacity,
			ReadChunkSize:      d.ReadChunkSize,
			Reconnect: source.ReconnectPolicy{
				MaxAttempts: d.ReconnectMaxAttempts,
				Interval:    time.Duration(d.ReconnectIntervalMs) * time.Millisecond,
			},
		}, observer)
		if err != nil {
			return nil, err
		}
		return &Built{Source: src, Parser: parser}, nil

	case "udp":
		if d.Address == "" {
			return nil, errkind.InvalidArgs("sourcedesc.Build", fmt.Errorf("udp source requires an address"))
		}
		src, err := source.NewUDPSource(source.UDPConfig{
			Address:            d.Address,
			RingBufferCapacity: d.RingBufferCapacity,
			ReadChunkSize:      d.ReadChunkSize,
		})
		if err != nil {
			return nil, err
		}
		return &Built{Source: src, Parser: parser}, nil

	case "process":
		if d.Command == "" {
			return nil, errkind.InvalidArgs("sourcedesc.Build", fmt.Errorf("process source requires a command"))
		}
		src, err := source.NewProcessSource(source.ProcessConfig{
			Command:            d.Command,
			Args:               d.Args,
			RingBufferCapacity: d.RingBufferCapacity,
			ReadChunkSize:      d.ReadChunkSize,
		})
		if err != nil {
			return nil, err
		}
		return &Built{Source: src, Parser: parser}, nil

	case "serial":
		return nil, errkind.Unsupported("sourcedesc.Build", fmt.Errorf("serial source requires a caller-opened handle; use source.NewSerialSource directly"))

	default:
		return nil, errkind.InvalidArgs("sourcedesc.Build", fmt.Errorf("unknown source kind %q", d.Kind))
	}
}

func buildParser(kind string) (logparse.Parser, error) {
	switch kind {
	case "", "text":
		return logparse.NewTextParser(), nil
	case "dlt":
		return logparse.NewDLTParser(), nil
	default:
		return nil, errkind.InvalidArgs("sourcedesc.buildParser", fmt.Errorf("unknown parser kind %q", kind))
	}
}
