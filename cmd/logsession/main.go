// Command logsession is a minimal stand-in for the out-of-scope CLI
// interpreter (spec §1's Non-goals): it wires a single Session through
// the same observe/search/grab/concat/merge operations an embedder would
// drive programmatically, one operation per invocation, for manual
// smoke-testing of the engine outside a test binary.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/google/uuid"

	"github.com/loglens/obscore/internal/config"
	"github.com/loglens/obscore/internal/mapindex"
	"github.com/loglens/obscore/internal/session"
	"github.com/loglens/obscore/internal/types"
	"github.com/loglens/obscore/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "logsession",
		Usage:   "drive a single log-inspection session from the command line",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "scratch-dir",
				Usage: "directory for session scratch files (defaults to the OS temp dir)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "set the session's debug flag (SetDebug); engine debug output is not affected",
			},
		},
		Commands: []*cli.Command{
			observeCommand,
			searchCommand,
			grabCommand,
			concatCommand,
			mergeCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "logsession:", err)
		os.Exit(1)
	}
}

func openSession(c *cli.Context) (*session.Session, error) {
	cfg := config.Default()
	if dir := c.String("scratch-dir"); dir != "" {
		cfg.Scratch.Dir = dir
	}
	s, err := session.Open(uuid.New(), cfg, session.RuntimeContext{})
	if err != nil {
		return nil, err
	}
	s.SetDebug(c.Bool("debug"))
	return s, nil
}

// runUntilDone submits submit against a fresh operation id, prints every
// event as one JSON line to stdout, and returns once that operation's
// OperationDone or OperationError event has been printed, or ctx is
// cancelled first (SIGINT/SIGTERM during a long observe).
func runUntilDone(ctx context.Context, s *session.Session, submit func(id types.OperationID)) error {
	id := uuid.New()
	submit(id)

	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return nil
			}
			printEvent(ev)
			if ev.OpID == id && (ev.Kind == session.EventOperationDone || ev.Kind == session.EventOperationError) {
				return nil
			}
		case <-ctx.Done():
			s.Stop(uuid.New(), id)
			return ctx.Err()
		}
	}
}

func printEvent(ev session.Event) {
	out, err := json.Marshal(map[string]any{
		"kind":   ev.Kind,
		"op_id":  ev.OpID.String(),
		"rows":   ev.Rows,
		"result": ev.Result,
		"error":  ev.Message,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logsession: marshal event:", err)
		return
	}
	fmt.Println(string(out))
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

var observeCommand = &cli.Command{
	Name:  "observe",
	Usage: "observe a source described by a KDL document and stream it to the session's content file",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "source-file", Usage: "path to a KDL file describing the source", Required: true},
	},
	Action: func(c *cli.Context) error {
		desc, err := os.ReadFile(c.String("source-file"))
		if err != nil {
			return err
		}
		s, err := openSession(c)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		err = runUntilDone(ctx, s, func(id types.OperationID) {
			s.Observe(id, string(desc))
		})
		s.End(uuid.New())
		for range s.Events() {
		}
		return err
	},
}

var searchCommand = &cli.Command{
	Name:  "search",
	Usage: "apply a disjunction of filters against an already-observed session text file",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "content-file", Usage: "pre-populated session text file to search over", Required: true},
		&cli.StringSliceFlag{Name: "filter", Usage: "repeatable filter value; prefix with re: for regex", Required: true},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		if err := seedContentFile(s, c.String("content-file")); err != nil {
			return err
		}
		filters := parseFilters(c.StringSlice("filter"))
		ctx, cancel := signalContext()
		defer cancel()
		err = runUntilDone(ctx, s, func(id types.OperationID) {
			s.ApplySearch(id, filters)
		})
		s.End(uuid.New())
		for range s.Events() {
		}
		return err
	},
}

var grabCommand = &cli.Command{
	Name:  "grab",
	Usage: "grab a row range from an already-observed session text file",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "content-file", Usage: "pre-populated session text file to grab from", Required: true},
		&cli.Uint64Flag{Name: "start", Usage: "first row to grab"},
		&cli.Uint64Flag{Name: "end", Usage: "last row to grab (inclusive)"},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		if err := seedContentFile(s, c.String("content-file")); err != nil {
			return err
		}
		elems, err := s.Grab(mapindex.RowRange{Start: c.Uint64("start"), End: c.Uint64("end")})
		s.End(uuid.New())
		for range s.Events() {
		}
		if err != nil {
			return err
		}
		for _, e := range elems {
			fmt.Printf("%d\t%s\n", e.Position, e.Content)
		}
		return nil
	},
}

var concatCommand = &cli.Command{
	Name:      "concat",
	Usage:     "byte-concatenate every file matched by the given glob patterns, in order",
	ArgsUsage: "<pattern>...",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Required: true},
		&cli.BoolFlag{Name: "append"},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		err = runUntilDone(ctx, s, func(id types.OperationID) {
			s.Concat(id, c.Args().Slice(), c.String("out"), c.Bool("append"))
		})
		s.End(uuid.New())
		for range s.Events() {
		}
		return err
	},
}

var mergeCommand = &cli.Command{
	Name:      "merge",
	Usage:     "chronologically interleave every file matched by the given glob patterns",
	ArgsUsage: "<pattern>...",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "out", Required: true},
		&cli.BoolFlag{Name: "append"},
	},
	Action: func(c *cli.Context) error {
		s, err := openSession(c)
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()
		err = runUntilDone(ctx, s, func(id types.OperationID) {
			s.Merge(id, c.Args().Slice(), c.String("out"), c.Bool("append"))
		})
		s.End(uuid.New())
		for range s.Events() {
		}
		return err
	},
}

// seedContentFile points a fresh session's Observe at a pre-existing file
// so search/grab have something to work from — search and grab alone
// never populate the session text file themselves.
func seedContentFile(s *session.Session, path string) error {
	desc := fmt.Sprintf(`source "file" {
    path %q
    parser "text"
}`, path)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return runUntilDone(ctx, s, func(id types.OperationID) {
		s.Observe(id, desc)
	})
}

func parseFilters(raw []string) []types.Filter {
	filters := make([]types.Filter, 0, len(raw))
	for _, v := range raw {
		f := types.Filter{Value: v, CaseSensitive: true}
		if len(v) > 3 && v[:3] == "re:" {
			f.Value = v[3:]
			f.IsRegex = true
		}
		filters = append(filters, f)
	}
	return filters
}
