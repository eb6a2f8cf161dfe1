package session

// Tracker is the out-of-process job-tracking collaborator the original's
// unbound/tracker.rs exposes to a host runtime. The core never needs more
// than a fire-and-forget hook; a nil Tracker on RuntimeContext is valid
// and simply means no external tracker is mounted.
type Tracker interface {
	TrackOperation(label string)
}

// PluginProvider is the plugin-host collaborator of spec §1 ("the
// plugin-host that loads third-party parsers"), named here only so a
// caller can mount one — resolving a parser descriptor's "kind" to a
// dynamically loaded Parser is entirely outside this package's scope.
type PluginProvider interface {
	ResolveParser(kind string) (any, bool)
}

// RuntimeContext carries the process-wide collaborator handles a Session
// needs without resorting to package-level singletons (spec §9 design
// note: "pass an explicit RuntimeContext into the session constructor;
// mount tracker and plugin-manager handles on it"). Every field is
// optional; the zero value is a valid, fully self-contained runtime.
type RuntimeContext struct {
	Tracker Tracker
	Plugins PluginProvider
}
