package navgraph

import "errors"

// Lookup and load failures. They all indicate a broken precomputation
// pipeline and callers are expected to abort rather than continue.
var (
	// ErrGraphLoad is returned when connectivity data is missing or malformed.
	ErrGraphLoad = errors.New("navgraph: connectivity load failed")

	// ErrUnknownScan is returned for scans that were not part of Build.
	ErrUnknownScan = errors.New("navgraph: unknown scan")

	// ErrUnknownViewpoint is returned when an endpoint is absent from the scan's graph.
	ErrUnknownViewpoint = errors.New("navgraph: unknown viewpoint")

	// ErrUnreachable is returned when two viewpoints lie in different components.
	ErrUnreachable = errors.New("navgraph: viewpoints are not connected")
)
