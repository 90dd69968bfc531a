// Package buildinfo holds build-time metadata kept apart from user configuration.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not set at build time.
const UnknownValue = "unknown"

// Context contains metadata injected at startup through -ldflags.
type Context struct {
	version   string
	buildDate string
	nodeID    string
}

// NewContext returns build metadata for this binary. nodeID is the configured
// node identifier and may be filled in after settings are loaded.
func NewContext(version, buildDate, nodeID string) *Context {
	return &Context{version: version, buildDate: buildDate, nodeID: nodeID}
}

// Version returns the Git version tag from the build.
func (c *Context) Version() string {
	if c == nil || c.version == "" {
		return UnknownValue
	}
	return c.version
}

// BuildDate returns the time the binary was built.
func (c *Context) BuildDate() string {
	if c == nil || c.buildDate == "" {
		return UnknownValue
	}
	return c.buildDate
}

// NodeID returns the node identifier attached to telemetry.
func (c *Context) NodeID() string {
	if c == nil || c.nodeID == "" {
		return UnknownValue
	}
	return c.nodeID
}

// SetNodeID records the configured node identifier.
func (c *Context) SetNodeID(id string) {
	if c != nil {
		c.nodeID = id
	}
}

// Release returns the release name reported to error tracking.
func (c *Context) Release() string {
	return "voicetrigger@" + c.Version()
}

func (c *Context) String() string {
	return fmt.Sprintf("voicetrigger %s (built %s)", c.Version(), c.BuildDate())
}
