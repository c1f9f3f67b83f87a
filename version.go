package toolmesh

// Version information for the ToolMesh framework
const (
	// Version is the current framework version
	Version = "development"

	// APIVersion is the current API version
	APIVersion = "v1alpha1"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
