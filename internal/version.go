package internal

// SDKName is the last part of the default client identity (see
// defaultIdentity in client.go), which requests carry in their identity
// field. SDKVersion is not sent on any request.
const (
	SDKName    = "temporal-community-gosdk"
	SDKVersion = "0.1.0"

	// CommandProtocolVersion names the activation/command vocabulary this
	// module speaks, independent of SDKVersion. Nothing in this module
	// reads it.
	CommandProtocolVersion = "1"
)
