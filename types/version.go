package types

// Version is the canonical project version.
// The CLI, the IPC protocol and the wire records share it.
const Version = "0.3.0"

// IPCProtocolVersion is bumped whenever the ipc frame shapes change.
const IPCProtocolVersion = 1
