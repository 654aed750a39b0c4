package types

// Version is the canonical project version.
// The CLI and the collector share this version per the lockstep
// versioning policy.
const Version = "0.2.0"

// RawCrashVersion is the schema version recorded in every stored raw crash.
const RawCrashVersion = 2
