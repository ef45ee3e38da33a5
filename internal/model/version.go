package model

// EngineVersion is the sportorg release version, reported by --version and
// the health endpoint.
const EngineVersion = "0.1.0"
