package config

// ServerConfig holds configuration for the seqflow server.
type ServerConfig struct {
	Addr      string // Listen address (default ":8080")
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: text, json
	DBPath    string // SQLite database path (default ~/.seqflow/seqflow.db, ":memory:" for testing)
	OutDir    string // Root directory for invocation work dirs
	MaxJobs   int    // Concurrent task limit per invocation (0 = NumCPU)
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		OutDir:    "./seqflow-output",
	}
}
