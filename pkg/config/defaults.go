package config

// Default returns mfcd's built-in configuration, used when no config file is
// supplied and no environment variable overrides a field.
func Default() *Config {
	return &Config{
		SocketPath:  "/var/run/mfc_daemon.sock",
		StateFile:   "/var/lib/mfc_daemon/state.json",
		SocketGroup: "",
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
	}
}
