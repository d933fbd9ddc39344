package config

type Logger struct {
	// "debug" "info" "warn" "error", default "info"
	Level string `yaml:"level"`
	// Add the source code position of the log statement
	Source bool `yaml:"source"`
}
