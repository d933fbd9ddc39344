package config

type Pool struct {
	// Read and write buffer size
	Size int `yaml:"size"`
	// How many buffers to cache in a channel before falling back to
	// the runtime pool
	Cache int `yaml:"cache"`
}
