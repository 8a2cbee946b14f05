package config

// Option adjusts how Load locates configuration.
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile loads path instead of searching the default locations.
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix replaces the PERFD environment prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}
