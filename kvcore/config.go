package kvcore

// BaseConfig contains shared, backend-agnostic driver configuration.
type BaseConfig struct {
	// Prefix namespaces keys on shared backends. Empty keeps keys verbatim.
	Prefix string
}

// Key applies prefix to key using the ":" separator.
func (c BaseConfig) Key(key string) string {
	if c.Prefix == "" {
		return key
	}
	return c.Prefix + ":" + key
}
