package output

// SecretSource resolves credentials that are kept out of config files.
type SecretSource interface {
	Get(key string) string
	FirstOf(keys ...string) string
}
