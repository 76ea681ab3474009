package hare

// Config holds the broker settings shared by every connection a Client
// opens. Zero-value fields fall back to the broker defaults (localhost:5672,
// guest/guest, vhost "/").
type Config struct {
	// Enabled is the global messaging switch. When false, every connection
	// handle the client hands out is disabled: no dialing happens and all
	// broker operations become no-ops.
	Enabled bool

	// Host is the broker address as host:port.
	Host string

	// User and Password authenticate against the broker.
	User     string
	Password string

	// VHost is the broker virtual host.
	VHost string

	// Extra carries additional connection parameters that participate in
	// connection identity, such as heartbeat or TLS settings.
	Extra map[string]string
}

// DefaultConfig returns a config with messaging enabled and every broker
// setting left to its default.
func DefaultConfig() Config {
	return Config{Enabled: true}
}
