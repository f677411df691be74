package metrics

import (
	"net"

	"codeberg.org/mutker/excavatorctl/internal/errors"
)

const defaultNamespace = "excavatorctl"

type Config struct {
	// Address is the host:port the /metrics endpoint listens on.
	Address   string
	Namespace string
	Enabled   bool
}

func DefaultConfig() Config {
	return Config{
		Namespace: defaultNamespace,
		Enabled:   false, // Disabled by default
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	// Only validate the address if metrics are enabled
	if !c.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errFactory.Wrap(ErrInvalidAddress, err)
	}
	return nil
}
