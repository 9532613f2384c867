package slugstore

import (
	"git.home.luguber.info/inful/buildworker/internal/config"
	"git.home.luguber.info/inful/buildworker/internal/foundation/errors"
)

// New returns the tier for cfg, or nil when the tier is disabled.
func New(cfg config.SlugStoreConfig) (Store, error) {
	if !cfg.Enabled {
		return nil, nil //nolint:nilnil // a disabled tier is not an error
	}
	switch cfg.Type {
	case config.SlugStoreFS:
		return NewFSStore(cfg.Root), nil
	case config.SlugStoreMinio:
		s, err := NewMinioStore(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.ConfigError("unknown slug store type").WithContext("type", string(cfg.Type)).Build()
	}
}
