package db

import (
	"fmt"

	"github.com/patrickwarner/flagdesk/internal/config"
	"github.com/patrickwarner/flagdesk/internal/models"
)

// OpenStore returns the flag store selected by cfg.Store. The returned close
// function releases any connections and is safe to call once.
func OpenStore(cfg config.Config) (models.FlagStore, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return models.NewInMemoryFlagStore(), func() {}, nil
	case config.StorePostgres, "":
		pg, err := InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown store %q", cfg.Store)
}
