package cli

import (
	"fmt"

	"github.com/objectionary/eoprobe/internal/catalog"
	"github.com/objectionary/eoprobe/internal/catalog/sqlite"
	"github.com/objectionary/eoprobe/internal/config"
)

// storeHandle is an opened catalog. Save persists pending changes; Close
// releases the backend. File catalogs only change on disk in Save.
type storeHandle struct {
	catalog.Store
	save  func() error
	close func() error
}

func (h *storeHandle) Save() error {
	if h.save == nil {
		return nil
	}
	return h.save()
}

func (h *storeHandle) Close() error {
	if h.close == nil {
		return nil
	}
	return h.close()
}

func openStore(s config.Settings) (*storeHandle, error) {
	switch s.Store {
	case config.StoreFile:
		f, err := catalog.Open(s.Catalog)
		if err != nil {
			return nil, err
		}
		return &storeHandle{Store: f, save: f.Flush}, nil
	case config.StoreSQLite:
		db, err := sqlite.Open(s.Catalog)
		if err != nil {
			return nil, err
		}
		return &storeHandle{Store: db, close: db.Close}, nil
	default:
		return nil, fmt.Errorf("unknown store %q", s.Store)
	}
}
