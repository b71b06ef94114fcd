// Package federation discovers public STAC catalogs, indexes their
// collections into the local database and answers extent searches.
package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	db "github.com/spatialgrid/stac-federator/interface/database"
	"github.com/spatialgrid/stac-federator/interface/directory/stacindex"
	"github.com/spatialgrid/stac-federator/interface/searchindex"
)

const defaultDiscoveryWorkers = 4

type Federation struct {
	Backend     db.FederationDBBackend
	Directory   stacindex.Directory
	SearchIndex searchindex.Client
	// Timeout of one probe/harvest HTTP call (0: no timeout)
	HTTPTimeout time.Duration
	// Size of the discovery worker pool (default: 4)
	DiscoveryWorkers int
}

func (f *Federation) workers() int {
	if f.DiscoveryWorkers <= 0 {
		return defaultDiscoveryWorkers
	}
	return f.DiscoveryWorkers
}

// getJSON fetches url and decodes the body into v. Not-200 is an error.
func (f *Federation) getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	client := http.Client{Timeout: f.HTTPTimeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("get %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("get %s: %w (response: %s)", url, err, body)
	}
	return nil
}

// RegisterCatalog creates the catalog, reusing an existing entry with the same url
func (f *Federation) RegisterCatalog(ctx context.Context, name, url, description string) (db.Catalog, error) {
	catalog, err := f.Backend.CreateCatalog(ctx, name, url, description)
	if err != nil {
		var errAE db.ErrAlreadyExists
		if !errors.As(err, &errAE) {
			return db.Catalog{}, fmt.Errorf("RegisterCatalog.%w", err)
		}
		if catalog, err = f.Backend.CatalogByURL(ctx, url); err != nil {
			return db.Catalog{}, fmt.Errorf("RegisterCatalog.%w", err)
		}
	}
	return catalog, nil
}

// DeleteCollection removes the collection together with its stored
// search parameters, then removes it from the external search index
func (f *Federation) DeleteCollection(ctx context.Context, catalogID int, collectionID string) (db.Collection, error) {
	collection, err := f.Backend.DeleteCollection(ctx, catalogID, collectionID)
	if err != nil {
		return collection, fmt.Errorf("DeleteCollection.%w", err)
	}
	if _, err := f.Backend.DeleteSearchParametersByCollection(ctx, collectionID); err != nil {
		return collection, fmt.Errorf("DeleteCollection.%w", err)
	}
	if err := f.SearchIndex.RemoveCollection(ctx, collectionID); err != nil {
		return collection, fmt.Errorf("DeleteCollection.%w", err)
	}
	return collection, nil
}
