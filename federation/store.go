package federation

import (
	"context"
	"errors"
	"fmt"

	"github.com/spatialgrid/stac-federator/federation/stac"
	db "github.com/spatialgrid/stac-federator/interface/database"
	"github.com/spatialgrid/stac-federator/service/geometry"
	"github.com/spatialgrid/stac-federator/service/log"
	"github.com/spatialgrid/stac-federator/service/temporal"
)

const defaultCollectionType = "Collection"

// normalizeCollection converts a harvested collection into its database
// row: bboxes become one multipolygon, the temporal interval becomes a
// pair of optional timestamps.
func normalizeCollection(catalogID int, collection stac.Collection) (db.Collection, error) {
	start, end := collection.TemporalInterval()
	tstart, tend, err := temporal.ParseInterval(start, end)
	if err != nil {
		return db.Collection{}, fmt.Errorf("collection %s: %w", collection.ID, err)
	}
	extent, err := geometry.MultiPolygonFromBBoxes(collection.Extent.Spatial.BBox)
	if err != nil {
		return db.Collection{}, fmt.Errorf("collection %s: %w", collection.ID, err)
	}

	c := db.Collection{
		CatalogID:          catalogID,
		ID:                 collection.ID,
		Type:               defaultCollectionType,
		SpatialExtent:      geometry.EWKT(extent),
		TemporalExtentFrom: tstart,
		TemporalExtentTo:   tend,
	}
	if collection.Type != "" {
		c.Type = collection.Type
	}
	if collection.Title != "" {
		c.Title = &collection.Title
	}
	if collection.Description != "" {
		c.Description = &collection.Description
	}
	return c, nil
}

// StoreCollections upserts the harvested collections of the catalog and
// returns the number of rows written. A temporal-parse failure commits
// the progress already staged and surfaces, any other per-collection
// error only skips that collection. The (catalog, id) unique constraint
// backstops concurrent writers.
func (f *Federation) StoreCollections(ctx context.Context, catalog db.Catalog, collections []stac.Collection) (int, error) {
	count := 0
	var abortErr error
	err := db.UnitOfWork(ctx, f.Backend, func(tx db.FederationTxBackend) error {
		for _, collection := range collections {
			c, err := normalizeCollection(catalog.ID, collection)
			if err != nil {
				if errors.Is(err, temporal.ErrConvertingTimestamp) {
					abortErr = err
					return nil
				}
				log.Logger(ctx).Sugar().Warnf("skip collection %s: %v", collection.ID, err)
				continue
			}
			if err := upsertCollection(ctx, tx, c); err != nil {
				return fmt.Errorf("StoreCollections.%w", err)
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if abortErr != nil {
		return count, fmt.Errorf("StoreCollections.%w", abortErr)
	}
	return count, nil
}

func upsertCollection(ctx context.Context, tx db.FederationTxBackend, c db.Collection) error {
	_, err := tx.Collection(ctx, c.CatalogID, c.ID)
	switch {
	case err == nil:
		log.Logger(ctx).Sugar().Debugf("update collection %s", c.ID)
		return tx.UpdateCollection(ctx, c)
	case errors.As(err, &db.ErrNotFound{}):
		log.Logger(ctx).Sugar().Debugf("create collection %s", c.ID)
		if err := tx.CreateCollection(ctx, c); err != nil {
			// a concurrent writer won the insert
			if errors.As(err, &db.ErrAlreadyExists{}) {
				return tx.UpdateCollection(ctx, c)
			}
			return err
		}
		return nil
	default:
		return err
	}
}
