package federation

import (
	"context"
	"fmt"

	"github.com/spatialgrid/stac-federator/federation/stac"
	"github.com/spatialgrid/stac-federator/service"
	"github.com/spatialgrid/stac-federator/service/log"
)

// Harvest returns the non-empty, browsable collections of the catalog.
// A collection without an items link, with an inaccessible or empty
// items endpoint or with any other per-collection failure is skipped,
// it never aborts the batch.
func (f *Federation) Harvest(ctx context.Context, catalogURL string) ([]stac.Collection, error) {
	url := service.TrimURL(catalogURL)

	var list stac.CollectionList
	if err := f.getJSON(ctx, url+"/collections", &list); err != nil {
		return nil, fmt.Errorf("Harvest.%w", err)
	}

	collections := make([]stac.Collection, 0, len(list.Collections))
	for _, collection := range list.Collections {
		itemsLink := collection.ItemsLink()
		if itemsLink == "" {
			log.Logger(ctx).Sugar().Debugf("skip collection without items link: %s", collection.ID)
			continue
		}
		var features stac.FeatureCollection
		if err := f.getJSON(ctx, itemsLink, &features); err != nil {
			log.Logger(ctx).Sugar().Warnf("skip collection %s: %v", collection.ID, err)
			continue
		}
		if len(features.Features) == 0 {
			log.Logger(ctx).Sugar().Debugf("skip empty collection: %s", collection.ID)
			continue
		}
		collections = append(collections, collection)
	}
	return collections, nil
}
