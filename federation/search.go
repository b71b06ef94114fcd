package federation

import (
	"context"
	"fmt"

	db "github.com/spatialgrid/stac-federator/interface/database"
	"github.com/spatialgrid/stac-federator/service/geometry"
	"github.com/spatialgrid/stac-federator/service/temporal"
)

// SearchGroup is the set of matching collections of one catalog
type SearchGroup struct {
	Catalog     db.Catalog      `json:"catalog"`
	Collections []db.Collection `json:"collections"`
}

// FindCollections returns the indexed collections intersecting bbox and
// compatible with the time interval ("", "start/end", "../end", an
// instant, ...), grouped by catalog.
// catalogID [optional=nil] restricts to one catalog (which must exist).
func (f *Federation) FindCollections(ctx context.Context, bbox []float64, timeInterval string, catalogID *int) ([]SearchGroup, error) {
	if catalogID != nil {
		if _, err := f.Backend.Catalog(ctx, *catalogID); err != nil {
			return nil, fmt.Errorf("FindCollections.%w", err)
		}
	}

	polygon, err := geometry.PolygonFromBBox(bbox)
	if err != nil {
		return nil, fmt.Errorf("FindCollections.%w", err)
	}
	start, end, err := temporal.ParseQueryInterval(timeInterval)
	if err != nil {
		return nil, fmt.Errorf("FindCollections.%w", err)
	}

	collections, err := f.Backend.SearchCollections(ctx, geometry.EWKT(polygon), start, end, catalogID)
	if err != nil {
		return nil, fmt.Errorf("FindCollections.%w", err)
	}

	// Group by catalog
	groups := []SearchGroup{}
	index := map[int]int{}
	for _, collection := range collections {
		i, ok := index[collection.CatalogID]
		if !ok {
			catalog, err := f.Backend.Catalog(ctx, collection.CatalogID)
			if err != nil {
				return nil, fmt.Errorf("FindCollections.%w", err)
			}
			i = len(groups)
			index[collection.CatalogID] = i
			groups = append(groups, SearchGroup{Catalog: catalog})
		}
		groups[i].Collections = append(groups[i].Collections, collection)
	}
	return groups, nil
}
