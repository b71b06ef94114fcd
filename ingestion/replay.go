package ingestion

import (
	"context"
	"fmt"

	"github.com/spatialgrid/stac-federator/common"
	db "github.com/spatialgrid/stac-federator/interface/database"
	"github.com/spatialgrid/stac-federator/service"
	"github.com/spatialgrid/stac-federator/service/log"
)

// ForceUpdate re-dispatches each stored parameter set with the current
// target url and the update flag set. A record that cannot be replayed
// is skipped, never fatal to the batch.
func (d *Dispatcher) ForceUpdate(ctx context.Context, stored []db.SearchParameters) []int {
	ids := []int{}
	for _, p := range stored {
		parameters := p.Parameters.Clone()
		parameters[common.ParamTargetCatalogURL] = d.TargetURL
		parameters[common.ParamUpdate] = true
		sourceURL, _ := parameters[common.ParamSourceCatalogURL].(string)
		if sourceURL == "" {
			log.Logger(ctx).Sugar().Warnf("skip stored parameters %d: no source catalog url", p.ID)
			continue
		}
		id, err := d.dispatch(ctx, sourceURL, parameters)
		if err != nil {
			log.Logger(ctx).Sugar().Warnf("skip stored parameters %d: %v", p.ID, err)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// UpdateAll replays every stored parameter set
func (d *Dispatcher) UpdateAll(ctx context.Context) ([]int, error) {
	stored, err := d.Backend.AllSearchParameters(ctx)
	if err != nil {
		return nil, fmt.Errorf("UpdateAll.%w", err)
	}
	return d.ForceUpdate(ctx, stored), nil
}

// UpdateForCatalog replays the stored parameter sets of the catalog.
// With a non-empty collectionIDs filter, only the sets whose stored
// collection list intersects the filter are replayed.
func (d *Dispatcher) UpdateForCatalog(ctx context.Context, catalogID int, collectionIDs []string) ([]int, error) {
	if _, err := d.Backend.Catalog(ctx, catalogID); err != nil {
		return nil, fmt.Errorf("UpdateForCatalog.%w", err)
	}
	stored, err := d.Backend.SearchParametersByCatalog(ctx, catalogID)
	if err != nil {
		return nil, fmt.Errorf("UpdateForCatalog.%w", err)
	}
	if len(collectionIDs) > 0 {
		filtered := make([]db.SearchParameters, 0, len(stored))
		for _, p := range stored {
			if intersects(p.Parameters.Collections(), collectionIDs) {
				filtered = append(filtered, p)
			}
		}
		stored = filtered
	}
	return d.ForceUpdate(ctx, stored), nil
}

func intersects(a, b []string) bool {
	set := service.StringSet{}
	for _, s := range a {
		set.Push(s)
	}
	for _, s := range b {
		if set.Exists(s) {
			return true
		}
	}
	return false
}
