package federation

import (
	"context"

	"github.com/spatialgrid/stac-federator/federation/stac"
	"github.com/spatialgrid/stac-federator/service"
	"github.com/spatialgrid/stac-federator/service/log"
)

// Probe reports whether the catalog at url is a publicly accessible,
// searchable STAC API: its collection listing is non-empty and a search
// with limit=1 returns exactly one feature. Any failure excludes the
// candidate, a probe is never retried.
func (f *Federation) Probe(ctx context.Context, url string) bool {
	url = service.TrimURL(url)

	var list stac.CollectionList
	if err := f.getJSON(ctx, url+"/collections", &list); err != nil {
		log.Logger(ctx).Sugar().Debugf("probe: %v", err)
		return false
	}
	if len(list.Collections) == 0 {
		log.Logger(ctx).Sugar().Debugf("probe %s: no collections", url)
		return false
	}

	var features stac.FeatureCollection
	if err := f.getJSON(ctx, url+"/search?limit=1", &features); err != nil {
		log.Logger(ctx).Sugar().Debugf("probe: %v", err)
		return false
	}
	if len(features.Features) != 1 {
		log.Logger(ctx).Sugar().Debugf("probe %s: search returned %d features", url, len(features.Features))
		return false
	}
	return true
}
