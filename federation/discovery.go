package federation

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spatialgrid/stac-federator/interface/directory/stacindex"
	"github.com/spatialgrid/stac-federator/service/log"
	"golang.org/x/sync/errgroup"
)

// Discover crawls the public directory, probes each candidate in
// parallel and indexes the collections of the valid catalogs.
// Returns the number of catalogs and of collections stored.
// A failed candidate is excluded from the aggregate, never fails the batch.
func (f *Federation) Discover(ctx context.Context) (int, int, error) {
	ctx = log.With(ctx, "discovery", uuid.New().String())

	candidates, err := f.Directory.Candidates(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("Discover.%w", err)
	}
	log.Logger(ctx).Sugar().Infof("probing %d candidate catalogs", len(candidates))

	// Create group
	wg, wgCtx := errgroup.WithContext(ctx)
	jobChan := make(chan stacindex.Entry, len(candidates))
	results := make(chan int, len(candidates))

	// Start workers
	for i := 0; i < f.workers() && i < len(candidates); i++ {
		wg.Go(func() error {
			for entry := range jobChan {
				select {
				case <-wgCtx.Done():
				default:
					if count, ok := f.discoverCandidate(wgCtx, entry); ok {
						results <- count
					}
				}
			}
			return nil
		})
	}

	// Push jobs
	for _, entry := range candidates {
		jobChan <- entry
	}
	close(jobChan)

	// Wait
	if err := wg.Wait(); err != nil {
		return 0, 0, fmt.Errorf("Discover.%w", err)
	}
	close(results)

	catalogs, collections := 0, 0
	for count := range results {
		catalogs++
		collections += count
	}
	log.Logger(ctx).Sugar().Infof("discovery done: %d catalogs, %d collections", catalogs, collections)
	return catalogs, collections, nil
}

// discoverCandidate probes one directory entry and, if it is a valid
// public catalog, stores it with its collections. ok is false when the
// candidate is excluded.
func (f *Federation) discoverCandidate(ctx context.Context, entry stacindex.Entry) (count int, ok bool) {
	ctx = log.With(ctx, "catalog", entry.Title)

	if !f.Probe(ctx, entry.URL) {
		log.Logger(ctx).Sugar().Infof("%s is not a public stac api", entry.URL)
		return 0, false
	}

	catalog, err := f.RegisterCatalog(ctx, entry.Title, entry.URL, entry.Summary)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("register %s: %v", entry.URL, err)
		return 0, false
	}

	collections, err := f.Harvest(ctx, catalog.URL)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("harvest %s: %v", catalog.URL, err)
		return 0, false
	}

	count, err = f.StoreCollections(ctx, catalog, collections)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("store collections of %s: %v", catalog.URL, err)
		return 0, false
	}
	return count, true
}
