// Package ingestion dispatches ingestion runs to the external selective
// ingester and tracks their outcome in the status ledger.
package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spatialgrid/stac-federator/common"
	db "github.com/spatialgrid/stac-federator/interface/database"
	"github.com/spatialgrid/stac-federator/service"
	"github.com/spatialgrid/stac-federator/service/log"
)

type Dispatcher struct {
	Backend db.FederationDBBackend
	// Selective-ingester microservice endpoint
	Endpoint string
	// Target STAC API the ingester writes into
	TargetURL string
	AuthName  string
	AuthPswd  string
	AuthToken string
	// Bound of one ingestion call (0: wait indefinitely)
	Timeout time.Duration

	wg sync.WaitGroup
}

// Dispatch resolves the catalog, persists the search parameters, creates
// a PENDING status record and fires the ingestion call in the background.
// The status id is returned immediately, the caller never waits for the
// ingester.
func (d *Dispatcher) Dispatch(ctx context.Context, catalogID int, parameters common.IngestionParameters) (int, error) {
	catalog, err := d.Backend.Catalog(ctx, catalogID)
	if err != nil {
		return 0, fmt.Errorf("Dispatch.%w", err)
	}

	parameters = parameters.Clone()
	parameters[common.ParamSourceCatalogURL] = catalog.URL
	if err := d.storeSearchParameters(ctx, catalogID, parameters); err != nil {
		return 0, fmt.Errorf("Dispatch.%w", err)
	}

	parameters[common.ParamTargetCatalogURL] = d.TargetURL
	id, err := d.dispatch(ctx, catalog.URL, parameters)
	if err != nil {
		return 0, fmt.Errorf("Dispatch.%w", err)
	}
	return id, nil
}

// dispatch creates the status record and spawns the background call
func (d *Dispatcher) dispatch(ctx context.Context, sourceURL string, parameters common.IngestionParameters) (int, error) {
	callbackID, err := d.Backend.CreateIngestionStatus(ctx, sourceURL, d.TargetURL, parameters.Update())
	if err != nil {
		return 0, fmt.Errorf("dispatch.%w", err)
	}
	parameters[common.ParamCallbackID] = callbackID

	d.wg.Add(1)
	go d.run(callbackID, parameters)
	return callbackID, nil
}

// run is the detached background unit: it outlives the triggering
// request, so it starts from a fresh context and keeps its own handle on
// the database backend.
func (d *Dispatcher) run(callbackID int, parameters common.IngestionParameters) {
	defer d.wg.Done()

	ctx := log.With(context.Background(), "callbackID", callbackID)
	callCtx := ctx
	cancel := func() {}
	if d.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.Timeout)
	}
	defer cancel()

	report, err := d.callIngester(callCtx, parameters)
	if err != nil {
		log.Logger(ctx).Sugar().Warnf("ingestion failed: %v", err)
		if err := d.Backend.FailIngestionStatus(ctx, callbackID, err.Error()); err != nil {
			log.Logger(ctx).Sugar().Warnf("fail status: %v", err)
		}
		return
	}
	if err := d.Backend.CompleteIngestionStatus(ctx, callbackID, report); err != nil {
		log.Logger(ctx).Sugar().Warnf("complete status: %v", err)
	}
}

// callIngester POSTs the parameter set and parses the report of the run
func (d *Dispatcher) callIngester(ctx context.Context, parameters common.IngestionParameters) (common.IngestionReport, error) {
	report := common.IngestionReport{}
	body, err := json.Marshal(parameters)
	if err != nil {
		return report, fmt.Errorf("callIngester.Marshal: %w", err)
	}
	resp, err := service.HTTPPostWithAuth(ctx, d.Endpoint, bytes.NewReader(body), d.AuthName, d.AuthPswd, d.AuthToken)
	if err != nil {
		return report, fmt.Errorf("callIngester: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return report, fmt.Errorf("callIngester.ReadAll: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return report, fmt.Errorf("callIngester: %s: %s", resp.Status, respBody)
	}
	if err := json.Unmarshal(respBody, &report); err != nil {
		return report, fmt.Errorf("callIngester.Unmarshal: %w (response: %s)", err, respBody)
	}
	return report, nil
}

// storeSearchParameters persists one row per requested collection, or
// one row for the whole parameter set when no collections filter is given
func (d *Dispatcher) storeSearchParameters(ctx context.Context, catalogID int, parameters common.IngestionParameters) error {
	var bbox, datetime *string
	if raw, ok := parameters[common.ParamBBox]; ok {
		if b, err := json.Marshal(raw); err == nil {
			s := string(b)
			bbox = &s
		}
	}
	if raw, ok := parameters[common.ParamDatetime]; ok {
		if b, err := json.Marshal(raw); err == nil {
			s := string(b)
			datetime = &s
		}
	}

	if _, ok := parameters[common.ParamCollections]; !ok {
		return d.Backend.CreateSearchParameters(ctx, db.SearchParameters{
			CatalogID:  catalogID,
			Parameters: parameters.Clone(),
			BBox:       bbox,
			Datetime:   datetime,
		})
	}

	for _, collection := range parameters.Collections() {
		filtered := parameters.Clone()
		filtered[common.ParamCollections] = []string{collection}
		collection := collection
		if err := d.Backend.CreateSearchParameters(ctx, db.SearchParameters{
			CatalogID:  catalogID,
			Collection: &collection,
			Parameters: filtered,
			BBox:       bbox,
			Datetime:   datetime,
		}); err != nil {
			return err
		}
	}
	return nil
}

// Join waits for the in-flight background ingestion calls to return
func (d *Dispatcher) Join() {
	d.wg.Wait()
}
