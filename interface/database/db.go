package db

import (
	"context"
	"fmt"
	"time"

	"github.com/spatialgrid/stac-federator/common"
)

// Catalog is a registered external STAC catalog. The url is unique.
type Catalog struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// Collection is a collection indexed under a catalog, uniquely
// identified by (CatalogID, ID)
type Collection struct {
	CatalogID          int        `json:"catalog_id"`
	ID                 string     `json:"id"`
	Type               string     `json:"type"`
	Title              *string    `json:"title"`
	Description        *string    `json:"description"`
	SpatialExtent      string     `json:"spatial_extent"` // EWKT multipolygon, SRID 4326
	TemporalExtentFrom *time.Time `json:"temporal_extent_start"`
	TemporalExtentTo   *time.Time `json:"temporal_extent_end"`
}

// SearchParameters is the stored filter set of one ingestion call,
// narrowed to a single collection when the call named several
type SearchParameters struct {
	ID         int                        `json:"id"`
	CatalogID  int                        `json:"associated_catalog_id"`
	Collection *string                    `json:"collection"`
	Parameters common.IngestionParameters `json:"used_search_parameters"`
	BBox       *string                    `json:"bbox"`
	Datetime   *string                    `json:"datetime"`
}

// IngestionStatus is the lifecycle record of one ingestion invocation
type IngestionStatus struct {
	ID               int           `json:"id"`
	SourceCatalogURL string        `json:"source_stac_catalog_url"`
	TargetCatalogURL string        `json:"target_stac_catalog_url"`
	Update           bool          `json:"update"`
	Status           common.Status `json:"status"`
	TimeStarted      time.Time     `json:"time_started"`
	TimeFinished     *time.Time    `json:"time_finished"`
	Message          string        `json:"message"`
	common.IngestionReport
}

type ErrAlreadyExists struct {
	Type, ID string
}

func (e ErrAlreadyExists) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Type, e.ID)
}

type ErrNotFound struct {
	Type, ID string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Type, e.ID)
}

type FederationTxBackend interface {
	FederationBackend
	// Must be call to apply transaction
	Commit() error
	// Might be called to cancel the transaction (no effect if commit has already be done)
	Rollback() error
}

type FederationDBBackend interface {
	FederationBackend
	StartTransaction(ctx context.Context) (FederationTxBackend, error)
}

type FederationBackend interface {
	// Create a catalog, may return ErrAlreadyExists (unique url)
	CreateCatalog(ctx context.Context, name, url, description string) (Catalog, error)
	// Get catalog with the given id, may return ErrNotFound
	Catalog(ctx context.Context, id int) (Catalog, error)
	// Get catalog with the given url, may return ErrNotFound
	CatalogByURL(ctx context.Context, url string) (Catalog, error)
	// Catalogs returns the list of the catalogs fitting the pattern
	// pattern [optional=""] name_pattern
	Catalogs(ctx context.Context, pattern string) ([]Catalog, error)
	// Delete a catalog and (cascading) its collections, returning the removed entity. May return ErrNotFound
	DeleteCatalog(ctx context.Context, id int) (Catalog, error)
	// Delete every catalog and (cascading) its collections, returning the number removed
	DeleteCatalogs(ctx context.Context) (int, error)

	// Create a collection, may return ErrAlreadyExists ((catalog, id) conflict)
	CreateCollection(ctx context.Context, c Collection) error
	// Update a collection in place, may return ErrNotFound
	UpdateCollection(ctx context.Context, c Collection) error
	// Get collection, may return ErrNotFound
	Collection(ctx context.Context, catalogID int, id string) (Collection, error)
	// List the collections of a catalog
	Collections(ctx context.Context, catalogID int) ([]Collection, error)
	// Delete a collection, returning the removed entity. May return ErrNotFound
	DeleteCollection(ctx context.Context, catalogID int, id string) (Collection, error)
	// SearchCollections returns the collections whose spatial extent intersects
	// extentEWKT and whose temporal extent contains [start, end].
	// An open stored bound always matches, as do open query bounds (nil).
	// catalogID [optional=nil] restricts to one catalog
	SearchCollections(ctx context.Context, extentEWKT string, start, end *time.Time, catalogID *int) ([]Collection, error)

	// Store a parameter set. An identical set already stored for the same catalog is kept once
	CreateSearchParameters(ctx context.Context, p SearchParameters) error
	// List every stored parameter set
	AllSearchParameters(ctx context.Context) ([]SearchParameters, error)
	// List the stored parameter sets of a catalog
	SearchParametersByCatalog(ctx context.Context, catalogID int) ([]SearchParameters, error)
	// Delete the parameter sets scoped to a collection, returning the number removed
	DeleteSearchParametersByCollection(ctx context.Context, collectionID string) (int, error)

	// Create a PENDING status record, returning its id
	CreateIngestionStatus(ctx context.Context, sourceURL, targetURL string, update bool) (int, error)
	// Get status with the given id, may return ErrNotFound
	IngestionStatus(ctx context.Context, id int) (IngestionStatus, error)
	// List the status records
	IngestionStatuses(ctx context.Context, page, limit int) ([]IngestionStatus, error)
	// Transition a PENDING status to COMPLETED, recording the report. A terminal status is never updated
	CompleteIngestionStatus(ctx context.Context, id int, report common.IngestionReport) error
	// Transition a PENDING status to FAILED, recording the message. A terminal status is never updated
	FailIngestionStatus(ctx context.Context, id int, message string) error
	// Delete a status record, returning the removed entity. May return ErrNotFound
	DeleteIngestionStatus(ctx context.Context, id int) (IngestionStatus, error)
}

// UnitOfWork runs a function and commit the database at the end or rollback if the function returns an error
func UnitOfWork(ctx context.Context, db FederationDBBackend, f func(tx FederationTxBackend) error) (err error) {
	// Start transaction
	txn, err := db.StartTransaction(ctx)
	if err != nil {
		return fmt.Errorf("uow.starttransaction: %w", err)
	}

	// Rollback if not successful
	defer func() {
		if e := txn.Rollback(); err == nil {
			err = e
		}
	}()

	// Execute function
	if err = f(txn); err != nil {
		return fmt.Errorf("uow.%w", err)
	}

	return txn.Commit()
}
