package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lib/pq"
	"github.com/spatialgrid/stac-federator/common"
	db "github.com/spatialgrid/stac-federator/interface/database"
)

// pgInterface allows to use either a sql.DB or a sql.Tx
type pgInterface interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// BackendTx implements FederationTxBackend
type BackendTx struct {
	*sql.Tx
	Backend
}

// BackendDB implements FederationDBBackend
type BackendDB struct {
	*sql.DB
	Backend
}

// Backend implements FederationBackend
type Backend struct {
	pgInterface
}

/* http://www.postgresql.org/docs/9.3/static/errcodes-appendix.html */
const (
	noError             = "00000"
	connectionFailure   = "08006"
	foreignKeyViolation = "23503"
	uniqueViolation     = "23505"

	notPqError = "X"
)

func pqErrorCode(err error) pq.ErrorCode {
	if err == nil {
		return noError
	}
	var pqerr *pq.Error
	if errors.As(err, &pqerr) {
		return pqerr.Code
	}
	return notPqError
}

// StartTransaction implements FederationDBBackend
func (bdb BackendDB) StartTransaction(ctx context.Context) (db.FederationTxBackend, error) {
	tx, err := bdb.BeginTx(ctx, nil)
	if err != nil {
		return BackendTx{}, err
	}
	return BackendTx{tx, Backend{pgInterface: tx}}, nil
}

// Rollback overloads sql.Tx.Rollback to be idempotent
func (btx BackendTx) Rollback() error {
	err := btx.Tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// New creates a new backend using Postgres
func New(ctx context.Context, dbConnection string) (*BackendDB, error) {
	db, err := sql.Open("postgres", dbConnection)
	if err != nil {
		return nil, fmt.Errorf("sql.open: %w", err)
	}
	return &BackendDB{db, Backend{pgInterface: db}}, nil
}

// CreateCatalog implements FederationBackend
func (b Backend) CreateCatalog(ctx context.Context, name, url, description string) (db.Catalog, error) {
	c := db.Catalog{Name: name, URL: url, Description: description}
	err := b.QueryRowContext(ctx, "insert into public_catalog(name, url, description) values($1,$2,$3) returning id",
		name, url, description).Scan(&c.ID)
	switch pqErrorCode(err) {
	case noError:
		return c, nil
	case uniqueViolation:
		return db.Catalog{}, db.ErrAlreadyExists{Type: "catalog", ID: url}
	default:
		return db.Catalog{}, fmt.Errorf("CreateCatalog: %w", err)
	}
}

// Catalog implements FederationBackend
func (b Backend) Catalog(ctx context.Context, id int) (db.Catalog, error) {
	c := db.Catalog{ID: id}
	if err := b.QueryRowContext(ctx, "select name, url, description from public_catalog where id=$1", id).Scan(
		&c.Name, &c.URL, &c.Description); err != nil {
		if err == sql.ErrNoRows {
			return c, db.ErrNotFound{Type: "catalog", ID: strconv.Itoa(id)}
		}
		return c, fmt.Errorf("Catalog.QueryRowContext: %w", err)
	}
	return c, nil
}

// CatalogByURL implements FederationBackend
func (b Backend) CatalogByURL(ctx context.Context, url string) (db.Catalog, error) {
	c := db.Catalog{URL: url}
	if err := b.QueryRowContext(ctx, "select id, name, description from public_catalog where url=$1", url).Scan(
		&c.ID, &c.Name, &c.Description); err != nil {
		if err == sql.ErrNoRows {
			return c, db.ErrNotFound{Type: "catalog", ID: url}
		}
		return c, fmt.Errorf("CatalogByURL.QueryRowContext: %w", err)
	}
	return c, nil
}

// Catalogs implements FederationBackend
func (b Backend) Catalogs(ctx context.Context, pattern string) ([]db.Catalog, error) {
	wc := joinClause{}
	if pattern != "" {
		p, op := parseLike(pattern)
		wc.append("name "+op+" $%d", p)
	}
	rows, err := b.QueryContext(ctx, "select id, name, url, description from public_catalog"+wc.WhereClause()+" ORDER BY id", wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("catalogs.QueryContext: %w", err)
	}
	defer rows.Close()
	catalogs := make([]db.Catalog, 0)
	for rows.Next() {
		var c db.Catalog
		if err := rows.Scan(&c.ID, &c.Name, &c.URL, &c.Description); err != nil {
			return nil, fmt.Errorf("catalogs.Scan: %w", err)
		}
		catalogs = append(catalogs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalogs.rows.err: %w", err)
	}
	return catalogs, nil
}

// DeleteCatalog implements FederationBackend
func (b Backend) DeleteCatalog(ctx context.Context, id int) (db.Catalog, error) {
	c, err := b.Catalog(ctx, id)
	if err != nil {
		return c, fmt.Errorf("DeleteCatalog.%w", err)
	}
	if _, err := b.ExecContext(ctx, "delete from public_catalog where id=$1", id); err != nil {
		return c, fmt.Errorf("DeleteCatalog.exec: %w", err)
	}
	return c, nil
}

// DeleteCatalogs implements FederationBackend
func (b Backend) DeleteCatalogs(ctx context.Context) (int, error) {
	res, err := b.ExecContext(ctx, "delete from public_catalog")
	if err != nil {
		return 0, fmt.Errorf("DeleteCatalogs.exec: %w", err)
	}
	nb, _ := res.RowsAffected()
	return int(nb), nil
}

// CreateCollection implements FederationBackend
func (b Backend) CreateCollection(ctx context.Context, c db.Collection) error {
	_, err := b.ExecContext(ctx,
		`insert into public_collection(catalog_id, id, type, title, description, spatial_extent, temporal_extent_start, temporal_extent_end)
		values($1,$2,$3,$4,$5,ST_GeomFromEWKT($6),$7,$8)`,
		c.CatalogID, c.ID, c.Type, c.Title, c.Description, c.SpatialExtent, c.TemporalExtentFrom, c.TemporalExtentTo)
	switch pqErrorCode(err) {
	case noError:
		return nil
	case uniqueViolation:
		return db.ErrAlreadyExists{Type: "collection", ID: c.ID}
	default:
		return fmt.Errorf("CreateCollection.exec: %w", err)
	}
}

// UpdateCollection implements FederationBackend
func (b Backend) UpdateCollection(ctx context.Context, c db.Collection) error {
	res, err := b.ExecContext(ctx,
		`update public_collection set type=$3, title=$4, description=$5, spatial_extent=ST_GeomFromEWKT($6), temporal_extent_start=$7, temporal_extent_end=$8
		where catalog_id=$1 and id=$2`,
		c.CatalogID, c.ID, c.Type, c.Title, c.Description, c.SpatialExtent, c.TemporalExtentFrom, c.TemporalExtentTo)
	if err != nil {
		return fmt.Errorf("UpdateCollection.exec: %w", err)
	}
	if nb, _ := res.RowsAffected(); nb == 0 {
		return db.ErrNotFound{Type: "collection", ID: c.ID}
	}
	return nil
}

// Collection implements FederationBackend
func (b Backend) Collection(ctx context.Context, catalogID int, id string) (db.Collection, error) {
	c := db.Collection{CatalogID: catalogID, ID: id}
	if err := b.QueryRowContext(ctx,
		"select type, title, description, ST_AsEWKT(spatial_extent), temporal_extent_start, temporal_extent_end from public_collection where catalog_id=$1 and id=$2",
		catalogID, id).Scan(&c.Type, &c.Title, &c.Description, &c.SpatialExtent, &c.TemporalExtentFrom, &c.TemporalExtentTo); err != nil {
		if err == sql.ErrNoRows {
			return c, db.ErrNotFound{Type: "collection", ID: id}
		}
		return c, fmt.Errorf("Collection.QueryRowContext: %w", err)
	}
	return c, nil
}

// Collections implements FederationBackend
func (b Backend) Collections(ctx context.Context, catalogID int) ([]db.Collection, error) {
	rows, err := b.QueryContext(ctx,
		"select id, type, title, description, ST_AsEWKT(spatial_extent), temporal_extent_start, temporal_extent_end from public_collection where catalog_id=$1 ORDER BY id",
		catalogID)
	if err != nil {
		return nil, fmt.Errorf("collections.QueryContext: %w", err)
	}
	defer rows.Close()
	collections := make([]db.Collection, 0)
	for rows.Next() {
		c := db.Collection{CatalogID: catalogID}
		if err := rows.Scan(&c.ID, &c.Type, &c.Title, &c.Description, &c.SpatialExtent, &c.TemporalExtentFrom, &c.TemporalExtentTo); err != nil {
			return nil, fmt.Errorf("collections.Scan: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("collections.rows.err: %w", err)
	}
	return collections, nil
}

// DeleteCollection implements FederationBackend
func (b Backend) DeleteCollection(ctx context.Context, catalogID int, id string) (db.Collection, error) {
	c, err := b.Collection(ctx, catalogID, id)
	if err != nil {
		return c, fmt.Errorf("DeleteCollection.%w", err)
	}
	if _, err := b.ExecContext(ctx, "delete from public_collection where catalog_id=$1 and id=$2", catalogID, id); err != nil {
		return c, fmt.Errorf("DeleteCollection.exec: %w", err)
	}
	return c, nil
}

// SearchCollections implements FederationBackend
// The spatial predicate is pushed down to PostGIS. A stored NULL temporal
// bound is an open interval and always matches.
func (b Backend) SearchCollections(ctx context.Context, extentEWKT string, start, end *time.Time, catalogID *int) ([]db.Collection, error) {
	wc := joinClause{}
	wc.append("ST_Intersects(spatial_extent, ST_GeomFromEWKT($%d))", extentEWKT)
	if start != nil {
		wc.append("(temporal_extent_start IS NULL OR temporal_extent_start <= $%d)", *start)
	}
	if end != nil {
		wc.append("(temporal_extent_end IS NULL OR temporal_extent_end >= $%d)", *end)
	}
	if catalogID != nil {
		wc.append("catalog_id = $%d", *catalogID)
	}

	rows, err := b.QueryContext(ctx,
		"select catalog_id, id, type, title, description, ST_AsEWKT(spatial_extent), temporal_extent_start, temporal_extent_end from public_collection"+
			wc.WhereClause()+" ORDER BY catalog_id, id", wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("SearchCollections.QueryContext: %w", err)
	}
	defer rows.Close()
	collections := make([]db.Collection, 0)
	for rows.Next() {
		c := db.Collection{}
		if err := rows.Scan(&c.CatalogID, &c.ID, &c.Type, &c.Title, &c.Description, &c.SpatialExtent, &c.TemporalExtentFrom, &c.TemporalExtentTo); err != nil {
			return nil, fmt.Errorf("SearchCollections.Scan: %w", err)
		}
		collections = append(collections, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchCollections.rows.err: %w", err)
	}
	return collections, nil
}

// CreateSearchParameters implements FederationBackend
// An identical parameter set already stored for the catalog is kept once
func (b Backend) CreateSearchParameters(ctx context.Context, p db.SearchParameters) error {
	_, err := b.ExecContext(ctx,
		"insert into stored_search_parameters(associated_catalog_id, collection, used_search_parameters, bbox, datetime) values($1,$2,$3,$4,$5)",
		p.CatalogID, p.Collection, p.Parameters, p.BBox, p.Datetime)
	switch pqErrorCode(err) {
	case noError, uniqueViolation:
		return nil
	default:
		return fmt.Errorf("CreateSearchParameters.exec: %w", err)
	}
}

// AllSearchParameters implements FederationBackend
func (b Backend) AllSearchParameters(ctx context.Context) ([]db.SearchParameters, error) {
	return b.searchParameters(ctx, nil)
}

// SearchParametersByCatalog implements FederationBackend
func (b Backend) SearchParametersByCatalog(ctx context.Context, catalogID int) ([]db.SearchParameters, error) {
	return b.searchParameters(ctx, &catalogID)
}

func (b Backend) searchParameters(ctx context.Context, catalogID *int) ([]db.SearchParameters, error) {
	wc := joinClause{}
	if catalogID != nil {
		wc.append("associated_catalog_id = $%d", *catalogID)
	}
	rows, err := b.QueryContext(ctx,
		"select id, associated_catalog_id, collection, used_search_parameters, bbox, datetime from stored_search_parameters"+wc.WhereClause()+" ORDER BY id",
		wc.Parameters...)
	if err != nil {
		return nil, fmt.Errorf("searchParameters.QueryContext: %w", err)
	}
	defer rows.Close()
	params := make([]db.SearchParameters, 0)
	for rows.Next() {
		p := db.SearchParameters{}
		if err := rows.Scan(&p.ID, &p.CatalogID, &p.Collection, &p.Parameters, &p.BBox, &p.Datetime); err != nil {
			return nil, fmt.Errorf("searchParameters.Scan: %w", err)
		}
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("searchParameters.rows.err: %w", err)
	}
	return params, nil
}

// DeleteSearchParametersByCollection implements FederationBackend
func (b Backend) DeleteSearchParametersByCollection(ctx context.Context, collectionID string) (int, error) {
	res, err := b.ExecContext(ctx, "delete from stored_search_parameters where collection=$1", collectionID)
	if err != nil {
		return 0, fmt.Errorf("DeleteSearchParametersByCollection.exec: %w", err)
	}
	nb, _ := res.RowsAffected()
	return int(nb), nil
}

// CreateIngestionStatus implements FederationBackend
func (b Backend) CreateIngestionStatus(ctx context.Context, sourceURL, targetURL string, update bool) (int, error) {
	id := 0
	if err := b.QueryRowContext(ctx,
		"insert into stac_ingestion_status(source_stac_catalog_url, target_stac_catalog_url, update_requested, status) values($1,$2,$3,$4) returning id",
		sourceURL, targetURL, update, common.StatusPENDING).Scan(&id); err != nil {
		return 0, fmt.Errorf("CreateIngestionStatus: %w", err)
	}
	return id, nil
}

const ingestionStatusColumns = `id, source_stac_catalog_url, target_stac_catalog_url, update_requested, status, time_started, time_finished, message,
	newly_stored_collections, newly_stored_collections_count, updated_collections, updated_collections_count,
	newly_stored_items_count, updated_items_count, already_stored_items_count`

func scanIngestionStatus(scan func(...interface{}) error) (db.IngestionStatus, error) {
	s := db.IngestionStatus{}
	err := scan(&s.ID, &s.SourceCatalogURL, &s.TargetCatalogURL, &s.Update, &s.Status, &s.TimeStarted, &s.TimeFinished, &s.Message,
		pq.Array(&s.NewlyStoredCollections), &s.NewlyStoredCollectionsCount, pq.Array(&s.UpdatedCollections), &s.UpdatedCollectionsCount,
		&s.NewlyStoredItemsCount, &s.UpdatedItemsCount, &s.AlreadyStoredItemsCount)
	return s, err
}

// IngestionStatus implements FederationBackend
func (b Backend) IngestionStatus(ctx context.Context, id int) (db.IngestionStatus, error) {
	row := b.QueryRowContext(ctx, "select "+ingestionStatusColumns+" from stac_ingestion_status where id=$1", id)
	s, err := scanIngestionStatus(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return s, db.ErrNotFound{Type: "ingestion status", ID: strconv.Itoa(id)}
		}
		return s, fmt.Errorf("IngestionStatus.Scan: %w", err)
	}
	return s, nil
}

// IngestionStatuses implements FederationBackend
func (b Backend) IngestionStatuses(ctx context.Context, page, limit int) ([]db.IngestionStatus, error) {
	rows, err := b.QueryContext(ctx, "select "+ingestionStatusColumns+" from stac_ingestion_status ORDER BY id"+limitOffsetClause(page, limit))
	if err != nil {
		return nil, fmt.Errorf("IngestionStatuses.QueryContext: %w", err)
	}
	defer rows.Close()
	statuses := make([]db.IngestionStatus, 0)
	for rows.Next() {
		s, err := scanIngestionStatus(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("IngestionStatuses.Scan: %w", err)
		}
		statuses = append(statuses, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("IngestionStatuses.rows.err: %w", err)
	}
	return statuses, nil
}

// CompleteIngestionStatus implements FederationBackend
// A record already in a terminal state is left untouched
func (b Backend) CompleteIngestionStatus(ctx context.Context, id int, report common.IngestionReport) error {
	res, err := b.ExecContext(ctx,
		`update stac_ingestion_status set status=$2, time_finished=now(),
			newly_stored_collections=$3, newly_stored_collections_count=$4,
			updated_collections=$5, updated_collections_count=$6,
			newly_stored_items_count=$7, updated_items_count=$8, already_stored_items_count=$9
		where id=$1 and status=$10`,
		id, common.StatusCOMPLETED,
		pq.Array(report.NewlyStoredCollections), report.NewlyStoredCollectionsCount,
		pq.Array(report.UpdatedCollections), report.UpdatedCollectionsCount,
		report.NewlyStoredItemsCount, report.UpdatedItemsCount, report.AlreadyStoredItemsCount,
		common.StatusPENDING)
	if err != nil {
		return fmt.Errorf("CompleteIngestionStatus.exec: %w", err)
	}
	if nb, _ := res.RowsAffected(); nb == 0 {
		return db.ErrNotFound{Type: "pending ingestion status", ID: strconv.Itoa(id)}
	}
	return nil
}

// FailIngestionStatus implements FederationBackend
// A record already in a terminal state is left untouched
func (b Backend) FailIngestionStatus(ctx context.Context, id int, message string) error {
	res, err := b.ExecContext(ctx,
		"update stac_ingestion_status set status=$2, time_finished=now(), message=$3 where id=$1 and status=$4",
		id, common.StatusFAILED, message, common.StatusPENDING)
	if err != nil {
		return fmt.Errorf("FailIngestionStatus.exec: %w", err)
	}
	if nb, _ := res.RowsAffected(); nb == 0 {
		return db.ErrNotFound{Type: "pending ingestion status", ID: strconv.Itoa(id)}
	}
	return nil
}

// DeleteIngestionStatus implements FederationBackend
func (b Backend) DeleteIngestionStatus(ctx context.Context, id int) (db.IngestionStatus, error) {
	s, err := b.IngestionStatus(ctx, id)
	if err != nil {
		return s, fmt.Errorf("DeleteIngestionStatus.%w", err)
	}
	if _, err := b.ExecContext(ctx, "delete from stac_ingestion_status where id=$1", id); err != nil {
		return s, fmt.Errorf("DeleteIngestionStatus.exec: %w", err)
	}
	return s, nil
}
