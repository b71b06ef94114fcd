package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	db "github.com/spatialgrid/stac-federator/interface/database"
	"github.com/spatialgrid/stac-federator/service/geometry"
	"github.com/spatialgrid/stac-federator/service/log"
	"github.com/spatialgrid/stac-federator/service/temporal"
)

func (f *Federation) NewHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/catalogs", f.CreateCatalogHandler).Methods("POST")
	r.HandleFunc("/catalogs", f.ListCatalogsHandler).Methods("GET")
	r.HandleFunc("/catalogs", f.DeleteCatalogsHandler).Methods("DELETE")
	r.HandleFunc("/catalogs/discover", f.DiscoverHandler).Methods("POST")
	r.HandleFunc("/catalogs/search", f.SearchHandler).Methods("POST")
	r.HandleFunc("/catalogs/{catalog}", f.GetCatalogHandler).Methods("GET")
	r.HandleFunc("/catalogs/{catalog}", f.DeleteCatalogHandler).Methods("DELETE")
	r.HandleFunc("/catalogs/{catalog}/collections", f.ListCollectionsHandler).Methods("GET")
	r.HandleFunc("/catalogs/{catalog}/collections/{collection}", f.GetCollectionHandler).Methods("GET")
	r.HandleFunc("/catalogs/{catalog}/collections/{collection}", f.DeleteCollectionHandler).Methods("DELETE")
	return r
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.As(err, &db.ErrNotFound{}):
		w.WriteHeader(404)
	case errors.As(err, &db.ErrAlreadyExists{}):
		w.WriteHeader(409)
	case errors.Is(err, geometry.ErrInvalidExtent), errors.Is(err, temporal.ErrConvertingTimestamp):
		w.WriteHeader(400)
	default:
		log.Logger(ctx).Sugar().Warnf("handler: %v", err)
		w.WriteHeader(500)
	}
	fmt.Fprintf(w, "%v", err)
}

// CreateCatalogHandler registers a catalog (409 on a duplicate url)
func (f *Federation) CreateCatalogHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	payload := struct {
		Name        string `json:"name"`
		URL         string `json:"url"`
		Description string `json:"description"`
	}{}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil || payload.URL == "" {
		w.WriteHeader(400)
		fmt.Fprintf(w, "invalid payload: name, url required")
		return
	}
	catalog, err := f.Backend.CreateCatalog(ctx, payload.Name, payload.URL, payload.Description)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(catalog)
}

// ListCatalogsHandler lists the registered catalogs (optional name pattern)
func (f *Federation) ListCatalogsHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	catalogs, err := f.Backend.Catalogs(ctx, req.URL.Query().Get("name"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(catalogs)
}

// DeleteCatalogsHandler removes every registered catalog
func (f *Federation) DeleteCatalogsHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	nb, err := f.Backend.DeleteCatalogs(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(struct {
		CatalogsRemoved int `json:"catalogs_removed"`
	}{nb})
}

// GetCatalogHandler retrieves a catalog
func (f *Federation) GetCatalogHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["catalog"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	catalog, err := f.Backend.Catalog(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(catalog)
}

// DeleteCatalogHandler removes a catalog and its collections
func (f *Federation) DeleteCatalogHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["catalog"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	catalog, err := f.Backend.DeleteCatalog(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(catalog)
}

// DiscoverHandler runs a discovery pass and returns the counts
func (f *Federation) DiscoverHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	catalogs, collections, err := f.Discover(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(struct {
		CatalogsStored    int `json:"catalogs_stored"`
		CollectionsStored int `json:"collections_stored"`
	}{catalogs, collections})
}

// SearchHandler answers a bbox + time-interval search, grouped by catalog.
// With a catalog filter, only that group's collections are returned.
func (f *Federation) SearchHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	payload := struct {
		BBox      []float64 `json:"bbox"`
		Datetime  string    `json:"datetime"`
		CatalogID *int      `json:"public_catalog_id"`
	}{}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "invalid payload: %v", err)
		return
	}
	groups, err := f.FindCollections(ctx, payload.BBox, payload.Datetime, payload.CatalogID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if payload.CatalogID == nil {
		json.NewEncoder(w).Encode(groups)
		return
	}
	collections := []db.Collection{}
	if len(groups) > 0 {
		collections = groups[0].Collections
	}
	json.NewEncoder(w).Encode(collections)
}

// ListCollectionsHandler lists the indexed collections of the catalog
func (f *Federation) ListCollectionsHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["catalog"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	if _, err := f.Backend.Catalog(ctx, id); err != nil {
		writeError(ctx, w, err)
		return
	}
	collections, err := f.Backend.Collections(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(collections)
}

// GetCollectionHandler retrieves one indexed collection
func (f *Federation) GetCollectionHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["catalog"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	collection, err := f.Backend.Collection(ctx, id, mux.Vars(req)["collection"])
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(collection)
}

// DeleteCollectionHandler removes a collection, its stored search
// parameters and its entry in the external search index
func (f *Federation) DeleteCollectionHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["catalog"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	collection, err := f.DeleteCollection(ctx, id, mux.Vars(req)["collection"])
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(collection)
}
