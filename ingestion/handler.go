package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/spatialgrid/stac-federator/common"
	db "github.com/spatialgrid/stac-federator/interface/database"
	"github.com/spatialgrid/stac-federator/service/log"
)

// Handler attaches the ingestion and status-ledger routes to the router
func (d *Dispatcher) Handler(r *mux.Router) {
	r.HandleFunc("/catalogs/update", d.UpdateAllHandler).Methods("POST")
	r.HandleFunc("/catalogs/{catalog}/load", d.LoadHandler).Methods("POST")
	r.HandleFunc("/catalogs/{catalog}/update", d.UpdateCatalogHandler).Methods("POST")
	r.HandleFunc("/status", d.ListStatusHandler).Methods("GET")
	r.HandleFunc("/status/{status}", d.GetStatusHandler).Methods("GET")
	r.HandleFunc("/status/{status}", d.SetStatusHandler).Methods("PUT")
	r.HandleFunc("/status/{status}", d.DeleteStatusHandler).Methods("DELETE")
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.As(err, &db.ErrNotFound{}):
		w.WriteHeader(404)
	case errors.As(err, &db.ErrAlreadyExists{}):
		w.WriteHeader(409)
	default:
		log.Logger(ctx).Sugar().Warnf("handler: %v", err)
		w.WriteHeader(500)
	}
	fmt.Fprintf(w, "%v", err)
}

// LoadHandler dispatches an ingestion run for the catalog and returns
// the status id without waiting for the ingester
func (d *Dispatcher) LoadHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["catalog"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	parameters := common.IngestionParameters{}
	if err := json.NewDecoder(req.Body).Decode(&parameters); err != nil && err != io.EOF {
		w.WriteHeader(400)
		fmt.Fprintf(w, "invalid payload: %v", err)
		return
	}
	statusID, err := d.Dispatch(ctx, id, parameters)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(struct {
		StatusID int `json:"status_id"`
	}{statusID})
}

// UpdateAllHandler replays every stored search-parameter record
func (d *Dispatcher) UpdateAllHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	ids, err := d.UpdateAll(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(struct {
		StatusIDs []int `json:"status_ids"`
	}{ids})
}

// UpdateCatalogHandler replays the stored parameters of the catalog,
// optionally restricted to a set of collections
func (d *Dispatcher) UpdateCatalogHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["catalog"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	payload := struct {
		Collections []string `json:"collections"`
	}{}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil && err != io.EOF {
		w.WriteHeader(400)
		fmt.Fprintf(w, "invalid payload: %v", err)
		return
	}
	ids, err := d.UpdateForCatalog(ctx, id, payload.Collections)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(struct {
		StatusIDs []int `json:"status_ids"`
	}{ids})
}

// ListStatusHandler lists the ingestion status records
func (d *Dispatcher) ListStatusHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	page, _ := strconv.Atoi(req.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	statuses, err := d.Backend.IngestionStatuses(ctx, page, limit)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(statuses)
}

// GetStatusHandler retrieves one ingestion status record
func (d *Dispatcher) GetStatusHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["status"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	status, err := d.Backend.IngestionStatus(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(status)
}

// SetStatusHandler is the out-of-band completion callback: it records
// the report of a run and closes the PENDING status
func (d *Dispatcher) SetStatusHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["status"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	report := common.IngestionReport{}
	if err := json.NewDecoder(req.Body).Decode(&report); err != nil {
		w.WriteHeader(400)
		fmt.Fprintf(w, "invalid payload: %v", err)
		return
	}
	if err := d.Backend.CompleteIngestionStatus(ctx, id, report); err != nil {
		writeError(ctx, w, err)
		return
	}
	status, err := d.Backend.IngestionStatus(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(status)
}

// DeleteStatusHandler removes a status record
func (d *Dispatcher) DeleteStatusHandler(w http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	id, err := strconv.Atoi(mux.Vars(req)["status"])
	if err != nil {
		w.WriteHeader(400)
		return
	}
	status, err := d.Backend.DeleteIngestionStatus(ctx, id)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	json.NewEncoder(w).Encode(status)
}
