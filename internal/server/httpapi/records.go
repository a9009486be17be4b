package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/bizsync/internal/common"
)

func (r *Router) listRecords(w http.ResponseWriter, req *http.Request) {
	id, _ := identityFromContext(req.Context())

	recs, err := r.records.List(req.Context(), id, mux.Vars(req)["type"])
	if err != nil {
		r.fail(w, req, err)
		return
	}

	docs := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, rec.Document())
	}
	respondJSON(w, http.StatusOK, docs)
}

func (r *Router) getRecord(w http.ResponseWriter, req *http.Request) {
	id, _ := identityFromContext(req.Context())
	vars := mux.Vars(req)

	rec, err := r.records.Get(req.Context(), id, vars["type"], vars["id"])
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, rec.Document())
}

func (r *Router) createRecord(w http.ResponseWriter, req *http.Request) {
	id, _ := identityFromContext(req.Context())
	recordType := mux.Vars(req)["type"]

	var doc map[string]any
	if err := decodeData(w, req, &doc); err != nil {
		r.fail(w, req, err)
		return
	}

	rec, err := r.records.Create(req.Context(), id, recordType, doc)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	r.logger.Info(req.Context(), "Record created", "type", recordType, "id", rec.ID)
	respondJSON(w, http.StatusCreated, rec.Document())
}

func (r *Router) updateRecord(w http.ResponseWriter, req *http.Request) {
	id, _ := identityFromContext(req.Context())
	vars := mux.Vars(req)

	var fields map[string]any
	if err := decodeData(w, req, &fields); err != nil {
		r.fail(w, req, err)
		return
	}

	rec, err := r.records.Update(req.Context(), id, vars["type"], vars["id"], fields)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, rec.Document())
}

func (r *Router) deleteRecord(w http.ResponseWriter, req *http.Request) {
	id, _ := identityFromContext(req.Context())
	vars := mux.Vars(req)

	if err := r.records.Delete(req.Context(), id, vars["type"], vars["id"]); err != nil {
		r.fail(w, req, err)
		return
	}

	r.logger.Info(req.Context(), "Record deleted", "type", vars["type"], "id", vars["id"])
	respondJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func (r *Router) exportBackup(w http.ResponseWriter, req *http.Request) {
	id, ok := identityFromContext(req.Context())
	if !ok {
		r.fail(w, req, common.ErrorUnauthorized)
		return
	}

	b, err := r.backups.Export(req.Context(), id)
	if err != nil {
		r.fail(w, req, err)
		return
	}

	r.logger.Info(req.Context(), "Backup exported", "key", b.Key, "records", b.Records)
	respondJSON(w, http.StatusCreated, b)
}
