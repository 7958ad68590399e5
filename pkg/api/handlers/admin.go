package handlers

import (
	"encoding/json"
	"net/http"

	"chatledger/pkg/logger"
	"chatledger/pkg/models"
	"chatledger/pkg/simulator"
	"chatledger/pkg/store"
	"chatledger/pkg/utils"

	"github.com/gorilla/mux"
)

type adminHandlers struct {
	store *store.Store
	sim   *simulator.Simulator
}

// RegisterAdmin registers store-wide export/import and the admin reset
// route. The auth middleware restricts /v1/admin to admin keys and the
// export/import routes to backend or admin keys.
func RegisterAdmin(r *mux.Router, st *store.Store, sim *simulator.Simulator) {
	h := &adminHandlers{store: st, sim: sim}
	r.HandleFunc("/export", h.exportAll).Methods(http.MethodGet)
	r.HandleFunc("/import", h.importSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/admin/reset", h.resetAll).Methods(http.MethodPost)
}

func (h *adminHandlers) exportAll(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.ExportAll()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, snap)
}

// importSnapshot accepts either snapshot shape: a whole-store snapshot
// replaces the store, a single-thread snapshot overwrites one thread.
// Armed reply timers covering the replaced content are cancelled first
// so no stale synthetic reply lands in the restored store.
func (h *adminHandlers) importSnapshot(w http.ResponseWriter, r *http.Request) {
	var snap models.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if snap.WholeStore() {
		h.sim.Close()
	} else if snap.ThreadID != "" {
		h.sim.CloseThread(snap.ThreadID)
	}
	if err := h.store.ImportSnapshot(snap); err != nil {
		utils.JSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"imported": true})
}

func (h *adminHandlers) resetAll(w http.ResponseWriter, r *http.Request) {
	h.sim.Close()
	if err := h.store.ResetAll(); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logger.Warn("store_reset_via_admin", "remote", r.RemoteAddr)
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"reset": true})
}
