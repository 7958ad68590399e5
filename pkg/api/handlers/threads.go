package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatledger/pkg/models"
	"chatledger/pkg/simulator"
	"chatledger/pkg/store"
	"chatledger/pkg/utils"

	"github.com/gorilla/mux"
)

type threadHandlers struct {
	store *store.Store
	sim   *simulator.Simulator
}

// RegisterThreads registers all thread-scoped HTTP routes on the router.
func RegisterThreads(r *mux.Router, st *store.Store, sim *simulator.Simulator) {
	h := &threadHandlers{store: st, sim: sim}

	r.HandleFunc("/threads", h.listThreads).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}", h.clearThread).Methods(http.MethodDelete)
	r.HandleFunc("/threads/{threadID}/close", h.closeThread).Methods(http.MethodPost)

	r.HandleFunc("/threads/{threadID}/messages", h.openThread).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}/messages", h.sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/threads/{threadID}/messages/{id}", h.updateMessage).Methods(http.MethodPatch)
	r.HandleFunc("/threads/{threadID}/messages/{id}", h.deleteMessage).Methods(http.MethodDelete)

	r.HandleFunc("/threads/{threadID}/read", h.markRead).Methods(http.MethodPost)
	r.HandleFunc("/threads/{threadID}/unread", h.unreadCount).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}/search", h.searchMessages).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}/stats", h.statistics).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}/typing", h.typing).Methods(http.MethodGet)
	r.HandleFunc("/threads/{threadID}/export", h.exportThread).Methods(http.MethodGet)
}

func (h *threadHandlers) listThreads(w http.ResponseWriter, r *http.Request) {
	metas, err := h.store.ListThreads()
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Threads []models.ThreadMeta `json:"threads"`
	}{Threads: metas})
}

// openThread returns the thread's log, seeding the greeting on first
// open. The optional ?name= query carries the counterparty display name
// used in the greeting.
func (h *threadHandlers) openThread(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadID"]
	msgs, err := h.sim.OpenThread(threadID, r.URL.Query().Get("name"))
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Thread   string           `json:"thread"`
		Messages []models.Message `json:"messages"`
	}{Thread: threadID, Messages: msgs})
}

func (h *threadHandlers) sendMessage(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadID"]
	var in struct {
		Body        string              `json:"body"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	msg, err := h.sim.SendMessage(threadID, in.Body, in.Attachments)
	if err != nil {
		switch {
		case errors.Is(err, simulator.ErrEmptyMessage):
			utils.JSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, simulator.ErrTooManyAttachments):
			utils.JSONError(w, http.StatusBadRequest, err.Error())
		default:
			utils.JSONError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, msg)
}

func (h *threadHandlers) updateMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var patch models.MessagePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		utils.JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	ok, err := h.store.UpdateMessage(vars["threadID"], vars["id"], patch)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"updated": true})
}

func (h *threadHandlers) deleteMessage(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ok, err := h.store.DeleteMessage(vars["threadID"], vars["id"])
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "message not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"deleted": true})
}

// clearThread removes the thread key entirely and cancels any pending
// synthetic replies for it.
func (h *threadHandlers) clearThread(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadID"]
	h.sim.CloseThread(threadID)
	ok, err := h.store.ClearThread(threadID)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		utils.JSONError(w, http.StatusNotFound, "thread not found")
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"cleared": true})
}

func (h *threadHandlers) closeThread(w http.ResponseWriter, r *http.Request) {
	h.sim.CloseThread(mux.Vars(r)["threadID"])
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"closed": true})
}

func (h *threadHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	threadID := mux.Vars(r)["threadID"]
	var in struct {
		IDs []string `json:"ids"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			utils.JSONError(w, http.StatusBadRequest, "invalid json")
			return
		}
	}
	if err := h.store.MarkRead(threadID, in.IDs); err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *threadHandlers) unreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.store.UnreadCount(mux.Vars(r)["threadID"])
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]int{"unread": n})
}

// searchMessages requires a non-empty q parameter: an empty query would
// trivially match everything, so it is rejected here rather than passed
// through to the store.
func (h *threadHandlers) searchMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		utils.JSONError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	threadID := mux.Vars(r)["threadID"]
	msgs, err := h.store.SearchMessages(threadID, q)
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Thread   string           `json:"thread"`
		Query    string           `json:"query"`
		Messages []models.Message `json:"messages"`
	}{Thread: threadID, Query: q, Messages: msgs})
}

func (h *threadHandlers) statistics(w http.ResponseWriter, r *http.Request) {
	st, err := h.store.Statistics(mux.Vars(r)["threadID"])
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, st)
}

func (h *threadHandlers) typing(w http.ResponseWriter, r *http.Request) {
	_ = utils.JSONWrite(w, http.StatusOK, map[string]bool{
		"typing": h.sim.Typing(mux.Vars(r)["threadID"]),
	})
}

func (h *threadHandlers) exportThread(w http.ResponseWriter, r *http.Request) {
	snap, err := h.store.ExportThread(mux.Vars(r)["threadID"])
	if err != nil {
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, snap)
}
