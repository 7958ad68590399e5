package api

import (
	"net/http"

	"chatledger/pkg/api/handlers"
	"chatledger/pkg/simulator"
	"chatledger/pkg/store"

	"github.com/gorilla/mux"
)

// Handler returns the /v1 REST surface over the given store and
// simulator. The presentation layer talks to threads exclusively through
// these routes; sends and opens go through the simulator so it can seed
// greetings and schedule synthetic replies, while reads and maintenance
// hit the store directly.
func Handler(st *store.Store, sim *simulator.Simulator) http.Handler {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	handlers.RegisterThreads(v1, st, sim)
	handlers.RegisterAdmin(v1, st, sim)
	return r
}
