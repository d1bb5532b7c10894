package server

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jghoshh/cadence/scheduler"
)

// recoveryMiddleware is a middleware function that recovers from panics and provides a generic error message to the client.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %s\n", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the ops HTTP server. It exposes a health
// check and manual job triggers; the product API lives elsewhere.
func Start(addr string, sched *scheduler.Scheduler) error {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/jobs/{name}/run", func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		if err := sched.RunOnce(req.Context(), name); err != nil {
			log.Printf("manual run of job %q failed: %v", name, err)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"job": name, "status": "ok"})
	}).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:         addr,
		Handler:      handlers.LoggingHandler(os.Stdout, recoveryMiddleware(r)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("ops server listening on %s", addr)
	return srv.ListenAndServe()
}
