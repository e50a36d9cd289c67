package server

import (
	"net/http"
	"strings"
)

// setupRoutes wires the worker API surface
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Liveness and scrape endpoints, no auth
	mux.HandleFunc("/health", s.app.StatusHandler.HealthHandler)
	mux.Handle("/metrics", s.app.Metrics.Handler())
	mux.HandleFunc("/stats", s.app.StatusHandler.StatsHandler)

	// Job event stream
	mux.HandleFunc("/ws", s.app.WSHandler.ServeWS)

	// Jobs API: /jobs, /jobs/{task_type}/start, /jobs/{job_id}/status,
	// /jobs/{job_id}/stop, /jobs/{job_id}
	mux.HandleFunc("/jobs", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			"GET": s.app.JobHandler.ListJobsHandler,
		})
	})
	mux.HandleFunc("/jobs/", s.routeJobs)

	// Remote lock co-location
	mux.HandleFunc("/locks/acquire", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			"POST": s.app.LockHandler.AcquireHandler,
		})
	})
	mux.HandleFunc("/locks/release", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{
			"POST": s.app.LockHandler.ReleaseHandler,
		})
	})

	return mux
}

// routeJobs dispatches the /jobs/ subtree by shape:
//
//	POST   /jobs/{task_type}/start
//	GET    /jobs/{job_id}/status
//	POST   /jobs/{job_id}/stop
//	DELETE /jobs/{job_id}
func (s *Server) routeJobs(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	switch {
	case len(parts) == 3 && parts[2] == "start":
		RouteByMethod(w, r, MethodRouter{
			"POST": s.app.JobHandler.StartJobHandler,
		})
	case len(parts) == 3 && parts[2] == "status":
		RouteByMethod(w, r, MethodRouter{
			"GET": s.app.JobHandler.JobStatusHandler,
		})
	case len(parts) == 3 && parts[2] == "stop":
		RouteByMethod(w, r, MethodRouter{
			"POST": s.app.JobHandler.StopJobHandler,
		})
	case len(parts) == 2:
		RouteByMethod(w, r, MethodRouter{
			"DELETE": s.app.JobHandler.DeleteJobHandler,
		})
	default:
		http.NotFound(w, r)
	}
}
