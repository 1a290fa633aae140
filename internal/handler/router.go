package handler

import (
	"net/http"

	"course-agenda-server/internal/config"
	"course-agenda-server/internal/middleware"

	"github.com/gorilla/mux"
)

type RouterConfig struct {
	JWTSecret   string
	CORS        config.CORSConfig
	MetricsPath string
	Metrics     http.Handler
}

func NewRouter(cfg RouterConfig, agenda *AgendaHandler, curriculum *CurriculumHandler, ws *WebSocketHandler) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	api.Use(middleware.RequireWriter())

	api.HandleFunc("/projects/{projectID}/events", agenda.List).Methods("GET", "OPTIONS")
	api.HandleFunc("/projects/{projectID}/events", agenda.Create).Methods("POST", "OPTIONS")
	api.HandleFunc("/projects/{projectID}/events/{id}", agenda.Get).Methods("GET", "OPTIONS")
	api.HandleFunc("/projects/{projectID}/events/{id}", agenda.Update).Methods("PUT", "OPTIONS")
	api.HandleFunc("/projects/{projectID}/events/{id}", agenda.Delete).Methods("DELETE", "OPTIONS")
	api.HandleFunc("/projects/{projectID}/events/{id}/reschedule", agenda.Reschedule).Methods("POST", "OPTIONS")
	api.HandleFunc("/projects/{projectID}/conflicts", agenda.Conflicts).Methods("GET", "OPTIONS")
	api.HandleFunc("/projects/{projectID}/slots", agenda.Slots).Methods("GET", "OPTIONS")

	for _, base := range []string{"/courses/{courseID}/modules", "/modules/{moduleID}/activities"} {
		api.HandleFunc(base, curriculum.List).Methods("GET", "OPTIONS")
		api.HandleFunc(base, curriculum.Create).Methods("POST", "OPTIONS")
		api.HandleFunc(base+"/reorder", curriculum.Reorder).Methods("POST", "OPTIONS")
		api.HandleFunc(base+"/{id}", curriculum.Update).Methods("PUT", "OPTIONS")
		api.HandleFunc(base+"/{id}", curriculum.Delete).Methods("DELETE", "OPTIONS")
	}

	if ws != nil {
		r.HandleFunc("/ws", ws.HandleConnection)
	}
	if cfg.Metrics != nil {
		r.Handle(cfg.MetricsPath, cfg.Metrics).Methods("GET")
	}
	r.HandleFunc("/health", healthHandler).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"course-agenda-server"}`))
}
