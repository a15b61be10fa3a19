package api

import (
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/chronoplan/scheduler/internal/api/recovery"
	"github.com/chronoplan/scheduler/internal/orchestrator"
	"github.com/chronoplan/scheduler/internal/services"
	"github.com/chronoplan/scheduler/internal/store"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(st store.Store, svc *services.MeetingAssistService, orch *orchestrator.Orchestrator, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()

	// Global middlewares
	router.Use(recovery.Middleware(log))

	healthHandler := NewHealthHandler(st)
	meetingHandler := NewMeetingHandler(svc, orch)
	callbackHandler := NewCallbackHandler(orch, log)

	// Health endpoints
	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.HandleFunc("/api/health/db", healthHandler.CheckStorageHealth).Methods("GET")

	// Meeting assist lifecycle
	router.HandleFunc("/api/meeting-assists", meetingHandler.CreateMeetingAssist).Methods("POST")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}", meetingHandler.GetMeetingAssist).Methods("GET")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}", meetingHandler.DeleteMeetingAssist).Methods("DELETE")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}/attendees", meetingHandler.AddAttendee).Methods("POST")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}/preferred-time-ranges", meetingHandler.AddPreferredTimeRange).Methods("POST")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}/invites/{attendeeId:[0-9a-fA-F-]{36}}/respond", meetingHandler.RespondInvite).Methods("POST")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}/complete-intake", meetingHandler.CompleteIntake).Methods("POST")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}/submit", meetingHandler.SubmitForSolving).Methods("POST")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}/lock", meetingHandler.Lock).Methods("POST")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}/expand", meetingHandler.ExpandRecurrence).Methods("POST")
	router.HandleFunc("/api/meeting-assists/{meetingId:[0-9a-fA-F-]{36}}/cancel", meetingHandler.CancelMeetingAssist).Methods("POST")

	// Solver callback
	router.HandleFunc("/api/solver/callback", callbackHandler.SolverCallback).Methods("POST")

	return router
}
