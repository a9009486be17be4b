// Package httpapi serves the record and auth services as a JSON REST API.
// Every response body is an envelope: {"data": ...} on success and
// {"error": "..."} on failure. Request bodies use the same {"data": ...}
// wrapper.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/dmitrijs2005/bizsync/internal/logging"
	"github.com/dmitrijs2005/bizsync/internal/server/models"
	"github.com/dmitrijs2005/bizsync/internal/server/services"
)

// HealthOK is the payload of GET /api/health.
const HealthOK = "OK"

type UserService interface {
	Register(ctx context.Context, email, password, displayName, companyName string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type RecordService interface {
	List(ctx context.Context, id models.Identity, recordType string) ([]*models.Record, error)
	Get(ctx context.Context, id models.Identity, recordType, recordID string) (*models.Record, error)
	Create(ctx context.Context, id models.Identity, recordType string, doc map[string]any) (*models.Record, error)
	Update(ctx context.Context, id models.Identity, recordType, recordID string, fields map[string]any) (*models.Record, error)
	Delete(ctx context.Context, id models.Identity, recordType, recordID string) error
}

type BackupService interface {
	Export(ctx context.Context, id models.Identity) (*models.Backup, error)
}

// Router wraps the mux router and the services behind it.
type Router struct {
	*mux.Router
	users     UserService
	records   RecordService
	backups   BackupService
	logger    logging.Logger
	jwtSecret []byte
}

// NewRouter creates the HTTP router with all routes. A nil backups
// service leaves POST /api/backup unregistered.
func NewRouter(l logging.Logger, us UserService, rs RecordService, bs BackupService, secretKey string) *Router {
	r := &Router{
		Router:    mux.NewRouter(),
		users:     us,
		records:   rs,
		backups:   bs,
		logger:    l.With("module", "http_server"),
		jwtSecret: []byte(secretKey),
	}

	r.Use(r.loggingMiddleware)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	// Auth routes
	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", r.register).Methods(http.MethodPost)
	auth.HandleFunc("/login", r.login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", r.refresh).Methods(http.MethodPost)

	// Everything below needs a bearer token
	protected := api.NewRoute().Subrouter()
	protected.Use(r.authMiddleware)

	if bs != nil {
		protected.HandleFunc("/backup", r.exportBackup).Methods(http.MethodPost)
	}

	protected.HandleFunc("/{type}", r.listRecords).Methods(http.MethodGet)
	protected.HandleFunc("/{type}", r.createRecord).Methods(http.MethodPost)
	protected.HandleFunc("/{type}/{id}", r.getRecord).Methods(http.MethodGet)
	protected.HandleFunc("/{type}/{id}", r.updateRecord).Methods(http.MethodPut)
	protected.HandleFunc("/{type}/{id}", r.deleteRecord).Methods(http.MethodDelete)

	return r
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, HealthOK)
}
