package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clipforge/highlights-api/internal/authz"
	"github.com/clipforge/highlights-api/internal/handlers"
	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/token"
)

// NewRouter sets up the API routes. Every route under a tenant prefix is
// guarded by a tenant-scope match on the path variable; platform and
// internal routes are guarded by their own audiences.
func NewRouter(
	guard *authz.Middleware,
	auth *handlers.AuthHandler,
	tenants *handlers.TenantHandler,
	prov *handlers.ProvisionHandler,
	jobs *handlers.JobHandler,
	notifications *handlers.NotificationHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check and metrics
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)
	router.HandleFunc("/auth/magic/start", auth.MagicStart).Methods(http.MethodPost)
	router.HandleFunc("/auth/magic/verify", auth.MagicVerify).Methods(http.MethodGet)

	// Platform admin surface
	admin := router.PathPrefix("/admin").Subrouter()
	admin.Use(guard.Authenticate, guard.RequirePlatformAdmin)
	admin.HandleFunc("/tenants", tenants.CreateTenant).Methods(http.MethodPost)
	admin.HandleFunc("/tenants", tenants.ListTenants).Methods(http.MethodGet)
	admin.HandleFunc("/tenants/{tenantID}", tenants.GetTenant).Methods(http.MethodGet)
	admin.HandleFunc("/tenants/{tenantID}/suspend", tenants.SuspendTenant).Methods(http.MethodPost)
	admin.HandleFunc("/tenants/{tenantID}/reactivate", tenants.ReactivateTenant).Methods(http.MethodPost)

	// Internal service surface
	internal := router.PathPrefix("/internal").Subrouter()
	internal.Use(guard.Authenticate, guard.RequireService)
	internal.HandleFunc("/provision/queue", prov.QueueProvisioning).Methods(http.MethodPost)
	internal.HandleFunc("/jobs/{tenantID}/{jobID}/complete", jobs.CompleteJob).Methods(http.MethodPost)

	// Provision status: tenant members of the tenant itself, platform
	// admins, and internal services may all read it.
	status := router.PathPrefix("/tenants/{tenantID}/provision-status").Subrouter()
	status.Use(guard.Authenticate, guard.RequireTenant("tenantID", token.AudiencePlatformAdmin, token.AudienceService))
	status.HandleFunc("", prov.ProvisionStatus).Methods(http.MethodGet)

	// Tenant-scoped surface
	tenant := router.PathPrefix("/tenants/{tenantID}").Subrouter()
	tenant.Use(guard.Authenticate, guard.RequireTenant("tenantID"))
	tenant.HandleFunc("/overview", tenants.Overview).Methods(http.MethodGet)
	tenant.HandleFunc("/users", tenants.ListUsers).Methods(http.MethodGet)
	tenant.HandleFunc("/jobs", jobs.CreateJob).Methods(http.MethodPost)
	tenant.HandleFunc("/jobs", jobs.ListJobs).Methods(http.MethodGet)
	tenant.HandleFunc("/jobs/{jobID}", jobs.GetJob).Methods(http.MethodGet)
	tenant.HandleFunc("/notifications", notifications.List).Methods(http.MethodGet)
	tenant.HandleFunc("/notifications/{notificationID}/read", notifications.MarkRead).Methods(http.MethodPost)

	// User management needs tenant_admin on top of the tenant match.
	manage := router.PathPrefix("/tenants/{tenantID}/users").Subrouter()
	manage.Use(guard.Authenticate, guard.RequireTenant("tenantID", token.AudiencePlatformAdmin), guard.RequireRole(models.RoleTenantAdmin))
	manage.HandleFunc("", tenants.AddUser).Methods(http.MethodPost)

	// Brand changes need tenant_admin as well.
	brand := router.PathPrefix("/tenants/{tenantID}/brand").Subrouter()
	brand.Use(guard.Authenticate, guard.RequireTenant("tenantID", token.AudiencePlatformAdmin), guard.RequireRole(models.RoleTenantAdmin))
	brand.HandleFunc("", tenants.UpdateBrand).Methods(http.MethodPatch)

	return router
}
