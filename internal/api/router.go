package api

import (
	"net/http"

	"github.com/balu-dk/go-easee-gateway/internal/api/handlers"
	"github.com/balu-dk/go-easee-gateway/internal/api/middleware"
	"github.com/balu-dk/go-easee-gateway/internal/metrics"
	"github.com/balu-dk/go-easee-gateway/internal/service"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options configures the HTTP surface
type Options struct {
	DocsURL        string
	AllowedOrigins []string
}

// API handles the API server
type API struct {
	router  chi.Router
	handler *handlers.Handler
}

// NewAPI creates a new API server
func NewAPI(gateway *service.Gateway, opts Options) *API {
	router := chi.NewRouter()
	handler := handlers.NewHandler(gateway, opts.DocsURL)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Setup middleware
	router.Use(chimiddleware.RequestID)
	router.Use(middleware.RequestLogger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.ContentType)

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/", handler.Root)
	router.Get("/healthz", handler.Health)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Read routes, credentials travel as the trailing path segments
	router.Get("/getConfiguration/{chargerId}/{username}/{password}", handler.GetConfiguration)
	router.Get("/state/{chargerId}/{username}/{password}", handler.GetState)
	router.Get("/powerUsage/{chargerId}/{from}/{to}/{username}/{password}", handler.GetPowerUsage)
	router.Get("/getChargerDetails/{chargerId}/{username}/{password}", handler.GetChargerDetails)
	router.Get("/getIsEnabled/{chargerId}/{username}/{password}", handler.GetIsEnabled)
	router.Get("/getChargingSessions/{chargerId}/{from}/{to}/{username}/{password}", handler.GetChargingSessions)
	router.Get("/getSites/{username}/{password}", handler.GetSites)
	router.Get("/isCircuitAttached/{siteId}/{serialNumber}/{pinCode}/{username}/{password}", handler.IsCircuitAttached)

	// Settings writes
	router.Post("/setLedstripBrightness", handler.SetLedstripBrightness)
	router.Post("/setIsEnabled", handler.SetIsEnabled)
	router.Post("/setDynamicChargerCurrent", handler.SetDynamicChargerCurrent)
	router.Post("/setMaxChargerCurrent", handler.SetMaxChargerCurrent)

	return &API{
		router:  router,
		handler: handler,
	}
}

// ServeHTTP satisfies the http.Handler interface
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}
