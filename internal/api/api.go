package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/n0needt0/go-goodies/log"
	"github.com/n0needt0/synthlog/internal/config"
	"github.com/n0needt0/synthlog/internal/services"
	"github.com/swaggest/openapi-go/openapi3"
	"github.com/swaggest/rest/web"
	swgui "github.com/swaggest/swgui/v5emb"
	"go.opentelemetry.io/otel/metric"
)

type API struct {
	Services   *services.Services
	ApiMetrics map[string]metric.Int64Counter
	HttpServer *http.Server
	sync.RWMutex
	Config *config.Config
}

func NewAPI(services *services.Services, conf *config.Config) *API {
	return &API{
		Services:   services,
		ApiMetrics: make(map[string]metric.Int64Counter),
		Config:     conf,
	}
}

// UseMetric returns the counter for label, creating it on first use.
// metric label is root/something
func (api *API) UseMetric(label, description string) metric.Int64Counter {
	api.RLock()
	mtr, ok := api.ApiMetrics[label]
	api.RUnlock()
	if ok {
		return mtr
	}

	m, err := api.Services.OtelMeter.Int64Counter(label, metric.WithDescription(description))
	if err != nil {
		log.Error("failed to init the metrics" + err.Error())
		return nil
	}

	api.Lock()
	defer api.Unlock()
	if existing, ok := api.ApiMetrics[label]; ok {
		return existing
	}
	api.ApiMetrics[label] = m
	return m
}

func (api *API) count(ctx context.Context, label, description string) {
	if m := api.UseMetric(label, description); m != nil {
		m.Add(ctx, 1)
	}
}

// NewRouter returns a new router serving API endpoints
func (api *API) NewRouter() *web.Service {
	service := web.DefaultService()
	service.OpenAPI.Info.Title = "synthlog API"
	service.OpenAPI.Info.WithDescription("Health and emission statistics of a synthlog run")
	service.OpenAPI.Info.Version = api.Config.App.Version
	tags := []struct{ name, description string }{
		{"synthlog", "Provides API for synthlog"},
	}
	apiTags := make([]openapi3.Tag, len(tags))
	for i, t := range tags {
		apiTags[i] = openapi3.Tag{Name: t.name, Description: &t.description}
	}
	service.OpenAPI.WithTags(apiTags...)
	service.DecoderFactory.ApplyDefaults = true

	service.Get("/api/v2/health", api.HealthCheck())
	service.Get("/api/v2/stats", api.Stats())
	service.Get("/api/v2/formats", api.Formats())

	// use /docs for docs UI and redirect from / to /docs
	service.Docs("/v2/docs", swgui.New)

	service.Router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.RequestURI+"v2/docs", http.StatusFound)
	})

	return service
}

// Serve serves http endpoints until Stop is called
func (api *API) Serve(address string, router http.Handler) {
	log.Infof("api server started: on %s", address)

	api.Lock()
	api.HttpServer = &http.Server{Addr: address, Handler: router}
	srv := api.HttpServer
	api.Unlock()

	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		log.Info("api server closed")
	} else {
		log.Errorf("api server failed and closed: %v", err)
	}
}

// Stop stops the server
func (api *API) Stop() {
	api.Lock()
	srv := api.HttpServer
	api.HttpServer = nil
	api.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("error shutting down api server: %v", err)
	}
}
