package api

import (
	"context"
	"time"

	"github.com/n0needt0/synthlog/internal/api/models"
	"github.com/n0needt0/synthlog/internal/rewrite"
	"github.com/swaggest/usecase"
	"github.com/swaggest/usecase/status"
)

const (
	HEALTHY  = "healthy"
	UNHEALTY = "unhealthy"
)

func (api *API) HealthCheck() usecase.IOInteractorOf[models.EmptyRequest, models.HealthResponse] {
	u := usecase.NewInteractor(func(ctx context.Context, req models.EmptyRequest, resp *models.HealthResponse) error {
		api.count(ctx, "api/health", "health checks")

		if api.Services.GetHealth() {
			resp.Status = HEALTHY
		} else {
			resp.Status = UNHEALTY
		}
		return nil
	})
	u.SetTags("Internal")
	u.SetExpectedErrors(status.Internal)
	u.SetDescription("Check status of the service.")
	return u
}

func (api *API) Stats() usecase.IOInteractorOf[models.EmptyRequest, models.StatsResponse] {
	u := usecase.NewInteractor(func(ctx context.Context, req models.EmptyRequest, resp *models.StatsResponse) error {
		api.count(ctx, "api/stats", "stats requests")

		st := api.Services.Stats
		resp.RunID = api.Services.RunID
		resp.Format = api.Services.Format
		resp.RecordsEmitted = st.RecordsEmitted.Load()
		resp.RecordsFailed = st.RecordsFailed.Load()
		resp.BytesEmitted = st.BytesEmitted.Load()
		if last := st.LastActivity(); !last.IsZero() {
			resp.LastActivity = last.UTC().Format(time.RFC3339)
		}
		resp.UptimeSeconds = st.Uptime(time.Now()).Seconds()
		return nil
	})
	u.SetTags("synthlog")
	u.SetExpectedErrors(status.Internal)
	u.SetDescription("Emission counters of the current run.")
	return u
}

func (api *API) Formats() usecase.IOInteractorOf[models.EmptyRequest, models.FormatsResponse] {
	u := usecase.NewInteractor(func(ctx context.Context, req models.EmptyRequest, resp *models.FormatsResponse) error {
		api.count(ctx, "api/formats", "format listings")

		for _, name := range rewrite.Names() {
			f, err := rewrite.Lookup(name)
			if err != nil {
				return status.Wrap(err, status.Internal)
			}
			resp.Formats = append(resp.Formats, models.FormatInfo{
				Name:              f.Name,
				DefaultCount:      f.DefaultCount,
				PerRecordIdentity: f.PerRecordIdentity,
				Geolocated:        f.Locate != "",
			})
		}
		return nil
	})
	u.SetTags("synthlog")
	u.SetExpectedErrors(status.Internal)
	u.SetDescription("Log formats this build can synthesize.")
	return u
}
