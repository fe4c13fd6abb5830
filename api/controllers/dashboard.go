package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/alumnet-backend/api/responses"
	"github.com/angelmondragon/alumnet-backend/api/validators"
	"github.com/angelmondragon/alumnet-backend/internal/dashboard"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
)

// DashboardReader is the read side of the dashboard aggregator.
type DashboardReader interface {
	GetDashboardMetrics(ctx context.Context) (*dashboard.Metrics, error)
	GetRecentActivities(ctx context.Context, limit int) ([]dashboard.Activity, error)
}

func DashboardMetrics(svc DashboardReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, err := svc.GetDashboardMetrics(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, metrics)
	}
}

// DashboardActivities serves the recent feed; limit 0 or absent means the
// default and large values are clamped by the aggregator.
func DashboardActivities(svc DashboardReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, 1000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		activities, err := svc.GetRecentActivities(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if activities == nil {
			activities = []dashboard.Activity{}
		}
		responses.WriteSuccess(w, activities)
	}
}
