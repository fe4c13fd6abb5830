package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/alumnet-backend/api/controllers"
	"github.com/angelmondragon/alumnet-backend/api/middleware"
	"github.com/angelmondragon/alumnet-backend/internal/donations"
	"github.com/angelmondragon/alumnet-backend/internal/events"
	"github.com/angelmondragon/alumnet-backend/internal/mentorship"
	"github.com/angelmondragon/alumnet-backend/pkg/config"
	"github.com/angelmondragon/alumnet-backend/pkg/db"
	"github.com/angelmondragon/alumnet-backend/pkg/logger"
	"github.com/angelmondragon/alumnet-backend/pkg/redis"
)

// Params carries everything the HTTP surface depends on. Redis and
// Gatherer are optional.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         db.Pinger
	Redis      redis.Pinger
	Events     events.Service
	Mentorship mentorship.Service
	Donations  donations.Service
	Dashboard  controllers.DashboardReader
	Gatherer   prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Actor(logg),
		middleware.Logging(logg),
	)

	deps := map[string]controllers.Pinger{"database": p.DB}
	if p.Redis != nil {
		deps["redis"] = p.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps))
	})

	if p.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.Post("/", controllers.EventCreate(p.Events, logg))
			r.Route("/{eventId}", func(r chi.Router) {
				r.Get("/", controllers.EventGet(p.Events, logg))
				r.Patch("/capacity", controllers.EventUpdateCapacity(p.Events, logg))
				r.Patch("/status", controllers.EventUpdateStatus(p.Events, logg))
				r.Post("/registrations", controllers.EventRegister(p.Events, logg))
				r.Get("/registrations", controllers.EventRegistrations(p.Events, logg))
			})
		})
		r.Route("/registrations/{registrationId}", func(r chi.Router) {
			r.Get("/", controllers.RegistrationGet(p.Events, logg))
			r.Post("/attend", controllers.RegistrationAction(p.Events, "attend", logg))
			r.Post("/cancel", controllers.RegistrationAction(p.Events, "cancel", logg))
		})

		r.Route("/mentors", func(r chi.Router) {
			r.Post("/", controllers.MentorCreate(p.Mentorship, logg))
			r.Route("/{mentorId}", func(r chi.Router) {
				r.Get("/", controllers.MentorGet(p.Mentorship, logg))
				r.Patch("/", controllers.MentorUpdate(p.Mentorship, logg))
				r.Post("/connections", controllers.MentorRequest(p.Mentorship, logg))
				r.Get("/connections", controllers.MentorConnections(p.Mentorship, logg))
			})
		})
		r.Route("/connections/{connectionId}", func(r chi.Router) {
			r.Get("/", controllers.ConnectionGet(p.Mentorship, logg))
			r.Post("/accept", controllers.ConnectionAction(p.Mentorship, "accept", logg))
			r.Post("/complete", controllers.ConnectionAction(p.Mentorship, "complete", logg))
			r.Post("/cancel", controllers.ConnectionAction(p.Mentorship, "cancel", logg))
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", controllers.CampaignCreate(p.Donations, logg))
			r.Route("/{campaignId}", func(r chi.Router) {
				r.Get("/", controllers.CampaignGet(p.Donations, logg))
				r.Get("/total", controllers.CampaignTotal(p.Donations, logg))
				r.Post("/donations", controllers.CampaignPledge(p.Donations, logg))
				r.Get("/donations", controllers.CampaignDonations(p.Donations, logg))
			})
		})
		r.Route("/donations/{donationId}", func(r chi.Router) {
			r.Get("/", controllers.DonationGet(p.Donations, logg))
			r.Post("/complete", controllers.DonationAction(p.Donations, "complete", logg))
			r.Post("/fail", controllers.DonationAction(p.Donations, "fail", logg))
			r.Post("/refund", controllers.DonationAction(p.Donations, "refund", logg))
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/metrics", controllers.DashboardMetrics(p.Dashboard, logg))
			r.Get("/activities", controllers.DashboardActivities(p.Dashboard, logg))
		})
	})

	return r
}
