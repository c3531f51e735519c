package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/blakebenson/artkey-backend/api/controllers"
	"github.com/blakebenson/artkey-backend/api/middleware"
	"github.com/blakebenson/artkey-backend/internal/artkeys"
	"github.com/blakebenson/artkey-backend/internal/auth"
	"github.com/blakebenson/artkey-backend/internal/checkoutgate"
	"github.com/blakebenson/artkey-backend/internal/commerce"
	"github.com/blakebenson/artkey-backend/internal/media"
	"github.com/blakebenson/artkey-backend/internal/printcomp"
	"github.com/blakebenson/artkey-backend/internal/sessionbinding"
	"github.com/blakebenson/artkey-backend/pkg/auth/session"
	"github.com/blakebenson/artkey-backend/pkg/config"
	"github.com/blakebenson/artkey-backend/pkg/logger"
	"github.com/blakebenson/artkey-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface depends on.
type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Redis    *redis.Client
	Sessions session.AccessSessionChecker

	AuthService   auth.Service
	ArtKeys       artkeys.Service
	Permalinks    artkeys.Permalinker
	Media         media.Service
	Prints        *printcomp.Service
	Gate          *checkoutgate.Gate
	Bindings      *sessionbinding.Manager
	CommerceStore *commerce.Store
}

// NewRouter wires the full HTTP surface.
func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Site.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Redis))
	})

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/login", controllers.Login(p.AuthService, logg))
		r.Post("/refresh", controllers.RefreshToken(p.AuthService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/templates", controllers.ListTemplates(p.Prints, logg))
		r.Get("/pages/{slug}", controllers.GetPublicPage(p.ArtKeys, p.Media, logg))
		r.Post("/artkeys/{id}/guestbook-media", controllers.UploadGuestbookMedia(p.Media, p.ArtKeys, cfg.Media.MaxUploadBytes(), logg))

		// Editor surface: an edit token or an authenticated owner/admin.
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, p.Sessions, logg))
			r.Use(middleware.EditToken())

			r.Route("/artkeys/{id}", func(r chi.Router) {
				r.Get("/", controllers.GetArtKey(p.ArtKeys, p.Permalinks, logg))
				r.Put("/fields", controllers.UpdateArtKeyFields(p.ArtKeys, p.Permalinks, logg))
				r.Post("/publish", controllers.PublishArtKey(p.ArtKeys, p.Permalinks, logg))
				r.Post("/design", controllers.SaveDesign(p.ArtKeys, p.Prints, logg))
				r.Get("/print-image", controllers.GetPrintImage(p.ArtKeys, p.Prints, logg))

				r.Route("/media", func(r chi.Router) {
					r.Get("/", controllers.ListMedia(p.Media, logg))
					r.Post("/", controllers.UploadEditorMedia(p.Media, cfg.Media.MaxUploadBytes(), logg))
					r.Post("/{assetId}/approve", controllers.ApproveMedia(p.Media, logg))
					r.Delete("/{assetId}", controllers.DeleteMedia(p.Media, logg))
				})
			})
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Use(middleware.ShopSession(logg))
			r.Get("/gate", controllers.CheckoutGate(p.Gate, cfg.Site, logg))
			r.Post("/complete", controllers.CheckoutComplete(p.Gate, logg))
		})

		r.Route("/hooks/commerce", func(r chi.Router) {
			r.Use(middleware.HookSecret(cfg.Hooks, logg))
			r.Post("/line-added", controllers.CommerceLineAdded(p.Bindings, cfg.Site, logg))
			r.Post("/order-placed", controllers.CommerceOrderPlaced(p.CommerceStore, p.Bindings, logg))
			r.Post("/order-completed", controllers.CommerceOrderCompleted(p.CommerceStore, p.Bindings, p.Prints, cfg.Print, logg))
			r.Post("/order-terminated", controllers.CommerceOrderTerminated(p.CommerceStore, p.Bindings, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.Sessions, logg))
		r.Use(middleware.RequireAdmin(logg))

		r.Route("/artkeys", func(r chi.Router) {
			r.Post("/", controllers.AdminCreateArtKey(p.ArtKeys, p.Permalinks, logg))
			r.Get("/", controllers.AdminListArtKeys(p.ArtKeys, p.Permalinks, logg))
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/protect", controllers.AdminProtectArtKey(p.ArtKeys, p.Permalinks, logg))
				r.Post("/assign-owner", controllers.AdminAssignOwner(p.ArtKeys, p.Permalinks, logg))
				r.Post("/compose", controllers.AdminComposeArtKey(p.Prints, logg))
				r.Delete("/", controllers.AdminDeleteArtKey(p.ArtKeys, logg))
			})
		})
	})

	return r
}
