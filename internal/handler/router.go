package handler

import (
	"fmt"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suteetoe/pallet-service/internal/middleware"
	"github.com/suteetoe/pallet-service/pkg/logger"
	"github.com/suteetoe/pallet-service/pkg/response"
	"github.com/suteetoe/pallet-service/pkg/storage"
	"github.com/suteetoe/pallet-service/pkg/validation"
)

// NewServer builds the echo instance with middleware and every route registered
func NewServer(d Deps) *echo.Echo {
	h := New(d)
	log := d.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = response.ErrorHandler(log)
	e.Validator = validation.New()

	// order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(echomiddleware.BodyLimit(fmt.Sprintf("%dM", d.Config.Upload.MaxZipSize>>20+10)))
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(middleware.MetricsMiddleware)

	e.GET("/health", h.HealthCheck)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.Static(storage.URLPrefix, d.Files.Root())

	h.Routes(e, d)
	return e
}

// Routes mounts the API routes on e
func (h *Handler) Routes(e *echo.Echo, d Deps) {
	authn := middleware.JWTAuth(d.JWT, d.Revoked)
	admin := middleware.AdminOnly

	api := e.Group("/api")

	// public
	auth := api.Group("/auth")
	auth.POST("/login", h.Login, middleware.RateLimiter(d.Redis, "login", d.Config.RateLimit.LoginPerMinute))
	auth.POST("/register", h.Register)
	auth.POST("/refresh", h.Refresh)
	api.GET("/pallet/share/:token", h.ResolveShare)
	api.GET("/content/:type", h.GetStaticPage)
	api.POST("/content/:type", h.SaveStaticPage, authn, admin)

	// authenticated account routes
	account := auth.Group("", authn)
	account.POST("/logout", h.Logout)
	account.GET("/profile", h.GetProfile)
	account.PUT("/profile", h.UpdateProfile)
	account.PUT("/profile/password", h.ChangePassword)
	account.GET("/stores", h.ListStores)
	account.POST("/stores", h.CreateStore)
	account.PUT("/stores/:id", h.UpdateStore)
	account.DELETE("/stores/:id", h.DeleteStore)

	users := auth.Group("/users", authn, admin)
	users.GET("", h.ListUsers)
	users.POST("", h.CreateUser)
	users.POST("/batch/reset-password", h.BatchResetPassword)
	users.PATCH("/:id", h.UpdateUser)
	users.PATCH("/:id/password", h.ResetUserPassword)
	users.PATCH("/:id/status", h.UpdateUserStatus)
	users.POST("/:id/stores", h.LinkUserStores)
	users.DELETE("/:id", h.DeleteUser)

	pallet := api.Group("/pallet", authn)

	brands := pallet.Group("/brands")
	brands.GET("", h.ListBrands)
	brands.GET("/:id", h.GetBrand)
	brands.POST("", h.CreateBrand, admin)
	brands.PUT("/:id", h.UpdateBrand, admin)
	brands.DELETE("/:id", h.DeleteBrand, admin)
	brands.PATCH("/:id/status", h.UpdateBrandStatus, admin)

	products := pallet.Group("/products")
	products.GET("", h.ListProducts)
	products.GET("/:id", h.GetProduct)
	products.POST("", h.CreateProduct)
	products.PUT("/:id", h.UpdateProduct)
	products.POST("/:id/recycle", h.RecycleProduct)
	products.DELETE("/:id/permanent", h.PurgeProduct)
	products.POST("/:id/copy", h.CopyProduct)

	tiers := pallet.Group("/price_tiers")
	tiers.POST("", h.CreatePriceTier)
	tiers.PUT("/:id", h.UpdatePriceTier)
	tiers.DELETE("/:id", h.DeletePriceTier)

	attachments := pallet.Group("/attachments")
	attachments.POST("/image", h.UploadImage)
	attachments.POST("/material", h.UploadMaterial)
	attachments.PUT("/:id", h.RebindAttachment)
	attachments.DELETE("/:id", h.DeleteAttachment)

	recycle := pallet.Group("/recycle")
	recycle.GET("", h.ListRecycleBin)
	recycle.POST("/batch-restore", h.BatchRestoreRecycled)
	recycle.POST("/batch-delete", h.BatchPurgeRecycled)
	recycle.POST("/:id/restore", h.RestoreRecycled)
	recycle.DELETE("/:id", h.PurgeRecycled)

	share := pallet.Group("/share")
	share.POST("", h.CreateShare)
	share.POST("/qrcode", h.ShareQRCode)
	share.GET("/history", h.ShareHistory)

	stats := pallet.Group("/stats")
	stats.GET("/access_logs", h.AccessLogs, admin)
	stats.GET("/client_analysis", h.ClientAnalysis)

	dashboard := pallet.Group("/dashboard")
	dashboard.GET("/overview", h.Overview)
	dashboard.GET("/refresh", h.RefreshTimestamps)
	dashboard.GET("/profile", h.DashboardProfile)
	dashboard.GET("/permissions", h.Permissions)
}
