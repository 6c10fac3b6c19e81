package server

import (
	"net/http"
	"time"

	_ "backoffice/api/swagger" // swagger docs
	"backoffice/internal/cache"
	"backoffice/internal/handler"
	"backoffice/internal/logger"
	"backoffice/internal/middleware"
	"backoffice/internal/policy"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

// Options carries the settings the HTTP stack needs from config.
type Options struct {
	JWTSecret     string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	InvitationTTL time.Duration
	AppURL        string
	CORSOrigins   []string
	SecureCookies bool
	Debug         bool
	// Actors defaults to an in-memory cache with a five minute TTL.
	Actors cache.ActorCache
}

// App is the wired application: router plus the pieces main drives directly.
type App struct {
	Router *gin.Engine
	Hub    *websocket.Hub
	Roles  service.RoleService
	Tokens *service.Tokens
}

// New wires repositories, services and handlers (Repository -> Service -> Handler).
func New(db *gorm.DB, opts Options) *App {
	if opts.Actors == nil {
		opts.Actors = cache.NewMemoryActorCache(5 * time.Minute)
	}
	handler.SetDebug(opts.Debug)
	handler.RegisterValidation()

	hub := websocket.NewHub()
	engine := policy.Default()
	tokens := service.NewTokens(opts.JWTSecret, opts.AccessTTL, opts.InvitationTTL)

	txManager := repository.NewTransactionManager(db)
	userRepo := repository.NewUserRepository(db)
	roleRepo := repository.NewRoleRepository(db)
	clientRepo := repository.NewClientRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	itemRepo := repository.NewInvoiceItemRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	reportRepo := repository.NewReportRepository(db)

	auditService := service.NewAuditService(auditRepo, engine)
	notifier := service.NewNotifier(notificationRepo, hub)
	invoiceService := service.NewInvoiceService(invoiceRepo, itemRepo, paymentRepo, clientRepo, txManager, engine, auditService, notifier)
	itemService := service.NewInvoiceItemService(invoiceService, itemRepo)
	paymentService := service.NewPaymentService(invoiceService, invoiceRepo, paymentRepo, txManager, engine, auditService, notifier)
	clientService := service.NewClientService(clientRepo, invoiceRepo, txManager, engine, auditService)
	roleService := service.NewRoleService(roleRepo, userRepo, txManager, engine, auditService, opts.Actors)
	userService := service.NewUserService(userRepo, roleRepo, txManager, engine, auditService, notifier, opts.Actors, service.UserServiceConfig{
		Tokens:     tokens,
		RefreshTTL: opts.RefreshTTL,
		AppURL:     opts.AppURL,
	})
	reportService := service.NewReportService(reportRepo, clientRepo, engine)

	auth := middleware.NewAuthenticator(tokens, userRepo, opts.Actors, opts.SecureCookies)

	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = opts.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", logger.RequestIDHeader}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", logger.RequestIDHeader}
	if len(corsConfig.AllowOrigins) > 0 {
		router.Use(cors.New(corsConfig))
	}

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/health", func(c *gin.Context) {
		status, code := "OK", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "DEGRADED", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": status})
	})
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(hub, auth, c)
	})

	public := router.Group("/api")
	protected := router.Group("/api", auth.Authenticate())

	handler.NewUserHandler(userService, auth, opts.AccessTTL, opts.RefreshTTL).RegisterRoutes(public, protected)
	handler.NewRoleHandler(roleService).RegisterRoutes(protected)
	handler.NewClientHandler(clientService).RegisterRoutes(protected)
	handler.NewInvoiceHandler(invoiceService, itemService, paymentService).RegisterRoutes(protected)
	handler.NewReportHandler(reportService).RegisterRoutes(protected)
	handler.NewAuditHandler(auditService).RegisterRoutes(protected)
	handler.NewNotificationHandler(notifier).RegisterRoutes(protected)

	return &App{Router: router, Hub: hub, Roles: roleService, Tokens: tokens}
}
