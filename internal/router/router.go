package router

import (
	"time"

	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/config"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/handler"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/middleware"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/repository"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/service"
	"github.com/DyelsonM/doutor-agenda-v2-sub001/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// New wires all dependencies and returns a configured Gin engine.
// Dependency graph: Handler ← Service ← Repository ← DB/Redis
func New(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute)) // 1000 req/min per IP

	// ── Repositories / services / handlers ───────────────────────────────────
	cashRepo := repository.NewCashRepository(db)
	dispatcher := worker.NewDispatcher(rdb)
	cashSvc := service.NewCashService(cashRepo, dispatcher)
	cashH := handler.NewCashHandler(cashSvc)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(db, rdb))

	// Protected routes — every entry point needs a resolved (user, clinic) identity
	jwtMW := middleware.JWTAuth(cfg.JWTSecret)
	v1 := r.Group("/v1", jwtMW)
	{
		cash := v1.Group("/cash")
		{
			staff := middleware.RequireRole("receptionist", "manager", "admin")
			managers := middleware.RequireRole("manager", "admin")

			cash.POST("/sessions", staff, cashH.OpenSession)
			cash.POST("/sessions/:id/operations", staff, cashH.AppendOperation)
			cash.POST("/sessions/:id/close", staff, cashH.CloseSession)
			cash.DELETE("/sessions/:id", managers, cashH.DeleteSession)

			cash.GET("/sessions/:id", staff, cashH.GetSession)
			cash.GET("/sessions/:id/operations", staff, cashH.ListOperations)
			cash.GET("/open", staff, cashH.GetOpenSession)
			cash.GET("/by-date", staff, cashH.GetSessionByDate)
			cash.GET("/history", managers, cashH.ListHistory)
		}
	}

	// Swagger UI — only enabled outside production
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
