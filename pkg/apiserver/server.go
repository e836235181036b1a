package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/mealflow/mealflow/pkg/apiserver/handlers"
	"github.com/mealflow/mealflow/pkg/apiserver/middleware"
	"github.com/mealflow/mealflow/pkg/auth"
	"github.com/mealflow/mealflow/pkg/config"
	"github.com/mealflow/mealflow/pkg/engine"
	"github.com/mealflow/mealflow/pkg/eventbus"
	"github.com/mealflow/mealflow/pkg/poller"
	"github.com/mealflow/mealflow/pkg/store/postgres"
)

type Server struct {
	router *gin.Engine
	db     *postgres.Store
	cfg    *config.Config
	logger *zap.Logger
	engine *engine.Engine
	poller *poller.Poller
	bus    *eventbus.Bus
}

func NewServer(db *postgres.Store, cfg *config.Config, logger *zap.Logger, eng *engine.Engine, p *poller.Poller, bus *eventbus.Bus) *Server {
	s := &Server{
		db:     db,
		cfg:    cfg,
		logger: logger,
		engine: eng,
		poller: p,
		bus:    bus,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var tokens *auth.TokenManager
	if s.cfg.Auth.JWTSecret != "" {
		tokens = auth.NewTokenManager([]byte(s.cfg.Auth.JWTSecret), s.cfg.Auth.TokenTTL)
	}

	api := r.Group("/api/v1")
	{
		api.Use(middleware.Auth(tokens))

		db := s.databaseOrNil()

		workflowHandler := handlers.NewWorkflowHandler(
			postgres.NewWorkflowRepository(db),
			postgres.NewScheduleRepository(db),
			s.engine,
			s.bus,
			s.logger,
		)
		api.POST("/workflows", workflowHandler.Create)
		api.GET("/workflows", workflowHandler.List)
		api.GET("/workflows/:id", workflowHandler.Get)
		api.PATCH("/workflows/:id", workflowHandler.Update)
		api.DELETE("/workflows/:id", workflowHandler.Delete)
		api.POST("/workflows/:id/execute", workflowHandler.Execute)

		stepHandler := handlers.NewStepHandler(postgres.NewStepRepository(db), s.logger)
		api.POST("/workflows/:id/steps", stepHandler.Create)
		api.GET("/workflows/:id/steps", stepHandler.List)
		api.PUT("/workflows/:id/steps", stepHandler.Replace)
		api.PATCH("/workflows/:id/steps/:stepID", stepHandler.Update)
		api.DELETE("/workflows/:id/steps/:stepID", stepHandler.Delete)

		scheduleHandler := handlers.NewScheduleHandler(postgres.NewScheduleRepository(db), s.logger)
		api.PUT("/workflows/:id/schedule", scheduleHandler.Upsert)
		api.GET("/workflows/:id/schedule", scheduleHandler.Get)
		api.DELETE("/workflows/:id/schedule", scheduleHandler.Delete)

		executionHandler := handlers.NewExecutionHandler(postgres.NewExecutionRepository(db), s.poller, s.logger)
		api.GET("/workflows/:id/executions", executionHandler.ListByWorkflow)
		api.GET("/executions/:id", executionHandler.Get)
		api.POST("/poll", executionHandler.Poll)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// databaseOrNil lets the router build without a database, which tests use
// for the endpoints that never touch one.
func (s *Server) databaseOrNil() *gorm.DB {
	if s.db == nil {
		return nil
	}
	return s.db.DB()
}
