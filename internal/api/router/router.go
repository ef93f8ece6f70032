package router

import (
	"net/http"

	"github.com/cuongbtq/jobengine/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "job-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	// Scheduler-facing endpoints
	r.POST("/create-jobs/", jobHandler.CreateJobs)
	r.GET("/job-status/:job_id", jobHandler.GetJobStatus)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Dispatch a single job
			jobs.POST("", jobHandler.DispatchJob)
		}
	}

	return r
}
