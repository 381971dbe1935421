package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/facewatch/internal/api/handlers"
	"github.com/your-org/facewatch/internal/api/ws"
	"github.com/your-org/facewatch/internal/auth"
	"github.com/your-org/facewatch/internal/learner"
	"github.com/your-org/facewatch/internal/queue"
	"github.com/your-org/facewatch/internal/storage"
)

type RouterConfig struct {
	APIKey   string
	DB       *storage.PostgresStore
	MinIO    *storage.MinIOStore
	Producer *queue.Producer
	Hub      *ws.Hub
	Learner  *learner.Learner
	Engine   handlers.FeedbackApplier
	// StopSource ends the video stream, letting the frame loop drain and
	// persist. Optional.
	StopSource func()
	// EmbedFn extracts a face embedding from image bytes (vision adapters).
	EmbedFn func(imageData []byte) ([]float32, float32, error)
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.DB, cfg.MinIO, cfg.Producer)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket decision feed
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Feedback
	feedbackH := handlers.NewFeedbackHandler(cfg.Engine)
	v1.POST("/feedback", feedbackH.Submit)

	// Learner
	learnerH := handlers.NewLearnerHandler(cfg.Learner)
	v1.GET("/learner/stats", learnerH.Stats)
	v1.GET("/learner/pending", learnerH.Pending)
	v1.POST("/learner/reset", learnerH.Reset)
	v1.POST("/learner/save", learnerH.Save)
	v1.POST("/learner/export", learnerH.Export)

	// Engine control
	if cfg.StopSource != nil {
		v1.POST("/engine/stop", func(c *gin.Context) {
			cfg.StopSource()
			c.JSON(202, gin.H{"status": "stopping"})
		})
	}

	// Snapshot review: list, fetch, and clean up archived Unknown crops
	snapshotH := handlers.NewSnapshotHandler(cfg.MinIO)
	v1.GET("/snapshots", snapshotH.List)
	v1.GET("/snapshots/*key", snapshotH.Get)
	v1.DELETE("/snapshots/*key", snapshotH.Delete)

	// Enrollment
	personH := handlers.NewPersonHandler(cfg.DB, cfg.MinIO)
	personH.EmbedFn = cfg.EmbedFn
	v1.POST("/persons", personH.Create)
	v1.GET("/persons", personH.List)
	v1.GET("/persons/:id", personH.Get)
	v1.DELETE("/persons/:id", personH.Delete)
	v1.POST("/persons/:id/references", personH.AddReference)
	v1.GET("/persons/:id/references", personH.ListReferences)
	v1.DELETE("/persons/:id/references/:refId", personH.DeleteReference)
	v1.POST("/search", personH.Search)

	return r
}
