package handlers

import (
	"net/http"
	"time"

	"github.com/sublatesublate-design/legal-database/logger"

	"github.com/gin-gonic/gin"
)

// Routes bundles the handlers mounted by NewRouter. Ingest and Metrics are
// optional.
type Routes struct {
	Laws    *LawHandler
	Tools   *ToolHandler
	Ingest  *IngestHandler
	Metrics http.Handler
	Log     *logger.Logger
}

// NewRouter sets up the gin engine with every API route
func NewRouter(routes Routes) *gin.Engine {
	log := routes.Log
	if log == nil {
		log = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log.Component("http")))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	if routes.Metrics != nil {
		r.GET("/metrics", gin.WrapH(routes.Metrics))
	}

	// API routes
	api := r.Group("/api")
	{
		// Tool endpoints
		api.GET("/tools", routes.Tools.ListTools)
		api.POST("/tools/:name", routes.Tools.CallTool)

		// Law endpoints
		api.GET("/laws/search", routes.Laws.SearchLaws)
		api.GET("/laws/resolve", routes.Laws.ResolveLaw)
		api.GET("/laws/:law/articles/:number", routes.Laws.GetArticle)
		api.GET("/laws/:law/structure", routes.Laws.GetStructure)
		api.GET("/laws/:law/validity", routes.Laws.CheckValidity)
		api.GET("/articles/search", routes.Laws.SearchArticles)

		// Citation endpoints
		api.POST("/citations/verify", routes.Laws.VerifyCitation)
		api.POST("/citations/batch", routes.Laws.BatchVerify)

		// Vocabulary endpoints
		api.POST("/aliases", routes.Laws.AddAlias)
		api.POST("/synonyms", routes.Laws.AddSynonym)

		// Maintenance endpoints
		api.GET("/stats", routes.Laws.Stats)
		api.POST("/cache/clear", routes.Laws.ClearCaches)

		// Ingest endpoints
		if routes.Ingest != nil {
			api.POST("/ingest", routes.Ingest.IngestDocument)
			api.POST("/ingest/batch", routes.Ingest.IngestBatch)
			api.POST("/ingest/upload", routes.Ingest.UploadDocument)
			api.GET("/laws/:law/source", routes.Ingest.GetSource)
			api.DELETE("/laws/:law", routes.Ingest.PurgeLaw)
		}
	}

	return r
}

// RequestLogger logs one line per request
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Debug()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("duration_ms", time.Since(start)).
			Msg("request")
	}
}
