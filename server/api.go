package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"comment-map/cache"
	"comment-map/dto"
	"comment-map/metrics"
	"comment-map/repository"
	"comment-map/service"
)

type API struct {
	repo    repository.Repository
	gateway service.Gateway
	cache   *cache.Cache
}

func NewAPI(repo repository.Repository, gateway service.Gateway, videoCache *cache.Cache) *API {
	return &API{
		repo:    repo,
		gateway: gateway,
		cache:   videoCache,
	}
}

// Router builds the HTTP surface. logger is attached to every request context.
func (a *API) Router(logger zerolog.Logger, corsOrigins string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), newCORS(corsOrigins), requestLogger(logger))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	addHealth(r)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/analyze", a.analyze)
	r.GET("/jobs/:id", a.getJob)
	r.GET("/videos/:id", a.getVideo)
	r.DELETE("/videos/:id", a.deleteVideo)
	r.GET("/clusters/:id", a.getCluster)
	return r
}

func addHealth(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
}

func (a *API) analyze(c *gin.Context) {
	var req dto.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	jobId, err := a.gateway.Submit(c.Request.Context(), req.Reference())
	if errors.Is(err, service.ErrInvalidReference) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AnalyzeResponse{JobId: jobId})
}

func (a *API) getJob(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	job, err := a.repo.FindJobById(c.Request.Context(), id)
	if err != nil {
		lookupError(c, err, "job not found")
		return
	}
	c.JSON(http.StatusOK, dto.NewJobStatusResponse(job))
}

func (a *API) getVideo(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := pathId(c)
	if !ok {
		return
	}

	if a.cache.Enabled() {
		cached, err := a.cache.GetVideo(ctx, id)
		switch {
		case err != nil:
			zerolog.Ctx(ctx).Warn().Err(err).Msg("video cache read failed")
		case cached != nil:
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			c.JSON(http.StatusOK, cached)
			return
		default:
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	video, err := a.repo.FindVideoById(ctx, id)
	if err != nil {
		lookupError(c, err, "video not found")
		return
	}
	clusters, err := a.repo.ListClusters(ctx, id)
	if err != nil {
		internalError(c, err)
		return
	}

	resp := dto.NewVideoResponse(video, clusters)
	if video.Status.IsTerminal() {
		if err := a.cache.SetVideo(ctx, resp); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("video cache write failed")
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) deleteVideo(c *gin.Context) {
	ctx := c.Request.Context()
	id, ok := pathId(c)
	if !ok {
		return
	}
	if err := a.repo.DeleteVideo(ctx, id); err != nil {
		lookupError(c, err, "video not found")
		return
	}
	if err := a.cache.InvalidateVideo(ctx, id); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("video cache invalidation failed")
	}
	c.Status(http.StatusNoContent)
}

func (a *API) getCluster(c *gin.Context) {
	id, ok := pathId(c)
	if !ok {
		return
	}
	cluster, err := a.repo.FindClusterById(c.Request.Context(), id)
	if err != nil {
		lookupError(c, err, "cluster not found")
		return
	}
	c.JSON(http.StatusOK, dto.NewClusterResponse(cluster))
}

func pathId(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return uuid.Nil, false
	}
	return id, true
}

func lookupError(c *gin.Context, err error, notFound string) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFound})
		return
	}
	internalError(c, err)
}

func internalError(c *gin.Context, err error) {
	zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
