package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/GrayGhostDev/leadflow/docs"
	"github.com/GrayGhostDev/leadflow/internal/domain"
	"github.com/GrayGhostDev/leadflow/internal/dto"
	"github.com/GrayGhostDev/leadflow/internal/service"
)

type Handler struct {
	eventService   service.EventServicer
	insightService service.InsightServicer
	router         *gin.Engine
	log            *zap.Logger
}

func NewHandler(eventService service.EventServicer, insightService service.InsightServicer, log *zap.Logger) *Handler {
	h := &Handler{
		eventService:   eventService,
		insightService: insightService,
		router:         gin.Default(),
		log:            log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.POST("/events", h.recordEvent)
	h.router.POST("/events/bulk", h.recordEventsBulk)
	h.router.GET("/metrics", h.getMetrics)
	h.router.GET("/leads/:id/score", h.getLeadScore)
	h.router.GET("/experiments/:id/analysis", h.getExperimentAnalysis)
	h.router.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

// healthCheck handles health check requests
// @Summary Health check
// @Description Check if the service is running
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// recordEvent handles POST /events
// @Summary Record a single engagement event
// @Description Record a single engagement event; it is validated and queued for processing
// @Tags events
// @Accept json
// @Produce json
// @Param event body dto.RecordEventRequest true "Event data"
// @Success 202 {object} dto.RecordEventResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /events [post]
func (h *Handler) recordEvent(c *gin.Context) {
	var req dto.RecordEventRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid event request",
			zap.Error(err),
			zap.String("lead_id", req.LeadID))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	eventID, err := h.eventService.ProcessEvent(&req)
	if err != nil {
		h.log.Error("Failed to process event",
			zap.Error(err),
			zap.String("lead_id", req.LeadID),
			zap.String("type", req.Type))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	h.log.Info("Event accepted",
		zap.String("event_id", eventID),
		zap.String("lead_id", req.LeadID),
		zap.String("type", req.Type))

	c.JSON(http.StatusAccepted, dto.RecordEventResponse{
		EventID: eventID,
		Status:  "accepted",
	})
}

// recordEventsBulk handles POST /events/bulk
// @Summary Record multiple engagement events
// @Description Record multiple engagement events in bulk with per-item error reporting
// @Tags events
// @Accept json
// @Produce json
// @Param events body dto.RecordEventsBulkRequest true "Bulk events data"
// @Success 202 {object} dto.RecordBulkEventsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /events/bulk [post]
func (h *Handler) recordEventsBulk(c *gin.Context) {
	var bulkRequest dto.RecordEventsBulkRequest

	if err := c.ShouldBindJSON(&bulkRequest); err != nil {
		h.log.Warn("Invalid bulk event request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	eventIDs, errs, err := h.eventService.ProcessBulkEvents(bulkRequest.Events)
	if err != nil {
		h.log.Error("Failed to process bulk events",
			zap.Error(err),
			zap.Int("event_count", len(bulkRequest.Events)))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	accepted := len(eventIDs)
	rejected := len(errs)

	h.log.Info("Bulk events processed",
		zap.Int("accepted", accepted),
		zap.Int("rejected", rejected),
		zap.Int("total", len(bulkRequest.Events)))

	c.JSON(http.StatusAccepted, dto.RecordBulkEventsResponse{
		Accepted: accepted,
		Rejected: rejected,
		EventIDs: eventIDs,
		Errors:   errs,
	})
}

// getMetrics handles GET /metrics
// @Summary Get aggregated engagement metrics
// @Description Retrieve aggregated engagement metrics with optional grouping by channel, hour, or day
// @Tags metrics
// @Produce json
// @Param type query string true "Event type to filter by" example:"opened"
// @Param from query int true "Start timestamp (Unix epoch)" example:"1723475612"
// @Param to query int true "End timestamp (Unix epoch)" example:"1723562012"
// @Param group_by query string false "Field to group by (channel, hour, day)" Enums(channel, hour, day) example:"channel"
// @Success 200 {object} dto.GetMetricsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /metrics [get]
func (h *Handler) getMetrics(c *gin.Context) {
	var req dto.GetMetricsRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Warn("Invalid metrics request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.eventService.GetMetrics(&req)
	if err != nil {
		h.log.Error("Failed to get metrics",
			zap.Error(err),
			zap.String("type", req.Type),
			zap.Int64("from", req.From),
			zap.Int64("to", req.To))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	h.log.Info("Metrics retrieved",
		zap.String("type", req.Type),
		zap.Uint64("total_count", response.TotalCount),
		zap.Uint64("unique_leads", response.UniqueLeads))

	c.JSON(http.StatusOK, response)
}

// getLeadScore handles GET /leads/:id/score
// @Summary Get a lead's current score
// @Description Recompute the lead's score on demand, including idle-time decay
// @Tags leads
// @Produce json
// @Param id path string true "Lead ID"
// @Success 200 {object} dto.LeadScoreResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /leads/{id}/score [get]
func (h *Handler) getLeadScore(c *gin.Context) {
	leadID := c.Param("id")

	response, err := h.insightService.GetLeadScore(c.Request.Context(), leadID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "not_found",
				Message: "lead not found",
			})
			return
		}
		h.log.Error("Failed to get lead score",
			zap.Error(err),
			zap.String("lead_id", leadID))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}

// getExperimentAnalysis handles GET /experiments/:id/analysis
// @Summary Get an experiment's statistical analysis
// @Description Retrieve per-variant conversion stats and chi-square significance for an experiment
// @Tags experiments
// @Produce json
// @Param id path string true "Experiment ID"
// @Success 200 {object} dto.ExperimentAnalysisResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /experiments/{id}/analysis [get]
func (h *Handler) getExperimentAnalysis(c *gin.Context) {
	experimentID := c.Param("id")

	response, err := h.insightService.GetExperimentAnalysis(c.Request.Context(), experimentID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "not_found",
				Message: "experiment not found",
			})
			return
		}
		h.log.Error("Failed to get experiment analysis",
			zap.Error(err),
			zap.String("experiment_id", experimentID))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, response)
}
