package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/pharmatrace/traceability-service/internal/application"
	"github.com/pharmatrace/traceability-service/pkg/errors"
	"github.com/pharmatrace/traceability-service/pkg/logging"
	"github.com/pharmatrace/traceability-service/pkg/middleware"
)

func registerRoutes(router *gin.Engine, service *application.TraceabilityService, logger *logging.Logger) {
	api := router.Group("/api/v1")
	api.Use(middleware.RequireActor())

	events := api.Group("/business-events")
	{
		events.POST("/facility-received", handleCommand(logger, http.StatusAccepted, service.SubmitFacilityReceived))
		events.POST("/facility-consumed", handleCommand(logger, http.StatusAccepted, service.SubmitFacilityConsumed))
		events.POST("/dispenses", handleCommand(logger, http.StatusAccepted, service.SubmitDispense))
		events.POST("/goods-receipts", handleCommand(logger, http.StatusAccepted, service.SubmitGoodsReceipt))
		events.POST("/adjustments", handleCommand(logger, http.StatusAccepted, service.SubmitAdjustment))
		events.POST("/stock-counts", handleCommand(logger, http.StatusAccepted, service.SubmitStockCount))
		events.POST("/returns", handleCommand(logger, http.StatusAccepted, service.SubmitReturn))
		events.POST("/recalls", handleCommand(logger, http.StatusAccepted, service.SubmitRecall))
	}

	containers := api.Group("/containers")
	{
		containers.POST("/pack", handleCommand(logger, http.StatusCreated, service.PackContainer))
		containers.POST("/pack-lite", handleCommand(logger, http.StatusCreated, service.PackContainerLite))
		containers.POST("/unpack", handleCommand(logger, http.StatusOK, service.UnpackContainer))
		containers.POST("/repack", handleCommand(logger, http.StatusOK, service.RepackContainer))
		containers.GET("/:containerId", getContainerHandler(service, logger))
		containers.GET("/:containerId/history", getContainerHistoryHandler(service, logger))
	}

	api.GET("/events", queryEventsHandler(service, logger))
	api.GET("/events/:eventId", getEventHandler(service, logger))
	api.GET("/epcs/:epc/events", getEventsByEPCHandler(service, logger))
	api.GET("/captures/failed", listFailedCapturesHandler(service, logger))
}

// callerAware is satisfied by every command embedding CallerContext
type callerAware interface {
	SetCaller(actor, facilityGLN string)
}

// handleCommand binds the JSON payload, attaches the verified caller and runs
// the use case. All command endpoints share this shape.
func handleCommand[C any, PC interface {
	*C
	callerAware
}, R any](logger *logging.Logger, status int, run func(context.Context, C) (R, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var cmd C
		if err := c.ShouldBindJSON(&cmd); err != nil {
			middleware.RespondWithError(c, logger.Logger, errors.ErrValidation(err.Error()))
			return
		}

		actor := middleware.GetActor(c)
		PC(&cmd).SetCaller(actor.ID, actor.FacilityGLN)

		result, err := run(c.Request.Context(), cmd)
		if err != nil {
			middleware.RespondWithError(c, logger.Logger, err)
			return
		}
		c.JSON(status, result)
	}
}

func getContainerHandler(service *application.TraceabilityService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := service.GetContainer(c.Request.Context(), application.GetContainerQuery{
			ContainerID: c.Param("containerId"),
		})
		if err != nil {
			middleware.RespondWithError(c, logger.Logger, err)
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func getContainerHistoryHandler(service *application.TraceabilityService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := service.GetContainerHistory(c.Request.Context(), application.GetContainerQuery{
			ContainerID: c.Param("containerId"),
		})
		if err != nil {
			middleware.RespondWithError(c, logger.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"changes": history})
	}
}

func queryEventsHandler(service *application.TraceabilityService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var query application.EventQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			middleware.RespondWithError(c, logger.Logger, errors.ErrValidation(err.Error()))
			return
		}

		doc, err := service.QueryEvents(c.Request.Context(), query)
		if err != nil {
			middleware.RespondWithError(c, logger.Logger, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	}
}

func getEventHandler(service *application.TraceabilityService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		event, err := service.GetEvent(c.Request.Context(), c.Param("eventId"))
		if err != nil {
			middleware.RespondWithError(c, logger.Logger, err)
			return
		}
		c.JSON(http.StatusOK, event)
	}
}

func getEventsByEPCHandler(service *application.TraceabilityService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
		events, err := service.GetEventsByEPC(c.Request.Context(), c.Param("epc"), limit)
		if err != nil {
			middleware.RespondWithError(c, logger.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"epc": c.Param("epc"), "events": events})
	}
}

func listFailedCapturesHandler(service *application.TraceabilityService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
		failed, err := service.ListFailedCaptures(c.Request.Context(), application.ListFailedCapturesQuery{Limit: limit})
		if err != nil {
			middleware.RespondWithError(c, logger.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"captures": failed})
	}
}
