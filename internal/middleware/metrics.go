package middleware

import (
	"fmt"
	"time"

	"orchestrator-api/internal/ctx"
	"orchestrator-api/internal/metrics"
	"orchestrator-api/internal/shared"
	"orchestrator-api/internal/tracing"

	"github.com/aidarkhanov/nanoid"
	"github.com/labstack/echo/v4"
	emw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

const externalIDHeader = "X-External-Request-Id"

func NewTrackMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqID, _ := nanoid.Generate("0123456789abcdefghijklmnopqrstuvwxyz", 28)
			reqID = "req_" + reqID

			reqCtx, traceID, ok := tracing.Extract(c.Request().Context(), c.Request().Header)
			if !ok {
				traceID = tracing.NewTraceID()
				reqCtx = tracing.ContextWithTraceID(reqCtx, traceID)
			}
			c.SetRequest(c.Request().WithContext(reqCtx))
			c.Response().Header().Set(shared.RequestIDHeader, reqID)

			logger := log.With(
				"request_id", reqID,
				"trace_id", traceID.String(),
			)
			logValues := &ctx.ContextLogValues{
				RequestID:  reqID,
				ExternalID: c.Request().Header.Get(externalIDHeader),
				TraceID:    traceID.String(),
				StartTime:  time.Now(),
				Path:       c.Path(),
			}
			cc := &ctx.Context{Context: c, Log: logger, Reqid: reqID, TraceID: traceID, LogValues: logValues}

			err := next(cc)
			if err != nil {
				// lets echo write the error response before the status is read
				c.Error(err)
			}
			logValues.RequestDuration = time.Since(logValues.StartTime)
			logValues.StatusCode = cc.Response().Status
			logValues.AddError(err)
			log.Desugar().Check(logValues.Level(), "end_of_request").Write(zap.Object("request", logValues))
			metrics.ResponseCodes.WithLabelValues(cc.Path(), fmt.Sprintf("%d", cc.Response().Status)).Inc()
			return nil
		}
	}
}

func NewRecoverMiddleware(log *zap.SugaredLogger) echo.MiddlewareFunc {
	return emw.RecoverWithConfig(emw.RecoverConfig{
		StackSize: 1 << 10, // 1 KB
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			defer func() {
				_ = log.Sync()
			}()
			log.Errorw("Api Panic", "error", err.Error())
			return c.JSON(500, shared.ErrorResponse{Code: 500, Details: shared.ErrInternalServerError.Err.Error()})
		},
	})
}
