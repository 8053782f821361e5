// Package routers
package routers

import (
	"net/http"

	"orchestrator-api/internal/ctx"
	"orchestrator-api/internal/orchestrator"
	"orchestrator-api/internal/shared"

	"github.com/labstack/echo/v4"
)

type TaskRouter struct {
	orch *orchestrator.Orchestrator
}

func RegisterTaskRoutes(e *echo.Group, orch *orchestrator.Orchestrator) {
	tr := TaskRouter{orch: orch}

	v1 := e.Group("/api/v1/task")
	v1.POST("/tokenization", tr.Tokenization)
	v1.POST("/token-classification", tr.TokenClassification)
	v1.POST("/text-generation", tr.TextGeneration)
	v1.POST("/streaming-text-generation", tr.StreamingTextGeneration)

	v2 := e.Group("/api/v2/chat")
	v2.POST("/completions-detection", tr.ChatCompletionsDetection)
}

func taskMeta(c *ctx.Context, task string) orchestrator.TaskMeta {
	name := c.QueryParam("client")
	c.LogValues.Task = task
	c.LogValues.ClientName = name
	return orchestrator.TaskMeta{
		TraceID:    c.TraceID,
		Headers:    forwardedHeaders(c),
		ClientName: name,
	}
}

func (tr *TaskRouter) Tokenization(cc echo.Context) error {
	c := cc.(*ctx.Context)
	var req shared.TokenizationTaskRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	res, err := tr.orch.HandleTokenization(c.Request().Context(), &orchestrator.TokenizationTask{
		TaskMeta: taskMeta(c, "tokenization"),
		Request:  &req,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (tr *TaskRouter) TokenClassification(cc echo.Context) error {
	c := cc.(*ctx.Context)
	var req shared.TokenClassificationTaskRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	res, err := tr.orch.HandleTokenClassification(c.Request().Context(), &orchestrator.TokenClassificationTask{
		TaskMeta: taskMeta(c, "token-classification"),
		Request:  &req,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (tr *TaskRouter) TextGeneration(cc echo.Context) error {
	c := cc.(*ctx.Context)
	var req shared.TextGenerationTaskRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	res, err := tr.orch.HandleTextGeneration(c.Request().Context(), &orchestrator.TextGenerationTask{
		TaskMeta: taskMeta(c, "text-generation"),
		Request:  &req,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (tr *TaskRouter) StreamingTextGeneration(cc echo.Context) error {
	c := cc.(*ctx.Context)
	var req shared.TextGenerationTaskRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	stream, err := tr.orch.HandleStreaming(c.Request().Context(), &orchestrator.StreamingTextGenerationTask{
		TaskMeta: taskMeta(c, "streaming-text-generation"),
		Request:  &req,
	})
	if err != nil {
		return writeError(c, err)
	}
	return streamSSE(c, stream, false)
}

func (tr *TaskRouter) ChatCompletionsDetection(cc echo.Context) error {
	c := cc.(*ctx.Context)
	var req shared.ChatCompletionsRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}
	task := &orchestrator.ChatCompletionsDetectionTask{
		TaskMeta: taskMeta(c, "chat-completions-detection"),
		Request:  &req,
	}
	if !req.Stream {
		res, err := tr.orch.HandleChatCompletionsDetection(c.Request().Context(), task)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, res)
	}
	stream, err := tr.orch.HandleStreaming(c.Request().Context(), task)
	if err != nil {
		return writeError(c, err)
	}
	return streamSSE(c, stream, true)
}
