package api

import (
	"encoding/json"
	"io"
	"net/http"

	"admission-workers/internal/admission"
	"admission-workers/internal/common/errors"
	"admission-workers/internal/models"

	"github.com/labstack/echo/v4"
)

const maxSectionBytes = 1 << 20

type startRequest struct {
	ApplicationID string `json:"applicationId"`
}

type paymentRequest struct {
	ApplicationID  string                 `json:"applicationId"`
	PaymentDetails *models.PaymentDetails `json:"paymentDetails"`
}

type admissionHandler struct {
	pipeline *admission.Pipeline
}

func registerAdmissionAPI(e *echo.Echo, pipeline *admission.Pipeline) {
	h := admissionHandler{pipeline: pipeline}

	e.POST("/applications", h.start)
	e.GET("/applications/:applicationId", h.get)
	e.DELETE("/applications/:applicationId", h.delete)
	e.POST("/applications/:applicationId/sections/:sectionName", h.writeSection)
	e.POST("/payment/process", h.processPayment)
	e.POST("/finalize", h.finalize)
}

func (h admissionHandler) start(ctx echo.Context) error {
	var req startRequest
	if err := bindJSON(ctx, &req); err != nil {
		return err
	}
	draft, err := h.pipeline.StartApplication(ctx.Request().Context(), req.ApplicationID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, draft)
}

func (h admissionHandler) get(ctx echo.Context) error {
	draft, err := h.pipeline.GetApplication(ctx.Request().Context(), ctx.Param("applicationId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, draft)
}

func (h admissionHandler) delete(ctx echo.Context) error {
	if _, err := h.pipeline.DeleteApplication(ctx.Request().Context(), ctx.Param("applicationId")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// writeSection takes the raw body as the section payload.
func (h admissionHandler) writeSection(ctx echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxSectionBytes+1))
	if err != nil {
		return errors.NewInvalidInputError("could not read request body")
	}
	if len(payload) > maxSectionBytes {
		name := ctx.Param("sectionName")
		if _, ok := models.ParseSection(name); !ok {
			return errors.NewInvalidSectionError(name)
		}
		return errors.NewInvalidSectionPayloadError(name, []string{"payload too large"})
	}
	draft, err := h.pipeline.WriteSection(ctx.Request().Context(),
		ctx.Param("applicationId"), ctx.Param("sectionName"), json.RawMessage(payload))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, draft)
}

func (h admissionHandler) processPayment(ctx echo.Context) error {
	var req paymentRequest
	if err := bindJSON(ctx, &req); err != nil {
		return err
	}
	res, err := h.pipeline.ProcessPayment(ctx.Request().Context(), req.ApplicationID, req.PaymentDetails)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, res)
}

func (h admissionHandler) finalize(ctx echo.Context) error {
	var req admission.FinalizeRequest
	if err := bindJSON(ctx, &req); err != nil {
		return err
	}
	res, err := h.pipeline.Finalize(ctx.Request().Context(), req)
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.AlreadyFinalized {
		status = http.StatusOK
	}
	return ctx.JSON(status, res)
}

func bindJSON(ctx echo.Context, v interface{}) error {
	if err := ctx.Bind(v); err != nil {
		return errors.NewInvalidInputError("request body must be a JSON object")
	}
	return nil
}
