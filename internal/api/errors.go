package api

import (
	stderrors "errors"
	"net/http"

	"admission-workers/internal/common/errors"
	"admission-workers/internal/common/logger"

	"github.com/labstack/echo/v4"
)

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details string                 `json:"details,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// newAppHTTPErrorHandler renders domain errors as {"error": {...}} with the status of their
// code. Unknown errors are logged and hidden behind a 500.
func newAppHTTPErrorHandler(log logger.Logger) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var status int
		var body errorBody

		var httpErr *echo.HTTPError
		var stdErr *errors.StandardError
		switch {
		case stderrors.As(err, &stdErr):
			status = errors.HTTPStatus(stdErr.Code)
			body = errorBody{Code: string(stdErr.Code), Message: stdErr.Message, Details: stdErr.Details}
			if fields, ok := stdErr.Metadata["fields"].(map[string]interface{}); ok {
				body.Fields = fields
			}
			if status >= http.StatusInternalServerError {
				log.Error("request failed", map[string]interface{}{
					"path":      ctx.Path(),
					"errorCode": string(stdErr.Code),
					"error":     err.Error(),
				})
			}
		case stderrors.As(err, &httpErr):
			status = httpErr.Code
			body = errorBody{Code: http.StatusText(status), Message: http.StatusText(status)}
			if msg, ok := httpErr.Message.(string); ok {
				body.Message = msg
			}
		default:
			status = http.StatusInternalServerError
			body = errorBody{Code: string(errors.ErrCodeInternal), Message: http.StatusText(status)}
			log.Error("unhandled request error", map[string]interface{}{
				"path":  ctx.Path(),
				"error": err.Error(),
			})
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(status)
		} else {
			err = ctx.JSON(status, echo.Map{"error": body})
		}
		if err != nil {
			log.Error("failed to write error response", map[string]interface{}{"error": err.Error()})
		}
	}
}
