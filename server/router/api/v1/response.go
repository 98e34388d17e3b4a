package v1

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/notecrew/ai/observability/logging"
)

// Response codes of the API envelope.
const (
	CodeOK     = 0
	CodeFailed = 1
)

// Response is the envelope of every API reply. Code 0 means success.
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data"`
	RequestID string `json:"request_id"`
}

// ErrorDetail is the body of transport level errors (auth, routing, panics).
type ErrorDetail struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

func requestID(c echo.Context) string {
	return logging.RequestID(c.Request().Context())
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Code: CodeOK, Message: "ok", Data: data, RequestID: requestID(c)})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, Response{Code: CodeFailed, Message: message, RequestID: requestID(c)})
}

// HTTPErrorHandler renders errors that escaped the handlers as ErrorDetail.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, isString := he.Message.(string); isString {
			message = m
		} else {
			message = http.StatusText(status)
		}
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("unhandled error", "path", c.Path(), "error", err)
	}

	body := ErrorDetail{Code: status, Message: message, RequestID: requestID(c)}
	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		slog.Warn("failed to write error response", "error", writeErr)
	}
}
