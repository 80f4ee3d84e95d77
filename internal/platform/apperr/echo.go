package apperr

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Body is the JSON error response. It must not implement error: echo's
// default handler flattens error messages to {"message": ...}.
type Body struct {
	Kind    Kind     `json:"error"`
	Message string   `json:"message"`
	Step    string   `json:"step,omitempty"`
	Slots   []string `json:"slots,omitempty"`
}

// Body returns the response body for e.
func (e *Error) Body() Body {
	return Body{Kind: e.Kind, Message: e.Message, Step: e.Step, Slots: e.Slots}
}

var internalBody = Body{Kind: KindInternal, Message: "internal server error"}

// HTTPError converts err into an echo error carrying the JSON error body.
// Unclassified errors become a 500 without leaking their message.
func HTTPError(err error) error {
	if e, ok := As(err); ok {
		return echo.NewHTTPError(HTTPStatus(e.Kind), e.Body()).SetInternal(err)
	}
	return echo.NewHTTPError(HTTPStatus(KindInternal), internalBody).SetInternal(err)
}

// ErrorHandler is an echo.HTTPErrorHandler that writes every error as
// {"error": <kind>, "message": ...}, including errors raised by echo itself
// (unknown route, bind failures) and by middleware.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := render(err)
	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		c.Logger().Error(werr)
	}
}

func render(err error) (int, interface{}) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch m := he.Message.(type) {
		case string:
			return he.Code, Body{Kind: kindForStatus(he.Code), Message: m}
		case *Error:
			return he.Code, m.Body()
		case error:
			return he.Code, Body{Kind: kindForStatus(he.Code), Message: m.Error()}
		case nil:
			return he.Code, Body{Kind: kindForStatus(he.Code), Message: http.StatusText(he.Code)}
		default:
			return he.Code, m
		}
	}
	if e, ok := As(err); ok {
		return HTTPStatus(e.Kind), e.Body()
	}
	return HTTPStatus(KindInternal), internalBody
}

// kindForStatus names errors that carry only a status code.
func kindForStatus(code int) Kind {
	switch code {
	case http.StatusBadRequest:
		return KindValidation
	case http.StatusUnauthorized:
		return KindUnauthenticated
	case http.StatusForbidden:
		return KindUnauthorized
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusRequestEntityTooLarge:
		return "too_large"
	}
	if code >= http.StatusInternalServerError {
		return KindInternal
	}
	return Kind(strings.ReplaceAll(strings.ToLower(http.StatusText(code)), " ", "_"))
}
