package helpers

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func InputError(e echo.Context, custom *string) error {
	msg := "InvalidRequest"
	if custom != nil {
		msg = *custom
	}
	return genericError(e, 400, msg)
}

// KindError reports a typed failure by its kind name, with the detail the
// caller is allowed to see.
func KindError(e echo.Context, kind string, detail string) error {
	return e.JSON(400, map[string]string{
		"error":   kind,
		"message": detail,
	})
}

func NotFoundError(e echo.Context) error {
	return genericError(e, 404, "NotFound")
}

func ServerError(e echo.Context, suffix *string) error {
	msg := "Internal server error"
	if suffix != nil {
		msg += ". " + *suffix
	}
	return genericError(e, 500, msg)
}

func genericError(e echo.Context, code int, msg string) error {
	return e.JSON(code, map[string]string{
		"error": msg,
	})
}

// NewNonce returns a random, single-use challenge for proof-of-possession.
func NewNonce() string {
	return uuid.NewString()
}
