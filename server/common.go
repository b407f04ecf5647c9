package server

import (
	"errors"
	"strings"

	"github.com/haileyok/didlog/internal/helpers"
	"github.com/haileyok/didlog/store"
	"github.com/haileyok/didlog/types"
	"github.com/labstack/echo/v4"
)

// logPath maps a request path such as /people/alice/did.jsonl to its store
// path. ok is false for anything that is not a did.jsonl location.
func logPath(e echo.Context) (string, bool) {
	p := e.Request().URL.Path
	if !strings.HasSuffix(p, "/did.jsonl") {
		return "", false
	}

	sp, err := store.CleanPath(p)
	if err != nil {
		return "", false
	}

	return sp, true
}

func (s *Server) loadLog(e echo.Context, path string) (string, error) {
	log, err := s.store.Load(e.Request().Context(), path)
	if err != nil {
		return "", err
	}
	return log, nil
}

// kindError reports a typed failure to the client. Failures without a kind
// are internal.
func (s *Server) kindError(e echo.Context, endpoint string, err error) error {
	kind := types.KindOf(err)
	if kind == types.KindUnknown {
		s.logger.Error("internal error", "endpoint", endpoint, "error", err)
		return helpers.ServerError(e, nil)
	}

	s.logger.Info("request rejected", "endpoint", endpoint, "kind", kind.String(), "error", err)

	var te *types.Error
	detail := err.Error()
	if errors.As(err, &te) && te.Msg != "" {
		detail = te.Msg
	}

	return helpers.KindError(e, kind.String(), detail)
}
