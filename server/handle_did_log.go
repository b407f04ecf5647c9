package server

import (
	"errors"

	"github.com/haileyok/didlog/internal/helpers"
	"github.com/haileyok/didlog/store"
	"github.com/labstack/echo/v4"
)

const jsonlContentType = "application/jsonl"

func (s *Server) handleGetLog(e echo.Context) error {
	path, ok := logPath(e)
	if !ok {
		return helpers.NotFoundError(e)
	}

	log, err := s.loadLog(e, path)
	if errors.Is(err, store.ErrNotFound) {
		return helpers.NotFoundError(e)
	}
	if err != nil {
		s.logger.Error("error loading log", "path", path, "error", err)
		return helpers.ServerError(e, nil)
	}

	e.Response().Header().Set("Cache-Control", "no-cache")

	return e.Blob(200, jsonlContentType, []byte(log))
}
