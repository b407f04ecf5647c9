package server

import (
	"errors"
	"io"
	"strings"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/haileyok/didlog/internal/helpers"
	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/peek"
	"github.com/haileyok/didlog/store"
	"github.com/haileyok/didlog/types"
	"github.com/labstack/echo/v4"
)

const maxEntrySize = 1 << 20

type PublishEntryResponse struct {
	Did       string `json:"did"`
	VersionId string `json:"versionId"`
}

// handlePublishEntry accepts one new log line. The line authenticates
// itself: it is only stored if the log with it appended resolves.
func (s *Server) handlePublishEntry(e echo.Context) error {
	path, ok := logPath(e)
	if !ok {
		return helpers.NotFoundError(e)
	}

	b, err := io.ReadAll(io.LimitReader(e.Request().Body, maxEntrySize+1))
	if err != nil {
		s.logger.Error("error receiving entry", "path", path, "error", err)
		return helpers.ServerError(e, nil)
	}

	if len(b) > maxEntrySize {
		return helpers.InputError(e, to.StringPtr("EntryTooLarge"))
	}

	line := strings.TrimSpace(string(b))
	if line == "" || strings.ContainsAny(line, "\r\n") {
		return helpers.InputError(e, to.StringPtr("ExpectedSingleEntry"))
	}

	ctx := e.Request().Context()

	s.publishLk.Lock()
	defer s.publishLk.Unlock()

	prior, err := s.loadLog(e, path)
	genesis := errors.Is(err, store.ErrNotFound)
	if err != nil && !genesis {
		s.logger.Error("error loading log", "path", path, "error", err)
		return helpers.ServerError(e, nil)
	}

	full := prior + line + "\n"

	meta, err := peek.Peek(full)
	if err != nil {
		return s.kindError(e, "publish", err)
	}

	if genesis != (meta.Entries == 1) {
		return s.kindError(e, "publish", types.Errorf(types.KindInvalidInput, "entry %s does not start or extend the log at this location", meta.LastVersionID))
	}

	loc, _, err := method.LocatorOfDID(meta.SubjectID)
	if err != nil {
		return s.kindError(e, "publish", types.Wrap(types.KindInvalidLog, err, "subject"))
	}

	if loc.StorePath() != path {
		return s.kindError(e, "publish", types.Errorf(types.KindInvalidInput, "%s is not served from this path", meta.SubjectID))
	}

	if s.config.Hostname != "" && !strings.EqualFold(loc.Host, s.config.Hostname) {
		return s.kindError(e, "publish", types.Errorf(types.KindInvalidInput, "%s is not served from this host", meta.SubjectID))
	}

	if _, err := s.resolver.Resolve(ctx, full); err != nil {
		return s.kindError(e, "publish", types.Wrap(types.KindInvalidLog, err, "entry %s", meta.LastVersionID))
	}

	if genesis {
		err = s.store.Create(ctx, path, meta.SubjectID, line)
	} else {
		err = s.store.Append(ctx, path, line)
	}
	if errors.Is(err, store.ErrExists) {
		return helpers.InputError(e, to.StringPtr("LogExists"))
	}
	if err != nil {
		s.logger.Error("error storing entry", "path", path, "error", err)
		return helpers.ServerError(e, nil)
	}

	s.logger.Info("published entry", "did", meta.SubjectID, "versionId", meta.LastVersionID)

	return e.JSON(200, PublishEntryResponse{
		Did:       meta.SubjectID,
		VersionId: meta.LastVersionID,
	})
}
