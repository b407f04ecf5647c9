package server

import (
	"errors"

	"github.com/Azure/go-autorest/autorest/to"
	"github.com/haileyok/didlog/internal/helpers"
	"github.com/haileyok/didlog/method"
	"github.com/haileyok/didlog/peek"
	"github.com/haileyok/didlog/pop"
	"github.com/haileyok/didlog/store"
	"github.com/haileyok/didlog/types"
	"github.com/labstack/echo/v4"
)

type PopNonceResponse struct {
	Nonce     string `json:"nonce"`
	ExpiresAt string `json:"expiresAt"`
}

func (s *Server) handlePopNonce(e echo.Context) error {
	nonce := helpers.NewNonce()
	exp := s.clock().Add(s.config.NonceTTL)

	s.nonces.Add(nonce, exp)

	return e.JSON(200, PopNonceResponse{
		Nonce:     nonce,
		ExpiresAt: types.FormatTime(exp),
	})
}

// PopVerifyRequest names the log either by store path or by DID. When Did is
// set the path is derived from it and the log must belong to that DID.
type PopVerifyRequest struct {
	Path  string `json:"path" validate:"log-path"`
	Did   string `json:"did,omitempty" validate:"omitempty,did"`
	Token string `json:"token" validate:"required"`
	Nonce string `json:"nonce" validate:"required,uuid4"`
}

type PopVerifyResponse struct {
	Valid bool   `json:"valid"`
	Did   string `json:"did"`
}

func (s *Server) handlePopVerify(e echo.Context) error {
	var req PopVerifyRequest
	if err := e.Bind(&req); err != nil {
		s.logger.Error("error receiving request", "endpoint", "pop/verify", "error", err)
		return helpers.InputError(e, nil)
	}

	if err := e.Validate(req); err != nil {
		var verr ValidationError
		if errors.As(err, &verr) {
			switch verr.Field {
			case "Path":
				return helpers.InputError(e, to.StringPtr("InvalidPath"))
			case "Did":
				return helpers.InputError(e, to.StringPtr("InvalidDid"))
			case "Token":
				return helpers.InputError(e, to.StringPtr("InvalidToken"))
			case "Nonce":
				return helpers.InputError(e, to.StringPtr("InvalidNonce"))
			}
		}
		return helpers.InputError(e, nil)
	}

	path, _ := store.CleanPath(req.Path)
	if req.Did != "" {
		loc, _, err := method.LocatorOfDID(req.Did)
		if err != nil {
			return helpers.InputError(e, to.StringPtr("InvalidDid"))
		}
		if path != "" && path != loc.StorePath() {
			return helpers.KindError(e, types.KindInvalidInput.String(), "did is not published at path")
		}
		path = loc.StorePath()
	}

	// a nonce is good for exactly one attempt
	exp, ok := s.nonces.Peek(req.Nonce)
	if !s.nonces.Remove(req.Nonce) || !ok || !s.clock().Before(exp) {
		return helpers.KindError(e, types.KindNonceMismatch.String(), "unknown, used or expired nonce")
	}

	log, err := s.loadLog(e, path)
	if errors.Is(err, store.ErrNotFound) {
		return helpers.NotFoundError(e)
	}
	if err != nil {
		s.logger.Error("error loading log", "path", path, "error", err)
		return helpers.ServerError(e, nil)
	}

	if err := pop.VerifyAt(req.Token, req.Nonce, log, s.clock()); err != nil {
		return s.kindError(e, "pop/verify", err)
	}

	meta, err := peek.Peek(log)
	if err != nil {
		return s.kindError(e, "pop/verify", err)
	}

	if req.Did != "" && meta.SubjectID != req.Did {
		return helpers.KindError(e, types.KindInvalidInput.String(), "log belongs to "+meta.SubjectID)
	}

	return e.JSON(200, PopVerifyResponse{
		Valid: true,
		Did:   meta.SubjectID,
	})
}
