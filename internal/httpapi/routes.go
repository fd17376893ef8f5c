// Package httpapi implements the broker's two HTTP ingress endpoints
// (spec.md §6): the submission endpoint and the cluster callback
// endpoint. Both enqueue work onto the orchestrator and return
// immediately; the orchestrator's own goroutines carry the request to
// completion.
//
// Grounded on pkg/fx/echo/provider.go's RouteRegistrar pattern.
package httpapi

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"

	"github.com/baca2/kolejka-broker/internal/broker/frontend"
	"github.com/baca2/kolejka-broker/internal/broker/orchestrator"
	"github.com/baca2/kolejka-broker/pkg/protocol"
)

var log = logging.Logger("httpapi")

var alphanumeric = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Handler implements echo's RouteRegistrar for the broker's ingress
// surface.
type Handler struct {
	Master               *orchestrator.Master
	CallbackURLPrefix    string
	SharedSecretFrontEnd string
	ActiveMode           bool
}

// RegisterRoutes wires both endpoints, matching pkg/fx/echo's
// RouteRegistrar contract so Handler can be added to the fx route group.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/submit", h.handleSubmission)
	e.Any(normalisePrefix(h.CallbackURLPrefix)+"/:id", h.handleCallback)
}

func normalisePrefix(prefix string) string {
	return "/" + strings.Trim(prefix, "/")
}

// handleSubmission implements the submission ingress endpoint (spec.md
// §6). The hash is re-derived from the broker's copy of the front end's
// shared secret; a mismatch is 401 and creates no TaskSubmit.
func (h *Handler) handleSubmission(c echo.Context) error {
	var req submissionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}

	if !frontend.VerifyHash(h.SharedSecretFrontEnd, req.SubmitID, req.PassHash) {
		return echo.NewHTTPError(http.StatusUnauthorized, "hash mismatch")
	}

	go h.Master.HandleSubmission(context.Background(), protocol.SubmissionRequest{
		SubmitID:    req.SubmitID,
		PassHash:    req.PassHash,
		PackagePath: req.PackagePath,
		CommitID:    req.CommitID,
		SubmitPath:  req.SubmitPath,
	})
	return c.NoContent(http.StatusOK)
}

// handleCallback implements the cluster callback endpoint (spec.md §6).
// In active mode it is unconditionally disabled (404): the active
// adapter never produces a callback and the endpoint is only a surface
// for the passive cluster to reach.
func (h *Handler) handleCallback(c echo.Context) error {
	if h.ActiveMode {
		return echo.NewHTTPError(http.StatusNotFound)
	}

	raw := c.Param("id")
	normalised := strings.ReplaceAll(raw, "_", "")
	if normalised == "" || !alphanumeric.MatchString(normalised) {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed set submit id")
	}

	go h.Master.HandleClusterCallback(context.Background(), normalised)
	return c.NoContent(http.StatusOK)
}
