package server

import (
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/scenecast/scenecast/internal/domain"
	"github.com/scenecast/scenecast/internal/errors"
	"github.com/scenecast/scenecast/internal/logging"
)

type targetsResponse struct {
	Targets []domain.Target `json:"targets"`
}

// handleTargets returns the current tracked scenes enriched with post
// metadata, in catalog order.
func (s *Server) handleTargets(c echo.Context) error {
	targets, err := s.query.Targets(c.Request().Context())
	if err != nil {
		return errors.ExternalError("failed to assemble targets", err)
	}

	return c.JSON(http.StatusOK, targetsResponse{Targets: targets})
}

type addSceneRequest struct {
	SceneID  int64  `json:"scene_id"`
	Fullname string `json:"fullname"`
	Chapter  int    `json:"chapter"`
}

func (s *Server) handleAddScene(c echo.Context) error {
	var req addSceneRequest
	if err := c.Bind(&req); err != nil {
		return errors.ValidationError("invalid request body")
	}
	if req.SceneID <= 0 {
		return errors.ValidationError("scene_id must be positive").WithContext("scene_id", req.SceneID)
	}
	if req.Fullname == "" {
		return errors.ValidationError("fullname is required")
	}

	scene := domain.Scene{
		ID:          req.SceneID,
		ExternalRef: req.Fullname,
		Chapter:     req.Chapter,
	}

	err := s.admin.Add(c.Request().Context(), scene)
	if stderrors.Is(err, domain.ErrSceneExists) {
		return errors.ConflictError("scene already exists").WithContext("scene_id", req.SceneID)
	}
	if err != nil {
		return errors.InternalError("failed to add scene", err)
	}

	logging.WithScene(scene.ID).Info("Scene added to catalog", "fullname", scene.ExternalRef)
	s.hub.BroadcastAll()

	return c.JSON(http.StatusCreated, scene)
}

func (s *Server) handleDeleteScene(c echo.Context) error {
	sceneID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return errors.ValidationError("invalid scene id").WithContext("id", c.Param("id"))
	}

	err = s.admin.Delete(c.Request().Context(), sceneID)
	if stderrors.Is(err, domain.ErrSceneNotFound) {
		return errors.NotFoundError("scene not found").WithContext("scene_id", sceneID)
	}
	if err != nil {
		return errors.InternalError("failed to delete scene", err)
	}

	logging.WithScene(sceneID).Info("Scene deleted from catalog")
	s.hub.BroadcastAll()

	return c.NoContent(http.StatusNoContent)
}
