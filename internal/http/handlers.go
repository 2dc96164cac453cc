package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/recordd/internal/apperr"
	"github.com/fyrsmithlabs/recordd/internal/auth"
	"github.com/fyrsmithlabs/recordd/internal/models"
	"github.com/fyrsmithlabs/recordd/internal/records"
)

// handleCreateModel creates a new model definition.
func (s *Server) handleCreateModel(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}

	var req models.CreateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	m, err := s.services.Models().Create(c.Request().Context(), p.ID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, Response{Success: true, Data: m})
}

// handleListModels lists the caller's active models.
func (s *Server) handleListModels(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}

	list, err := s.services.Models().List(c.Request().Context(), p.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// handleGetModel retrieves one model definition.
func (s *Server) handleGetModel(c echo.Context) error {
	m, err := s.services.Models().GetActive(c.Request().Context(), c.Param("model_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: m})
}

// handleUpdateModel applies a partial update to an owned model.
func (s *Server) handleUpdateModel(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}

	var req models.UpdateRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	m, err := s.services.Models().Update(c.Request().Context(), c.Param("model_id"), p.ID, &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: m})
}

// handleDeleteModel soft-deletes an owned model.
func (s *Server) handleDeleteModel(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}

	if err := s.services.Models().Delete(c.Request().Context(), c.Param("model_id"), p.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleCreateRecords creates a single record from an object body or
// many records from an array body.
func (s *Server) handleCreateRecords(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}
	modelID := c.Param("model_id")
	ctx := c.Request().Context()

	body, err := readBody(c)
	if err != nil {
		return err
	}

	if isArray(body) {
		var items []map[string]any
		if err := json.Unmarshal(body, &items); err != nil {
			return apperr.Validation("invalid request body")
		}
		result, err := s.services.Records().BulkCreate(ctx, modelID, p.ID, items)
		if err != nil {
			return err
		}
		return c.JSON(bulkStatus(result, http.StatusCreated),
			Response{Success: result.Failed == 0, Data: result})
	}

	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return apperr.Validation("invalid request body")
	}
	created, err := s.services.Records().Create(ctx, modelID, p.ID, data)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, Response{Success: true, Data: created})
}

// handleListRecords returns a filtered, paginated record listing.
func (s *Server) handleListRecords(c echo.Context) error {
	if _, err := auth.PrincipalFrom(c); err != nil {
		return err
	}

	opts := records.ListOptions{}
	var err error
	if opts.Page, err = intParam(c, "page"); err != nil {
		return err
	}
	if opts.Limit, err = intParam(c, "limit"); err != nil {
		return err
	}
	if raw := c.QueryParam("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts.Filter); err != nil {
			return apperr.Validation("filter must be a JSON object")
		}
	}

	page, meta, err := s.services.Records().List(c.Request().Context(), c.Param("model_id"), opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: page, Meta: meta})
}

// handleGetRecord retrieves one record.
func (s *Server) handleGetRecord(c echo.Context) error {
	if _, err := auth.PrincipalFrom(c); err != nil {
		return err
	}

	record, err := s.services.Records().Get(c.Request().Context(),
		c.Param("model_id"), c.Param("record_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: record})
}

// handleUpdateRecord merges a patch over an owned record.
func (s *Server) handleUpdateRecord(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}

	var patch map[string]any
	if err := c.Bind(&patch); err != nil {
		return apperr.Validation("invalid request body")
	}

	updated, err := s.services.Records().Update(c.Request().Context(),
		c.Param("model_id"), c.Param("record_id"), p.ID, patch)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// handleBulkUpdateRecords patches many records identified by _id.
func (s *Server) handleBulkUpdateRecords(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}

	var items []map[string]any
	if err := c.Bind(&items); err != nil {
		return apperr.Validation("request body must be an array of objects")
	}

	result, err := s.services.Records().BulkUpdate(c.Request().Context(),
		c.Param("model_id"), p.ID, items)
	if err != nil {
		return err
	}
	return c.JSON(bulkStatus(result, http.StatusOK),
		Response{Success: result.Failed == 0, Data: result})
}

// handleDeleteRecord removes an owned record.
func (s *Server) handleDeleteRecord(c echo.Context) error {
	p, err := auth.PrincipalFrom(c)
	if err != nil {
		return err
	}

	if err := s.services.Records().Delete(c.Request().Context(),
		c.Param("model_id"), c.Param("record_id"), p.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// handleSearchRecords ranks a model's records against a query.
func (s *Server) handleSearchRecords(c echo.Context) error {
	if _, err := auth.PrincipalFrom(c); err != nil {
		return err
	}

	var req records.SearchRequest
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("invalid request body")
	}

	results, err := s.services.Records().Search(c.Request().Context(), c.Param("model_id"), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, Response{Success: true, Data: results})
}

// bulkStatus reports 207 when any element failed, otherwise the happy
// status for the operation.
func bulkStatus(result *records.BulkResult, happy int) int {
	if result.Failed > 0 {
		return http.StatusMultiStatus
	}
	return happy
}

func readBody(c echo.Context) ([]byte, error) {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, apperr.Validation("unable to read request body")
	}
	return bytes.TrimSpace(body), nil
}

// isArray reports whether a JSON body is an array, which selects the
// bulk form of an endpoint.
func isArray(body []byte) bool {
	return len(body) > 0 && body[0] == '['
}

func intParam(c echo.Context, name string) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return v, nil
}
