package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"warranty-proxy-service/internal/dto"
	"warranty-proxy-service/internal/model"
	"warranty-proxy-service/internal/service"
	"warranty-proxy-service/internal/shopify"
	"warranty-proxy-service/internal/warranty"
)

type WarrantyController struct {
	Service *service.WarrantyService
}

func NewWarrantyController(s *service.WarrantyService) *WarrantyController {
	return &WarrantyController{Service: s}
}

// POST /proxy
func (ctl *WarrantyController) Register(c *gin.Context) {
	var req dto.RegisterWarrantyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var record model.WarrantyRecord
	if len(req.NewWarranty) > 0 && string(req.NewWarranty) != "null" {
		rec, err := warranty.DecodeRecord(req.NewWarranty)
		if err != nil {
			badRequest(c, "newWarranty must be a JSON object")
			return
		}
		record = rec
	}

	mf, err := ctl.Service.Register(c.Request.Context(), req.CustomerID.String(), record)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MetafieldResponse{Success: true, Metafield: mf})
}

// POST /delete
func (ctl *WarrantyController) Delete(c *gin.Context) {
	var req dto.DeleteWarrantyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, service.MsgDeleteRequiredFields)
		return
	}

	orderID, err := req.OrderIDValue()
	if err != nil {
		badRequest(c, service.MsgDeleteRequiredFields)
		return
	}

	mf, err := ctl.Service.Delete(c.Request.Context(), req.CustomerID.String(), orderID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.MetafieldResponse{Success: true, Metafield: mf})
}

// GET /warranties/:customerId
func (ctl *WarrantyController) List(c *gin.Context) {
	list, err := ctl.Service.List(c.Request.Context(), c.Param("customerId"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.WarrantiesResponse{Success: true, Warranties: list})
}

// GET /warranties/:customerId/history?limit=N
func (ctl *WarrantyController) History(c *gin.Context) {
	var limit int64
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}

	entries, err := ctl.Service.History(c.Request.Context(), c.Param("customerId"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.HistoryResponse{Success: true, History: entries})
}

// GET /healthz
func (ctl *WarrantyController) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.ErrorResponse{Success: false, Error: msg})
}

// fail maps a service error to its status code. Remote failures carry the
// Shopify error payload when there is one.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidDate):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	}

	var body any = err.Error()
	var remote *shopify.RemoteError
	if errors.As(err, &remote) && len(remote.Payload) > 0 {
		body = remote.Payload
	}

	c.JSON(status, dto.ErrorResponse{Success: false, Error: body})
}
