package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"plan-nat/backend/internal/dto"
	"plan-nat/backend/internal/model"
	"plan-nat/backend/internal/service"
	"plan-nat/backend/pkg/response"
)

// SlotHandler 时段模块 HTTP 处理器
type SlotHandler struct {
	slotSvc       service.SlotService
	enrollmentSvc service.EnrollmentService
}

// NewSlotHandler 创建 SlotHandler
func NewSlotHandler(slotSvc service.SlotService, enrollmentSvc service.EnrollmentService) *SlotHandler {
	return &SlotHandler{slotSvc: slotSvc, enrollmentSvc: enrollmentSvc}
}

// ListSlots 获取时段列表
// GET /api/v1/slots
func (h *SlotHandler) ListSlots(c *gin.Context) {
	var req dto.SlotListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	// 仅管理员可查看已关闭的时段
	if c.GetString(ctxRole) != model.RoleAdmin {
		req.IncludeInactive = false
	}

	slots, err := h.slotSvc.List(c.Request.Context(), &req)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": slots})
}

// GetSlot 获取时段详情
// GET /api/v1/slots/:id
func (h *SlotHandler) GetSlot(c *gin.Context) {
	id, err := uuidParam(c, "id", service.ErrSlotNotFound)
	if err != nil {
		h.handleSlotError(c, err)
		return
	}

	slot, err := h.slotSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleSlotError(c, err)
		return
	}

	response.OK(c, slot)
}

// CreateSlot 创建时段
// POST /api/v1/slots
func (h *SlotHandler) CreateSlot(c *gin.Context) {
	var req dto.CreateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	slot, err := h.slotSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleSlotError(c, err)
		return
	}

	response.Created(c, slot)
}

// UpdateSlot 更新时段
// PUT /api/v1/slots/:id
func (h *SlotHandler) UpdateSlot(c *gin.Context) {
	id, err := uuidParam(c, "id", service.ErrSlotNotFound)
	if err != nil {
		h.handleSlotError(c, err)
		return
	}

	var req dto.UpdateSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, 10001, "参数校验失败", err.Error())
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	slot, err := h.slotSvc.Update(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handleSlotError(c, err)
		return
	}

	response.OK(c, slot)
}

// ResizeCapacity 调整时段容量
// PUT /api/v1/slots/:id/capacity
func (h *SlotHandler) ResizeCapacity(c *gin.Context) {
	id, err := uuidParam(c, "id", service.ErrSlotNotFound)
	if err != nil {
		h.handleSlotError(c, err)
		return
	}

	var req dto.ResizeCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	result, err := h.enrollmentSvc.ResizeCapacity(c.Request.Context(), id, req.Capacity)
	if err != nil {
		h.handleSlotError(c, err)
		return
	}

	response.OK(c, result)
}

// DeleteSlot 删除时段，?force=true 时连同报名记录一起删除
// DELETE /api/v1/slots/:id
func (h *SlotHandler) DeleteSlot(c *gin.Context) {
	id, err := uuidParam(c, "id", service.ErrSlotNotFound)
	if err != nil {
		h.handleSlotError(c, err)
		return
	}

	var req dto.DeleteSlotRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	if err := h.slotSvc.Delete(c.Request.Context(), id, req.Force); err != nil {
		h.handleSlotError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleSlotError 统一处理时段模块业务错误
func (h *SlotHandler) handleSlotError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidSlotTime):
		response.BadRequest(c, 12001, "时间格式应为 HH:MM，且结束时间晚于开始时间")
	case errors.Is(err, service.ErrUnknownCategory):
		response.BadRequest(c, 12002, "会员类别不存在")
	case errors.Is(err, service.ErrSlotVersionStale):
		response.Conflict(c, 12003, "时段已被他人修改，请刷新后重试")
	default:
		handleEnrollmentError(c, err)
	}
}
