package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"plan-nat/backend/internal/service"
	"plan-nat/backend/pkg/response"
)

// EnrollmentHandler 报名模块 HTTP 处理器
type EnrollmentHandler struct {
	enrollmentSvc service.EnrollmentService
}

// NewEnrollmentHandler 创建 EnrollmentHandler
func NewEnrollmentHandler(enrollmentSvc service.EnrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollmentSvc: enrollmentSvc}
}

// Enroll 报名（名额已满时进入候补）
// POST /api/v1/slots/:id/enrollments
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	slotID, err := uuidParam(c, "id", service.ErrSlotNotFound)
	if err != nil {
		handleEnrollmentError(c, err)
		return
	}

	result, err := h.enrollmentSvc.Enroll(c.Request.Context(), userID, slotID)
	if err != nil {
		handleEnrollmentError(c, err)
		return
	}

	response.Created(c, result)
}

// Withdraw 退出报名（本人）
// DELETE /api/v1/slots/:id/enrollments/me
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	slotID, err := uuidParam(c, "id", service.ErrSlotNotFound)
	if err != nil {
		handleEnrollmentError(c, err)
		return
	}

	if err := h.enrollmentSvc.Withdraw(c.Request.Context(), userID, slotID); err != nil {
		handleEnrollmentError(c, err)
		return
	}

	response.OK(c, nil)
}

// WithdrawMember 管理员代会员退出报名
// DELETE /api/v1/slots/:id/enrollments/:user_id
func (h *EnrollmentHandler) WithdrawMember(c *gin.Context) {
	slotID, err := uuidParam(c, "id", service.ErrSlotNotFound)
	if err != nil {
		handleEnrollmentError(c, err)
		return
	}
	memberID, err := uuidParam(c, "user_id", service.ErrUserNotFound)
	if err != nil {
		handleEnrollmentError(c, err)
		return
	}

	if err := h.enrollmentSvc.Withdraw(c.Request.Context(), memberID, slotID); err != nil {
		handleEnrollmentError(c, err)
		return
	}

	response.OK(c, nil)
}

// Roster 时段名单（已报名 + 候补）
// GET /api/v1/slots/:id/enrollments
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	slotID, err := uuidParam(c, "id", service.ErrSlotNotFound)
	if err != nil {
		handleEnrollmentError(c, err)
		return
	}

	roster, err := h.enrollmentSvc.ListBySlot(c.Request.Context(), slotID)
	if err != nil {
		handleEnrollmentError(c, err)
		return
	}

	response.OK(c, roster)
}

// ListMine 我的报名
// GET /api/v1/enrollments/me
func (h *EnrollmentHandler) ListMine(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.enrollmentSvc.ListMine(c.Request.Context(), userID)
	if err != nil {
		handleEnrollmentError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// handleEnrollmentError 报名相关错误 → HTTP 状态码
// 业务规则不满足 400，资源不存在 404，删除冲突 409，存储失败 500
func handleEnrollmentError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrDuplicateEnrollment):
		response.BadRequest(c, 13001, "已报名该时段")
	case errors.Is(err, service.ErrQuotaExceeded):
		response.BadRequest(c, 13002, "已达到每周报名次数上限")
	case errors.Is(err, service.ErrCategoryNotAllowed):
		response.BadRequest(c, 13003, "会员类别不允许报名该时段")
	case errors.Is(err, service.ErrSlotInactive):
		response.BadRequest(c, 13004, "时段未开放报名")
	case errors.Is(err, service.ErrInvalidCapacity):
		response.BadRequest(c, 13005, "容量必须大于等于 1")
	case errors.Is(err, service.ErrSlotNotFound):
		response.NotFound(c, 13101, "时段不存在")
	case errors.Is(err, service.ErrEnrollmentNotFound):
		response.NotFound(c, 13102, "报名记录不存在")
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 13103, "用户不存在")
	case errors.Is(err, service.ErrSlotHasEnrollments):
		response.Conflict(c, 13201, "时段仍有报名记录，如需删除请使用强制删除")
	default:
		response.InternalError(c)
	}
}
