package httpapi

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"upkeep/pkg/db/pagination"
	"upkeep/pkg/errutil"
	"upkeep/pkg/middleware"
	"upkeep/services/audit"
	"upkeep/services/plan"
	"upkeep/services/signoff"
)

type Handler struct {
	plans    *plan.Service
	signoffs *signoff.Service
	trail    *audit.Recorder
}

type HandlerParams struct {
	fx.In
	Plans    *plan.Service
	SignOffs *signoff.Service
	Trail    *audit.Recorder
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		plans:    p.Plans,
		signoffs: p.SignOffs,
		trail:    p.Trail,
	}
}

// RegisterRoutes mounts the API onto the engine.
func RegisterRoutes(r *gin.Engine, h *Handler) {
	r.Use(middleware.RequestLogger(), middleware.Identity())

	v1 := r.Group("/v1")
	{
		v1.POST("/plans", h.createPlan)
		v1.GET("/plans", h.listPlans)
		v1.GET("/plans/:plan_id", h.getPlan)
		v1.POST("/plans/:plan_id/replace", h.replacePlan)

		v1.GET("/signoffs", h.listSignOffs)
		v1.GET("/signoffs/:signoff_id", h.getSignOff)
		v1.PATCH("/signoffs/:signoff_id", h.editSignOff)
		v1.DELETE("/signoffs/:signoff_id", h.deleteSignOff)
		v1.POST("/signoffs/:signoff_id/reschedule", h.rescheduleSignOff)
		v1.GET("/signoffs/:signoff_id/attachments", h.signOffAttachments)

		v1.POST("/tasks/:task_id/signoff", h.signOffTask)
		v1.GET("/tasks/:task_id/consumables/previous", h.previousConsumables)
		v1.GET("/tasks/:task_id/audit", h.auditTrail)
	}
}

func (h *Handler) createPlan(c *gin.Context) {
	var req plan.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errutil.AbortWithError(c, errutil.ValidationFailed("invalid request body", err))
		return
	}
	req.CreatedBy = middleware.UserID(c)
	if req.SiteID == "" {
		req.SiteID = middleware.SiteID(c)
	}

	created, err := h.plans.CreatePlan(c.Request.Context(), req)
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}

	tasks, err := h.plans.TasksForPlan(c.Request.Context(), created.ID)
	if err == nil {
		err = h.signoffs.SeedPlan(c.Request.Context(), created, tasks)
	}
	if err != nil {
		zap.L().Error("failed to seed plan occurrences",
			zap.String("plan_id", created.ID),
			zap.Error(err),
		)
	}

	c.JSON(201, created)
}

func (h *Handler) listPlans(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		errutil.AbortWithError(c, errutil.ValidationFailed("invalid pagination", err))
		return
	}

	plans, err := h.plans.ListPlans(c.Request.Context(), middleware.SiteID(c), page)
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"plans": plans})
}

func (h *Handler) getPlan(c *gin.Context) {
	p, err := h.plans.GetPlan(c.Request.Context(), c.Param("plan_id"))
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, p)
}

func (h *Handler) replacePlan(c *gin.Context) {
	planID := c.Param("plan_id")
	if err := h.plans.Replace(c.Request.Context(), planID); err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	if err := h.signoffs.RetirePlan(c.Request.Context(), planID); err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.Status(204)
}

func (h *Handler) listSignOffs(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		errutil.AbortWithError(c, errutil.ValidationFailed("invalid pagination", err))
		return
	}

	rows, err := h.signoffs.List(c.Request.Context(), middleware.SiteID(c), page)
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"signoffs": rows})
}

func (h *Handler) getSignOff(c *gin.Context) {
	row, err := h.signoffs.Get(c.Request.Context(), c.Param("signoff_id"))
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, row)
}

func (h *Handler) editSignOff(c *gin.Context) {
	var req signoff.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errutil.AbortWithError(c, errutil.ValidationFailed("invalid request body", err))
		return
	}
	req.UserID = middleware.UserID(c)
	req.SiteID = middleware.SiteID(c)
	req.SignOffID = c.Param("signoff_id")

	row, err := h.signoffs.Edit(c.Request.Context(), req)
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, row)
}

func (h *Handler) deleteSignOff(c *gin.Context) {
	err := h.signoffs.Delete(c.Request.Context(),
		middleware.UserID(c), middleware.SiteID(c), c.Param("signoff_id"))
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.Status(204)
}

func (h *Handler) rescheduleSignOff(c *gin.Context) {
	var req signoff.RescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errutil.AbortWithError(c, errutil.ValidationFailed("invalid request body", err))
		return
	}
	req.UserID = middleware.UserID(c)
	req.SiteID = middleware.SiteID(c)
	req.SignOffID = c.Param("signoff_id")

	row, err := h.signoffs.Reschedule(c.Request.Context(), req)
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, row)
}

// signOffTask accepts either a JSON body or a multipart form with a "payload"
// JSON field and an optional "attachment" file.
func (h *Handler) signOffTask(c *gin.Context) {
	var req signoff.SignOffRequest

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if payload := c.PostForm("payload"); payload != "" {
			if err := json.Unmarshal([]byte(payload), &req); err != nil {
				errutil.AbortWithError(c, errutil.ValidationFailed("invalid payload", err))
				return
			}
		}
		if file, err := c.FormFile("attachment"); err == nil {
			f, err := file.Open()
			if err != nil {
				errutil.AbortWithError(c, errutil.BadRequest("failed to read attachment", err))
				return
			}
			defer f.Close()
			req.Attachment = &signoff.AttachmentInput{
				FileName:    file.Filename,
				ContentType: file.Header.Get("Content-Type"),
				Size:        file.Size,
				Body:        f,
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		errutil.AbortWithError(c, errutil.ValidationFailed("invalid request body", err))
		return
	}

	req.UserID = middleware.UserID(c)
	req.SiteID = middleware.SiteID(c)
	req.TaskID = c.Param("task_id")

	row, err := h.signoffs.SignOff(c.Request.Context(), req)
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, row)
}

func (h *Handler) signOffAttachments(c *gin.Context) {
	links, err := h.signoffs.Attachments(c.Request.Context(), c.Param("signoff_id"))
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"attachments": links})
}

func (h *Handler) previousConsumables(c *gin.Context) {
	usages, found, err := h.signoffs.CopyPreviousConsumables(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"found": found, "consumables": usages})
}

func (h *Handler) auditTrail(c *gin.Context) {
	rows, err := h.trail.Trail(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		errutil.AbortWithError(c, err)
		return
	}
	c.JSON(200, gin.H{"audit": rows})
}
