// Notification HTTP handlers.
//
// This file exposes REST endpoints for the notification feed:
//   - GET  /notifications/{userId}           (list, paginated, ETag support)
//   - POST /notifications/{id}/read          (mark one read)
//   - POST /notifications/read-all/{userId}  (mark all read)
//
// Reads answer from persistence; live-push is a hub concern and best-effort.
package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uslugibg/chat-backend/internal/domain"
	"github.com/uslugibg/chat-backend/internal/repo"
	"github.com/uslugibg/chat-backend/internal/services"
	"github.com/uslugibg/chat-backend/internal/utils"
)

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListNotificationsResponse wraps a page of notifications and pagination
// information.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

// MarkAllReadResponse reports how many notifications were marked read.
type MarkAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// clampPagination parses and bounds page and limit query params to sane
// defaults and limits, returning (page, limit).
func clampPagination(c *gin.Context) (page, limit int) {
	const (
		defaultPage  = 1
		defaultLimit = 20
		maxLimit     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	limit = utils.Clamp(utils.AtoiDefault(c.Query("limit"), defaultLimit), 1, maxLimit)
	return
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List notifications (paginated)
// @Description Returns a page of the user's notifications, most recent first.
// @Description Supports weak ETag via If-None-Match and may return 304.
// @Tags        Notifications
// @Produce     json
//
// @Param       userId         path    string  true  "User ID"  example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       limit          query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListNotificationsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/{userId} [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	ctx := c.Request.Context()
	uid := c.Param("userId")
	page, limit := clampPagination(c)

	// ETag pre-check (best effort).
	if h.DB != nil {
		count, maxTS, err := repo.NotificationsStats(ctx, h.DB, uid)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"notifications:%s:%d:%d"`, uid, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, total, err := h.notifier.ListNotifications(ctx, uid, (page-1)*limit, limit)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: items,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification as read
// @Description Marks one notification read for its owning user. Cross-user
// @Description ids answer 404.
// @Tags        Notifications
// @Produce     json
//
// @Param       id         path    string  true  "Notification ID (UUID)"  format(uuid)
// @Param       X-User-ID  header  string  true  "Owning user"  example(user123)
//
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Notification not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/{id}/read [post]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	uid := c.GetHeader("X-User-ID")
	if uid == "" {
		uid = c.Query("userId")
	}
	err := h.notifier.MarkRead(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// MarkAllNotificationsRead godoc
// @ID          markAllNotificationsRead
// @Summary     Mark all notifications as read
// @Description Marks every unread notification read for the user and returns
// @Description how many changed. Zero is not an error.
// @Tags        Notifications
// @Produce     json
//
// @Param       userId  path  string  true  "User ID"  example(user123)
//
// @Success     200  {object} handlers.MarkAllReadResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /notifications/read-all/{userId} [post]
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	n, err := h.notifier.MarkAllRead(c.Request.Context(), c.Param("userId"))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, MarkAllReadResponse{Updated: n})
}
