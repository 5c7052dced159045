package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/arcade-shim/internal/acio"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/intercept"
	"github.com/wfunc/arcade-shim/internal/models"
)

// FramesResponse 帧日志查询结果
type FramesResponse struct {
	Session string             `json:"session"`
	Total   int64              `json:"total"`
	Written uint64             `json:"written"`
	Dropped uint64             `json:"dropped"`
	Items   []*models.FrameLog `json:"items"`
}

// listPorts 虚拟串口与其总线节点的统计
func (r *Router) listPorts(c *gin.Context) {
	out := []acio.PortStats{}
	if r.deps.Ports != nil {
		for _, name := range r.deps.Ports.Names() {
			if p, ok := r.deps.Ports.Get(name); ok {
				out = append(out, p.Stats())
			}
		}
	}
	respond(c, out)
}

// listIntercepts 拦截层命中统计
func (r *Router) listIntercepts(c *gin.Context) {
	out := []intercept.Stats{}
	if r.deps.Intercepts != nil {
		out = append(out, r.deps.Intercepts()...)
	}
	respond(c, out)
}

// queryFrames 查询总线帧日志
func (r *Router) queryFrames(c *gin.Context) {
	svc := r.deps.FrameLogs
	if svc == nil {
		fail(c, apperrors.New(apperrors.ErrDatabaseConnect, "帧日志未启用"))
		return
	}

	q, err := parseFrameQuery(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	items, total, err := svc.Query(c.Request.Context(), q)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, FramesResponse{
		Session: svc.SessionID(),
		Total:   total,
		Written: svc.Written(),
		Dropped: svc.Dropped(),
		Items:   items,
	})
}

// parseFrameQuery 解析查询参数；code 接受十进制或0x前缀，时间为RFC3339
func parseFrameQuery(c *gin.Context) (*models.FrameLogQuery, error) {
	q := &models.FrameLogQuery{
		SessionID: c.Query("session_id"),
		Port:      c.Query("port"),
		Direction: models.FrameDirection(strings.ToUpper(c.Query("direction"))),
	}

	if s := c.Query("code"); s != "" {
		v, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return nil, err
		}
		code := uint16(v)
		q.Code = &code
	}
	for key, dst := range map[string]**time.Time{"start_time": &q.StartTime, "end_time": &q.EndTime} {
		if s := c.Query(key); s != "" {
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, err
			}
			*dst = &t
		}
	}
	for key, dst := range map[string]*int{"limit": &q.Limit, "offset": &q.Offset} {
		if s := c.Query(key); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 0 {
				return nil, apperrors.Newf(apperrors.ErrInvalidParam, "%s=%s", key, s)
			}
			*dst = n
		}
	}
	return q, nil
}
