package api

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/arcade-shim/internal/errors"
	"github.com/wfunc/arcade-shim/internal/input"
)

// ControlView 控件当前状态
type ControlView struct {
	Kind         string  `json:"kind"`
	Name         string  `json:"name"`
	Device       string  `json:"device,omitempty"`
	Code         int     `json:"code"` // 按键码或模拟量/灯光索引，未绑定为 -1
	Bound        bool    `json:"bound"`
	Alternatives int     `json:"alternatives"`
	Pressed      bool    `json:"pressed,omitempty"`
	Value        float64 `json:"value"`
}

// OptionView 选项当前值
type OptionView struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Value        string   `json:"value"`
	Alternatives []string `json:"alternatives,omitempty"`
	Active       bool     `json:"active"`
}

// VirtualButtonRequest 虚拟按键注入
type VirtualButtonRequest struct {
	Code     uint16   `json:"code"`
	Velocity *float64 `json:"velocity" binding:"required,min=0,max=1"`
}

// VirtualAnalogRequest 虚拟模拟量注入
type VirtualAnalogRequest struct {
	Index int      `json:"index" binding:"min=0"`
	Value *float64 `json:"value" binding:"required,min=0,max=1"`
}

// listControls 按键、模拟量、灯光的当前状态
func (r *Router) listControls(c *gin.Context) {
	set := r.deps.Instance.Set
	out := make([]ControlView, 0, len(set.Buttons)+len(set.Analogs)+len(set.Lights))

	for _, b := range set.Buttons {
		code := -1
		if b.KeyCode != input.KeyNone {
			code = int(b.KeyCode)
		}
		out = append(out, ControlView{
			Kind:         "button",
			Name:         b.Name,
			Device:       b.Device,
			Code:         code,
			Bound:        b.IsSet(),
			Alternatives: len(b.Alternatives),
			Pressed:      input.ButtonState(b),
			Value:        input.ButtonVelocity(b),
		})
	}
	for _, a := range set.Analogs {
		out = append(out, ControlView{
			Kind:         "analog",
			Name:         a.Name,
			Device:       a.Device,
			Code:         a.Index,
			Bound:        a.IsSet(),
			Alternatives: len(a.Alternatives),
			Value:        input.AnalogState(a),
		})
	}
	for _, l := range set.Lights {
		out = append(out, ControlView{
			Kind:         "light",
			Name:         l.Name,
			Device:       l.Device,
			Code:         l.Index,
			Bound:        l.IsBound(),
			Alternatives: len(l.Alternatives),
			Value:        l.Value(),
		})
	}
	respond(c, out)
}

// listOptions 游戏选项
func (r *Router) listOptions(c *gin.Context) {
	opts := r.deps.Instance.Set.Options
	out := make([]OptionView, 0, len(opts))
	for _, o := range opts {
		out = append(out, OptionView{
			Name:         o.Definition.Name,
			Type:         o.Definition.Type.String(),
			Value:        o.Value,
			Alternatives: o.Alternatives,
			Active:       o.IsActive(),
		})
	}
	respond(c, out)
}

func (r *Router) virtual(c *gin.Context) (*input.VirtualBackend, bool) {
	if r.deps.Virtual == nil {
		fail(c, apperrors.New(apperrors.ErrBackendMissing, input.DeviceVirtual))
		return nil, false
	}
	return r.deps.Virtual, true
}

// pressVirtual 设置虚拟按键力度，0 表示松开
func (r *Router) pressVirtual(c *gin.Context) {
	vb, ok := r.virtual(c)
	if !ok {
		return
	}
	var req VirtualButtonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	vb.Press(req.Code, *req.Velocity)
	respond(c, req)
}

// setVirtualAnalog 设置虚拟模拟量
func (r *Router) setVirtualAnalog(c *gin.Context) {
	vb, ok := r.virtual(c)
	if !ok {
		return
	}
	var req VirtualAnalogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	vb.SetAnalog(req.Index, *req.Value)
	respond(c, req)
}
