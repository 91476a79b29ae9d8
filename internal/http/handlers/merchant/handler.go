package merchant

import "github.com/stamp-next/internal/provider"

// Handler 商户店员接口处理器
type Handler struct {
	*provider.Container
}

// New 创建商户侧处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
