package customer

import "github.com/stamp-next/internal/provider"

// Handler 顾客侧接口处理器
// 说明：顾客扫码入会/盖章、查看会员卡并为自己的会员卡生成二维码。
type Handler struct {
	*provider.Container
}

// New 创建顾客侧处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
