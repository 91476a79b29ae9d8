package constants

// 会员状态常量
const (
	MembershipStatusInactive   = "inactive"
	MembershipStatusRedeemable = "redeemable"
	MembershipStatusRedeemed   = "redeemed"
	MembershipStatusExpired    = "expired"
)

// 积分计划状态常量
const (
	ProgramStatusActive   = "active"
	ProgramStatusDisabled = "disabled"
)

// 顾客状态常量
const (
	CustomerStatusActive   = "active"
	CustomerStatusDisabled = "disabled"
)

// 二维码用途常量
const (
	TokenPurposeJoin   = "join"
	TokenPurposeStamp  = "stamp"
	TokenPurposeRedeem = "redeem"
)

// 操作者类型常量
const (
	ActorTypeCustomer = "customer"
	ActorTypeStaff    = "staff"
)

// ActorSelfScan 顾客自助扫码时写入盖章记录的操作者标识
const ActorSelfScan = "self-scan"

// 核销渠道常量
const (
	RedeemChannelScan   = "scan"
	RedeemChannelManual = "manual"
)

// 扫码类型常量
const (
	ScanKindJoin   = "join"
	ScanKindStamp  = "stamp"
	ScanKindRedeem = "redeem"
)

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 异步任务类型常量
const (
	TaskMembershipStatusNotify = "membership:status_notify"
)

// 通知渠道常量
const (
	NotifyChannelPush  = "push"
	NotifyChannelEmail = "email"
)
