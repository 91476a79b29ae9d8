package i18n

var messages = map[string]map[string]string{
	LocaleEN: {
		"error.bad_request":            "invalid request",
		"error.unauthorized":           "unauthorized",
		"error.forbidden":              "forbidden",
		"error.not_found":              "not found",
		"error.internal":               "internal server error",
		"error.rate_limited":           "too many requests, retry in %d seconds",
		"error.scan_payload_invalid":   "invalid scan payload",
		"error.token_invalid":          "invalid QR code",
		"error.token_expired":          "QR code expired",
		"error.token_already_used":     "QR code already used",
		"error.out_of_range":           "scan location is too far from the merchant",
		"error.too_frequent":           "stamped too recently, please try again later",
		"error.membership_not_found":   "membership not found",
		"error.program_inactive":       "loyalty program is not active",
		"error.program_not_found":      "loyalty program not found",
		"error.customer_inactive":      "customer is not active",
		"error.no_pending_reward":      "no pending reward",
		"error.voucher_expired":        "voucher expired",
		"error.code_mismatch":          "voucher code does not match",
		"error.duplicate_join":         "already a member of this program",
		"error.concurrency_conflict":   "membership is busy, please retry",
		"error.storage_unavailable":    "service temporarily unavailable",
		"error.token_request_invalid":  "invalid QR code request",
		"error.membership_id_invalid":  "invalid membership id",
		"error.actor_not_allowed":      "operation not allowed for this account",
		"error.actor_token_invalid":    "invalid or expired identity token",
		"error.auth_header_missing":    "authorization header is required",
		"error.auth_header_invalid":    "authorization header must be a bearer token",
		"error.rate_limit_unavailable": "rate limiter unavailable, please retry",
		"notify.redeemable.title":      "Your reward is ready",
		"notify.redeemable.body":       "You collected {{cycle_stamp_count}}/{{threshold}} stamps. Show voucher before {{voucher_expires_at}}.",
		"notify.redeemed.title":        "Reward redeemed",
		"notify.redeemed.body":         "Your voucher has been redeemed. Enjoy!",
		"notify.expired.title":         "Voucher expired",
		"notify.expired.body":          "Your voucher expired unused. Your stamps are kept.",
		"notify.inactive.title":        "New stamp card started",
		"notify.inactive.body":         "Collect {{threshold}} stamps for your next reward.",
	},
	LocaleZH: {
		"error.bad_request":            "请求参数错误",
		"error.unauthorized":           "未登录或登录已失效",
		"error.forbidden":              "无权限访问",
		"error.not_found":              "资源不存在",
		"error.internal":               "服务器内部错误",
		"error.rate_limited":           "请求过于频繁，请 %d 秒后重试",
		"error.scan_payload_invalid":   "扫码数据无效",
		"error.token_invalid":          "二维码无效",
		"error.token_expired":          "二维码已过期",
		"error.token_already_used":     "二维码已被使用",
		"error.out_of_range":           "扫码位置距离门店过远",
		"error.too_frequent":           "盖章过于频繁，请稍后再试",
		"error.membership_not_found":   "会员卡不存在",
		"error.program_inactive":       "集章活动未开启",
		"error.program_not_found":      "集章活动不存在",
		"error.customer_inactive":      "顾客账号不可用",
		"error.no_pending_reward":      "暂无可兑换奖励",
		"error.voucher_expired":        "兑换券已过期",
		"error.code_mismatch":          "兑换码不匹配",
		"error.duplicate_join":         "已加入该集章活动",
		"error.concurrency_conflict":   "会员卡正忙，请重试",
		"error.storage_unavailable":    "服务暂时不可用",
		"error.token_request_invalid":  "二维码生成参数无效",
		"error.membership_id_invalid":  "会员卡编号无效",
		"error.actor_not_allowed":      "当前账号无权执行该操作",
		"error.actor_token_invalid":    "身份令牌无效或已过期",
		"error.auth_header_missing":    "缺少 Authorization 请求头",
		"error.auth_header_invalid":    "Authorization 格式应为 Bearer 令牌",
		"error.rate_limit_unavailable": "限流服务暂不可用，请重试",
		"notify.redeemable.title":      "奖励已就绪",
		"notify.redeemable.body":       "已集满 {{cycle_stamp_count}}/{{threshold}} 枚印章，请在 {{voucher_expires_at}} 前出示兑换券。",
		"notify.redeemed.title":        "奖励已兑换",
		"notify.redeemed.body":         "兑换券已核销，祝您用餐愉快。",
		"notify.expired.title":         "兑换券已过期",
		"notify.expired.body":          "兑换券未使用已过期，已得印章保留。",
		"notify.inactive.title":        "新一轮集章开始",
		"notify.inactive.body":         "再集 {{threshold}} 枚印章即可获得下一份奖励。",
	},
	LocaleTW: {
		"error.bad_request":           "請求參數錯誤",
		"error.unauthorized":          "未登入或登入已失效",
		"error.forbidden":             "無權限存取",
		"error.not_found":             "資源不存在",
		"error.internal":              "伺服器內部錯誤",
		"error.rate_limited":          "請求過於頻繁，請 %d 秒後重試",
		"error.scan_payload_invalid":  "掃碼資料無效",
		"error.token_invalid":         "QR 碼無效",
		"error.token_expired":         "QR 碼已過期",
		"error.token_already_used":    "QR 碼已被使用",
		"error.out_of_range":          "掃碼位置距離門市過遠",
		"error.too_frequent":          "集章過於頻繁，請稍後再試",
		"error.membership_not_found":  "會員卡不存在",
		"error.program_inactive":      "集章活動未開啟",
		"error.no_pending_reward":     "暫無可兌換獎勵",
		"error.voucher_expired":       "兌換券已過期",
		"error.code_mismatch":         "兌換碼不符",
		"error.duplicate_join":        "已加入該集章活動",
		"error.concurrency_conflict":  "會員卡忙碌中，請重試",
		"error.storage_unavailable":   "服務暫時無法使用",
		"error.token_request_invalid": "QR 碼產生參數無效",
		"error.membership_id_invalid": "會員卡編號無效",
		"error.actor_not_allowed":     "目前帳號無權執行此操作",
		"error.actor_token_invalid":   "身分權杖無效或已過期",
		"notify.redeemable.title":     "獎勵已就緒",
		"notify.redeemed.title":       "獎勵已兌換",
		"notify.expired.title":        "兌換券已過期",
		"notify.inactive.title":       "新一輪集章開始",
	},
}
