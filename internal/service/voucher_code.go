package service

import (
	"crypto/rand"
	"strings"
)

// 去掉易混淆字符 0/O/1/I 后的 32 字符集
const voucherCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

const defaultVoucherCodeLength = 10

// generateVoucherCode 生成随机兑换码
func generateVoucherCode(length int) (string, error) {
	if length <= 0 {
		length = defaultVoucherCodeLength
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	var builder strings.Builder
	builder.Grow(length)
	for _, b := range buf {
		// 256 可被 32 整除，取模不产生偏差
		builder.WriteByte(voucherCodeAlphabet[int(b)%len(voucherCodeAlphabet)])
	}
	return builder.String(), nil
}

// normalizeVoucherCode 归一化兑换码（去空白并转大写）
func normalizeVoucherCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
