package service

import (
	"math"
	"strings"

	"github.com/stamp-next/internal/constants"
	"github.com/stamp-next/internal/models"
)

// ScanPayload 扫码请求体，按 kind 解析为具体的扫码类型
type ScanPayload struct {
	Kind      string   `json:"kind" binding:"required"`
	Token     string   `json:"token" binding:"required"`
	TxID      string   `json:"tx_id"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// ScanRequest 已校验的扫码请求
type ScanRequest interface {
	Kind() string
}

// JoinScan 入会扫码
type JoinScan struct {
	Token string
	Geo   *models.GeoPoint
}

// StampScan 盖章扫码，TxID 为空时由服务端生成
type StampScan struct {
	Token string
	TxID  string
	Geo   *models.GeoPoint
}

// RedeemScan 核销扫码
type RedeemScan struct {
	Token string
	Geo   *models.GeoPoint
}

// Kind 扫码类型
func (JoinScan) Kind() string { return constants.ScanKindJoin }

// Kind 扫码类型
func (StampScan) Kind() string { return constants.ScanKindStamp }

// Kind 扫码类型
func (RedeemScan) Kind() string { return constants.ScanKindRedeem }

// ParseScanPayload 校验请求体并转换为具体扫码类型，allowed 为当前入口允许的类型
func ParseScanPayload(payload ScanPayload, allowed ...string) (ScanRequest, error) {
	kind := strings.ToLower(strings.TrimSpace(payload.Kind))
	if !scanKindAllowed(kind, allowed) {
		return nil, ErrScanPayloadInvalid
	}
	token := strings.TrimSpace(payload.Token)
	if token == "" || len(token) > maxEncodedToken {
		return nil, ErrScanPayloadInvalid
	}
	geo, err := parseScanGeo(payload.Latitude, payload.Longitude)
	if err != nil {
		return nil, err
	}

	switch kind {
	case constants.ScanKindJoin:
		return JoinScan{Token: token, Geo: geo}, nil
	case constants.ScanKindStamp:
		txID := strings.TrimSpace(payload.TxID)
		if txID != "" {
			if txID, err = normalizeTxID(txID); err != nil {
				return nil, err
			}
		}
		return StampScan{Token: token, TxID: txID, Geo: geo}, nil
	case constants.ScanKindRedeem:
		return RedeemScan{Token: token, Geo: geo}, nil
	}
	return nil, ErrScanPayloadInvalid
}

func scanKindAllowed(kind string, allowed []string) bool {
	if len(allowed) == 0 {
		allowed = []string{constants.ScanKindJoin, constants.ScanKindStamp, constants.ScanKindRedeem}
	}
	for _, item := range allowed {
		if item == kind {
			return true
		}
	}
	return false
}

// parseScanGeo 经纬度必须同时提供或同时省略
func parseScanGeo(lat, lng *float64) (*models.GeoPoint, error) {
	if lat == nil && lng == nil {
		return nil, nil
	}
	if lat == nil || lng == nil {
		return nil, ErrScanPayloadInvalid
	}
	if math.IsNaN(*lat) || math.IsNaN(*lng) || *lat < -90 || *lat > 90 || *lng < -180 || *lng > 180 {
		return nil, ErrScanPayloadInvalid
	}
	return models.NewGeoPoint(*lat, *lng), nil
}
