package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// coordinateScale 经纬度保留 7 位小数（约 1 厘米精度）
const coordinateScale = 7

// Coordinate 统一经纬度类型（定点小数存储）
type Coordinate struct {
	decimal.Decimal
}

// NewCoordinate 从浮点数创建经纬度
func NewCoordinate(value float64) Coordinate {
	return Coordinate{Decimal: decimal.NewFromFloat(value).Round(coordinateScale)}
}

// Float64 转为浮点数用于距离计算
func (c Coordinate) Float64() float64 {
	f, _ := c.Decimal.Float64()
	return f
}

// MarshalJSON 输出数字
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Float64())
}

// UnmarshalJSON 解析经纬度（字符串或数字）
func (c *Coordinate) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		c.Decimal = d.Round(coordinateScale)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	c.Decimal = decimal.NewFromFloat(f).Round(coordinateScale)
	return nil
}

// Value 用于数据库写入
func (c Coordinate) Value() (driver.Value, error) {
	return c.Decimal.Round(coordinateScale).Value()
}

// Scan 用于数据库读取
func (c *Coordinate) Scan(value interface{}) error {
	if err := c.Decimal.Scan(value); err != nil {
		return err
	}
	c.Decimal = c.Decimal.Round(coordinateScale)
	return nil
}

// String 返回 7 位小数格式
func (c Coordinate) String() string {
	return c.Decimal.Round(coordinateScale).StringFixed(coordinateScale)
}

// GeoPoint 扫码时上报的位置
type GeoPoint struct {
	Latitude  Coordinate `json:"latitude"`
	Longitude Coordinate `json:"longitude"`
}

// NewGeoPoint 创建位置
func NewGeoPoint(lat, lng float64) *GeoPoint {
	return &GeoPoint{Latitude: NewCoordinate(lat), Longitude: NewCoordinate(lng)}
}
