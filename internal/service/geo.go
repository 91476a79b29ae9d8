package service

import (
	"math"

	"github.com/stamp-next/internal/models"
)

const earthRadiusMeters = 6371008.8

// distanceMeters 按 haversine 公式计算两点间的大圆距离（米）
func distanceMeters(a, b models.GeoPoint) float64 {
	lat1 := a.Latitude.Float64() * math.Pi / 180
	lat2 := b.Latitude.Float64() * math.Pi / 180
	dLat := lat2 - lat1
	dLng := (b.Longitude.Float64() - a.Longitude.Float64()) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
