package utility

import "math"

// EarthRadiusKm bán kính trung bình của Trái Đất
const EarthRadiusKm = 6371.0

// HasCoordinates kiểm tra toạ độ đã biết. (0,0) được coi là chưa có toạ độ.
func HasCoordinates(lat, lon float64) bool {
	return !(lat == 0 && lon == 0) && !math.IsNaN(lat) && !math.IsNaN(lon)
}

// DistanceKm khoảng cách haversine giữa hai toạ độ (km).
// Trả về 0 khi một trong hai cặp toạ độ chưa biết; caller không được lọc theo khoảng cách 0.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	if !HasCoordinates(lat1, lon1) || !HasCoordinates(lat2, lon2) {
		return 0
	}
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}
