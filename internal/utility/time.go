package utility

import "time"

// MillisPerDay số mili giây trong một ngày
const MillisPerDay int64 = 24 * 60 * 60 * 1000

// UnixMilli lấy mili giây của thời gian cho trước
func UnixMilli(t time.Time) int64 {
	return t.UnixMilli()
}

// AddDays cộng số ngày (đúng n*24h) vào timestamp mili giây
func AddDays(ms int64, days int) int64 {
	return ms + int64(days)*MillisPerDay
}

// DayKey trả về ngày "YYYY-MM-DD" của timestamp theo múi giờ lệch offsetMinutes so với UTC
func DayKey(ms int64, offsetMinutes int) string {
	zone := time.FixedZone("revenue", offsetMinutes*60)
	return time.UnixMilli(ms).In(zone).Format("2006-01-02")
}

// DayBounds khoảng [start, end) mili giây của ngày "YYYY-MM-DD" theo múi giờ lệch offsetMinutes
func DayBounds(day string, offsetMinutes int) (start, end int64, err error) {
	zone := time.FixedZone("revenue", offsetMinutes*60)
	t, err := time.ParseInLocation("2006-01-02", day, zone)
	if err != nil {
		return 0, 0, err
	}
	return t.UnixMilli(), t.AddDate(0, 0, 1).UnixMilli(), nil
}
