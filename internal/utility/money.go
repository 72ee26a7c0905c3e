package utility

import "github.com/shopspring/decimal"

// PercentOf round(amount * rate), làm tròn half away from zero đến đơn vị rupee.
// decimal.NewFromFloat lấy biểu diễn ngắn nhất nên 0.15 là đúng 0.15, không lệch như phép nhân float.
func PercentOf(amount int64, rate float64) int64 {
	if amount <= 0 || rate <= 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(rate)).Round(0).IntPart()
}
