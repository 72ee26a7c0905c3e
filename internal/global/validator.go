package global

import (
	"regexp"
	"strings"
	"sync"

	"rupiya_directory/internal/utility"

	"github.com/go-playground/validator/v10"
)

var (
	pincodeRegex = regexp.MustCompile(`^[1-9][0-9]{5}$`)
	mobileRegex  = regexp.MustCompile(`^[6-9][0-9]{9}$`)
)

// Danh sách gói hợp lệ, đồng bộ với bảng gói trong models
var planTiers = map[string]bool{
	"BASIC": true, "PREMIUM": true, "FEATURED": true,
	"LEFT_BAR": true, "RIGHT_BAR": true, "BANNER": true, "HERO": true,
}

var validatorOnce sync.Once

// GetValidator trả về validator dùng chung, tự khởi tạo nếu chưa gọi InitValidator
func GetValidator() *validator.Validate {
	validatorOnce.Do(func() {
		if Validate == nil {
			InitValidator()
		}
	})
	return Validate
}

// InitValidator khởi tạo và đăng ký các custom validator
func InitValidator() {
	Validate = validator.New()

	_ = Validate.RegisterValidation("pincode", validatePincode)
	_ = Validate.RegisterValidation("mobile_in", validateMobile)
	_ = Validate.RegisterValidation("plan_tier", validatePlanTier)
	_ = Validate.RegisterValidation("payment_mode", validatePaymentMode)
	_ = Validate.RegisterValidation("no_xss", validateNoXSS)
}

// validatePincode kiểm tra mã bưu chính 6 chữ số
func validatePincode(fl validator.FieldLevel) bool {
	return pincodeRegex.MatchString(fl.Field().String())
}

// validateMobile kiểm tra số di động 10 chữ số, chấp nhận tiền tố +91 hoặc 0
func validateMobile(fl validator.FieldLevel) bool {
	return mobileRegex.MatchString(utility.NormalizeMobile(fl.Field().String()))
}

// validatePlanTier chấp nhận chuỗi rỗng (mặc định BASIC) hoặc một gói hợp lệ
func validatePlanTier(fl validator.FieldLevel) bool {
	v := strings.ToUpper(strings.TrimSpace(fl.Field().String()))
	return v == "" || planTiers[v]
}

// validatePaymentMode chỉ cho phép CASH hoặc UPI khi ghi nhận thanh toán
func validatePaymentMode(fl validator.FieldLevel) bool {
	switch strings.ToUpper(strings.TrimSpace(fl.Field().String())) {
	case "CASH", "UPI":
		return true
	}
	return false
}

// validateNoXSS kiểm tra XSS trong các trường text tự do
func validateNoXSS(fl validator.FieldLevel) bool {
	value := strings.ToLower(fl.Field().String())
	for _, pattern := range []string{"<script", "javascript:", "onerror=", "onload=", "<iframe"} {
		if strings.Contains(value, pattern) {
			return false
		}
	}
	return true
}
