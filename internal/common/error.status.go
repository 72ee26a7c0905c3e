// Package common chứa mã trạng thái, mã lỗi và các lỗi nghiệp vụ dùng chung cho toàn bộ engine.
package common

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// HTTP Status Code Constants
const (
	StatusOK                  = 200 // Thành công
	StatusCreated             = 201 // Tạo mới thành công
	StatusMultiStatus         = 207 // Thành công một phần (batch)
	StatusBadRequest          = 400 // Yêu cầu không hợp lệ
	StatusUnauthorized        = 401 // Chưa xác thực
	StatusForbidden           = 403 // Không có quyền truy cập
	StatusNotFound            = 404 // Không tìm thấy tài nguyên
	StatusConflict            = 409 // Xung đột dữ liệu / trạng thái
	StatusInternalServerError = 500 // Lỗi server
	StatusServiceUnavailable  = 503 // Dịch vụ không khả dụng
)

// Response Messages
const (
	MsgSuccess         = "Thao tác thành công"
	MsgCreated         = "Tạo mới thành công"
	MsgPartialSuccess  = "Hoàn tất một phần, xem chi tiết lỗi"
	MsgValidationError = "Dữ liệu không hợp lệ"
	MsgInvalidFormat   = "Định dạng dữ liệu không hợp lệ"
)

// ErrorCode định nghĩa mã lỗi chi tiết
type ErrorCode struct {
	Code        string // Mã lỗi (ví dụ: SHOP_001)
	Category    string // Phân loại lỗi
	SubCategory string // Phân loại con
	Description string // Mô tả chi tiết
}

// Định nghĩa các mã lỗi theo hệ thống phân cấp
var (
	ErrCodeInternalServer = ErrorCode{Code: "SYS_001", Category: "System", SubCategory: "Internal", Description: "Lỗi hệ thống nội bộ"}

	ErrCodeAuthActor = ErrorCode{Code: "AUTH_001", Category: "Authentication", SubCategory: "Actor", Description: "Thiếu hoặc sai thông tin người thực hiện"}
	ErrCodeAuthOwner = ErrorCode{Code: "AUTH_002", Category: "Authentication", SubCategory: "Ownership", Description: "Người thực hiện không sở hữu tài nguyên"}

	ErrCodeValidationInput  = ErrorCode{Code: "VAL_001", Category: "Validation", SubCategory: "Input", Description: "Lỗi dữ liệu đầu vào"}
	ErrCodeValidationFormat = ErrorCode{Code: "VAL_002", Category: "Validation", SubCategory: "Format", Description: "Lỗi định dạng dữ liệu"}

	ErrCodeDatabase           = ErrorCode{Code: "DB", Category: "Database", SubCategory: "General", Description: "Lỗi cơ sở dữ liệu chung"}
	ErrCodeDatabaseConnection = ErrorCode{Code: "DB_001", Category: "Database", SubCategory: "Connection", Description: "Lỗi kết nối cơ sở dữ liệu"}
	ErrCodeDatabaseQuery      = ErrorCode{Code: "DB_002", Category: "Database", SubCategory: "Query", Description: "Lỗi truy vấn dữ liệu"}

	ErrCodeBusinessState     = ErrorCode{Code: "BIZ_001", Category: "Business", SubCategory: "State", Description: "Lỗi trạng thái nghiệp vụ"}
	ErrCodeBusinessOperation = ErrorCode{Code: "BIZ_002", Category: "Business", SubCategory: "Operation", Description: "Lỗi thao tác nghiệp vụ"}
	ErrCodeBusinessPartial   = ErrorCode{Code: "BIZ_003", Category: "Business", SubCategory: "Partial", Description: "Thao tác hoàn tất một phần"}
)

// Error định nghĩa cấu trúc lỗi chi tiết
type Error struct {
	Code       ErrorCode // Mã lỗi chi tiết
	Message    string    // Thông báo lỗi
	StatusCode int       // HTTP status code
	Details    any       // Thông tin chi tiết thêm về lỗi
}

// Error trả về message của lỗi
func (e *Error) Error() string {
	return e.Message
}

// Is so khớp theo mã lỗi, để lỗi có Details khác nhau vẫn nhận diện được bằng errors.Is
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code.Code == t.Code.Code && e.StatusCode == t.StatusCode
}

// NewError tạo một error mới với đầy đủ thông tin
func NewError(code ErrorCode, message string, statusCode int, details any) error {
	return &Error{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Details:    details,
	}
}

// Các lỗi nghiệp vụ của engine
var (
	ErrNotFound      = NewError(ErrCodeDatabaseQuery, "Không tìm thấy dữ liệu", StatusNotFound, nil)
	ErrDuplicate     = NewError(ErrCodeBusinessOperation, "Dữ liệu đã tồn tại", StatusConflict, nil)
	ErrInvalidState  = NewError(ErrCodeBusinessState, "Trạng thái không hợp lệ", StatusConflict, nil)
	ErrUnauthorized  = NewError(ErrCodeAuthOwner, "Không có quyền thao tác trên tài nguyên này", StatusForbidden, nil)
	ErrActorMissing  = NewError(ErrCodeAuthActor, "Thiếu thông tin người thực hiện", StatusUnauthorized, nil)
	ErrValidation    = NewError(ErrCodeValidationInput, MsgValidationError, StatusBadRequest, nil)
	ErrInvalidFormat = NewError(ErrCodeValidationFormat, MsgInvalidFormat, StatusBadRequest, nil)
	ErrMongoWrite    = NewError(ErrCodeDatabaseQuery, "Lỗi ghi dữ liệu MongoDB", StatusInternalServerError, nil)
	ErrMongoQuery    = NewError(ErrCodeDatabaseQuery, "Lỗi truy vấn MongoDB", StatusInternalServerError, nil)
	ErrMongoConn     = NewError(ErrCodeDatabaseConnection, "Lỗi kết nối MongoDB", StatusServiceUnavailable, nil)
)

// NewValidationError tạo ValidationError kèm chi tiết field lỗi
func NewValidationError(message string, details any) error {
	if message == "" {
		message = MsgValidationError
	}
	return NewError(ErrCodeValidationInput, message, StatusBadRequest, details)
}

// NewInvalidStateError tạo lỗi InvalidState với thông báo cụ thể
func NewInvalidStateError(message string, details any) error {
	return NewError(ErrCodeBusinessState, message, StatusConflict, details)
}

// NewNotFoundError tạo lỗi NotFound với thông báo cụ thể
func NewNotFoundError(message string, details any) error {
	return NewError(ErrCodeDatabaseQuery, message, StatusNotFound, details)
}

// ComponentError lỗi của một thành phần trong thao tác nhiều bước / batch
type ComponentError struct {
	Component string `json:"component"`     // Tên thành phần (vd: "sibling", "commission", "shop")
	Ref       string `json:"ref,omitempty"` // Tham chiếu bản ghi liên quan
	Message   string `json:"message"`       // Nội dung lỗi
	Err       error  `json:"-"`
}

// Error trả về mô tả lỗi thành phần
func (c ComponentError) Error() string {
	if c.Ref != "" {
		return fmt.Sprintf("%s[%s]: %s", c.Component, c.Ref, c.Message)
	}
	return fmt.Sprintf("%s: %s", c.Component, c.Message)
}

// Unwrap trả về lỗi gốc
func (c ComponentError) Unwrap() error {
	return c.Err
}

// NewComponentError tạo ComponentError từ lỗi gốc
func NewComponentError(component, ref string, err error) ComponentError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return ComponentError{Component: component, Ref: ref, Message: msg, Err: err}
}

// PartialFailure kết quả của thao tác hoàn tất một phần.
// Trả về như dữ liệu có cấu trúc để caller tự quyết định retry phần lỗi.
type PartialFailure struct {
	Operation string           `json:"operation"`
	Failures  []ComponentError `json:"failures"`
}

// Error trả về mô tả tóm tắt các lỗi thành phần
func (p *PartialFailure) Error() string {
	parts := make([]string, 0, len(p.Failures))
	for _, f := range p.Failures {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("%s hoàn tất một phần (%d lỗi): %s", p.Operation, len(p.Failures), strings.Join(parts, "; "))
}

// Add thêm một lỗi thành phần
func (p *PartialFailure) Add(component, ref string, err error) {
	p.Failures = append(p.Failures, NewComponentError(component, ref, err))
}

// HasFailures kiểm tra có lỗi thành phần nào không
func (p *PartialFailure) HasFailures() bool {
	return p != nil && len(p.Failures) > 0
}

// ErrOrNil trả về nil khi không có lỗi thành phần, tránh lỗi typed-nil
func (p *PartialFailure) ErrOrNil() error {
	if !p.HasFailures() {
		return nil
	}
	return p
}

// AsPartialFailure lấy PartialFailure từ chuỗi lỗi nếu có
func AsPartialFailure(err error) (*PartialFailure, bool) {
	var pf *PartialFailure
	if errors.As(err, &pf) {
		return pf, true
	}
	return nil, false
}

// ConvertMongoError chuyển đổi lỗi MongoDB sang lỗi hệ thống
func ConvertMongoError(err error) error {
	if err == nil {
		return nil
	}

	// Lỗi đã thuộc hệ thống thì giữ nguyên
	var sysErr *Error
	if errors.As(err, &sysErr) {
		return err
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) {
		return fmt.Errorf("%w: %v", ErrMongoConn, err)
	}

	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		return fmt.Errorf("%w: %v", ErrMongoWrite, err)
	}
	return fmt.Errorf("%w: %v", ErrMongoQuery, err)
}

// IsNotFound kiểm tra lỗi có phải NotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StatusCodeOf trả về HTTP status code tương ứng với lỗi
func StatusCodeOf(err error) int {
	if _, ok := AsPartialFailure(err); ok {
		return StatusMultiStatus
	}
	var e *Error
	if errors.As(err, &e) {
		return e.StatusCode
	}
	return StatusInternalServerError
}
