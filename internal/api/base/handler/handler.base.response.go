// Package basehdl chứa helper chuẩn hoá response JSON dùng chung cho các domain handler.
package basehdl

import (
	"errors"
	"fmt"
	"runtime/debug"

	"rupiya_directory/internal/common"
	"rupiya_directory/internal/logger"

	"github.com/gofiber/fiber/v3"
)

// JSONResponse trả về JSON response với Content-Type: application/json; charset=utf-8
func JSONResponse(c fiber.Ctx, statusCode int, data interface{}) error {
	c.Set("Content-Type", "application/json; charset=utf-8")
	return c.Status(statusCode).JSON(data)
}

// SafeHandlerWrapper bọc handler với recover, panic trả về 500 thay vì làm rơi kết nối.
func SafeHandlerWrapper(c fiber.Ctx, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.GetAppLogger().WithField("panic", r).WithField("stack", string(debug.Stack())).
				Error("⚠️ [HANDLER] Panic khi xử lý request")
			err = HandleResponse(c, nil, common.NewError(
				common.ErrCodeInternalServer,
				fmt.Sprintf("Lỗi hệ thống không mong muốn: %v", r),
				common.StatusInternalServerError,
				nil,
			))
		}
	}()
	return fn()
}

// HandleResponse chuẩn hoá response trả về cho client.
//   - err == nil: 200 kèm data
//   - PartialFailure: 207 kèm data (phần đã thành công) và failures
//   - *common.Error: status code và mã lỗi tương ứng
func HandleResponse(c fiber.Ctx, data interface{}, err error) error {
	return HandleResponseWithStatus(c, common.StatusOK, data, err)
}

// HandleResponseWithStatus như HandleResponse nhưng chọn status khi thành công (vd: 201)
func HandleResponseWithStatus(c fiber.Ctx, successStatus int, data interface{}, err error) error {
	if err == nil {
		msg := common.MsgSuccess
		if successStatus == common.StatusCreated {
			msg = common.MsgCreated
		}
		return JSONResponse(c, successStatus, fiber.Map{
			"code":    successStatus,
			"message": msg,
			"data":    data,
			"status":  "success",
		})
	}

	if pf, ok := common.AsPartialFailure(err); ok {
		return JSONResponse(c, common.StatusMultiStatus, fiber.Map{
			"code":     common.ErrCodeBusinessPartial.Code,
			"message":  common.MsgPartialSuccess,
			"data":     data,
			"failures": pf.Failures,
			"status":   "partial",
		})
	}
	return HandleErrorResponse(c, err)
}

// HandleErrorResponse trả về lỗi cho client
func HandleErrorResponse(c fiber.Ctx, err error) error {
	var customErr *common.Error
	if errors.As(err, &customErr) {
		return JSONResponse(c, customErr.StatusCode, fiber.Map{
			"code":    customErr.Code.Code,
			"message": customErr.Message,
			"details": customErr.Details,
			"status":  "error",
		})
	}
	return JSONResponse(c, common.StatusInternalServerError, fiber.Map{
		"code":    common.ErrCodeDatabase.Code,
		"message": err.Error(),
		"status":  "error",
	})
}
