package utility

import (
	"runtime/debug"

	"rupiya_directory/internal/logger"

	"github.com/sirupsen/logrus"
)

// GoProtect chạy f và bắt panic, ghi log thay vì làm dừng chương trình
func GoProtect(f func()) {
	defer func() {
		if err := recover(); err != nil {
			logger.GetErrorLogger().WithFields(logrus.Fields{
				"panic": err,
				"stack": string(debug.Stack()),
			}).Error("Đã bắt lỗi panic")
		}
	}()
	f()
}
