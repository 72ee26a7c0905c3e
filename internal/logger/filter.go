package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// FilterHook đánh dấu các entry không thuộc module được phép.
// AsyncHook bỏ qua entry có field "_filtered" = true.
// Log level warn trở lên luôn được giữ lại.
type FilterHook struct {
	allowedModules  map[string]bool
	hasModuleFilter bool
}

// NewFilterHook tạo filter hook từ cấu hình
func NewFilterHook(cfg *LogConfig) *FilterHook {
	modules := parseFilter(cfg.FilterModules)
	return &FilterHook{
		allowedModules:  modules,
		hasModuleFilter: len(modules) > 0 && !modules["*"],
	}
}

// parseFilter parse "a,b,c" thành map, bỏ khoảng trắng và chuyển về chữ thường
func parseFilter(filterStr string) map[string]bool {
	result := make(map[string]bool)
	for _, part := range strings.Split(filterStr, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			result[part] = true
		}
	}
	return result
}

// Levels trả về các log levels mà hook này xử lý
func (h *FilterHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire đánh dấu entry bị lọc
func (h *FilterHook) Fire(entry *logrus.Entry) error {
	if !h.hasModuleFilter || entry.Level <= logrus.WarnLevel {
		return nil
	}
	module, _ := entry.Data["module"].(string)
	if module == "" || h.allowedModules[strings.ToLower(module)] {
		return nil
	}
	entry.Data["_filtered"] = true
	return nil
}
