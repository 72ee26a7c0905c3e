package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Configuration chứa thông tin tĩnh cần thiết để chạy ứng dụng
type Configuration struct {
	Address               string `env:"ADDRESS" envDefault:"8080"`                    // Cổng server
	MongoDB_ConnectionURI string `env:"MONGODB_CONNECTION_URI,required"`              // URL kết nối cơ sở dữ liệu
	MongoDB_DBName        string `env:"MONGODB_DBNAME" envDefault:"rupiya_directory"` // Tên cơ sở dữ liệu
	CORS_Origins          string `env:"CORS_ORIGINS" envDefault:"*"`                  // Các origins được phép (phân cách bởi dấu phẩy)
	CORS_AllowCredentials bool   `env:"CORS_ALLOW_CREDENTIALS" envDefault:"false"`    // Cho phép gửi credentials
	RateLimit_Max         int    `env:"RATE_LIMIT_MAX" envDefault:"100"`              // Số request tối đa trong window
	RateLimit_Window      int    `env:"RATE_LIMIT_WINDOW" envDefault:"60"`            // Thời gian window (giây)
	RateLimit_Enabled     bool   `env:"RATE_LIMIT_ENABLED" envDefault:"true"`         // Bật/tắt rate limiting

	// Lifecycle & ledger
	SweepIntervalMinutes     int    `env:"SWEEP_INTERVAL_MINUTES" envDefault:"60"`     // Chu kỳ quét shop hết hạn (0 = tắt worker)
	ReconcileIntervalMinutes int    `env:"RECONCILE_INTERVAL_MINUTES" envDefault:"10"` // Chu kỳ xử lý hàng đợi đối soát ledger
	ReconcileBatchSize       int    `env:"RECONCILE_BATCH_SIZE" envDefault:"50"`       // Số task đối soát mỗi lần
	MirrorAgentShops         bool   `env:"MIRROR_AGENT_SHOPS" envDefault:"true"`       // Shop do agent tạo được sao sang collection shops chính
	RevenueTZOffsetMinutes   int    `env:"REVENUE_TZ_OFFSET_MINUTES" envDefault:"330"` // Múi giờ tính ngày doanh thu (mặc định IST)
	DefaultRenewalAmount     int64  `env:"DEFAULT_RENEWAL_AMOUNT" envDefault:"100"`    // Số tiền gia hạn mặc định (₹)
	PlanCatalogFile          string `env:"PLAN_CATALOG_FILE"`                          // File YAML ghi đè bảng gói (optional)

	// Redis cache cho nearest-per-category (optional, rỗng = tắt)
	RedisAddr string `env:"REDIS_ADDR"`

	// Notification (optional)
	SMTPHost            string  `env:"SMTP_HOST"`
	SMTPPort            int     `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername        string  `env:"SMTP_USERNAME"`
	SMTPPassword        string  `env:"SMTP_PASSWORD"`
	NotifyFromEmail     string  `env:"NOTIFY_FROM_EMAIL"`
	NotifyOpsEmail      string  `env:"NOTIFY_OPS_EMAIL"`                      // Hộp thư nhận bản sao biên nhận thanh toán
	NotifyRatePerSecond float64 `env:"NOTIFY_RATE_PER_SECOND" envDefault:"5"` // Giới hạn số thông báo mỗi giây
}

// getEnvPath trả về đường dẫn đến file env dựa trên môi trường
func getEnvPath() string {
	goEnv := os.Getenv("GO_ENV")
	if goEnv == "" {
		goEnv = "development"
	}

	currentDir, err := os.Getwd()
	if err != nil {
		// Sử dụng fmt.Printf vì logger có thể chưa được init ở đây
		fmt.Printf("Không thể lấy được thư mục hiện tại: %v\n", err)
		return ""
	}

	// Tìm thư mục config/env, đi dần lên thư mục cha
	for {
		envDir := filepath.Join(currentDir, "config", "env")
		if _, err := os.Stat(envDir); err == nil {
			return filepath.Join(envDir, fmt.Sprintf("%s.env", goEnv))
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return ""
		}
		currentDir = parentDir
	}
}

// NewConfig đọc cấu hình từ file env (nếu có) rồi parse biến môi trường.
// Không có file env vẫn chạy được khi biến môi trường đã được set (container, CI).
func NewConfig() (*Configuration, error) {
	if envPath := getEnvPath(); envPath != "" {
		if err := godotenv.Load(envPath); err != nil {
			fmt.Printf("Không thể load file env tại %s: %v\n", envPath, err)
		}
	}
	return Parse()
}

// Parse chỉ đọc biến môi trường hiện tại
func Parse() (*Configuration, error) {
	cfg := Configuration{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}
