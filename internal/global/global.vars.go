package global

import (
	"rupiya_directory/config"
	"rupiya_directory/internal/registry"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoDB_CollectionName chứa tên các collection trong MongoDB
type MongoDB_CollectionName struct {
	Shops                string // Collection shop cũ (legacy), cũng chứa bản sao của shop do agent tạo
	AdminShops           string // Collection shop do admin tạo
	AgentShops           string // Collection shop do agent tạo (nguồn sở hữu của agent)
	RenewalCandidates    string // Khu vực chờ gia hạn của shop đã hết hạn
	Agents               string // Agent và tổng hoa hồng cache
	DistrictRevenue      string // Doanh thu theo quận/huyện và ngày
	LedgerReconcileTasks string // Hàng đợi đối soát ledger khi cập nhật best-effort thất bại
}

// Các biến toàn cục
var Validate *validator.Validate                                       // Biến để xác thực dữ liệu
var MongoDB_Session *mongo.Client                                      // Phiên kết nối tới MongoDB
var MongoDB_ServerConfig *config.Configuration                         // Cấu hình của server
var MongoDB_ColNames MongoDB_CollectionName = MongoDB_CollectionName{} // Tên các collection

// Các Registry
var RegistryCollections = registry.NewRegistry[*mongo.Collection]() // Registry chứa các collections
var RegistryDatabase = registry.NewRegistry[*mongo.Database]()      // Registry chứa các databases

// InitColNames gán tên các collection
func InitColNames() {
	MongoDB_ColNames.Shops = "shops"
	MongoDB_ColNames.AdminShops = "admin_shops"
	MongoDB_ColNames.AgentShops = "agent_shops"
	MongoDB_ColNames.RenewalCandidates = "renewal_candidates"
	MongoDB_ColNames.Agents = "agents"
	MongoDB_ColNames.DistrictRevenue = "district_revenue"
	MongoDB_ColNames.LedgerReconcileTasks = "ledger_reconcile_tasks"
}

// AllColNames trả về tên tất cả collection, dùng khi đăng ký registry
func AllColNames() []string {
	return []string{
		MongoDB_ColNames.Shops,
		MongoDB_ColNames.AdminShops,
		MongoDB_ColNames.AgentShops,
		MongoDB_ColNames.RenewalCandidates,
		MongoDB_ColNames.Agents,
		MongoDB_ColNames.DistrictRevenue,
		MongoDB_ColNames.LedgerReconcileTasks,
	}
}
