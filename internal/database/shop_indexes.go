// Package database - kết nối MongoDB và các index của collection shop / ledger.
package database

import (
	"context"
	"strings"

	"rupiya_directory/internal/global"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// shopStoreIndexes index dùng chung cho 3 collection shop.
// Tên field danh mục và chủ sở hữu khác nhau giữa các collection nên truyền vào.
func shopStoreIndexes(categoryField string, withAgent bool) []mongo.IndexModel {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: categoryField, Value: 1}, {Key: "paymentStatus", Value: 1}},
			Options: options.Index().SetName("shop_category_payment"),
		},
		{
			Keys:    bson.D{{Key: "paymentStatus", Value: 1}, {Key: "paymentExpiryDate", Value: 1}},
			Options: options.Index().SetName("shop_payment_expiry"),
		},
		{
			Keys:    bson.D{{Key: "paymentHistory.district", Value: 1}, {Key: "paymentHistory.day", Value: 1}},
			Options: options.Index().SetName("shop_payment_history_day").SetSparse(true),
		},
	}
	if withAgent {
		models = append(models, mongo.IndexModel{
			Keys:    bson.D{{Key: "agentId", Value: 1}},
			Options: options.Index().SetName("shop_agent").SetSparse(true),
		})
	}
	return models
}

// CreateShopIndexes tạo index cho các collection shop, holding area và ledger.
// Index unique trên originalKeys đảm bảo sweep chạy lại không tạo bản ghi chờ gia hạn trùng.
func CreateShopIndexes(ctx context.Context, db *mongo.Database) error {
	names := global.MongoDB_ColNames

	plan := map[string][]mongo.IndexModel{
		names.Shops:      shopStoreIndexes("category", true),
		names.AdminShops: shopStoreIndexes("categoryName", false),
		names.AgentShops: shopStoreIndexes("category", true),
		names.RenewalCandidates: {
			{
				Keys:    bson.D{{Key: "originalKeys", Value: 1}},
				Options: options.Index().SetName("candidate_original_keys").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "agentId", Value: 1}, {Key: "state", Value: 1}},
				Options: options.Index().SetName("candidate_agent_state"),
			},
		},
		names.DistrictRevenue: {
			{
				Keys:    bson.D{{Key: "district", Value: 1}, {Key: "day", Value: 1}},
				Options: options.Index().SetName("revenue_district_day").SetUnique(true),
			},
		},
		names.LedgerReconcileTasks: {
			{
				Keys:    bson.D{{Key: "processedAt", Value: 1}, {Key: "createdAt", Value: 1}},
				Options: options.Index().SetName("reconcile_pending"),
			},
		},
	}

	for colName, models := range plan {
		if _, err := db.Collection(colName).Indexes().CreateMany(ctx, models); err != nil && !isIndexExistsError(err) {
			return err
		}
	}
	return nil
}

// isIndexExistsError index đã tồn tại (cùng tên hoặc cùng key khác option) thì bỏ qua
func isIndexExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "already exists") ||
		strings.Contains(msg, "IndexOptionsConflict") ||
		strings.Contains(msg, "IndexKeySpecsConflict")
}
