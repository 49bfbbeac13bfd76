// internal/inventory/infrastructure/mysql.go
package infrastructure

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// NewDB 建立 MySQL 连接并迁移库存相关的表结构。
// TranslateError 打开后重复键错误会被翻译成 gorm.ErrDuplicatedKey，
// CreateStock 依赖这一点识别重复商品。
func NewDB(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect mysql")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "get sql.DB")
	}
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&StockModel{}, &ReservationModel{}, &LedgerModel{}); err != nil {
		return nil, errors.Wrap(err, "auto migrate inventory tables")
	}
	return db, nil
}
