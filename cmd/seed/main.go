package main

import (
	"fmt"
	"time"

	"github.com/budo-next/internal/config"
	"github.com/budo-next/internal/logger"
	"github.com/budo-next/internal/models"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	loc, err := time.LoadLocation(cfg.Thanks.Timezone)
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")

	// 添加讣告（含一条葬礼日期为昨天的数据，用于演示答谢批处理）
	memorials := []models.Memorial{
		{
			MemorialNo:   "demo-memorial-001",
			DeceasedName: "故 김영수",
			MournerName:  "김철수",
			MournerPhone: "010-1234-5678",
			FuneralDate:  yesterday,
		},
		{
			MemorialNo:   "demo-memorial-002",
			DeceasedName: "故 이순자",
			MournerName:  "이민호",
			MournerPhone: "010-2345-6789",
			FuneralDate:  tomorrow,
		},
		{
			MemorialNo:   "demo-memorial-003",
			DeceasedName: "故 박정희",
			MournerName:  "박지훈",
			MournerPhone: "",
			FuneralDate:  yesterday,
		},
	}

	for _, m := range memorials {
		var existing models.Memorial
		if err := models.DB.Where("memorial_no = ?", m.MemorialNo).First(&existing).Error; err != nil {
			if err := models.DB.Create(&m).Error; err != nil {
				stdLog.Printf("Failed to create memorial %s: %v", m.MemorialNo, err)
			} else {
				stdLog.Printf("Created memorial: %s", m.MemorialNo)
			}
		} else {
			existing.DeceasedName = m.DeceasedName
			existing.MournerName = m.MournerName
			existing.MournerPhone = m.MournerPhone
			existing.FuneralDate = m.FuneralDate
			existing.ThanksSent = false
			if err := models.DB.Save(&existing).Error; err != nil {
				stdLog.Printf("Failed to update memorial %s: %v", m.MemorialNo, err)
			} else {
				stdLog.Printf("Updated memorial: %s", m.MemorialNo)
			}
		}
	}

	fmt.Println("\n✅ Test data created successfully!")
	fmt.Println("Summary:")
	fmt.Println("- 3 Memorials (1 with funeral date yesterday, 1 without mourner phone)")
}
