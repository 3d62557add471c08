package models

import (
	"time"

	"gorm.io/gorm"
)

// Memorial 讣告记录表
// 说明：由讣告编辑子系统负责写入；本核心只读取，以及翻转 thanks_sent 标记。
type Memorial struct {
	ID           uint           `gorm:"primarykey" json:"id"`                          // 主键
	MemorialNo   string         `gorm:"uniqueIndex;not null" json:"memorial_no"`       // 讣告编号（对外展示）
	DeceasedName string         `gorm:"type:varchar(100);not null" json:"deceased_name"` // 故人姓名
	MournerName  string         `gorm:"type:varchar(100)" json:"mourner_name"`         // 丧主姓名
	MournerPhone string         `gorm:"type:varchar(40)" json:"mourner_phone"`         // 丧主联系电话
	FuneralDate  string         `gorm:"type:varchar(10);index" json:"funeral_date"`    // 出殡日期（2006-01-02）
	ThanksSent   bool           `gorm:"not null;default:false;index" json:"thanks_sent"` // 答谢消息是否已发送
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt    time.Time      `gorm:"index" json:"updated_at"`                       // 更新时间
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`                                // 软删除时间
}

// TableName 指定表名
func (Memorial) TableName() string {
	return "memorials"
}
