package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单表（吊唁花圈 / 吊唁金）
type Order struct {
	ID                    uint           `gorm:"primarykey" json:"id"`                             // 主键
	OrderNo               string         `gorm:"uniqueIndex;not null" json:"order_no"`             // 订单编号（同时作为网关 moid）
	MemorialID            uint           `gorm:"index;not null" json:"memorial_id"`                // 讣告ID
	ProductType           string         `gorm:"type:varchar(30);not null" json:"product_type"`    // 商品类型（flower/condolence_money）
	ProductName           string         `gorm:"type:varchar(100)" json:"product_name"`            // 商品名称快照
	Price                 Money          `gorm:"type:decimal(20,2);not null;default:0" json:"price"` // 金额
	SenderName            string         `gorm:"type:varchar(100)" json:"sender_name"`             // 购买人姓名
	SenderPhone           string         `gorm:"type:varchar(40);index" json:"sender_phone"`       // 购买人电话
	RecipientName         string         `gorm:"type:varchar(100)" json:"recipient_name"`          // 收件人姓名
	DeliveryAddress       string         `gorm:"type:varchar(300)" json:"delivery_address"`        // 配送地址
	DeliveryAddressDetail string         `gorm:"type:varchar(300)" json:"delivery_address_detail"` // 配送地址详情
	PayMethod             string         `gorm:"type:varchar(30)" json:"pay_method"`               // 支付方式
	Status                string         `gorm:"index;not null" json:"status"`                     // 订单状态
	PartnerTxnID          string         `gorm:"index" json:"partner_txn_id"`                      // 网关交易号（tid）
	PartnerPayload        JSON           `gorm:"type:json" json:"partner_payload"`                 // 网关回调原始数据
	CreatedAt             time.Time      `gorm:"index" json:"created_at"`                          // 创建时间
	UpdatedAt             time.Time      `gorm:"index" json:"updated_at"`                          // 更新时间
	DeletedAt             gorm.DeletedAt `gorm:"index" json:"-"`                                   // 软删除时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
