package repository

import (
	"errors"

	"github.com/budo-next/internal/models"

	"gorm.io/gorm"
)

// MemorialRepository 讣告数据访问接口
type MemorialRepository interface {
	GetByID(id uint) (*models.Memorial, error)
	GetByNo(memorialNo string) (*models.Memorial, error)
	ListThanksCandidates(funeralDate string) ([]models.Memorial, error)
	MarkThanksSent(id uint) (bool, error)
}

// GormMemorialRepository GORM 实现
type GormMemorialRepository struct {
	db *gorm.DB
}

// NewMemorialRepository 创建讣告仓库
func NewMemorialRepository(db *gorm.DB) *GormMemorialRepository {
	return &GormMemorialRepository{db: db}
}

// GetByID 根据 ID 获取讣告
func (r *GormMemorialRepository) GetByID(id uint) (*models.Memorial, error) {
	var memorial models.Memorial
	if err := r.db.First(&memorial, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &memorial, nil
}

// GetByNo 根据讣告编号获取讣告
func (r *GormMemorialRepository) GetByNo(memorialNo string) (*models.Memorial, error) {
	var memorial models.Memorial
	if err := r.db.Where("memorial_no = ?", memorialNo).First(&memorial).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &memorial, nil
}

// ListThanksCandidates 按出殡日期查询尚未发送答谢消息的讣告
func (r *GormMemorialRepository) ListThanksCandidates(funeralDate string) ([]models.Memorial, error) {
	var memorials []models.Memorial
	if err := r.db.
		Where("funeral_date = ? AND thanks_sent = ?", funeralDate, false).
		Order("id asc").
		Find(&memorials).Error; err != nil {
		return nil, err
	}
	return memorials, nil
}

// MarkThanksSent 将答谢标记置位，返回是否真正发生更新。
// WHERE 同时限定 thanks_sent = false，重复执行只会成功一次。
func (r *GormMemorialRepository) MarkThanksSent(id uint) (bool, error) {
	result := r.db.Model(&models.Memorial{}).
		Where("id = ? AND thanks_sent = ?", id, false).
		Update("thanks_sent", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
