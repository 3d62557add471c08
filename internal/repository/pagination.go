package repository

import "gorm.io/gorm"

// applyPagination 统一套用列表查询的分页，pageSize 不合法时不加限制，
// 页码越界按第一页处理。
func applyPagination(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}
