package model

// DefaultPageSize はページサイズ未指定時の件数。
const DefaultPageSize = 10

// FilterAll はユーザー一覧で絞り込みを行わないことを示す。
const FilterAll = "all"

// PageRequest はオフセットページングの要求。
type PageRequest struct {
	Page     int
	PageSize int
}

// Normalize は範囲外の値を既定値に丸めたPageRequestを返す。
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	return p
}

// Offset はスキップ件数 (page-1)*pageSize を返す。
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// TotalPages は総件数から総ページ数 ceil(count/pageSize) を返す。
func TotalPages(count int64, pageSize int) int {
	if pageSize < 1 || count <= 0 {
		return 0
	}
	return int((count + int64(pageSize) - 1) / int64(pageSize))
}

// UserListQuery はユーザー一覧の取得条件。
type UserListQuery struct {
	Filter string
	PageRequest
}

// HasFilter は部分一致フィルタが指定されているかを返す。
func (q UserListQuery) HasFilter() bool {
	return q.Filter != "" && q.Filter != FilterAll
}

// UserPage はユーザー一覧の1ページ分。
type UserPage struct {
	Users      []*User
	TotalPages int
}

// PropertyPage は物件一覧の1ページ分。
type PropertyPage struct {
	Properties []*Property
	Total      int64
	TotalPages int
}
