package handler

import (
	"github.com/hitoshi/rentals/internal/auth"
	"github.com/hitoshi/rentals/internal/middleware"
	"github.com/hitoshi/rentals/internal/property"
	"github.com/hitoshi/rentals/internal/user"
)

// サービス層の型がハンドラーのインターフェースを満たすことをコンパイル時に確認する。
var (
	_ AuthServiceInterface      = (*auth.Service)(nil)
	_ middleware.SessionResumer = (*auth.Service)(nil)
	_ AccountServiceInterface   = (*user.Service)(nil)
	_ UserServiceInterface      = (*user.Service)(nil)
	_ PropertyServiceInterface  = (*property.Service)(nil)
)
