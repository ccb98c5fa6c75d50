package store

import (
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Options(
	fx.Provide(func(db *gorm.DB) Store { return NewGormStore(db) }),
)
