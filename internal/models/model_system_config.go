package models

import (
	"strconv"
	"time"
)

// SystemConfig 系统配置表。运行期可调的业务参数（免费额度、邀请奖励等）。
type SystemConfig struct {
	ConfigKey   string `gorm:"column:config_key;primary_key;type:varchar(64)" json:"config_key"`
	ConfigValue string `gorm:"column:config_value;type:varchar(255)" json:"config_value"`
	Description string `gorm:"column:description;type:varchar(255)" json:"description"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (SystemConfig) TableName() string { return "system_configs" }

func (c *SystemConfig) GetIntValue(def int) int {
	if c == nil || c.ConfigValue == "" {
		return def
	}
	v, err := strconv.Atoi(c.ConfigValue)
	if err != nil {
		return def
	}
	return v
}
