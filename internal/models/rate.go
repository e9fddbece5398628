package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Rate 统一比例类型（0..1，保留 4 位小数）
type Rate struct {
	decimal.Decimal
}

// NewRateFromDecimal 从 decimal 创建比例
func NewRateFromDecimal(value decimal.Decimal) Rate {
	return Rate{Decimal: value.Round(4)}
}

// NewRateFromFloat 从 float 创建比例
func NewRateFromFloat(value float64) Rate {
	return Rate{Decimal: decimal.NewFromFloat(value).Round(4)}
}

// MarshalJSON 统一输出 4 位小数的字符串
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Decimal.Round(4).StringFixed(4))
}

// UnmarshalJSON 解析比例（字符串或数字）
func (r *Rate) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		r.Decimal = d.Round(4)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	r.Decimal = decimal.NewFromFloat(f).Round(4)
	return nil
}

// Value 用于数据库写入
func (r Rate) Value() (driver.Value, error) {
	return r.Decimal.Round(4).Value()
}

// Scan 用于数据库读取
func (r *Rate) Scan(value interface{}) error {
	if err := r.Decimal.Scan(value); err != nil {
		return err
	}
	r.Decimal = r.Decimal.Round(4)
	return nil
}

// String 返回 4 位小数格式
func (r Rate) String() string {
	return r.Decimal.Round(4).StringFixed(4)
}
