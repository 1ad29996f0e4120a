package errors

import (
	"fmt"
	"net/http"
)

// 服务码 (AA)。
const (
	ServiceCommon = 0
	ServiceRAG    = 21
)

// 类别码 (BB)。
const (
	CategoryRequest    = 1
	CategoryAuth       = 2
	CategoryPermission = 3
	CategoryResource   = 4
	CategoryConflict   = 5
	CategoryRateLimit  = 6
	CategoryInternal   = 7
	CategoryDatabase   = 8
	CategoryNetwork    = 10
	CategoryTimeout    = 11
	CategoryConfig     = 12
)

// categoryStatus 各类别的默认 HTTP 状态码。
var categoryStatus = map[int]int{
	CategoryRequest:    http.StatusBadRequest,
	CategoryAuth:       http.StatusUnauthorized,
	CategoryPermission: http.StatusForbidden,
	CategoryResource:   http.StatusNotFound,
	CategoryConflict:   http.StatusConflict,
	CategoryRateLimit:  http.StatusTooManyRequests,
	CategoryNetwork:    http.StatusServiceUnavailable,
	CategoryTimeout:    http.StatusGatewayTimeout,
}

// MakeCode 组合 AABBCCC 错误码。
func MakeCode(service, category, sequence int) int {
	return service*100000 + category*1000 + sequence
}

// GetCategory 返回错误码的类别部分。
func GetCategory(code int) int {
	return (code / 1000) % 100
}

// CategoryStatus 返回类别对应的默认 HTTP 状态码，未知类别为 500。
func CategoryStatus(category int) int {
	if status, ok := categoryStatus[category]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Definition 描述一个待注册的错误码。
type Definition struct {
	code   int
	status int
	en, bn string
}

// Define 开始定义错误码，HTTP 状态码默认取类别对应值。
func Define(service, category, sequence int) *Definition {
	return &Definition{
		code:   MakeCode(service, category, sequence),
		status: CategoryStatus(category),
	}
}

// Status 覆盖默认 HTTP 状态码。
func (d *Definition) Status(status int) *Definition {
	d.status = status
	return d
}

// Text 设置英文与孟加拉文提示。
func (d *Definition) Text(en, bn string) *Definition {
	d.en, d.bn = en, bn
	return d
}

// Register 注册错误码，重复或缺少英文提示时返回错误。
func (d *Definition) Register() (*Errno, error) {
	if d.en == "" {
		return nil, fmt.Errorf("errno %d: english message is required", d.code)
	}
	return register(&Errno{Code: d.code, HTTP: d.status, MessageEN: d.en, MessageBN: d.bn})
}

// Must 同 Register，失败时 panic。用于包级变量初始化。
func (d *Definition) Must() *Errno {
	e, err := d.Register()
	if err != nil {
		panic(err)
	}
	return e
}
