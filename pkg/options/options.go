// Package options 定义各组件配置项的公共约定。
//
// 每个组件的 Options 通过 mapstructure 标签从配置文件加载，
// 并以 "<section>." 为前缀注册命令行参数，例如 --db.type、--rag.retrieval.top-k。
package options

import (
	"strings"

	"github.com/spf13/pflag"
)

// IOptions 所有组件配置需要实现的接口。
type IOptions interface {
	// Validate 返回全部校验错误，没有错误时返回空切片。
	Validate() []error

	// AddFlags 以 prefixes 拼接的前缀注册参数。
	AddFlags(fs *pflag.FlagSet, prefixes ...string)
}

// Join 以 "." 拼接前缀，非空时带结尾的 "."。
//
//	Join()            == ""
//	Join("rag")       == "rag."
//	Join("rag", "v1") == "rag.v1."
func Join(prefixes ...string) string {
	joined := strings.Join(prefixes, ".")
	if joined != "" {
		joined += "."
	}
	return joined
}
