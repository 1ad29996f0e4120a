// Package id 提供记录与请求使用的 ID 生成器。
package id

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator 定义 ID 生成器接口。
type Generator interface {
	Generate() string
}

// ULIDGenerator 使用 ULID 算法生成时间可排序的唯一 ID。
//
// 格式: 01AN4Z07BY79KA1307SR9X4MV3
//   - 前 10 字符: 时间戳 (毫秒)
//   - 后 16 字符: 随机熵
type ULIDGenerator struct {
	entropy io.Reader
	mu      sync.Mutex
}

// NewULIDGenerator 创建新的 ULID 生成器。
// 单调熵源保证同一毫秒内生成的 ID 也有序。
func NewULIDGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Generate 实现 Generator 接口。
func (g *ULIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// GenerateN 生成 n 个 ULID。
func (g *ULIDGenerator) GenerateN(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = g.Generate()
	}
	return ids
}

// IsValidULID 检查字符串是否为合法的 ULID。
func IsValidULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// Time 返回 ULID 中编码的时间，非法 ULID 返回零值。
func Time(s string) time.Time {
	u, err := ulid.ParseStrict(s)
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}

var defaultGenerator = NewULIDGenerator()

// New 使用默认生成器生成一个新 ID。
func New() string {
	return defaultGenerator.Generate()
}
