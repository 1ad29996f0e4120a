package model

import (
	"database/sql/driver"
	"fmt"

	"github.com/bytedance/sonic"
)

// JSONMap 以 JSON 文本形式持久化的元数据。
type JSONMap map[string]any

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := sonic.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src any) error {
	raw, err := scanBytes(src)
	if err != nil || len(raw) == 0 {
		*m = JSONMap{}
		return err
	}
	out := JSONMap{}
	if err := sonic.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("解析元数据失败: %w", err)
	}
	*m = out
	return nil
}

// Clone 返回浅拷贝。
func (m JSONMap) Clone() JSONMap {
	out := make(JSONMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RAGMetadata 记录一次回答所走的流程。
type RAGMetadata struct {
	Approach      string  `json:"approach"`
	ChunksUsed    int     `json:"chunks_used"`
	MaxSimilarity float64 `json:"max_similarity"`
	Language      string  `json:"language"`
	Reason        string  `json:"reason,omitempty"`
}

// Value implements driver.Valuer.
func (r RAGMetadata) Value() (driver.Value, error) {
	b, err := sonic.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (r *RAGMetadata) Scan(src any) error {
	raw, err := scanBytes(src)
	if err != nil || len(raw) == 0 {
		return err
	}
	return sonic.Unmarshal(raw, r)
}

func scanBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("不支持的列类型 %T", src)
	}
}
