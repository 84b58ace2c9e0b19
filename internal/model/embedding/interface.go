package embedding

import (
	"context"

	einoembed "github.com/cloudwego/eino/components/embedding"
)

// Embedder 向量化接口（与 eino embedding.Embedder 对齐）
type Embedder = einoembed.Embedder

// 编译期确认 OpenAIAdapter 满足 eino Embedder
var _ Embedder = (*OpenAIAdapter)(nil)

// Dimensioner 可报告向量维度的 Embedder
type Dimensioner interface {
	Dimension() int
}

// EmbedOne 对单条文本向量化的便捷函数
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float64, error) {
	vecs, err := e.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, nil
	}
	return vecs[0], nil
}
