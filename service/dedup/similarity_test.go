/*
 * @module service/dedup/similarity_test
 * @description 字符串相似度与归一化单元测试
 * @architecture 测试层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 测试准备 -> 相似度计算 -> 结果验证
 * @rules 覆盖归一化、编辑距离相似度与地址混合相似度的边界行为
 * @dependencies testing, stretchr/testify
 */

package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalize 测试字符串归一化
func TestNormalize(t *testing.T) {
	t.Run("转小写并去首尾空白", func(t *testing.T) {
		assert.Equal(t, "budi santoso", Normalize("  Budi Santoso  "))
	})

	t.Run("压缩内部连续空白", func(t *testing.T) {
		assert.Equal(t, "jl. merdeka no. 1", Normalize("Jl.  Merdeka\t No. 1"))
	})

	t.Run("空串保持为空", func(t *testing.T) {
		assert.Equal(t, "", Normalize("   "))
	})
}

// TestSimilarity 测试归一化编辑距离相似度
func TestSimilarity(t *testing.T) {
	t.Run("完全相同返回1", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("Budi Santoso", "Budi Santoso"))
	})

	t.Run("大小写与空白差异视为相同", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("BUDI  SANTOSO", "budi santoso"))
	})

	t.Run("双空视为完全相似", func(t *testing.T) {
		assert.Equal(t, 1.0, Similarity("", "  "))
	})

	t.Run("一方为空相似度为0", func(t *testing.T) {
		assert.Equal(t, 0.0, Similarity("budi", ""))
	})

	t.Run("单字符差异", func(t *testing.T) {
		// 归一化后长度15与14，编辑距离1
		score := Similarity("test duplikat 1", "test duplikat1")
		assert.InDelta(t, 1.0-1.0/15.0, score, 1e-9)
		assert.GreaterOrEqual(t, score, 0.8)
	})

	t.Run("完全不同的短串", func(t *testing.T) {
		score := Similarity("abc", "xyz")
		assert.Less(t, score, 0.5)
	})

	t.Run("相似度对称", func(t *testing.T) {
		a, b := "Siti Aminah", "Siti Aminahh"
		assert.InDelta(t, Similarity(a, b), Similarity(b, a), 1e-9)
	})
}

// TestAddressSimilarity 测试地址混合相似度
func TestAddressSimilarity(t *testing.T) {
	t.Run("相同地址返回1", func(t *testing.T) {
		addr := "Jl. Mawar No. 5, Bandung"
		assert.InDelta(t, 1.0, AddressSimilarity(addr, addr), 1e-9)
	})

	t.Run("词序不同时高于纯字符相似度", func(t *testing.T) {
		a := "Jl. Mawar No. 5 Bandung"
		b := "Bandung Jl. Mawar No. 5"
		assert.Greater(t, AddressSimilarity(a, b), Similarity(a, b))
	})

	t.Run("无有效关键词时退化为字符相似度", func(t *testing.T) {
		// 全部词长不足3个字符，走纯字符级路径
		a, b := "a b", "a c"
		assert.InDelta(t, Similarity(a, b), AddressSimilarity(a, b), 1e-9)
	})

	t.Run("无共享关键词得分显著降低", func(t *testing.T) {
		score := AddressSimilarity("Jl. Mawar Bandung", "Gang Melati Surabaya")
		assert.Less(t, score, 0.5)
	})
}
