/*
 * @module service/dedup/similarity
 * @description 字符串相似度计算，提供归一化编辑距离相似度与地址混合相似度
 * @architecture 工具函数模式 - 纯函数，无状态无IO
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 字符串归一化 -> 编辑距离计算 -> 相似度评分
 * @rules 归一化后相等的字符串相似度恒为1.0，空对空视为完全相似
 * @dependencies strings, unicode
 * @refs muzakki_detector.go, distribusi_detector.go
 */

package dedup

import (
	"strings"
	"unicode"
)

// 地址混合相似度的权重配比
const (
	addressTokenWeight = 0.6 // 关键词重合占比
	addressCharWeight  = 0.4 // 字符级相似度占比
)

// 参与地址关键词比较的最小词长（按字符数）
const minAddressTokenLen = 3

// Normalize 归一化字符串：转小写、去首尾空白、压缩内部连续空白
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastSpace {
				b.WriteRune(' ')
			}
			lastSpace = true
			continue
		}
		lastSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// Similarity 计算两个字符串的归一化编辑距离相似度，返回[0,1]
func Similarity(a, b string) float64 {
	na := Normalize(a)
	nb := Normalize(b)

	// 归一化后相等（包括双空）视为完全相似
	if na == nb {
		return 1.0
	}

	ra := []rune(na)
	rb := []rune(nb)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}

	distance := levenshteinDistance(ra, rb)
	return 1.0 - float64(distance)/float64(maxLen)
}

// AddressSimilarity 计算地址类字段的混合相似度：
// 关键词重合率（A中长度超过两个字符的词在B中逐词命中的比例）占60%，
// 字符级相似度占40%，使标点或词序不同但共享地名关键词的地址得分更高
func AddressSimilarity(a, b string) float64 {
	charScore := Similarity(a, b)

	tokensA := addressTokens(a)
	if len(tokensA) == 0 {
		// 无有效关键词时退化为纯字符级相似度
		return charScore
	}

	tokensB := make(map[string]bool)
	for _, token := range addressTokens(b) {
		tokensB[token] = true
	}

	matched := 0
	for _, token := range tokensA {
		if tokensB[token] {
			matched++
		}
	}
	tokenScore := float64(matched) / float64(len(tokensA))

	return addressTokenWeight*tokenScore + addressCharWeight*charScore
}

// addressTokens 提取归一化后长度达标的地址关键词
func addressTokens(s string) []string {
	var tokens []string
	for _, token := range strings.Fields(Normalize(s)) {
		if len([]rune(token)) >= minAddressTokenLen {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// levenshteinDistance 计算编辑距离（按rune计）
func levenshteinDistance(a, b []rune) int {
	lenA, lenB := len(a), len(b)
	if lenA == 0 {
		return lenB
	}
	if lenB == 0 {
		return lenA
	}

	// 滚动数组，只保留上一行
	prev := make([]int, lenB+1)
	curr := make([]int, lenB+1)
	for j := 0; j <= lenB; j++ {
		prev[j] = j
	}

	for i := 1; i <= lenA; i++ {
		curr[0] = i
		for j := 1; j <= lenB; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			curr[j] = minInt(
				prev[j]+1,      // 删除
				curr[j-1]+1,    // 插入
				prev[j-1]+cost, // 替换
			)
		}
		prev, curr = curr, prev
	}

	return prev[lenB]
}

// minInt 返回最小值
func minInt(a, b, c int) int {
	if a <= b && a <= c {
		return a
	}
	if b <= c {
		return b
	}
	return c
}
