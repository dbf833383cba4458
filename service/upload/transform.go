/*
 * @module service/upload/transform
 * @description 行转换脚本执行器，基于Yaegi解释器按脚本哈希缓存编译结果，供合作机构自定义字段映射
 * @architecture 解释器模式 - 动态脚本编译与缓存
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 脚本哈希 -> 查缓存 -> 未命中则编译 -> 执行Transform函数
 * @rules 脚本必须提供 Transform(record map[string]interface{}) (map[string]interface{}, error) 入口
 * @dependencies github.com/traefik/yaegi, crypto/sha1, sync
 * @refs parser.go
 */

package upload

import (
	"crypto/sha1"
	"fmt"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// ScriptTransformer 行转换脚本执行器，带编译缓存
type ScriptTransformer struct {
	mu    sync.RWMutex
	cache map[string]*compiledTransform
}

// compiledTransform 编译后的转换函数
type compiledTransform struct {
	fn       func(map[string]interface{}) (map[string]interface{}, error)
	compiled time.Time
	hash     string
}

// NewScriptTransformer 创建转换脚本执行器
func NewScriptTransformer() *ScriptTransformer {
	return &ScriptTransformer{
		cache: make(map[string]*compiledTransform),
	}
}

// Apply 对一行记录执行转换脚本
func (t *ScriptTransformer) Apply(script string, record map[string]interface{}) (map[string]interface{}, error) {
	// 使用脚本内容的哈希作为缓存key
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(script)))

	t.mu.RLock()
	compiled, ok := t.cache[hash]
	t.mu.RUnlock()

	if !ok {
		var err error
		compiled, err = t.compile(script, hash)
		if err != nil {
			return nil, fmt.Errorf("转换脚本编译失败: %v", err)
		}

		t.mu.Lock()
		t.cache[hash] = compiled
		t.mu.Unlock()
	}

	return compiled.fn(record)
}

// compile 编译脚本为可执行函数
func (t *ScriptTransformer) compile(script, hash string) (*compiledTransform, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("加载标准库失败: %w", err)
	}

	// 包装脚本：要求脚本必须实现一个 Transform 函数
	wrapped := fmt.Sprintf(`
package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// 必须提供一个 Transform 函数作为入口
%s
`, script)

	if _, err := i.Eval(wrapped); err != nil {
		return nil, fmt.Errorf("脚本编译失败: %w", err)
	}

	v, err := i.Eval("Transform")
	if err != nil {
		return nil, fmt.Errorf("脚本缺少 Transform 函数: %w", err)
	}

	fn, ok := v.Interface().(func(map[string]interface{}) (map[string]interface{}, error))
	if !ok {
		return nil, fmt.Errorf("Transform 函数签名必须是 func(map[string]interface{}) (map[string]interface{}, error)")
	}

	return &compiledTransform{
		fn:       fn,
		compiled: time.Now(),
		hash:     hash,
	}, nil
}

// Validate 验证脚本语法，用于保存合作机构配置前的快速校验
func (t *ScriptTransformer) Validate(script string) error {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("加载标准库符号失败: %v", err)
	}

	wrapped := fmt.Sprintf(`
package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

%s
`, script)

	if _, err := i.Eval(wrapped); err != nil {
		return fmt.Errorf("脚本语法错误: %v", err)
	}
	return nil
}
