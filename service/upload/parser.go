/*
 * @module service/upload/parser
 * @description 上传文件解析器，将CSV字节流解析为表头命名的行映射，支持字符编码转换与行转换脚本
 * @architecture 适配器模式 - 外部文件格式到内部行结构的转换
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 编码解码 -> 表头归一化 -> 逐行读取 -> 可选脚本转换 -> 记录类型识别
 * @rules 表头行定义字段名；全空行跳过；管道对具体来源格式保持无感知
 * @dependencies encoding/csv, golang.org/x/text, github.com/spf13/cast
 * @refs service/dedup/types.go, transform.go
 */

package upload

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"donation-service/service/dedup"
	"donation-service/service/meta"
	"donation-service/service/models"

	"github.com/spf13/cast"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Parser 上传文件解析器
type Parser struct {
	transformer *ScriptTransformer
}

// NewParser 创建解析器
func NewParser() *Parser {
	return &Parser{
		transformer: NewScriptTransformer(),
	}
}

// Parse 解析上传文件内容，返回行列表与识别出的记录类型。
// config 支持 encoding（字符编码）与 transform_script（行转换脚本）
func (p *Parser) Parse(data []byte, config models.JSONB) ([]*dedup.UploadRow, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("文件内容为空")
	}

	// MQTT等通道直接投递JSON数组，文件上传走CSV
	if isJSONPayload(data, cast.ToString(config["format"])) {
		return p.parseJSON(data, config)
	}

	decoded, err := decodeCharset(data, cast.ToString(config["encoding"]))
	if err != nil {
		return nil, "", fmt.Errorf("字符编码转换失败: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = -1 // 允许行字段数不一致，缺失字段视为空
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, "", fmt.Errorf("读取表头失败: %w", err)
	}
	for i, header := range headers {
		headers[i] = normalizeHeader(header)
	}

	script := cast.ToString(config["transform_script"])

	var rows []*dedup.UploadRow
	rowIndex := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("读取第%d行失败: %w", rowIndex+1, err)
		}

		fields := make(map[string]interface{}, len(headers))
		empty := true
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(record[i])
			}
			if value != "" {
				empty = false
			}
			fields[header] = value
		}
		if empty {
			continue
		}

		// 合作机构自定义的行转换脚本，用于字段改名、单位换算等
		if script != "" {
			fields, err = p.transformer.Apply(script, fields)
			if err != nil {
				return nil, "", fmt.Errorf("第%d行转换脚本执行失败: %w", rowIndex+1, err)
			}
		}

		rows = append(rows, &dedup.UploadRow{Index: rowIndex, Fields: fields})
		rowIndex++
	}

	return rows, DetectRecordKind(headers), nil
}

// parseJSON 解析JSON数组负载，每个元素为一条字段映射记录
func (p *Parser) parseJSON(data []byte, config models.JSONB) ([]*dedup.UploadRow, string, error) {
	var rawRows []map[string]interface{}
	if err := json.Unmarshal(data, &rawRows); err != nil {
		return nil, "", fmt.Errorf("JSON负载解析失败: %w", err)
	}

	script := cast.ToString(config["transform_script"])
	keySet := make(map[string]bool)

	rows := make([]*dedup.UploadRow, 0, len(rawRows))
	for _, raw := range rawRows {
		fields := make(map[string]interface{}, len(raw))
		for k, v := range raw {
			key := normalizeHeader(k)
			if key == "" {
				continue
			}
			fields[key] = v
			keySet[key] = true
		}
		if len(fields) == 0 {
			continue
		}

		if script != "" {
			transformed, err := p.transformer.Apply(script, fields)
			if err != nil {
				return nil, "", fmt.Errorf("第%d行转换脚本执行失败: %w", len(rows)+1, err)
			}
			fields = transformed
		}

		rows = append(rows, &dedup.UploadRow{Index: len(rows), Fields: fields})
	}

	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	return rows, DetectRecordKind(keys), nil
}

// isJSONPayload 判断负载是否为JSON格式：显式声明或以数组起始
func isJSONPayload(data []byte, format string) bool {
	if strings.EqualFold(format, "json") {
		return true
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '['
}

// DetectRecordKind 根据表头猜测记录类型，无法识别时返回空串
func DetectRecordKind(headers []string) string {
	headerSet := make(map[string]bool, len(headers))
	for _, h := range headers {
		headerSet[h] = true
	}

	if headerSet["nama_muzakki"] || headerSet["nilai_donasi"] {
		return meta.RecordKindMuzakki
	}
	if headerSet["nama_penerima"] || headerSet["tanggal_distribusi"] {
		return meta.RecordKindDistribusi
	}
	return ""
}

// normalizeHeader 表头归一化：小写、去空白、空格转下划线
func normalizeHeader(header string) string {
	header = strings.ToLower(strings.TrimSpace(header))
	header = strings.ReplaceAll(header, " ", "_")
	return header
}

// decodeCharset 按配置的字符编码解码为UTF-8，默认视为UTF-8
func decodeCharset(data []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return data, nil
	case "windows-1252", "cp1252":
		return transformBytes(data, charmap.Windows1252)
	case "latin-1", "iso-8859-1":
		return transformBytes(data, charmap.ISO8859_1)
	default:
		return nil, fmt.Errorf("不支持的字符编码: %s", encoding)
	}
}

// transformBytes 执行字符集转换
func transformBytes(data []byte, cm *charmap.Charmap) ([]byte, error) {
	result, _, err := transform.Bytes(cm.NewDecoder(), data)
	return result, err
}
