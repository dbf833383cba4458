/*
 * @module service/meta/upload
 * @description 批量上传相关元数据定义，包括记录类型、匹配类型、重复处理动作、队列条目状态等常量
 * @architecture 元数据层
 * @documentReference ai_docs/bulk_upload_dedup_design.md
 * @stateFlow 静态元数据定义
 * @rules 提供标准化的上传与去重元数据定义，确保系统一致性
 * @dependencies 无
 * @refs service/models/upload.go, service/dedup
 */

package meta

// 记录类型常量
const (
	RecordKindMuzakki    = "muzakki"    // 捐赠人记录
	RecordKindDistribusi = "distribusi" // 分发记录
)

// 匹配类型常量，按规则强度排序
const (
	MatchTypeExact   = "exact"   // 精确匹配
	MatchTypeFuzzy   = "fuzzy"   // 模糊匹配
	MatchTypePartial = "partial" // 部分匹配
)

// 重复处理动作常量
const (
	DuplicateActionSkip   = "skip"   // 跳过重复记录
	DuplicateActionUpdate = "update" // 用新记录覆盖
	DuplicateActionMerge  = "merge"  // 合并非空字段
	DuplicateActionPrompt = "prompt" // 交由人工复核
)

// 上传队列条目状态常量
const (
	EntryStatusPending    = "pending"              // 待处理
	EntryStatusUploading  = "uploading"            // 解析中
	EntryStatusDetecting  = "detecting_duplicates" // 重复检测中
	EntryStatusReviewing  = "reviewing_duplicates" // 人工复核中
	EntryStatusProcessing = "processing"           // 结果落库中
	EntryStatusCompleted  = "completed"            // 已完成
	EntryStatusError      = "error"                // 失败
)

// 行级错误严重程度
const (
	RowErrorSeverityError   = "error"
	RowErrorSeverityWarning = "warning"
)

// RecordKindDefinition 记录类型定义
type RecordKindDefinition struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	KeyFields   []string `json:"key_fields"` // 参与重复判定的关键字段
}

// DuplicateActionDefinition 重复处理动作定义
type DuplicateActionDefinition struct {
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// EntryStatusDefinition 队列条目状态定义
type EntryStatusDefinition struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	IsTerminal bool   `json:"is_terminal"` // 终态条目不会再被队列处理
}

// RecordKinds 支持的记录类型
var RecordKinds = []RecordKindDefinition{
	{
		Code:        RecordKindMuzakki,
		Name:        "捐赠人记录",
		Description: "合作机构上传的捐赠人及捐赠明细",
		KeyFields:   []string{"nama_muzakki", "no_telepon", "jenis_hewan", "nilai_donasi"},
	},
	{
		Code:        RecordKindDistribusi,
		Name:        "分发记录",
		Description: "捐赠物资分发明细",
		KeyFields:   []string{"nama_penerima", "alamat_penerima", "tanggal_distribusi", "jenis_hewan"},
	},
}

// DuplicateActions 支持的重复处理动作
var DuplicateActions = []DuplicateActionDefinition{
	{Code: DuplicateActionSkip, Name: "跳过", Description: "丢弃新记录，保留已有记录"},
	{Code: DuplicateActionUpdate, Name: "覆盖", Description: "用新记录整体覆盖已有记录"},
	{Code: DuplicateActionMerge, Name: "合并", Description: "以已有记录为基础，叠加新记录的非空字段"},
	{Code: DuplicateActionPrompt, Name: "人工复核", Description: "暂不处理，交由操作员逐条决定"},
}

// EntryStatuses 队列条目状态
var EntryStatuses = []EntryStatusDefinition{
	{Code: EntryStatusPending, Name: "待处理", IsTerminal: false},
	{Code: EntryStatusUploading, Name: "解析中", IsTerminal: false},
	{Code: EntryStatusDetecting, Name: "重复检测中", IsTerminal: false},
	{Code: EntryStatusReviewing, Name: "人工复核中", IsTerminal: false},
	{Code: EntryStatusProcessing, Name: "结果落库中", IsTerminal: false},
	{Code: EntryStatusCompleted, Name: "已完成", IsTerminal: true},
	{Code: EntryStatusError, Name: "失败", IsTerminal: true},
}

// IsValidRecordKind 检查记录类型是否有效
func IsValidRecordKind(kind string) bool {
	for _, def := range RecordKinds {
		if def.Code == kind {
			return true
		}
	}
	return false
}

// IsValidDuplicateAction 检查重复处理动作是否有效
func IsValidDuplicateAction(action string) bool {
	for _, def := range DuplicateActions {
		if def.Code == action {
			return true
		}
	}
	return false
}

// IsResolvedDuplicateAction 检查动作是否为终局动作（复核决策不允许再次prompt）
func IsResolvedDuplicateAction(action string) bool {
	return action == DuplicateActionSkip ||
		action == DuplicateActionUpdate ||
		action == DuplicateActionMerge
}

// IsTerminalEntryStatus 检查条目状态是否为终态
func IsTerminalEntryStatus(status string) bool {
	for _, def := range EntryStatuses {
		if def.Code == status {
			return def.IsTerminal
		}
	}
	return false
}
