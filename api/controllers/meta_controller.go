package controllers

import (
	"donation-service/service/meta"
	"net/http"

	"github.com/go-chi/render"
)

type MetaController struct {
}

func NewMetaController() *MetaController {
	return &MetaController{}
}

// @Summary 获取所有记录类型元数据
// @Description 获取支持的上传记录类型及其重复判定关键字段
// @Tags 元数据
// @Produce json
// @Success 200 {object} APIResponse{data=[]meta.RecordKindDefinition}
// @Failure 500 {object} APIResponse
// @Router /meta/record-kinds [get]
func (c *MetaController) GetRecordKinds(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SuccessResponse("获取记录类型元数据成功", meta.RecordKinds))
}

// @Summary 获取所有重复处理动作元数据
// @Description 获取重复记录支持的处理动作定义
// @Tags 元数据
// @Produce json
// @Success 200 {object} APIResponse{data=[]meta.DuplicateActionDefinition}
// @Failure 500 {object} APIResponse
// @Router /meta/duplicate-actions [get]
func (c *MetaController) GetDuplicateActions(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SuccessResponse("获取重复处理动作元数据成功", meta.DuplicateActions))
}

// @Summary 获取所有上传条目状态元数据
// @Description 获取上传条目的状态定义及终态标记
// @Tags 元数据
// @Produce json
// @Success 200 {object} APIResponse{data=[]meta.EntryStatusDefinition}
// @Failure 500 {object} APIResponse
// @Router /meta/entry-statuses [get]
func (c *MetaController) GetEntryStatuses(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, SuccessResponse("获取上传条目状态元数据成功", meta.EntryStatuses))
}
