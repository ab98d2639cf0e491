// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"

	"ingest-scheduler/internal/analyzer"
	"ingest-scheduler/internal/jobtrack"
	"ingest-scheduler/internal/resource"
	"ingest-scheduler/internal/scheduler"
	"ingest-scheduler/internal/storage/object"
	"ingest-scheduler/pkg/errors"
	"ingest-scheduler/pkg/log"
	"ingest-scheduler/pkg/metrics"
)

// JobScheduler 调度器对外操作
type JobScheduler interface {
	Submit(ctx context.Context, units []analyzer.WorkUnit, pc scheduler.ProcessingConfig) (scheduler.SubmitResult, error)
	Cancel(ctx context.Context, jobID string) (bool, error)
	Status(ctx context.Context) (scheduler.Status, error)
	JobInfo(ctx context.Context, jobID string) (scheduler.JobDetail, error)
}

// ResourceView 资源监控的只读视图
type ResourceView interface {
	Current() (resource.SystemResources, bool)
	History() []resource.SystemResources
	LoadLevel() resource.LoadLevel
	Thresholds() resource.Thresholds
}

// Handler HTTP 处理器
type Handler struct {
	scheduler      JobScheduler
	monitor        ResourceView
	tracker        jobtrack.Tracker
	store          object.Store
	maxUploadBytes int64
	logger         *log.Logger
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(s JobScheduler, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Handler{scheduler: s, logger: logger}
}

// SetMonitor 设置资源监控（GET /api/system/resources）
func (h *Handler) SetMonitor(m ResourceView) {
	h.monitor = m
}

// SetTracker 设置 job 状态存储；调度器已淘汰的 job 从这里查询
func (h *Handler) SetTracker(t jobtrack.Tracker) {
	h.tracker = t
}

// SetObjectStore 设置上传暂存；未设置时不接受 multipart 提交
func (h *Handler) SetObjectStore(s object.Store) {
	h.store = s
}

// SetMaxUploadBytes 单个上传文件大小上限，<=0 不限制
func (h *Handler) SetMaxUploadBytes(n int64) {
	h.maxUploadBytes = n
}

// submitRequest POST /api/ingest/jobs 的 JSON 请求体
type submitRequest struct {
	Units      []analyzer.WorkUnit        `json:"units"`
	Processing scheduler.ProcessingConfig `json:"processing"`
}

// HealthCheck 健康检查；调度循环未运行时返回 503
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	body := map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
		"service":   "ingest-scheduler",
	}
	if h.scheduler != nil {
		if _, err := h.scheduler.Status(ctx); err != nil {
			body["status"] = "unavailable"
			body["error"] = err.Error()
			c.JSON(consts.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(consts.StatusOK, body)
}

// SubmitJobs 提交一组工作单元；JSON 体直接描述单元，multipart 上传的文件先写入暂存
// POST /api/ingest/jobs
func (h *Handler) SubmitJobs(ctx context.Context, c *app.RequestContext) {
	if strings.HasPrefix(string(c.ContentType()), "multipart/form-data") {
		h.submitMultipart(ctx, c)
		return
	}
	var req submitRequest
	if err := json.Unmarshal(c.Request.Body(), &req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("invalid request body: %v", err),
		})
		return
	}
	res, err := h.scheduler.Submit(ctx, req.Units, req.Processing)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusAccepted, res)
}

func (h *Handler) submitMultipart(ctx context.Context, c *app.RequestContext) {
	if h.store == nil {
		c.JSON(consts.StatusBadRequest, map[string]string{
			"error": "multipart upload is not enabled",
		})
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("invalid multipart form: %v", err),
		})
		return
	}
	files := formFiles(form)
	if len(files) == 0 {
		h.writeError(ctx, c, errors.ErrEmptySubmission)
		return
	}
	pc, err := processingFromForm(form.Value)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}

	prefix := "uploads/" + uuid.NewString()
	units := make([]analyzer.WorkUnit, 0, len(files))
	keys := make([]string, 0, len(files))
	for i, fh := range files {
		if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
			h.discard(ctx, keys)
			c.JSON(consts.StatusRequestEntityTooLarge, map[string]string{
				"error": fmt.Sprintf("file %s exceeds upload limit of %d bytes", fh.Filename, h.maxUploadBytes),
			})
			return
		}
		unit, key, err := h.spool(ctx, fmt.Sprintf("%s/%03d", prefix, i), fh)
		if err != nil {
			h.discard(ctx, keys)
			hlog.CtxErrorf(ctx, "spool upload %s failed: %v", fh.Filename, err)
			c.JSON(consts.StatusInternalServerError, map[string]string{
				"error": fmt.Sprintf("failed to store upload %s", fh.Filename),
			})
			return
		}
		units = append(units, unit)
		keys = append(keys, key)
	}

	res, err := h.scheduler.Submit(ctx, units, pc)
	if err != nil {
		h.discard(ctx, keys)
		h.writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusAccepted, res)
}

// spool 读取上传文件、探测类型后写入暂存，返回以暂存 URI 为 Source 的工作单元
func (h *Handler) spool(ctx context.Context, prefix string, fh *multipart.FileHeader) (analyzer.WorkUnit, string, error) {
	f, err := fh.Open()
	if err != nil {
		return analyzer.WorkUnit{}, "", err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return analyzer.WorkUnit{}, "", err
	}

	name := path.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "upload"
	}
	unit := analyzer.WorkUnit{
		Name:        name,
		SizeBytes:   int64(len(data)),
		ContentType: fh.Header.Get("Content-Type"),
	}
	unit, perr := analyzer.Probe(unit, data)
	if perr != nil {
		h.logger.Debug("上传内容探测失败，按声明类型分析", "name", name, "error", perr)
	}

	key := prefix + "-" + name
	meta := map[string]string{"name": name, "content_type": unit.ContentType}
	if err := h.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), meta); err != nil {
		return analyzer.WorkUnit{}, "", err
	}
	unit.Source = h.store.URI(key)
	return unit, key, nil
}

// discard 提交失败时清理已暂存的上传
func (h *Handler) discard(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := h.store.Delete(ctx, k); err != nil && !errors.Is(err, errors.ErrNotFound) {
			h.logger.Warn("清理暂存上传失败", "key", k, "error", err)
		}
	}
}

// formFiles 合并 files 与 file 两个字段的上传文件；结果是新切片，不改写表单自身的数组
func formFiles(form *multipart.Form) []*multipart.FileHeader {
	files := make([]*multipart.FileHeader, 0, len(form.File["files"])+len(form.File["file"]))
	files = append(files, form.File["files"]...)
	return append(files, form.File["file"]...)
}

// processingFromForm 从表单字段 mode、priority_boost、flag.<name> 构造处理配置
func processingFromForm(values map[string][]string) (scheduler.ProcessingConfig, error) {
	var pc scheduler.ProcessingConfig
	if v := values["mode"]; len(v) > 0 {
		pc.Mode = v[0]
	}
	if v := values["priority_boost"]; len(v) > 0 && v[0] != "" {
		n, err := strconv.Atoi(v[0])
		if err != nil {
			return pc, errors.Wrapf(errors.ErrInvalidArg, "priority_boost %q", v[0])
		}
		pc.PriorityBoost = n
	}
	for k, v := range values {
		name, ok := strings.CutPrefix(k, "flag.")
		if !ok || name == "" || len(v) == 0 {
			continue
		}
		if pc.Flags == nil {
			pc.Flags = make(map[string]string)
		}
		pc.Flags[name] = v[0]
	}
	return pc, nil
}

// GetQueue 队列快照
// GET /api/ingest/queue
func (h *Handler) GetQueue(ctx context.Context, c *app.RequestContext) {
	st, err := h.scheduler.Status(ctx)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	c.JSON(consts.StatusOK, st)
}

// GetJob 单个 job 状态；调度器已淘汰的 job 回退到状态存储
// GET /api/ingest/jobs/:id
func (h *Handler) GetJob(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	detail, err := h.scheduler.JobInfo(ctx, id)
	if err == nil {
		c.JSON(consts.StatusOK, detail)
		return
	}
	if errors.Is(err, errors.ErrUnknownJob) && h.tracker != nil {
		rec, terr := h.tracker.Get(ctx, id)
		if terr == nil {
			c.JSON(consts.StatusOK, rec)
			return
		}
		if !errors.Is(terr, errors.ErrNotFound) {
			err = terr
		}
	}
	h.writeError(ctx, c, err)
}

// CancelJob 取消 job
// DELETE /api/ingest/jobs/:id
func (h *Handler) CancelJob(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	ok, err := h.scheduler.Cancel(ctx, id)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	body := map[string]interface{}{
		"job_id":    id,
		"cancelled": ok,
	}
	if detail, err := h.scheduler.JobInfo(ctx, id); err == nil {
		body["state"] = detail.State
	}
	c.JSON(consts.StatusOK, body)
}

// GetSubmission 一次提交产生的全部 job 记录
// GET /api/ingest/submissions/:id
func (h *Handler) GetSubmission(ctx context.Context, c *app.RequestContext) {
	id := c.Param("id")
	if h.tracker == nil {
		c.JSON(consts.StatusNotFound, map[string]string{
			"error": "job tracking is not configured",
		})
		return
	}
	records, err := h.tracker.ListSubmission(ctx, id)
	if err != nil {
		h.writeError(ctx, c, err)
		return
	}
	if len(records) == 0 {
		h.writeError(ctx, c, errors.Wrapf(errors.ErrNotFound, "submission %s", id))
		return
	}
	c.JSON(consts.StatusOK, map[string]interface{}{
		"submission_id": id,
		"jobs":          records,
		"total":         len(records),
	})
}

// SystemResources 当前资源快照与历史；?limit=N 只返回最近 N 条历史
// GET /api/system/resources
func (h *Handler) SystemResources(ctx context.Context, c *app.RequestContext) {
	if h.monitor == nil {
		c.JSON(consts.StatusServiceUnavailable, map[string]string{
			"error": "resource monitor is not configured",
		})
		return
	}
	history := h.monitor.History()
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			c.JSON(consts.StatusBadRequest, map[string]string{
				"error": fmt.Sprintf("invalid limit %q", s),
			})
			return
		}
		if n < len(history) {
			history = history[len(history)-n:]
		}
	}
	body := map[string]interface{}{
		"load_level": h.monitor.LoadLevel().String(),
		"thresholds": h.monitor.Thresholds(),
		"history":    history,
	}
	if cur, ok := h.monitor.Current(); ok {
		body["current"] = cur
	}
	c.JSON(consts.StatusOK, body)
}

// Metrics Prometheus 文本格式指标
// GET /metrics
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	var buf bytes.Buffer
	if err := metrics.WritePrometheus(&buf); err != nil {
		hlog.CtxErrorf(ctx, "write metrics failed: %v", err)
		c.JSON(consts.StatusInternalServerError, map[string]string{
			"error": "failed to gather metrics",
		})
		return
	}
	c.Data(consts.StatusOK, "text/plain; version=0.0.4; charset=utf-8", buf.Bytes())
}

// writeError 按错误类别映射状态码
func (h *Handler) writeError(ctx context.Context, c *app.RequestContext, err error) {
	status := consts.StatusInternalServerError
	switch {
	case errors.Is(err, errors.ErrInvalidArg):
		status = consts.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		status = consts.StatusNotFound
	case errors.Is(err, errors.ErrJobFinished):
		status = consts.StatusConflict
	case errors.Is(err, errors.ErrSchedulerStopped):
		status = consts.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		status = consts.StatusServiceUnavailable
	}
	if status == consts.StatusInternalServerError {
		hlog.CtxErrorf(ctx, "request %s %s failed: %v", c.Method(), c.Path(), err)
	}
	c.JSON(status, map[string]string{
		"error": err.Error(),
	})
}
