package admin

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"clients-admin/internal/apiserver/validate"
	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/objstore"
	"clients-admin/internal/shared/upload"
)

// presignExpiry 下载跳转链接有效期
const presignExpiry = 15 * time.Minute

// uploadErrorCode 上传策略错误到对外错误码的映射
func uploadErrorCode(err error) string {
	switch {
	case errors.Is(err, upload.ErrFileTooLarge):
		return "FILE_TOO_LARGE"
	case errors.Is(err, upload.ErrMaliciousContent):
		return "MALICIOUS_FILE"
	default:
		return "FILE_VALIDATION_ERROR"
	}
}

// handleSendFile POST /admin/send-file
//
// multipart 字段：clientId、category、message（可选）、file。
// 对象先落存储再写文档；文档写入失败时删除对象，避免孤儿文件。
func (h *Handler) handleSendFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(upload.MaxFileSize + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", "VALIDATION_ERROR")
		return
	}

	clientID := r.FormValue("clientId")
	category := r.FormValue("category")
	message := r.FormValue("message")
	if category == "" {
		category = string(model.CategoryDocument)
	}

	var errs validate.Errors
	if clientID == "" {
		errs.Add("clientId", "Client ID is required", "")
	}
	if !model.ValidFileCategory(category) {
		errs.Add("category", "Invalid file category", category)
	}
	if !errs.OK() {
		writeValidationErrors(w, errs)
		return
	}

	client, ok := h.lookupClient(w, r, clientID)
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File is required", "FILE_REQUIRED")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if err := upload.CheckFile(header.Filename, contentType, header.Size); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), uploadErrorCode(err))
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, upload.MaxFileSize))
	if err != nil {
		log.Printf("[admin.handleSendFile] read error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read file", "SERVER_ERROR")
		return
	}
	if upload.NeedsScan(contentType) {
		if err := upload.ScanContent(data); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), uploadErrorCode(err))
			return
		}
	}

	key := upload.StorageKey(client.ClientID, header.Filename)
	if err := h.files.Upload(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		log.Printf("[admin.handleSendFile] upload error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to store file", "STORAGE_ERROR")
		return
	}

	record := model.UploadedFile{
		ID:             model.NewFileID(),
		FileName:       key,
		OriginalName:   header.Filename,
		FileSize:       int64(len(data)),
		FileType:       contentType,
		UploadDate:     time.Now(),
		Status:         model.FileAdminSent,
		Category:       model.FileCategory(category),
		AdminMessage:   message,
		Source:         model.SourceAdmin,
		StorageBackend: model.StorageBackend(h.files.Backend()),
	}
	if err := h.store.AppendUploadedFile(r.Context(), client.ClientID, record); err != nil {
		// 回滚对象，避免存储里留下无主文件
		if derr := h.files.Delete(r.Context(), key); derr != nil {
			log.Printf("[admin.handleSendFile] orphan cleanup %s error: %v", key, derr)
		}
		log.Printf("[admin.handleSendFile] append error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to record file", "SERVER_ERROR")
		return
	}

	logMsg := fmt.Sprintf("Admin sent file: %s", header.Filename)
	if message != "" {
		logMsg = fmt.Sprintf("Admin sent file: %s - %s", header.Filename, message)
	}
	entry := model.ActivityLog{
		Type:      model.LogInfo,
		Message:   logMsg,
		Timestamp: time.Now(),
		Source:    model.SourceAdmin,
		FileInfo: &model.LogFileInfo{
			FileName:     key,
			OriginalName: header.Filename,
			Category:     category,
		},
	}
	if err := h.store.AppendActivityLog(r.Context(), client.ClientID, entry); err != nil {
		log.Printf("[admin.handleSendFile] append log error: %v", err)
	}
	h.m.FilesUploaded.WithLabelValues("admin").Inc()

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"fileId":       record.ID,
			"originalName": record.OriginalName,
			"fileSize":     record.FileSize,
			"category":     record.Category,
		},
	})
}

// handleDownloadFile GET /admin/download-file/{fileId}
func (h *Handler) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, r.PathValue("fileId"), false)
}

// handleViewFile GET /admin/view-file/{fileId}
func (h *Handler) handleViewFile(w http.ResponseWriter, r *http.Request) {
	h.serveFile(w, r, r.PathValue("fileId"), true)
}

// serveFile 输出文件内容：MinIO 后端签发预签名链接后 302 跳转，
// 本地后端直接流式输出。两种路径都记录一次下载。
func (h *Handler) serveFile(w http.ResponseWriter, r *http.Request, fileID string, inline bool) {
	client, err := h.store.GetClientByFileID(r.Context(), fileID)
	if err != nil {
		log.Printf("[admin.serveFile] lookup %s error: %v", fileID, err)
		writeError(w, http.StatusInternalServerError, "Failed to load file", "SERVER_ERROR")
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "File not found", "FILE_NOT_FOUND")
		return
	}
	f := client.FileByID(fileID)
	if f == nil {
		writeError(w, http.StatusNotFound, "File not found", "FILE_NOT_FOUND")
		return
	}

	attachName := f.OriginalName
	if inline {
		attachName = "" // 预览不强制下载
	}
	url, err := h.files.PresignedURL(r.Context(), f.FileName, attachName, presignExpiry)
	switch {
	case err == nil:
		h.recordDownload(r, client.ClientID, f.ID)
		http.Redirect(w, r, url, http.StatusFound)
		return
	case errors.Is(err, objstore.ErrPresignUnsupported):
		// 本地存储，直接流式输出
	default:
		log.Printf("[admin.serveFile] presign %s error: %v", f.FileName, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate download link", "STORAGE_ERROR")
		return
	}

	rc, err := h.files.Open(r.Context(), f.FileName)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "File content is missing from storage", "FILE_MISSING")
			return
		}
		log.Printf("[admin.serveFile] open %s error: %v", f.FileName, err)
		writeError(w, http.StatusInternalServerError, "Failed to open file", "STORAGE_ERROR")
		return
	}
	defer rc.Close()

	disposition := "attachment"
	if inline {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", f.FileType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, f.OriginalName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", f.FileSize))

	h.recordDownload(r, client.ClientID, f.ID)
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("[admin.serveFile] stream %s error: %v", f.FileName, err)
	}
}

// recordDownload 下载计数，失败只记日志
func (h *Handler) recordDownload(r *http.Request, clientID, fileID string) {
	if err := h.store.RecordFileDownload(r.Context(), clientID, fileID, time.Now()); err != nil {
		log.Printf("[admin.recordDownload] %s/%s error: %v", clientID, fileID, err)
	}
	h.m.FileDownloads.Inc()
}
