package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	"clients-admin/internal/shared/model"
	"clients-admin/internal/shared/objstore"
	"clients-admin/internal/shared/upload"
)

// presignExpiry 下载跳转链接有效期
const presignExpiry = 15 * time.Minute

// uploadedFileInfo 上传结果条目
type uploadedFileInfo struct {
	FileID       string `json:"fileId"`
	OriginalName string `json:"originalName"`
	FileSize     int64  `json:"fileSize"`
	FileType     string `json:"fileType"`
}

// handleUpload POST /client/{id}/upload
//
// multipart 字段 files，单次最多 5 个。逐个校验、扫描、落存储，
// 全部落盘后一次性追加文件记录；任何一步失败则整个请求失败，
// 已落存储的对象回滚删除。
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(upload.MaxFiles*upload.MaxFileSize + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form", "VALIDATION_ERROR")
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		writeError(w, http.StatusBadRequest, "At least one file is required", "FILE_REQUIRED")
		return
	}

	headers := r.MultipartForm.File["files"]
	if err := upload.CheckCount(len(headers)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "TOO_MANY_FILES")
		return
	}

	var storedKeys []string
	rollback := func() {
		for _, key := range storedKeys {
			if err := h.files.Delete(r.Context(), key); err != nil {
				log.Printf("[client.handleUpload] rollback %s error: %v", key, err)
			}
		}
	}

	var records []model.UploadedFile
	for _, header := range headers {
		record, err := h.storeOne(r, c.ClientID, header)
		if err != nil {
			rollback()
			var ve *uploadError
			if errors.As(err, &ve) {
				writeError(w, http.StatusBadRequest, ve.message, ve.code)
				return
			}
			log.Printf("[client.handleUpload] store %s error: %v", header.Filename, err)
			writeError(w, http.StatusInternalServerError, "Failed to store file", "STORAGE_ERROR")
			return
		}
		storedKeys = append(storedKeys, record.FileName)
		records = append(records, *record)
	}

	// 整批一次写入：失败时不会留下指向已回滚对象的文件记录
	if err := h.store.AppendUploadedFiles(r.Context(), c.ClientID, records); err != nil {
		rollback()
		log.Printf("[client.handleUpload] append error: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to record files", "SERVER_ERROR")
		return
	}

	results := make([]uploadedFileInfo, 0, len(records))
	for _, record := range records {
		results = append(results, uploadedFileInfo{
			FileID:       record.ID,
			OriginalName: record.OriginalName,
			FileSize:     record.FileSize,
			FileType:     record.FileType,
		})
		h.m.FilesUploaded.WithLabelValues("client").Inc()
	}

	h.appendLog(r, c.ClientID, model.LogSuccess,
		fmt.Sprintf("Uploaded %d file(s)", len(results)), "")

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"files":   results,
	})
}

// uploadError 携带对外错误码的文件校验错误
type uploadError struct {
	message string
	code    string
}

func (e *uploadError) Error() string { return e.message }

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

// storeOne 校验并保存单个文件，返回待写入文档的记录
func (h *Handler) storeOne(r *http.Request, clientID string, header *multipart.FileHeader) (*model.UploadedFile, error) {
	contentType := header.Header.Get("Content-Type")
	if err := upload.CheckFile(header.Filename, contentType, header.Size); err != nil {
		return nil, &uploadError{message: err.Error(), code: uploadErrorCode(err)}
	}

	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, upload.MaxFileSize))
	if err != nil {
		return nil, err
	}
	if upload.NeedsScan(contentType) {
		if err := upload.ScanContent(data); err != nil {
			return nil, &uploadError{message: err.Error(), code: uploadErrorCode(err)}
		}
	}

	key := upload.StorageKey(clientID, header.Filename)
	if err := h.files.Upload(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return nil, err
	}

	return &model.UploadedFile{
		ID:             model.NewFileID(),
		FileName:       key,
		OriginalName:   header.Filename,
		FileSize:       int64(len(data)),
		FileType:       contentType,
		UploadDate:     time.Now(),
		Status:         model.FileUploaded,
		Category:       model.CategoryData,
		Source:         model.SourceClient,
		StorageBackend: model.StorageBackend(h.files.Backend()),
	}, nil
}

// handleListFiles GET /client/{id}/files
func (h *Handler) handleListFiles(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"files":   c.UploadedFiles,
		"total":   len(c.UploadedFiles),
	})
}

// handleDownloadFile GET /client/{id}/files/{fileId}/download
//
// MinIO 后端签发预签名链接后 302 跳转，本地后端直接流式输出。
func (h *Handler) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	c, ok := clientFrom(w, r)
	if !ok {
		return
	}

	f := c.FileByID(r.PathValue("fileId"))
	if f == nil {
		writeError(w, http.StatusNotFound, "File not found", "FILE_NOT_FOUND")
		return
	}

	url, err := h.files.PresignedURL(r.Context(), f.FileName, f.OriginalName, presignExpiry)
	switch {
	case err == nil:
		h.recordDownload(r, c.ClientID, f.ID)
		http.Redirect(w, r, url, http.StatusFound)
		return
	case errors.Is(err, objstore.ErrPresignUnsupported):
		// 本地存储，直接流式输出
	default:
		log.Printf("[client.handleDownloadFile] presign %s error: %v", f.FileName, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate download link", "STORAGE_ERROR")
		return
	}

	rc, err := h.files.Open(r.Context(), f.FileName)
	if err != nil {
		if errors.Is(err, objstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "File content is missing from storage", "FILE_MISSING")
			return
		}
		log.Printf("[client.handleDownloadFile] open %s error: %v", f.FileName, err)
		writeError(w, http.StatusInternalServerError, "Failed to open file", "STORAGE_ERROR")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", f.FileType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.OriginalName))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", f.FileSize))

	h.recordDownload(r, c.ClientID, f.ID)
	if _, err := io.Copy(w, rc); err != nil {
		log.Printf("[client.handleDownloadFile] stream %s error: %v", f.FileName, err)
	}
}

// recordDownload 下载计数，失败只记日志
func (h *Handler) recordDownload(r *http.Request, clientID, fileID string) {
	if err := h.store.RecordFileDownload(r.Context(), clientID, fileID, time.Now()); err != nil {
		log.Printf("[client.recordDownload] %s/%s error: %v", clientID, fileID, err)
	}
	h.m.FileDownloads.Inc()
}
