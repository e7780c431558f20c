package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"telemed-chat/internal/blob"
	"telemed-chat/internal/chat"
	"telemed-chat/internal/middleware"
	"telemed-chat/internal/models"
	"telemed-chat/internal/observability"
	"telemed-chat/internal/store"
	"telemed-chat/internal/telemetry"
)

// MinSearchQueryLen is the minimum accepted search query length.
const MinSearchQueryLen = 2

// Zero modtime disables Last-Modified on blob downloads; links expire by
// signature, not cache headers.
var timeZero time.Time

// Extensions and MIME types accepted for upload. Both the file extension and
// the declared content type must be on the list.
var allowedExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".pdf": true, ".txt": true, ".doc": true, ".docx": true,
}

var allowedMIMETypes = map[string]bool{
	"image/jpeg": true, "image/png": true, "image/gif": true, "image/webp": true,
	"application/pdf": true, "text/plain": true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// ChatHandler serves the REST query surface over the message log.
type ChatHandler struct {
	store       store.MessageStore
	coord       *chat.Coordinator
	blobs       blob.Store
	audit       *telemetry.AuditEmitter
	maxPageSize int
	maxUpload   int64
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(messageStore store.MessageStore, coord *chat.Coordinator, blobs blob.Store, audit *telemetry.AuditEmitter, maxPageSize int, maxUpload int64) *ChatHandler {
	return &ChatHandler{
		store:       messageStore,
		coord:       coord,
		blobs:       blobs,
		audit:       audit,
		maxPageSize: maxPageSize,
		maxUpload:   maxUpload,
	}
}

// GetHistory returns up to limit messages in chronological order, cursored by
// lastMessageId.
func (h *ChatHandler) GetHistory(c *gin.Context) {
	roomID := c.Param("roomId")

	limit := h.maxPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	msgs, err := h.store.ListBefore(c.Request.Context(), roomID, c.Query("lastMessageId"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	// The page is fetched newest-first and reversed to chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	// A full page is treated as "more available". This over-reports when
	// exactly limit messages remained; kept for wire compatibility.
	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"hasMore":  len(msgs) == limit,
	})
}

// Search returns non-deleted messages whose text contains the query,
// case-insensitively. Linear scan over the room; adequate at prototype scale.
func (h *ChatHandler) Search(c *gin.Context) {
	roomID := c.Param("roomId")

	query := strings.TrimSpace(c.Query("query"))
	if len([]rune(query)) < MinSearchQueryLen {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must be at least 2 characters"})
		return
	}

	msgs, err := h.store.ListRoom(c.Request.Context(), roomID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search messages"})
		return
	}

	needle := strings.ToLower(query)
	matches := make([]models.Message, 0)
	for _, msg := range msgs {
		if msg.Deleted {
			continue
		}
		if strings.Contains(strings.ToLower(msg.Text), needle) {
			matches = append(matches, msg)
		}
	}

	c.JSON(http.StatusOK, gin.H{"messages": matches})
}

// Upload stores a file in the blob store and creates a file-kind message in
// the room.
func (h *ChatHandler) Upload(c *gin.Context) {
	roomID := c.Param("roomId")

	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or oversized file"})
		return
	}
	if fileHeader.Size > h.maxUpload {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file exceeds size limit"})
		return
	}
	if err := validateUpload(fileHeader); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read file"})
		return
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	stored, err := h.blobs.Save(c.Request.Context(), roomID, fileHeader.Filename, contentType, file, fileHeader.Size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store file"})
		return
	}

	msg, err := h.coord.SendFile(c.Request.Context(), identity, roomID, stored.URL, stored.Name, contentType, stored.Size)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
		return
	}

	userID := identity.UserID
	h.audit.Emit(c.Request.Context(), "INFO", "file uploaded "+stored.Key,
		observability.RequestIDFromRequest(c.Request), &userID)

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"url":     stored.URL,
		"message": msg,
	})
}

// ServeFile verifies the signed download URL and streams the blob.
func (h *ChatHandler) ServeFile(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("filekey"), "/")

	if !h.blobs.VerifyURL(key, c.Query("exp"), c.Query("sig")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid or expired link"})
		return
	}

	f, err := h.blobs.Open(key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "file not found"})
		return
	}
	defer f.Close()

	http.ServeContent(c.Writer, c.Request, filepath.Base(key), timeZero, f)
}

func validateUpload(fileHeader *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedExtensions[ext] {
		return errors.New("file type not allowed")
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !allowedMIMETypes[contentType] {
		return errors.New("content type not allowed")
	}
	return nil
}
