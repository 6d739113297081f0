package handler

import (
	"net/http"
	"strconv"
	"strings"

	"mindspace/backend/internal/apperr"
	"mindspace/backend/internal/models"

	"github.com/gin-gonic/gin"
)

type sendMessageRequest struct {
	ReceiverID uint   `json:"receiverId" form:"receiverId"`
	Content    string `json:"content" form:"content"`
}

// SendMessage accepts JSON or multipart/form-data with files under "files".
func (h *Handler) SendMessage(c *gin.Context) {
	me := currentUser(c)

	var req sendMessageRequest
	var atts []models.Attachment
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			h.abortWithError(c, apperr.Invalid("invalid multipart form: %v", err))
			return
		}
		id, err := strconv.ParseUint(c.PostForm("receiverId"), 10, 64)
		if err != nil {
			h.abortWithError(c, apperr.Invalid("receiverId is required"))
			return
		}
		req.ReceiverID = uint(id)
		req.Content = c.PostForm("content")

		if files := form.File["files"]; len(files) > 0 {
			if h.Uploads == nil {
				h.abortWithError(c, apperr.Invalid("attachments are not accepted"))
				return
			}
			atts, err = h.Uploads.SaveAll(files)
			if err != nil {
				h.abortWithError(c, err)
				return
			}
		}
	} else if err := c.ShouldBindJSON(&req); err != nil {
		h.abortWithError(c, apperr.Invalid("invalid request body: %v", err))
		return
	}

	msg, err := h.Messages.Send(c.Request.Context(), me, models.SendMessage{
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		Attachments: atts,
	})
	if err != nil {
		if h.Uploads != nil {
			h.Uploads.Remove(atts)
		}
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) ListMessages(c *gin.Context) {
	msgs, err := h.Messages.ListMine(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Conversation returns both directions of the conversation with :userId and
// marks the caller's inbound messages read.
func (h *Handler) Conversation(c *gin.Context) {
	otherID, err := uintParam(c, "userId")
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	msgs, err := h.Messages.Conversation(c.Request.Context(), currentUser(c).ID, otherID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) Conversations(c *gin.Context) {
	summaries, err := h.Messages.Conversations(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (h *Handler) UnreadCount(c *gin.Context) {
	n, err := h.Messages.UnreadCount(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (h *Handler) UnreadBySender(c *gin.Context) {
	counts, err := h.Messages.UnreadBySender(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *Handler) Contacts(c *gin.Context) {
	users, err := h.Messages.Contacts(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) OnlineUsers(c *gin.Context) {
	online, err := h.Hub.OnlineUsers(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, online)
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	changed, err := h.Messages.MarkRead(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": changed})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	otherID, err := uintParam(c, "userId")
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	n, err := h.Messages.MarkAllRead(c.Request.Context(), currentUser(c).ID, otherID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	id, err := uintParam(c, "id")
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if err := h.Messages.Delete(c.Request.Context(), currentUser(c).ID, id); err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}
