package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/4xmen/wasteless/internal/chat"
)

type ChatHandler struct {
	chat *chat.Service
}

func NewChatHandler(chatSvc *chat.Service) *ChatHandler {
	return &ChatHandler{chat: chatSvc}
}

type SendMessageRequest struct {
	ReceiverID  string `json:"receiverId" binding:"required"`
	FoodPostID  string `json:"foodPostId" binding:"required"`
	Message     string `json:"message" binding:"required"`
	MessageType string `json:"messageType"`
}

type threadQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1,max=1000000"`
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, bindError(err))
		return
	}

	msg, err := h.chat.Send(c.Request.Context(), currentUserID(c), chat.SendInput{
		ReceiverID:  req.ReceiverID,
		FoodPostID:  req.FoodPostID,
		Message:     req.Message,
		MessageType: req.MessageType,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Thread returns one page of the conversation, oldest first, and marks the
// messages sent to the caller as read.
func (h *ChatHandler) Thread(c *gin.Context) {
	var q threadQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, bindError(err))
		return
	}

	page, err := h.chat.Thread(c.Request.Context(), currentUserID(c), c.Param("foodPostId"), c.Param("otherUserId"), q.Page, q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *ChatHandler) Conversations(c *gin.Context) {
	convs, err := h.chat.Conversations(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	n, err := h.chat.MarkRead(c.Request.Context(), currentUserID(c), c.Param("foodPostId"), c.Param("senderId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Messages marked as read", "modifiedCount": n})
}

func (h *ChatHandler) Unread(c *gin.Context) {
	n, err := h.chat.UnreadCount(c.Request.Context(), currentUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": n})
}

func (h *ChatHandler) Delete(c *gin.Context) {
	if err := h.chat.Delete(c.Request.Context(), currentUserID(c), c.Param("messageId")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}
