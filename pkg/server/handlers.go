package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/theracowch/cowch/pkg/persona"
	"github.com/theracowch/cowch/pkg/profile"
)

type chatRequest struct {
	Message        string `json:"message"`
	SessionPhase   string `json:"sessionPhase"`
	CurrentPattern string `json:"currentPattern"`
}

type compressRequest struct {
	Prompt string `json:"prompt"`
}

type historyRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type imagineRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Store == nil || s.deps.Chat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
		return
	}
	if s.deps.Chat == nil || s.deps.Store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "chat is not configured"})
		return
	}

	ctx := c.Request.Context()
	user := userID(c)

	history := s.deps.Store.AddToHistory(ctx, user, profile.Message{Role: profile.RoleUser, Content: req.Message})
	prior := history
	if len(prior) > 0 {
		prior = prior[:len(prior)-1]
	}
	apiCtx := profile.BuildAPIContext(s.deps.Store.GetProfile(ctx, user), history)

	reply, err := s.deps.Chat.Reply(ctx, persona.ChatRequest{
		Message:        req.Message,
		SessionPhase:   req.SessionPhase,
		CurrentPattern: req.CurrentPattern,
		History:        profile.Messages(prior),
		Context:        &apiCtx,
	})
	if err != nil {
		if errors.Is(err, persona.ErrEmptyMessage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Message is required"})
			return
		}
		label, fallback := persona.FallbackFor(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": label, "fallback": fallback})
		return
	}

	s.deps.Store.AddToHistory(ctx, user, profile.Message{Role: profile.RoleAssistant, Content: reply.Response})
	s.maybeScheduleCompression(c, user)

	c.JSON(http.StatusOK, reply)
}

func (s *Server) handleCompressProfile(c *gin.Context) {
	var req compressRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required"})
		return
	}
	if s.deps.Summarizer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "summarizer is not configured"})
		return
	}
	compressed, err := s.deps.Summarizer.Summarize(c.Request.Context(), req.Prompt)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Compression failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"compressed": compressed})
}

func (s *Server) handleGetProfile(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Store.GetProfile(c.Request.Context(), userID(c)))
}

func (s *Server) handleForceCompress(c *gin.Context) {
	if s.deps.Compressor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "compression is not configured"})
		return
	}
	ctx := c.Request.Context()
	user := userID(c)
	p := s.deps.Compressor.CompressProfile(ctx, user, s.deps.Compressor.RecentWindow(ctx, user))
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleGetHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"history": s.deps.Store.GetFullHistory(c.Request.Context(), userID(c))})
}

func (s *Server) handleAppendHistory(c *gin.Context) {
	var req historyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role != profile.RoleUser && role != profile.RoleAssistant {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be user or assistant"})
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}

	user := userID(c)
	history := s.deps.Store.AddToHistory(c.Request.Context(), user, profile.Message{Role: role, Content: req.Content})
	due := s.maybeScheduleCompression(c, user)
	c.JSON(http.StatusCreated, gin.H{"history": history, "compressionScheduled": due})
}

func (s *Server) handleGetContext(c *gin.Context) {
	ctx := c.Request.Context()
	user := userID(c)
	c.JSON(http.StatusOK, profile.BuildAPIContext(s.deps.Store.GetProfile(ctx, user), s.deps.Store.GetFullHistory(ctx, user)))
}

func (s *Server) handleImagine(c *gin.Context) {
	var req imagineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if _, ok := profile.ImagineKey(req.Domain); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown IMAGINE domain"})
		return
	}
	ctx := c.Request.Context()
	user := userID(c)
	if !s.deps.Store.RecordImagineEngagement(ctx, user, req.Domain) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record engagement"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imagine": s.deps.Store.GetProfile(ctx, user).Imagine})
}

func (s *Server) handleClearData(c *gin.Context) {
	cleared := s.deps.Store.ClearAllData(c.Request.Context(), userID(c))
	c.JSON(http.StatusOK, gin.H{"cleared": cleared})
}

func (s *Server) maybeScheduleCompression(c *gin.Context, user string) bool {
	if s.deps.Compressor == nil {
		return false
	}
	p := s.deps.Store.GetProfile(c.Request.Context(), user)
	if !profile.NeedsCompression(p, s.deps.Compressor.Threshold()) {
		return false
	}
	s.compressInBackground(user)
	return true
}
