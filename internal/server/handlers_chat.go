package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"neurogpt/backend/internal/account"
	"neurogpt/backend/internal/ai"
	"neurogpt/backend/internal/dialogue"
	"neurogpt/backend/internal/knowledge"
)

const (
	loginRequiredResponse = "⚠️ Login required."
	userNotFoundResponse  = "⚠️ User not found."

	shortReplySystemPrompt = "Reply briefly (1–2 lines) as a motivational mindset assistant."
	shortReplyMaxTokens    = 150
	shortReplyError        = "⚠️ Error occurred while replying."
)

type chatRequest struct {
	Title string `json:"title"`
}

// getReply is the buffered resolution endpoint: quota gate first, then the
// full resolver pipeline. It always answers 200 with one outcome body.
func (a *App) getReply(c *gin.Context) {
	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}

	user, err := a.userFromBearer(c)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"bot_response": loginRequiredResponse, "user_message": ""})
		return
	}

	allowed, err := a.gate.Admit(c.Request.Context(), user.ID)
	if errors.Is(err, account.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"bot_response": userNotFoundResponse, "user_message": ""})
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to check message quota")
		return
	}
	if !allowed {
		c.JSON(http.StatusOK, gin.H{
			"limit_reached": true,
			"bot_response":  account.LimitResponse,
		})
		return
	}

	outcome := a.resolver.Resolve(c.Request.Context(), payload.Title, a.contexts.Session(user.ID))
	if outcome.Kind == dialogue.OutcomeQuiz {
		c.JSON(http.StatusOK, gin.H{"type": "quiz"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_message": outcome.UserMessage,
		"bot_response": outcome.BotResponse,
	})
}

// streamReply forwards generated fragments as server-sent events. It goes
// straight to the streaming fallback; deterministic stages only apply to the
// buffered endpoint.
func (a *App) streamReply(c *gin.Context) {
	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	// The request context is cancelled on client disconnect, which aborts
	// the upstream call and ends the fragment channel.
	fragments := a.ai.Stream(c.Request.Context(), ai.Request{
		SystemPrompt: dialogue.SystemPrompt,
		UserPrompt:   strings.TrimSpace(payload.Title),
		MaxTokens:    a.cfg.AIMaxOutputTokens,
		Temperature:  a.cfg.AITemperature,
	})
	c.Stream(func(w io.Writer) bool {
		fragment, ok := <-fragments
		if !ok {
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", fragment)
		return true
	})
}

func (a *App) shortReply(c *gin.Context) {
	var payload chatRequest
	if !mustJSON(c, &payload) {
		return
	}

	answer, err := a.ai.Complete(c.Request.Context(), ai.Request{
		SystemPrompt: shortReplySystemPrompt,
		UserPrompt:   strings.TrimSpace(payload.Title),
		MaxTokens:    shortReplyMaxTokens,
		Temperature:  a.cfg.AITemperature,
	})
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"reply": shortReplyError})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": answer})
}

func (a *App) getPrompts(c *gin.Context) {
	prompts := a.kb.Prompts
	if prompts == nil {
		prompts = []knowledge.PromptEntry{}
	}
	c.JSON(http.StatusOK, prompts)
}

func (a *App) getQuiz(c *gin.Context) {
	c.Data(http.StatusOK, "application/json; charset=utf-8", a.kb.QuizPayload())
}
