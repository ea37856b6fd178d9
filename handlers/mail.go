package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mailbridge/mailbridge/internal/graph"
	"github.com/mailbridge/mailbridge/internal/scheduler"
	"github.com/mailbridge/mailbridge/internal/tokens"
	"github.com/mailbridge/mailbridge/pkg/middleware"
)

// MailHandler sends mail through the Graph API, either immediately or as a
// deferred job.
type MailHandler struct {
	graph  *graph.Client
	tokens *tokens.Manager
	sched  *scheduler.Scheduler
}

func NewMailHandler(g *graph.Client, m *tokens.Manager, s *scheduler.Scheduler) *MailHandler {
	return &MailHandler{graph: g, tokens: m, sched: s}
}

func (h *MailHandler) Register(r *gin.Engine, requireAuth gin.HandlerFunc) {
	r.POST("/send-email", requireAuth, h.SendEmail)
}

type sendEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	SendAt  string `json:"send_at"` // optional, ISO-8601
}

// SendEmail handles POST /send-email. With send_at the message is handed to
// the scheduler and the caller only learns that scheduling succeeded; the
// eventual send outcome is terminal and not reported back.
func (h *MailHandler) SendEmail(c *gin.Context) {
	var req sendEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.To == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing 'to'"})
		return
	}
	if req.Subject == "" {
		req.Subject = "(no subject)"
	}

	if req.SendAt != "" {
		runAt, err := time.Parse(time.RFC3339, req.SendAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid send_at", "details": err.Error()})
			return
		}
		sess := middleware.SessionFrom(c)
		if sess == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized, please login via /login"})
			return
		}
		// Token material is captured now; the job owns an immutable copy.
		snap := sess.Snapshot()
		to, subject, body := req.To, req.Subject, req.Body
		jobID := h.sched.Schedule(runAt, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			token, err := h.tokens.SnapshotToken(ctx, snap)
			if err != nil {
				return fmt.Errorf("deferred send auth: %w", err)
			}
			return h.graph.SendMail(ctx, token, to, subject, body)
		})
		c.JSON(http.StatusOK, gin.H{"scheduled": true, "job_id": jobID, "run_at": runAt.UTC().Format(time.RFC3339)})
		return
	}

	token := middleware.TokenFrom(c)
	if err := h.graph.SendMail(c.Request.Context(), token, req.To, req.Subject, req.Body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "send failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": true})
}
