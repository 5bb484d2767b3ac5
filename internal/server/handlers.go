package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/alnah/go-chatmark/internal/chat"
	"github.com/alnah/go-chatmark/internal/dateutil"
	"github.com/alnah/go-chatmark/internal/store"
)

type renderRequest struct {
	Text   string `json:"text"`
	IsUser bool   `json:"isUser"`
}

type renderResponse struct {
	HTML string `json:"html"`
}

type askRequest struct {
	ConversationID string `json:"conversationId"`
	Query          string `json:"query"`
}

type askResponse struct {
	ConversationID string `json:"conversationId"`
	Title          string `json:"title"`
	HTML           string `json:"html"`
}

type conversationSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label"`
}

type renderedMessage struct {
	IsUser    bool      `json:"isUser"`
	HTML      string    `json:"html"`
	Timestamp time.Time `json:"timestamp"`
}

type conversationDetail struct {
	conversationSummary
	Messages []renderedMessage `json:"messages"`
}

func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, renderResponse{HTML: s.renderMessage(r.Context(), req.Text, req.IsUser)})
}

// ask sends a query, stores both messages and returns the rendered reply.
// A conversation is created when none is given and removed again if the
// first request fails.
func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, chat.ErrEmptyQuery.Error())
		return
	}

	ctx := r.Context()
	created := req.ConversationID == ""
	conv, err := s.conversation(req.ConversationID)
	if err != nil {
		s.fail(w, err)
		return
	}

	reply, err := s.chat.Send(ctx, conv.ID, req.Query)
	if err != nil {
		if created {
			if delErr := s.store.Delete(conv.ID); delErr != nil {
				s.logger.Warn("removing unused conversation", "id", conv.ID, "error", delErr)
			}
		}
		s.fail(w, err)
		return
	}

	if _, _, err := s.store.AppendMessage(conv.ID, req.Query, true); err != nil {
		s.fail(w, err)
		return
	}
	conv, _, err = s.store.AppendMessage(conv.ID, reply.Text, false)
	if err != nil {
		s.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{
		ConversationID: conv.ID,
		Title:          conv.Title,
		HTML:           s.renderer.Render(ctx, reply.Text),
	})
}

// conversation returns the stored conversation for id, creating one when id
// is empty. Context lost since the process started is restored from disk.
func (s *Server) conversation(id string) (store.Conversation, error) {
	if id == "" {
		return s.store.New("")
	}

	conv, err := s.store.Get(id)
	if err != nil {
		return store.Conversation{}, err
	}
	if !s.chat.Known(id) {
		s.chat.SetHistory(id, chatHistory(conv.Messages))
	}
	return conv, nil
}

func chatHistory(msgs []store.Message) []chat.Message {
	out := make([]chat.Message, 0, len(msgs))
	for _, m := range msgs {
		role := chat.RoleAssistant
		if m.IsUser {
			role = chat.RoleUser
		}
		out = append(out, chat.Message{Role: role, Content: m.Text})
	}
	return out
}

func (s *Server) testResponse(w http.ResponseWriter, r *http.Request) {
	reply := chat.TestResponse()
	writeJSON(w, http.StatusOK, askResponse{
		ConversationID: reply.ConversationID,
		Title:          "Formatting test",
		HTML:           s.renderer.Render(r.Context(), reply.Text),
	})
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.store.List()
	if err != nil {
		s.fail(w, err)
		return
	}

	now := s.now()
	out := make([]conversationSummary, 0, len(convs))
	for _, c := range convs {
		out = append(out, s.summary(c, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, err)
		return
	}

	detail := conversationDetail{
		conversationSummary: s.summary(conv, s.now()),
		Messages:            make([]renderedMessage, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		detail.Messages = append(detail.Messages, renderedMessage{
			IsUser:    m.IsUser,
			HTML:      s.renderMessage(r.Context(), m.Text, m.IsUser),
			Timestamp: m.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.Delete(id); err != nil {
		s.fail(w, err)
		return
	}
	s.chat.Forget(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) summary(c store.Conversation, now time.Time) conversationSummary {
	label, err := dateutil.HistoryLabel(c.Timestamp, now, s.dateFormat)
	if err != nil {
		label = c.Timestamp.Format(time.DateOnly)
	}
	return conversationSummary{ID: c.ID, Title: c.Title, Timestamp: c.Timestamp, Label: label}
}

func (s *Server) renderMessage(ctx context.Context, text string, isUser bool) string {
	if isUser {
		return s.renderer.RenderUser(text)
	}
	return s.renderer.Render(ctx, text)
}

// fail maps an error to an HTTP status and writes it as JSON.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrEmptyID), errors.Is(err, chat.ErrEmptyQuery):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrMissingCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrAPIStatus), errors.Is(err, chat.ErrEmptyResponse), errors.Is(err, chat.ErrResponseTooLarge):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, chat.ErrMissingURL):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
