package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/events"
	"github.com/npezzotti/chat-relay/internal/notifications"
)

type CreateDirectMessageRequest struct {
	ToUserId       int     `json:"toUserId"`
	Content        string  `json:"content"`
	LocalId        *string `json:"localId"`
	ReplyToId      *int    `json:"replyToId"`
	AttachmentUrl  *string `json:"attachmentUrl"`
	AttachmentType *string `json:"attachmentType"`
	AttachmentName *string `json:"attachmentName"`
	IsUrgent       bool    `json:"isUrgent"`
}

type MarkReadRequest struct {
	FromUserId int `json:"fromUserId"`
}

type DirectMessageResponse struct {
	Message events.DirectMessage `json:"message"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

func (s *RelayApp) createDirectMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateDirectMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ToUserId <= 0 || req.ToUserId == p.UserId ||
		(strings.TrimSpace(req.Content) == "" && req.AttachmentUrl == nil) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	recipient, err := s.db.GetUserById(r.Context(), req.ToUserId)
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if s.scopeDMsByCompany && !p.IsAdmin() && recipient.CompanyId != p.CompanyId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := s.db.CreateDirectMessage(r.Context(), database.CreateDirectMessageParams{
		CompanyId:      p.CompanyId,
		FromUserId:     p.UserId,
		ToUserId:       recipient.Id,
		Content:        req.Content,
		LocalId:        req.LocalId,
		ReplyToId:      req.ReplyToId,
		AttachmentUrl:  req.AttachmentUrl,
		AttachmentType: req.AttachmentType,
		AttachmentName: req.AttachmentName,
		IsUrgent:       req.IsUrgent,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dm, err := s.db.GetDirectMessage(r.Context(), id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.broadcaster.Emit(events.DMSent{Message: dm})

	s.writeJson(w, http.StatusCreated, DirectMessageResponse{Message: events.NewDirectMessage(dm)})
}

func (s *RelayApp) deleteDirectMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dm, err := s.db.GetDirectMessage(r.Context(), id)
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if dm.FromUserId != p.UserId {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteDirectMessage(r.Context(), dm.Id); err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.broadcaster.Emit(events.DMDeleted{
		MessageId:  dm.Id,
		FromUserId: dm.FromUserId,
		ToUserId:   dm.ToUserId,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *RelayApp) markDirectMessagesRead(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FromUserId <= 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	n, err := s.db.MarkDirectMessagesRead(r.Context(), p.UserId, req.FromUserId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cards.MarkNotificationsRead(r.Context(), p.UserId, notifications.SenderGroup(req.FromUserId)); err != nil {
		s.log.Printf("mark dm card read: %v", err)
	}

	if n > 0 {
		s.broadcaster.Emit(events.DirectMessagesRead{UserId: p.UserId, FromUserId: req.FromUserId})
	}

	s.writeJson(w, http.StatusOK, MarkReadResponse{Updated: n})
}
