package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/chat-relay/internal/auth"
	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/events"
	"github.com/npezzotti/chat-relay/internal/server"
)

type CreateMessageRequest struct {
	ChannelId        int     `json:"channelId"`
	Content          string  `json:"content"`
	ReplyToId        *int    `json:"replyToId"`
	ThreadParentId   *int    `json:"threadParentId"`
	TopicId          *int    `json:"topicId"`
	AttachmentUrl    *string `json:"attachmentUrl"`
	AttachmentType   *string `json:"attachmentType"`
	AttachmentName   *string `json:"attachmentName"`
	MentionedUserIds []int   `json:"mentionedUserIds"`
	IsUrgent         bool    `json:"isUrgent"`
}

type UpdateMessageRequest struct {
	Content          *string `json:"content"`
	MentionedUserIds []int   `json:"mentionedUserIds"`
}

type VotePollRequest struct {
	OptionIds []int `json:"optionIds"`
}

type MessageResponse struct {
	Message events.Message `json:"message"`
}

type PollResponse struct {
	Poll *events.Poll `json:"poll"`
}

func (s *RelayApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *RelayApp) healthCheck(w http.ResponseWriter, _ *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func pathId(r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func (s *RelayApp) createMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.ChannelId <= 0 || (strings.TrimSpace(req.Content) == "" && req.AttachmentUrl == nil) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ch, err := s.access.CheckChannelAccess(r.Context(), req.ChannelId, p)
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	id, err := s.db.CreateMessage(r.Context(), database.CreateMessageParams{
		CompanyId:      ch.CompanyId,
		ChannelId:      ch.Id,
		UserId:         p.UserId,
		Content:        req.Content,
		ReplyToId:      req.ReplyToId,
		ThreadParentId: req.ThreadParentId,
		TopicId:        req.TopicId,
		AttachmentUrl:  req.AttachmentUrl,
		AttachmentType: req.AttachmentType,
		AttachmentName: req.AttachmentName,
		Mentions:       req.MentionedUserIds,
		IsUrgent:       req.IsUrgent,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.db.GetMessage(r.Context(), id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.broadcaster.Emit(events.MessageSent{Message: msg, MemberIds: ch.MemberIds})

	s.writeJson(w, http.StatusCreated, MessageResponse{Message: events.NewMessage(msg)})
}

func (s *RelayApp) ownedMessage(r *http.Request, p auth.Principal) (database.Message, *ApiError) {
	id, ok := pathId(r)
	if !ok {
		return database.Message{}, NewBadRequestError()
	}

	msg, err := s.db.GetMessage(r.Context(), id)
	if err != nil {
		return database.Message{}, storeError(err)
	}

	if msg.UserId != p.UserId {
		return database.Message{}, NewForbiddenError()
	}

	return msg, nil
}

func (s *RelayApp) updateMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UpdateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Content == nil && req.MentionedUserIds == nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, errResp := s.ownedMessage(r, p)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.UpdateMessage(r.Context(), database.UpdateMessageParams{
		Id:       msg.Id,
		Content:  req.Content,
		Mentions: req.MentionedUserIds,
	}); err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.db.GetMessage(r.Context(), msg.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.broadcaster.Emit(events.MessageUpdated{Message: updated})

	s.writeJson(w, http.StatusOK, MessageResponse{Message: events.NewMessage(updated)})
}

func (s *RelayApp) deleteMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, errResp := s.ownedMessage(r, p)
	if errResp != nil {
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteMessage(r.Context(), msg.Id); err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.broadcaster.Emit(events.MessageDeleted{
		MessageId: msg.Id,
		ChannelId: msg.ChannelId,
		UserId:    p.UserId,
	})

	w.WriteHeader(http.StatusNoContent)
}

func (s *RelayApp) votePoll(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	pollId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req VotePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.OptionIds) == 0 {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	poll, err := s.db.GetPoll(r.Context(), pollId)
	if err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if _, err := s.access.CheckChannelAccess(r.Context(), poll.ChannelId, p); err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !validVote(poll, req.OptionIds) {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.VotePoll(r.Context(), poll.Id, p.UserId, req.OptionIds); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	updated, err := s.db.GetPoll(r.Context(), poll.Id)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.broadcaster.Emit(events.PollUpdated{Poll: updated, ChannelId: updated.ChannelId, UserId: p.UserId})

	s.writeJson(w, http.StatusOK, PollResponse{Poll: events.NewPoll(updated)})
}

func validVote(poll database.Poll, optionIds []int) bool {
	if poll.IsClosed {
		return false
	}
	if !poll.AllowMultipleSelection && len(optionIds) > 1 {
		return false
	}

	for _, id := range optionIds {
		if !slices.ContainsFunc(poll.Options, func(o database.PollOption) bool { return o.Id == id }) {
			return false
		}
	}
	return true
}

func (s *RelayApp) serveWs(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client, err := server.NewClient(p, conn, s.cs, s.log)
	if err != nil {
		s.log.Println("new client:", err)
		conn.Close()
		return
	}

	if err := s.cs.RegisterClient(client); err != nil {
		s.log.Println("register client:", err)
		conn.Close()
		return
	}

	go client.Write()
	go client.Read()
}
