package api

import (
	"encoding/json"
	"net/http"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/notifications"
)

type SubscribePushRequest struct {
	FcmToken   string  `json:"fcm_token"`
	DeviceType string  `json:"device_type"`
	DeviceId   *string `json:"device_id"`
}

type UnsubscribePushRequest struct {
	FcmToken string `json:"fcm_token"`
}

type PushTokenResponse struct {
	Id         int     `json:"id"`
	Token      string  `json:"fcm_token"`
	DeviceType string  `json:"device_type"`
	DeviceId   *string `json:"device_id"`
}

type NotificationsResponse struct {
	Notifications []notifications.Card `json:"notifications"`
	UnreadCount   int                  `json:"unread_count"`
}

func (s *RelayApp) listNotifications(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	cards, err := s.cards.ListUnreadNotifications(r.Context(), p.UserId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	resp := NotificationsResponse{Notifications: cards}
	if resp.Notifications == nil {
		resp.Notifications = []notifications.Card{}
	}
	for _, c := range cards {
		resp.UnreadCount += c.UnreadCount
	}

	s.writeJson(w, http.StatusOK, resp)
}

func (s *RelayApp) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cards.MarkNotificationRead(r.Context(), p.UserId, r.PathValue("id")); err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *RelayApp) markChannelRead(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	channelId, ok := pathId(r)
	if !ok {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.cards.MarkAllReadForChannel(r.Context(), p.UserId, channelId); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *RelayApp) subscribePush(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SubscribePushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FcmToken == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.DeviceType == "" {
		req.DeviceType = "android"
	}

	tok, err := s.db.UpsertPushToken(r.Context(), database.UpsertPushTokenParams{
		UserId:     p.UserId,
		Token:      req.FcmToken,
		DeviceType: req.DeviceType,
		DeviceId:   req.DeviceId,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, PushTokenResponse{
		Id:         tok.Id,
		Token:      tok.Token,
		DeviceType: tok.DeviceType,
		DeviceId:   tok.DeviceId,
	})
}

func (s *RelayApp) unsubscribePush(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req UnsubscribePushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FcmToken == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.DeleteUserPushToken(r.Context(), p.UserId, req.FcmToken); err != nil {
		errResp := storeError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
