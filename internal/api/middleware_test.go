package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/npezzotti/chat-relay/internal/auth"
	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestErrorHandler_PanicRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	app := &RelayApp{
		log: testutil.TestLogger(t),
	}

	app.log.SetOutput(buf)

	// handler that panics
	panicHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errors.New("test panic"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(panicHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "close", rr.Header().Get("Connection"))
	assert.Contains(t, buf.String(), "panic: test panic")
}

func Test_errorHandler_NoPanic(t *testing.T) {
	app := &RelayApp{}

	// simple handler that does not panic
	called := false
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	handler := app.errorHandler(okHandler)
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.True(t, called, "expected handler to be called")
}

func Test_authMiddleware(t *testing.T) {
	db := &database.MockGoChatRepository{}
	buf := &bytes.Buffer{}
	logger := log.New(buf, "", 0)

	app := &RelayApp{
		log:      logger,
		resolver: auth.NewResolver(logger, testSigningKey, db),
	}

	var got auth.Principal
	tokenHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			return
		}
		got = p
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	signed, err := auth.IssueToken(testSigningKey, auth.Principal{UserId: 1, CompanyId: 2}, time.Hour)
	assert.NoError(t, err)

	sum := sha256.Sum256([]byte("secret"))
	db.On("GetPersonalAccessToken", mock.Anything, 5, hex.EncodeToString(sum[:])).
		Return(database.PersonalAccessToken{Id: 5, TokenableId: 9}, nil)
	db.On("GetUserById", mock.Anything, 9).Return(database.User{Id: 9, CompanyId: 3, Role: auth.RoleAdmin}, nil)

	tcases := []struct {
		name       string
		setup      func(r *http.Request)
		wantStatus int
		want       auth.Principal
	}{
		{
			name:       "signed token cookie",
			setup:      func(r *http.Request) { r.AddCookie(auth.NewTokenCookie(signed, time.Hour)) },
			wantStatus: http.StatusOK,
			want:       auth.Principal{UserId: 1, CompanyId: 2},
		},
		{
			name:       "signed token header",
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+signed) },
			wantStatus: http.StatusOK,
			want:       auth.Principal{UserId: 1, CompanyId: 2},
		},
		{
			name:       "opaque token query",
			setup:      func(r *http.Request) { r.URL.RawQuery = "token=5%7Csecret" },
			wantStatus: http.StatusOK,
			want:       auth.Principal{UserId: 9, CompanyId: 3, Role: auth.RoleAdmin},
		},
		{
			name:       "missing token",
			setup:      func(*http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "invalid token",
			setup: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: auth.TokenCookieKey, Value: "invalid-token"})
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			got = auth.Principal{}
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			tc.setup(req)

			app.authMiddleware(tokenHandler).ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, tc.want, got)
				assert.Equal(t, "no-store, no-cache, must-revalidate, private", rr.Header().Get("Cache-Control"))
			}
		})
	}

	assert.Contains(t, buf.String(), "resolve credential")
}

func Test_storeError(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, storeError(database.ErrNotFound).StatusCode)
	assert.Equal(t, http.StatusInternalServerError, storeError(context.DeadlineExceeded).StatusCode)
}
