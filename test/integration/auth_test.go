//go:build integration

package integration

import (
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatbot-auth/internal/service"
)

func TestBrowserSessionLifecycle(t *testing.T) {
	server := newServer(t, service.AuthOptions{})
	browser := newBrowser(t)
	email, name := uniqueIdentity()

	resp := postJSON(t, browser, server.URL+"/api/v1/auth/register",
		map[string]string{"email": email, "name": name, "password": "correct-horse-battery"}, false)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	me, err := browser.Get(server.URL + "/api/v1/auth/me")
	require.NoError(t, err)
	t.Cleanup(func() { _ = me.Body.Close() })
	require.Equal(t, http.StatusOK, me.StatusCode)

	resp = postJSON(t, browser, server.URL+"/api/v1/auth/refresh", map[string]string{}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, browser, server.URL+"/api/v1/auth/logout", map[string]string{}, false)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	me, err = browser.Get(server.URL + "/api/v1/auth/me")
	require.NoError(t, err)
	t.Cleanup(func() { _ = me.Body.Close() })
	assert.Equal(t, http.StatusUnauthorized, me.StatusCode)
}

func TestRegisterConflictAcrossRuns(t *testing.T) {
	server := newServer(t, service.AuthOptions{})
	email, name := uniqueIdentity()
	client := &http.Client{}

	payload := map[string]string{"email": email, "name": name, "password": "correct-horse-battery"}
	require.Equal(t, http.StatusCreated, postJSON(t, client, server.URL+"/api/v1/auth/register", payload, true).StatusCode)
	assert.Equal(t, http.StatusConflict, postJSON(t, client, server.URL+"/api/v1/auth/register", payload, true).StatusCode)
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	server := newServer(t, service.AuthOptions{})
	email, name := uniqueIdentity()
	client := &http.Client{}

	resp := postJSON(t, client, server.URL+"/api/v1/auth/register",
		map[string]string{"email": email, "name": name, "password": "correct-horse-battery"}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	refresh := decodeTokenPair(t, resp).Data.RefreshToken

	const workers = 16
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := postJSON(t, client, server.URL+"/api/v1/auth/refresh", map[string]string{"refresh_token": refresh}, true)
			if r.StatusCode == http.StatusOK {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestConcurrentRefreshKeepsWinnerWithDefaults(t *testing.T) {
	server := newServer(t, service.AuthOptions{RevokeOnReuse: true, RotationGrace: 2 * time.Second})
	email, name := uniqueIdentity()
	client := &http.Client{}

	resp := postJSON(t, client, server.URL+"/api/v1/auth/register",
		map[string]string{"email": email, "name": name, "password": "correct-horse-battery"}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	refresh := decodeTokenPair(t, resp).Data.RefreshToken

	const workers = 16
	var wg sync.WaitGroup
	winners := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := postJSON(t, client, server.URL+"/api/v1/auth/refresh", map[string]string{"refresh_token": refresh}, true)
			if r.StatusCode == http.StatusOK {
				winners <- decodeTokenPair(t, r).Data.RefreshToken
			}
		}()
	}
	wg.Wait()
	close(winners)

	require.Len(t, winners, 1)
	resp = postJSON(t, client, server.URL+"/api/v1/auth/refresh", map[string]string{"refresh_token": <-winners}, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReplayRevokesFamily(t *testing.T) {
	server := newServer(t, service.AuthOptions{RevokeOnReuse: true})
	email, name := uniqueIdentity()
	client := &http.Client{}

	resp := postJSON(t, client, server.URL+"/api/v1/auth/register",
		map[string]string{"email": email, "name": name, "password": "correct-horse-battery"}, true)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	original := decodeTokenPair(t, resp).Data.RefreshToken

	resp = postJSON(t, client, server.URL+"/api/v1/auth/refresh", map[string]string{"refresh_token": original}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decodeTokenPair(t, resp).Data.RefreshToken

	resp = postJSON(t, client, server.URL+"/api/v1/auth/refresh", map[string]string{"refresh_token": original}, true)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = postJSON(t, client, server.URL+"/api/v1/auth/refresh", map[string]string{"refresh_token": rotated}, true)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
