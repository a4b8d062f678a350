package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeXUI simulates a 3x-ui panel: cookie-session login and an inbound
// document whose clients live inside the JSON settings string.
type fakeXUI struct {
	mu         sync.Mutex
	loginCalls int
	sessions   map[string]bool
	settings   map[string]interface{}
	lastDoc    map[string]interface{}
	traffic    map[string][2]int64

	rejectNext bool
	failNext   bool
}

func newFakeXUI() *fakeXUI {
	return &fakeXUI{
		sessions: make(map[string]bool),
		settings: map[string]interface{}{
			"decryption": "none",
			"clients":    []inboundClient{},
		},
		traffic: make(map[string][2]int64),
	}
}

func (f *fakeXUI) clients() []inboundClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, _ := json.Marshal(f.settings["clients"])
	var out []inboundClient
	_ = json.Unmarshal(buf, &out)
	return out
}

func (f *fakeXUI) seedClient(c inboundClient) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.settings["clients"]
	buf, _ := json.Marshal(existing)
	var clients []inboundClient
	_ = json.Unmarshal(buf, &clients)
	f.settings["clients"] = append(clients, c)
}

func (f *fakeXUI) invalidateSessions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = make(map[string]bool)
}

func (f *fakeXUI) authed(r *http.Request) bool {
	cookie, err := r.Cookie("3x-ui")
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[cookie.Value]
}

func writeEnvelope(w http.ResponseWriter, success bool, msg string, obj interface{}) {
	body := map[string]interface{}{"success": success, "msg": msg, "obj": obj}
	_ = json.NewEncoder(w).Encode(body)
}

func (f *fakeXUI) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var creds map[string]string
		_ = json.NewDecoder(r.Body).Decode(&creds)
		if creds["username"] != "admin" || creds["password"] != "secret" {
			writeEnvelope(w, false, "invalid credentials", nil)
			return
		}
		f.mu.Lock()
		f.loginCalls++
		token := fmt.Sprintf("sess-%d", f.loginCalls)
		f.sessions[token] = true
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "3x-ui", Value: token, Path: "/"})
		writeEnvelope(w, true, "", nil)
	})

	mux.HandleFunc("/panel/api/inbounds/1", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		if f.failNext {
			f.failNext = false
			f.mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if f.rejectNext {
			f.rejectNext = false
			f.mu.Unlock()
			writeEnvelope(w, false, "database busy", nil)
			return
		}
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			settingsJSON, _ := json.Marshal(f.settings)
			doc := map[string]interface{}{
				"id":       1,
				"remark":   "edge inbound",
				"protocol": "vless",
				"settings": string(settingsJSON),
			}
			writeEnvelope(w, true, "", doc)
		case http.MethodPost:
			var doc map[string]interface{}
			_ = json.NewDecoder(r.Body).Decode(&doc)
			f.lastDoc = doc
			if s, ok := doc["settings"].(string); ok {
				settings := map[string]interface{}{}
				_ = json.Unmarshal([]byte(s), &settings)
				f.settings = settings
			}
			writeEnvelope(w, true, "", nil)
		}
	})

	mux.HandleFunc("/panel/api/inbounds/getClientTraffic/1/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := path.Base(r.URL.Path)
		f.mu.Lock()
		tr := f.traffic[id]
		f.mu.Unlock()
		writeEnvelope(w, true, "", map[string]int64{"up": tr[0], "down": tr[1]})
	})

	mux.HandleFunc("/panel/api/inbounds/getClientSubscribe/1/", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		id := path.Base(r.URL.Path)
		writeEnvelope(w, true, "", "https://panel.example.com/sub/"+id)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, f *fakeXUI) Client {
	t.Helper()
	srv := f.server(t)
	return NewXUIClient(srv.URL, "admin", "secret", 1, 5*time.Second)
}

func TestCreateAccountAddsClient(t *testing.T) {
	f := newFakeXUI()
	client := newTestClient(t, f)

	expire := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	res, err := client.CreateAccount(context.Background(), CreateAccountRequest{
		AccountID:    "acc-1",
		Email:        "u42-acc1",
		ExpireAt:     expire,
		TrafficLimit: 1 << 30,
	})
	require.NoError(t, err)

	assert.Equal(t, "acc-1", res.AccountID)
	assert.Equal(t, "https://panel.example.com/sub/acc-1", res.SubscriptionURI)
	assert.Equal(t, 1, f.loginCalls, "one login session serves all calls")

	clients := f.clients()
	require.Len(t, clients, 1)
	assert.Equal(t, "acc-1", clients[0].ID)
	assert.Equal(t, int64(1<<30), clients[0].TotalBytes)
	assert.Equal(t, expire.UnixMilli(), clients[0].ExpiryTime)
	assert.True(t, clients[0].Enable)
}

func TestCreateAccountIdempotent(t *testing.T) {
	f := newFakeXUI()
	f.seedClient(inboundClient{ID: "acc-1", Email: "old", Enable: true})
	client := newTestClient(t, f)

	_, err := client.CreateAccount(context.Background(), CreateAccountRequest{
		AccountID: "acc-1",
		Email:     "new",
	})
	require.NoError(t, err)
	assert.Len(t, f.clients(), 1, "repeat create must not duplicate the account")
}

func TestCreateAccountPreservesUnknownSettings(t *testing.T) {
	f := newFakeXUI()
	client := newTestClient(t, f)

	_, err := client.CreateAccount(context.Background(), CreateAccountRequest{AccountID: "acc-1"})
	require.NoError(t, err)

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, "none", f.settings["decryption"], "fields outside the client list survive the rewrite")
	assert.Equal(t, "edge inbound", f.lastDoc["remark"], "document fields outside settings survive the rewrite")
}

func TestRemoveAccount(t *testing.T) {
	f := newFakeXUI()
	f.seedClient(inboundClient{ID: "acc-1", Enable: true})
	f.seedClient(inboundClient{ID: "acc-2", Enable: true})
	client := newTestClient(t, f)

	require.NoError(t, client.RemoveAccount(context.Background(), "acc-1"))

	clients := f.clients()
	require.Len(t, clients, 1)
	assert.Equal(t, "acc-2", clients[0].ID)
}

func TestRemoveAccountAbsentIsSuccess(t *testing.T) {
	f := newFakeXUI()
	client := newTestClient(t, f)
	assert.NoError(t, client.RemoveAccount(context.Background(), "ghost"))
}

func TestReauthenticatesOnceOnStaleSession(t *testing.T) {
	f := newFakeXUI()
	f.seedClient(inboundClient{ID: "acc-1", Enable: true})
	client := newTestClient(t, f)

	// Prime a session, then invalidate it server-side.
	_, err := client.AccountStats(context.Background(), "acc-1")
	require.NoError(t, err)
	f.invalidateSessions()

	_, err = client.AccountStats(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.loginCalls)
}

func TestServerErrorMapsToUnavailable(t *testing.T) {
	f := newFakeXUI()
	client := newTestClient(t, f)

	f.failNext = true
	err := client.RemoveAccount(context.Background(), "acc-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestFailureEnvelopeMapsToRejected(t *testing.T) {
	f := newFakeXUI()
	client := newTestClient(t, f)

	f.rejectNext = true
	err := client.RemoveAccount(context.Background(), "acc-1")
	assert.ErrorIs(t, err, ErrRejected)
}

func TestAccountStats(t *testing.T) {
	f := newFakeXUI()
	expiry := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	f.seedClient(inboundClient{
		ID: "acc-1", Email: "u42-acc1", TotalBytes: 1 << 30, ExpiryTime: expiry, Enable: true,
	})
	f.traffic["acc-1"] = [2]int64{1000, 5000}
	client := newTestClient(t, f)

	stats, err := client.AccountStats(context.Background(), "acc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), stats.BytesUp)
	assert.Equal(t, int64(5000), stats.BytesDown)
	assert.Equal(t, int64(1<<30), stats.Limit)
	assert.Equal(t, time.UnixMilli(expiry), stats.ExpireAt)
	assert.True(t, stats.Enabled)
}

func TestAccountStatsUnknownAccount(t *testing.T) {
	f := newFakeXUI()
	client := newTestClient(t, f)

	_, err := client.AccountStats(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestUpdateAccountExpiry(t *testing.T) {
	f := newFakeXUI()
	f.seedClient(inboundClient{ID: "acc-1", Enable: true})
	client := newTestClient(t, f)

	newExpiry := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, client.UpdateAccountExpiry(context.Background(), "acc-1", newExpiry))

	clients := f.clients()
	require.Len(t, clients, 1)
	assert.Equal(t, newExpiry.UnixMilli(), clients[0].ExpiryTime)

	err := client.UpdateAccountExpiry(context.Background(), "ghost", newExpiry)
	assert.ErrorIs(t, err, ErrAccountNotFound)
}
