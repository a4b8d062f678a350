package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"vpngrid/internal/pkg/httpclient"
)

// xuiClient talks to one 3x-ui style panel. The panel keeps accounts
// nested inside an inbound's JSON settings blob, so creating or removing
// an account is a read-modify-write of the whole inbound document.
type xuiClient struct {
	baseURL   string
	username  string
	password  string
	inboundID int
	client    *httpclient.Client

	mu     sync.Mutex
	authed bool
}

// NewXUIClient builds a panel client bound to one server's credentials.
// The session cookie obtained at login lives in the client's cookie jar
// and is reused until the panel invalidates it.
func NewXUIClient(baseURL, username, password string, inboundID int, timeout time.Duration) Client {
	if inboundID <= 0 {
		inboundID = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &xuiClient{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		username:  strings.TrimSpace(username),
		password:  password,
		inboundID: inboundID,
		client: httpclient.New().
			WithTimeout(timeout).
			WithInsecureSkipVerify().
			WithHeader("Accept", "application/json"),
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Obj     json.RawMessage `json:"obj"`
}

// inboundClient mirrors one entry of the settings "clients" array.
type inboundClient struct {
	ID         string `json:"id"`
	Flow       string `json:"flow"`
	Email      string `json:"email"`
	LimitIP    int    `json:"limitIp"`
	TotalBytes int64  `json:"totalGB"`
	ExpiryTime int64  `json:"expiryTime"` // unix millis, 0 = never
	Enable     bool   `json:"enable"`
	TgID       string `json:"tgId"`
	SubID      string `json:"subId"`
}

func (x *xuiClient) login(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	resp, err := x.client.Request().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"username": x.username, "password": x.password}).
		Post(x.baseURL + "/login")
	if err != nil {
		x.authed = false
		return fmt.Errorf("%w: login: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() >= 500 {
		x.authed = false
		return fmt.Errorf("%w: login HTTP %d", ErrUnavailable, resp.StatusCode())
	}
	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil || !out.Success {
		x.authed = false
		return fmt.Errorf("%w: login refused", ErrRejected)
	}
	x.authed = true
	return nil
}

func (x *xuiClient) ensureSession(ctx context.Context) error {
	x.mu.Lock()
	authed := x.authed
	x.mu.Unlock()
	if authed {
		return nil
	}
	return x.login(ctx)
}

// call performs one authenticated API request. A stale session gets
// exactly one re-login and one retry of the original request; persistent
// authorization failure surfaces as ErrRejected.
func (x *xuiClient) call(ctx context.Context, method, path string, body interface{}) (*apiResponse, error) {
	if err := x.ensureSession(ctx); err != nil {
		return nil, err
	}

	resp, err := x.request(ctx, method, path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		if err := x.login(ctx); err != nil {
			return nil, err
		}
		resp, err = x.request(ctx, method, path, body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return decodeResponse(resp)
}

func (x *xuiClient) request(ctx context.Context, method, path string, body interface{}) (*resty.Response, error) {
	req := x.client.Request().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}
	return req.Execute(method, x.baseURL+path)
}

func decodeResponse(resp *resty.Response) (*apiResponse, error) {
	switch {
	case resp.StatusCode() >= 500:
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode())
	case resp.StatusCode() >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", ErrRejected, resp.StatusCode())
	}
	var out apiResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrUnavailable, err)
	}
	if !out.Success {
		return nil, fmt.Errorf("%w: %s", ErrRejected, strings.TrimSpace(out.Msg))
	}
	return &out, nil
}

func (x *xuiClient) inboundPath() string {
	return fmt.Sprintf("/panel/api/inbounds/%d", x.inboundID)
}

// fetchInbound returns the raw inbound document and its parsed settings.
// The document is kept as-is apart from the client list so the
// read-modify-write never drops fields this client does not know about.
func (x *xuiClient) fetchInbound(ctx context.Context) (map[string]interface{}, map[string]interface{}, []inboundClient, error) {
	resp, err := x.call(ctx, http.MethodGet, x.inboundPath(), nil)
	if err != nil {
		return nil, nil, nil, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(resp.Obj, &doc); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: inbound parse: %v", ErrUnavailable, err)
	}

	settingsStr, _ := doc["settings"].(string)
	settings := map[string]interface{}{}
	if settingsStr != "" {
		if err := json.Unmarshal([]byte(settingsStr), &settings); err != nil {
			return nil, nil, nil, fmt.Errorf("%w: inbound settings parse: %v", ErrUnavailable, err)
		}
	}

	var clients []inboundClient
	if raw, ok := settings["clients"]; ok {
		buf, _ := json.Marshal(raw)
		if err := json.Unmarshal(buf, &clients); err != nil {
			return nil, nil, nil, fmt.Errorf("%w: client list parse: %v", ErrUnavailable, err)
		}
	}
	return doc, settings, clients, nil
}

func (x *xuiClient) writeInbound(ctx context.Context, doc, settings map[string]interface{}, clients []inboundClient) error {
	settings["clients"] = clients
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("%w: settings marshal: %v", ErrRejected, err)
	}
	doc["settings"] = string(settingsJSON)

	_, err = x.call(ctx, http.MethodPost, x.inboundPath(), doc)
	return err
}

func (x *xuiClient) CreateAccount(ctx context.Context, req CreateAccountRequest) (*ProvisionResult, error) {
	doc, settings, clients, err := x.fetchInbound(ctx)
	if err != nil {
		return nil, err
	}

	exists := false
	for _, c := range clients {
		if c.ID == req.AccountID {
			exists = true
			break
		}
	}

	expiry := int64(0)
	if !req.ExpireAt.IsZero() {
		expiry = req.ExpireAt.UnixMilli()
	}

	if !exists {
		clients = append(clients, inboundClient{
			ID:         req.AccountID,
			Email:      req.Email,
			TotalBytes: req.TrafficLimit,
			ExpiryTime: expiry,
			Enable:     true,
		})
		if err := x.writeInbound(ctx, doc, settings, clients); err != nil {
			return nil, err
		}
	}

	// The link is advisory; a failed fetch must not fail provisioning.
	uri, _ := x.SubscriptionURI(ctx, req.AccountID)

	return &ProvisionResult{
		AccountID:       req.AccountID,
		Email:           req.Email,
		ExpireAt:        req.ExpireAt,
		SubscriptionURI: uri,
	}, nil
}

func (x *xuiClient) RemoveAccount(ctx context.Context, accountID string) error {
	doc, settings, clients, err := x.fetchInbound(ctx)
	if err != nil {
		return err
	}

	kept := clients[:0]
	for _, c := range clients {
		if c.ID != accountID {
			kept = append(kept, c)
		}
	}
	if len(kept) == len(clients) {
		// Already absent: removal is idempotent.
		return nil
	}
	return x.writeInbound(ctx, doc, settings, kept)
}

func (x *xuiClient) AccountStats(ctx context.Context, accountID string) (*AccountStats, error) {
	_, _, clients, err := x.fetchInbound(ctx)
	if err != nil {
		return nil, err
	}

	var client *inboundClient
	for i := range clients {
		if clients[i].ID == accountID {
			client = &clients[i]
			break
		}
	}
	if client == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}

	path := fmt.Sprintf("/panel/api/inbounds/getClientTraffic/%d/%s", x.inboundID, accountID)
	resp, err := x.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var traffic struct {
		Up   int64 `json:"up"`
		Down int64 `json:"down"`
	}
	_ = json.Unmarshal(resp.Obj, &traffic)

	expireAt := time.Time{}
	if client.ExpiryTime > 0 {
		expireAt = time.UnixMilli(client.ExpiryTime)
	}
	return &AccountStats{
		AccountID: accountID,
		Email:     client.Email,
		BytesUp:   traffic.Up,
		BytesDown: traffic.Down,
		Limit:     client.TotalBytes,
		ExpireAt:  expireAt,
		Enabled:   client.Enable,
	}, nil
}

func (x *xuiClient) UpdateAccountExpiry(ctx context.Context, accountID string, expireAt time.Time) error {
	doc, settings, clients, err := x.fetchInbound(ctx)
	if err != nil {
		return err
	}

	found := false
	for i := range clients {
		if clients[i].ID == accountID {
			clients[i].ExpiryTime = expireAt.UnixMilli()
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return x.writeInbound(ctx, doc, settings, clients)
}

func (x *xuiClient) SubscriptionURI(ctx context.Context, accountID string) (string, error) {
	path := fmt.Sprintf("/panel/api/inbounds/getClientSubscribe/%d/%s", x.inboundID, accountID)
	resp, err := x.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	var uri string
	if err := json.Unmarshal(resp.Obj, &uri); err != nil {
		return "", fmt.Errorf("%w: link parse: %v", ErrUnavailable, err)
	}
	return uri, nil
}
