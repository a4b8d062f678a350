package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryEventDeduperSeen(t *testing.T) {
	d := newMemoryEventDeduper(time.Minute)

	seen, err := d.Seen(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = d.Seen(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = d.Seen(context.Background(), "evt-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryEventDeduperExpiry(t *testing.T) {
	d := newMemoryEventDeduper(time.Nanosecond)

	_, err := d.Seen(context.Background(), "evt-1")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	seen, err := d.Seen(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.False(t, seen, "expired entries are forgotten")
}

func TestNewEventDeduperWithoutRedisFallsBack(t *testing.T) {
	d, err := NewEventDeduper("", "", 0, time.Minute)
	require.NoError(t, err)
	_, ok := d.(*memoryEventDeduper)
	assert.True(t, ok)
}

func postEvent(t *testing.T, mw echo.MiddlewareFunc, body string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	e := echo.New()
	handled := false
	h := mw(func(c echo.Context) error {
		handled = true
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/events/payment", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, h(e.NewContext(req, rec)))
	return rec, handled
}

func TestPaymentEventDedupAcksDuplicates(t *testing.T) {
	mw := PaymentEventDedup(newMemoryEventDeduper(time.Minute))
	body := `{"event_id":"evt-1","user_id":42,"tariff_id":1}`

	rec, handled := postEvent(t, mw, body)
	assert.True(t, handled)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, handled = postEvent(t, mw, body)
	assert.False(t, handled, "duplicate must not reach the handler")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "duplicate event ignored")
}

func TestPaymentEventDedupPassesEventsWithoutID(t *testing.T) {
	mw := PaymentEventDedup(newMemoryEventDeduper(time.Minute))

	_, handled := postEvent(t, mw, `{"user_id":42}`)
	assert.True(t, handled)
	_, handled = postEvent(t, mw, `{"user_id":42}`)
	assert.True(t, handled, "events without an id are never deduplicated")
}
