package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgraphd/taskgraph/core"
)

func TestChatReturnsResponseOnSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"planned dag"}`))
	}))
	defer server.Close()

	c := New(server.URL)
	out, err := c.Chat(context.Background(), "plan this", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "planned dag", out)
}

func TestChatClassifiesNonOKStatusAsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Chat(context.Background(), "plan this", "sess-1")
	assert.ErrorIs(t, err, core.ErrGatewayProtocolError)
}

func TestChatClassifiesTimeoutAsGatewayTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, WithTimeout(5*time.Millisecond))
	_, err := c.Chat(context.Background(), "plan this", "sess-1")
	assert.ErrorIs(t, err, core.ErrGatewayTimeout)
}

func TestChatClassifiesConnectionRefusedAsConnectionFailed(t *testing.T) {
	c := New("http://127.0.0.1:0")
	_, err := c.Chat(context.Background(), "plan this", "sess-1")
	assert.ErrorIs(t, err, core.ErrGatewayConnectionFailed)
}

func TestChatClassifiesMalformedJSONAsProtocolError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	c := New(server.URL)
	_, err := c.Chat(context.Background(), "plan this", "sess-1")
	assert.ErrorIs(t, err, core.ErrGatewayProtocolError)
	var taskErr *core.TaskError
	require.True(t, errors.As(err, &taskErr))
}
