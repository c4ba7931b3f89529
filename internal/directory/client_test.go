package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{BaseURL: server.URL, AccessToken: "token-1"})
	require.NoError(t, err)
	return client
}

func TestGetPerson(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/people/p-1", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"id":          "p-1",
			"displayName": "Ada Lovelace",
			"emails":      []string{"ada@example.com"},
		})
	})

	person, err := client.GetPerson(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", person.DisplayName)
	assert.Equal(t, "ada@example.com", person.Email())
}

func TestGetRoomProfileNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{
			"message":    "The requested resource could not be found.",
			"trackingId": "track-9",
		})
	})

	_, err := client.GetRoomProfile(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "track-9", apiErr.TrackingID)
}

func TestUnreachableIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := NewClient(ClientConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = client.GetPerson(context.Background(), "p-1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetMembershipsPageFollowsLink(t *testing.T) {
	var serverURL string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/memberships", r.URL.Path)
		switch r.URL.Query().Get("cursor") {
		case "":
			assert.Equal(t, "room-1", r.URL.Query().Get("roomId"))
			assert.Equal(t, "999", r.URL.Query().Get("max"))
			w.Header().Set("Link", `<`+serverURL+`/memberships?cursor=2>; rel="next"`)
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{"personId": "p-1", "isModerator": true}},
			})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]any{{"personId": "p-2"}},
			})
		}
	})
	serverURL = client.baseURL

	first, err := client.GetMembershipsPage(context.Background(), "", "room-1")
	require.NoError(t, err)
	require.Len(t, first.Items, 1)
	assert.True(t, first.Items[0].IsModerator)
	assert.Equal(t, serverURL+"/memberships?cursor=2", first.NextPageURL)

	second, err := client.GetMembershipsPage(context.Background(), first.NextPageURL, "room-1")
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "p-2", second.Items[0].PersonID)
	assert.Empty(t, second.NextPageURL)
}

func TestSendDirect(t *testing.T) {
	var got map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"m-1"}`))
	})

	require.NoError(t, client.SendDirect(context.Background(), "p-1", "**hi**"))
	assert.Equal(t, "p-1", got["toPersonId"])
	assert.Equal(t, "**hi**", got["markdown"])
}

func TestNextLink(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   string
	}{
		{"none", nil, ""},
		{"next only", []string{`<https://x/a?c=1>; rel="next"`}, "https://x/a?c=1"},
		{"prev and next", []string{`<https://x/p>; rel="prev", <https://x/n>; rel="next"`}, "https://x/n"},
		{"unquoted rel", []string{`<https://x/n>; rel=next`}, "https://x/n"},
		{"prev only", []string{`<https://x/p>; rel="prev"`}, ""},
		{"separate headers", []string{`<https://x/p>; rel="prev"`, `<https://x/n>; rel="next"`}, "https://x/n"},
		{"comma in target", []string{`<https://x/p?ids=1,2>; rel="prev", <https://x/n?ids=3,4>; rel="next"`}, "https://x/n?ids=3%2C4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextLink(tt.values))
		})
	}
}

type mapCache struct {
	data   map[string][]byte
	writes int
}

func (c *mapCache) GetCached(_ context.Context, key string) ([]byte, error) {
	b, ok := c.data[key]
	if !ok {
		return nil, errors.New("miss")
	}
	return b, nil
}

func (c *mapCache) SetCached(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	c.writes++
	return nil
}

func TestCachedDirectoryServesFromCache(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{"id": "p-1", "displayName": "Ada"})
	})
	cache := &mapCache{data: map[string][]byte{}}
	dir := NewCachedDirectory(client, cache, time.Minute, zerolog.Nop())

	for i := 0; i < 3; i++ {
		person, err := dir.GetPerson(context.Background(), "p-1")
		require.NoError(t, err)
		assert.Equal(t, "Ada", person.DisplayName)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, cache.writes)
}
