package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tomnomnom/linkheader"
	"golang.org/x/time/rate"

	"github.com/eldtechnologies/inquire/internal/metrics"
)

const (
	// DefaultBaseURL is the public platform API.
	DefaultBaseURL = "https://api.ciscospark.com/v1"
	// membershipPageSize is the largest page the platform serves.
	membershipPageSize = 999
	maxResponseBytes   = 4 << 20
)

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL     string
	AccessToken string
	// RequestsPerSecond throttles outbound calls. Zero disables throttling.
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

// Client is an HTTP implementation of Directory and Messenger.
type Client struct {
	baseURL    string
	token      string
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a directory client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("directory: invalid base URL %q: %w", baseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      cfg.AccessToken,
		limiter:    limiter,
		httpClient: httpClient,
	}, nil
}

// GetPerson fetches a person by id.
func (c *Client) GetPerson(ctx context.Context, personID string) (*Person, error) {
	defer metrics.ObserveDirectory("get_person", time.Now())

	var person Person
	if _, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/people/"+url.PathEscape(personID), nil, &person); err != nil {
		return nil, err
	}
	return &person, nil
}

// GetRoomProfile fetches a room's title, team and type.
func (c *Client) GetRoomProfile(ctx context.Context, roomID string) (*RoomProfile, error) {
	defer metrics.ObserveDirectory("get_room", time.Now())

	var room RoomProfile
	if _, err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/rooms/"+url.PathEscape(roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetMembershipsPage fetches one page of memberships. The next page, if
// any, comes from the response's Link header.
func (c *Client) GetMembershipsPage(ctx context.Context, pageURL, roomID string) (*MembershipPage, error) {
	defer metrics.ObserveDirectory("list_memberships", time.Now())

	if pageURL == "" {
		query := url.Values{}
		query.Set("roomId", roomID)
		query.Set("max", fmt.Sprint(membershipPageSize))
		pageURL = c.baseURL + "/memberships?" + query.Encode()
	}

	var page MembershipPage
	header, err := c.doRequest(ctx, http.MethodGet, pageURL, nil, &page)
	if err != nil {
		return nil, err
	}
	page.NextPageURL = nextLink(header.Values("Link"))
	return &page, nil
}

// SendDirect posts a markdown message to a single person.
func (c *Client) SendDirect(ctx context.Context, personID, markdown string) error {
	defer metrics.ObserveDirectory("send_direct", time.Now())

	body := map[string]string{
		"toPersonId": personID,
		"markdown":   markdown,
	}
	_, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/messages", body, nil)
	return err
}

// doRequest performs an authenticated JSON request and decodes a 2xx body
// into out. Non-2xx responses become *APIError; transport failures wrap
// ErrUnavailable.
func (c *Client) doRequest(ctx context.Context, method, requestURL string, requestBody, out any) (http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("directory: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("directory: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		request.Header.Set("Authorization", "Bearer "+c.token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, requestURL, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: response.StatusCode}
		if jsonErr := json.Unmarshal(responseBody, apiErr); jsonErr != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(responseBody))
		}
		return response.Header, apiErr
	}

	if out != nil && len(responseBody) > 0 {
		if err := json.Unmarshal(responseBody, out); err != nil {
			return nil, fmt.Errorf("directory: failed to decode response from %s: %w", requestURL, err)
		}
	}
	return response.Header, nil
}

// nextLink returns the rel="next" target of the response's Link headers.
func nextLink(values []string) string {
	escaped := make([]string, len(values))
	for i, value := range values {
		escaped[i] = escapeTargetCommas(value)
	}
	next := linkheader.ParseMultiple(escaped).FilterByRel("next")
	if len(next) == 0 {
		return ""
	}
	return next[0].URL
}

// escapeTargetCommas percent-encodes commas inside <...> targets so the
// parser does not read them as link separators.
func escapeTargetCommas(value string) string {
	var sb strings.Builder
	inTarget := false
	for _, r := range value {
		switch {
		case r == '<':
			inTarget = true
		case r == '>':
			inTarget = false
		case r == ',' && inTarget:
			sb.WriteString("%2C")
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
