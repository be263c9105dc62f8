package eventflit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// maxAuthBody bounds how much of an auth response is read.
const maxAuthBody = 64 << 10

// AuthData is the credential sent with a private or presence subscription.
type AuthData struct {
	Auth        string `json:"auth"`
	ChannelData string `json:"channel_data,omitempty"`
}

// UserDataFetcher supplies the local member's identity for presence channel
// data when the client signs subscriptions itself (InlineSecret).
type UserDataFetcher func() Member

// AuthMethod resolves credentials for authenticated channels. The set of
// implementations is closed: AuthEndpoint, AuthRequestBuilder, InlineSecret,
// Authorizer and NoAuth.
type AuthMethod interface {
	authorize(ctx context.Context, req authRequest) (AuthData, error)
}

type authRequest struct {
	key      string
	socketID string
	channel  string
	kind     ChannelKind
	userData UserDataFetcher
	http     *http.Client
}

// AuthEndpoint authorizes by POSTing socket_id and channel_name as a form to URL.
// The response must be a JSON object with a string "auth" field.
type AuthEndpoint struct {
	URL string
}

func (m AuthEndpoint) authorize(ctx context.Context, req authRequest) (AuthData, error) {
	form := url.Values{}
	form.Set("socket_id", req.socketID)
	form.Set("channel_name", req.channel)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return AuthData{}, &AuthError{Channel: req.channel, Err: fmt.Errorf("build request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return doAuthRequest(req.http, httpReq, req.channel)
}

// AuthRequestBuilder lets the host build the auth request, e.g. to add
// credentials of its own. The response is parsed like AuthEndpoint's.
type AuthRequestBuilder func(ctx context.Context, socketID, channelName string) (*http.Request, error)

func (m AuthRequestBuilder) authorize(ctx context.Context, req authRequest) (AuthData, error) {
	httpReq, err := m(ctx, req.socketID, req.channel)
	if err != nil {
		return AuthData{}, &AuthError{Channel: req.channel, Err: fmt.Errorf("build request: %w", err)}
	}
	if httpReq == nil {
		return AuthData{}, &AuthError{Channel: req.channel, Err: errors.New("request builder returned no request")}
	}
	return doAuthRequest(req.http, httpReq, req.channel)
}

// InlineSecret signs subscriptions locally with the application secret.
// It never touches the network; only use it where the secret can be trusted
// to the client.
type InlineSecret struct {
	Secret string
}

func (m InlineSecret) authorize(_ context.Context, req authRequest) (AuthData, error) {
	if m.Secret == "" {
		return AuthData{}, &AuthError{Channel: req.channel, Err: errors.New("inline secret is empty")}
	}

	var channelData string
	if req.kind == KindPresence {
		member := Member{UserID: req.socketID}
		if req.userData != nil {
			member = req.userData()
		}
		data, err := presenceChannelData(member)
		if err != nil {
			return AuthData{}, &AuthError{Channel: req.channel, Err: err}
		}
		channelData = data
	}

	return AuthData{
		Auth:        req.key + ":" + signature(m.Secret, req.socketID, req.channel, channelData),
		ChannelData: channelData,
	}, nil
}

// Authorizer is a host-supplied function producing credentials. It may block;
// the client always calls it off the caller's goroutine.
type Authorizer func(ctx context.Context, channelName, socketID string) (AuthData, error)

func (m Authorizer) authorize(ctx context.Context, req authRequest) (AuthData, error) {
	data, err := m(ctx, req.channel, req.socketID)
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return AuthData{}, err
		}
		return AuthData{}, &AuthError{Channel: req.channel, Err: err}
	}
	if data.Auth == "" {
		return AuthData{}, &AuthError{Channel: req.channel, Err: errors.New("authorizer returned empty auth")}
	}
	return data, nil
}

// NoAuth rejects every authenticated subscription.
type NoAuth struct{}

func (NoAuth) authorize(_ context.Context, req authRequest) (AuthData, error) {
	return AuthData{}, &AuthError{Channel: req.channel, Err: ErrNoAuthMethod}
}

// signature is the hex HMAC-SHA256 of "socketID:channel[:channelData]".
func signature(secret, socketID, channel, channelData string) string {
	toSign := socketID + ":" + channel
	if channelData != "" {
		toSign += ":" + channelData
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(toSign))
	return hex.EncodeToString(mac.Sum(nil))
}

func presenceChannelData(m Member) (string, error) {
	data, err := sjson.Set(`{}`, "user_id", m.UserID)
	if err != nil {
		return "", fmt.Errorf("encode channel data: %w", err)
	}
	if m.UserInfo != nil {
		data, err = sjson.Set(data, "user_info", m.UserInfo)
		if err != nil {
			return "", fmt.Errorf("encode channel data: %w", err)
		}
	}
	return data, nil
}

func doAuthRequest(client *http.Client, req *http.Request, channel string) (AuthData, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return AuthData{}, &AuthError{Channel: channel, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxAuthBody))
	if err != nil {
		return AuthData{}, &AuthError{Channel: channel, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return AuthData{}, &AuthError{
			Channel:    channel,
			StatusCode: resp.StatusCode,
			Body:       string(body),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}
	return parseAuthResponse(body, resp.StatusCode, channel)
}

func parseAuthResponse(body []byte, status int, channel string) (AuthData, error) {
	fail := func(err error) (AuthData, error) {
		return AuthData{}, &AuthError{Channel: channel, StatusCode: status, Body: string(body), Err: err}
	}
	if !gjson.ValidBytes(body) {
		return fail(errors.New("auth response is not valid JSON"))
	}
	auth := gjson.GetBytes(body, "auth")
	if auth.Type != gjson.String || auth.Str == "" {
		return fail(errors.New(`auth response has no "auth" string`))
	}
	data := AuthData{Auth: auth.Str}
	if cd := gjson.GetBytes(body, "channel_data"); cd.Exists() {
		if cd.Type == gjson.String {
			data.ChannelData = cd.Str
		} else {
			data.ChannelData = cd.Raw
		}
	}
	return data, nil
}
