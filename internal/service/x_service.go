package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	config "github.com/maheshrc27/tweetflow/configs"
	"github.com/maheshrc27/tweetflow/internal/models"
	"github.com/maheshrc27/tweetflow/internal/transfer"
	"golang.org/x/oauth2"
)

var xScopes = []string{"tweet.read", "tweet.write", "users.read", "offline.access"}

const maxResponseBody = 1 << 20

type IdentityProvider interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	FetchIdentity(ctx context.Context, accessToken string) (*transfer.XUser, error)
}

type Publisher interface {
	Publish(ctx context.Context, accessToken string, job *models.Job) (string, error)
	VerifyToken(ctx context.Context, accessToken string) (bool, error)
}

type XService interface {
	IdentityProvider
	Publisher
}

type xService struct {
	cfg    config.X
	oauth  *oauth2.Config
	client *http.Client
}

// NewXService talks to the X API v2. A nil client means http.DefaultClient.
func NewXService(cfg config.X, client *http.Client) XService {
	if client == nil {
		client = http.DefaultClient
	}
	return &xService{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       xScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		client: client,
	}
}

func (s *xService) AuthCodeURL(state, verifier string) string {
	return s.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (s *xService) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)

	token, err := s.oauth.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("%w: %v", models.ErrProviderExchange, err)
	}

	return token, nil
}

func (s *xService) FetchIdentity(ctx context.Context, accessToken string) (*transfer.XUser, error) {
	resp, err := s.do(ctx, http.MethodGet, "/2/users/me", accessToken, nil)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("%w: %v", models.ErrProviderExchange, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: users/me returned %d: %s", models.ErrProviderExchange, resp.StatusCode, problemDetail(body))
	}

	var userResponse transfer.XUserResponse
	if err := json.Unmarshal(body, &userResponse); err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("%w: failed to decode identity: %v", models.ErrProviderExchange, err)
	}
	if userResponse.Data.ID == "" {
		return nil, fmt.Errorf("%w: identity response has no user id", models.ErrProviderExchange)
	}

	return &userResponse.Data, nil
}

// Publish posts job.Content as a new post and returns its id. Media is never
// attached.
func (s *xService) Publish(ctx context.Context, accessToken string, job *models.Job) (string, error) {
	if job.HasMedia {
		slog.Info("media upload unavailable, posting text only", "job_id", job.ID, "media_ref", job.MediaRef)
	}

	payload, err := json.Marshal(transfer.XTweetRequest{Text: job.Content})
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrPermanent, err)
	}

	resp, err := s.do(ctx, http.MethodPost, "/2/tweets", accessToken, payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", ClassifyStatus(resp.StatusCode, body)
	}

	var tweetResponse transfer.XTweetResponse
	if err := json.Unmarshal(body, &tweetResponse); err != nil {
		slog.Info(err.Error())
		return "", fmt.Errorf("%w: failed to decode post response: %v", models.ErrPermanent, err)
	}
	if tweetResponse.Data.ID == "" {
		return "", fmt.Errorf("%w: post response has no id", models.ErrPermanent)
	}

	return tweetResponse.Data.ID, nil
}

// VerifyToken reports false when X rejects the token. Any other failure is
// returned as a transient error.
func (s *xService) VerifyToken(ctx context.Context, accessToken string) (bool, error) {
	resp, err := s.do(ctx, http.MethodGet, "/2/users/me", accessToken, nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrTransient, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, nil
	default:
		return false, fmt.Errorf("%w: users/me returned %d", models.ErrTransient, resp.StatusCode)
	}
}

func (s *xService) do(ctx context.Context, method, path, accessToken string, payload []byte) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(s.cfg.APIBaseURL, "/")+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return s.client.Do(req)
}

// ClassifyStatus maps a non-2xx X API response onto the failure taxonomy.
func ClassifyStatus(status int, body []byte) error {
	detail := problemDetail(body)

	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w; reconnect the account", models.ErrAuthExpired)
	case status == http.StatusForbidden && isDuplicateContent(detail):
		return fmt.Errorf("%w: %s", models.ErrPermanent, detail)
	case status == http.StatusForbidden:
		return fmt.Errorf("%w; reconnect the account", models.ErrAuthExpired)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: x api returned %d: %s", models.ErrTransient, status, detail)
	default:
		return fmt.Errorf("%w: x api returned %d: %s", models.ErrPermanent, status, detail)
	}
}

func isDuplicateContent(detail string) bool {
	return strings.Contains(strings.ToLower(detail), "duplicate")
}

func problemDetail(body []byte) string {
	var problem transfer.XProblem
	if err := json.Unmarshal(body, &problem); err == nil {
		if problem.Detail != "" {
			return problem.Detail
		}
		if len(problem.Errors) > 0 && problem.Errors[0].Message != "" {
			return problem.Errors[0].Message
		}
		if problem.Title != "" {
			return problem.Title
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	if text == "" {
		return "no detail"
	}
	return text
}
