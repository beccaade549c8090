// Package challenge verifies Cloudflare Turnstile tokens.
package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/computer-anything/blog-backend/internal/config"
)

// Verifier checks an anti-bot challenge token.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) (bool, error)
}

// Turnstile verifies tokens against the siteverify endpoint.
type Turnstile struct {
	mode      string
	secret    string
	verifyURL string
	client    *http.Client
}

// NewTurnstile constructs a Turnstile verifier.
// Permissive mode without a secret accepts every token and says so at startup.
func NewTurnstile(cfg config.ChallengeCfg, client *http.Client) *Turnstile {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	t := &Turnstile{
		mode:      cfg.Mode,
		secret:    strings.TrimSpace(cfg.SecretKey),
		verifyURL: cfg.VerifyURL,
		client:    client,
	}
	if t.permissive() {
		log.Warn("challenge: PERMISSIVE MODE, Turnstile verification is disabled and every token is accepted")
	}
	return t
}

func (t *Turnstile) permissive() bool {
	return t.mode == config.ChallengeModePermissive && t.secret == ""
}

type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// Verify reports whether token passes verification.
// A transport failure returns false together with the error.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) (bool, error) {
	if t.permissive() {
		return true, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", t.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, t.verifyURL, strings.NewReader(form.Encode()))
	if errReq != nil {
		return false, fmt.Errorf("challenge: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, errDo := t.client.Do(req)
	if errDo != nil {
		return false, fmt.Errorf("challenge: siteverify: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("challenge: siteverify status %d", resp.StatusCode)
	}

	var body siteverifyResponse
	if errDecode := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); errDecode != nil {
		return false, fmt.Errorf("challenge: decode siteverify: %w", errDecode)
	}
	if !body.Success {
		log.WithField("codes", strings.Join(body.ErrorCodes, ",")).Debug("challenge: token rejected")
	}
	return body.Success, nil
}
