// Package auth provides market-data gateway authentication using HMAC-SHA256 signatures.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Header names sent with every signed request.
const (
	HeaderLogin     = "X-Terminal-Login"
	HeaderServer    = "X-Terminal-Server"
	HeaderTimestamp = "X-Terminal-Timestamp"
	HeaderSignature = "X-Terminal-Signature"
)

// StreamPath is the path used for stream signature generation.
const StreamPath = "/stream"

// Credentials holds the terminal account used to sign gateway requests.
type Credentials struct {
	Login    string // Trading account number
	Password string // Account password, used only as the signing key
	Server   string // Broker server name, optional

	now func() time.Time
}

// NewCredentials validates and returns gateway credentials.
func NewCredentials(login, password, server string) (*Credentials, error) {
	if login == "" {
		return nil, errors.New("login is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}
	return &Credentials{Login: login, Password: password, Server: server}, nil
}

// SignRequest generates authentication headers for a gateway request.
// For the stream connection, method should be "GET" and path StreamPath.
func (c *Credentials) SignRequest(method, path string) (map[string]string, error) {
	if c == nil || c.Login == "" || c.Password == "" {
		return nil, errors.New("credentials are incomplete")
	}

	now := time.Now
	if c.now != nil {
		now = c.now
	}
	timestampMs := now().UnixMilli()

	headers := map[string]string{
		HeaderLogin:     c.Login,
		HeaderTimestamp: strconv.FormatInt(timestampMs, 10),
		HeaderSignature: c.signature(timestampMs, method, path),
	}
	if c.Server != "" {
		headers[HeaderServer] = c.Server
	}
	return headers, nil
}

// SignStream generates authentication headers for the stream connection.
func (c *Credentials) SignStream() (map[string]string, error) {
	return c.SignRequest("GET", StreamPath)
}

// Verify checks a signature produced by SignRequest. Used by test gateways.
func (c *Credentials) Verify(headers map[string]string, method, path string) error {
	ts, err := strconv.ParseInt(headers[HeaderTimestamp], 10, 64)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	if headers[HeaderLogin] != c.Login {
		return errors.New("login mismatch")
	}
	want := c.signature(ts, method, path)
	if !hmac.Equal([]byte(want), []byte(headers[HeaderSignature])) {
		return errors.New("signature mismatch")
	}
	return nil
}

// signature computes base64(HMAC-SHA256(password, timestamp_ms + method + path)).
func (c *Credentials) signature(timestampMs int64, method, path string) string {
	mac := hmac.New(sha256.New, []byte(c.Password))
	mac.Write([]byte(strconv.FormatInt(timestampMs, 10) + method + path))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
