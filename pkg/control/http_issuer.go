package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alottabits/boardfarm-bdd-sub001/pkg/event"
)

// HTTPIssuer submits commands to an ACS management endpoint over HTTP.
// It POSTs a JSON command envelope and maps HTTP failures onto the control
// error taxonomy: 401/403 to ErrAuthentication, network errors to
// *TransportError.
type HTTPIssuer struct {
	base     string
	username string
	password string
	client   *http.Client
}

// NewHTTPIssuer creates an issuer for the given base URL (e.g.
// "http://acs:7547"). Credentials are sent via basic auth when non-empty.
// A nil client selects a default with a 10s request timeout.
func NewHTTPIssuer(base, username, password string, client *http.Client) *HTTPIssuer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPIssuer{
		base:     strings.TrimRight(base, "/"),
		username: username,
		password: password,
		client:   client,
	}
}

// commandEnvelope is the request body for the command endpoint.
type commandEnvelope struct {
	Identity   string `json:"cpe"`
	Command    string `json:"command"`
	CommandKey string `json:"command_key,omitempty"`
}

// ackEnvelope is the response body for an accepted command.
type ackEnvelope struct {
	Detail string `json:"detail,omitempty"`
}

// Issue submits one command.
func (i *HTTPIssuer) Issue(ctx context.Context, identity event.Identity, command, commandKey string) (Ack, error) {
	body, err := json.Marshal(commandEnvelope{
		Identity:   string(identity),
		Command:    command,
		CommandKey: commandKey,
	})
	if err != nil {
		return Ack{}, fmt.Errorf("encode command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.base+"/command", bytes.NewReader(body))
	if err != nil {
		return Ack{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if i.username != "" {
		req.SetBasicAuth(i.username, i.password)
	}

	resp, err := i.client.Do(req)
	if err != nil {
		return Ack{}, &TransportError{Op: "post", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Ack{}, fmt.Errorf("%s %s: %w", command, identity, ErrAuthentication)
	case resp.StatusCode >= 500:
		return Ack{}, &TransportError{Op: "post", Err: fmt.Errorf("server error: %s", resp.Status)}
	case resp.StatusCode >= 300:
		return Ack{}, fmt.Errorf("control: command %s rejected: %s", command, resp.Status)
	}

	ack := Ack{
		Identity:   identity,
		Command:    command,
		CommandKey: commandKey,
		IssuedAt:   time.Now(),
	}

	// The ack body is optional; ignore malformed payloads.
	if data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024)); err == nil && len(data) > 0 {
		var env ackEnvelope
		if json.Unmarshal(data, &env) == nil {
			ack.Detail = env.Detail
		}
	}
	return ack, nil
}

// Compile-time interface satisfaction check.
var _ Issuer = (*HTTPIssuer)(nil)
