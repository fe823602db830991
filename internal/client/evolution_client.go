package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/metrics"
	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
)

// EvolutionClient calls the Evolution API to manage WhatsApp instances.
// It performs no retries and no state tracking; it only translates HTTP
// outcomes into the typed error taxonomy in errors.go.
type EvolutionClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	mets       *metrics.Metrics
}

// NewEvolutionClient creates a new Evolution API client
func NewEvolutionClient(baseURL, apiKey string, timeout time.Duration, mets *metrics.Metrics) *EvolutionClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EvolutionClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		mets: mets,
	}
}

// CreateInstanceResult is what the gateway reports after creating an instance
type CreateInstanceResult struct {
	Token  string // pairing token, required for subsequent calls
	QRCode string // base64 QR for initial pairing, may be empty
}

// ConnectionState is the gateway-reported view of an instance
type ConnectionState struct {
	State    string // raw gateway enum: open / connecting / close / ...
	QRCode   string
	OwnerJID string // linked number, present once paired
}

// NumberCheck is the result of a WhatsApp number lookup
type NumberCheck struct {
	JID    string `json:"jid"`
	Exists bool   `json:"exists"`
}

type createInstanceRequest struct {
	InstanceName string `json:"instanceName"`
	Integration  string `json:"integration"`
	QRCode       bool   `json:"qrcode"`

	RejectCall      bool   `json:"rejectCall,omitempty"`
	MsgCall         string `json:"msgCall,omitempty"`
	GroupsIgnore    bool   `json:"groupsIgnore,omitempty"`
	AlwaysOnline    bool   `json:"alwaysOnline,omitempty"`
	ReadMessages    bool   `json:"readMessages,omitempty"`
	ReadStatus      bool   `json:"readStatus,omitempty"`
	SyncFullHistory bool   `json:"syncFullHistory,omitempty"`
}

type createInstanceResponse struct {
	Hash   string `json:"hash"`
	QRCode struct {
		Base64 string `json:"base64"`
	} `json:"qrcode"`
}

type connectionStateResponse struct {
	Instance struct {
		State    string `json:"state"`
		OwnerJID string `json:"ownerJid"`
		QRCode   struct {
			Base64 string `json:"base64"`
		} `json:"qrcode"`
	} `json:"instance"`
}

type sendTextRequest struct {
	Number   string `json:"number"`
	Text     string `json:"text"`
	MediaURL string `json:"mediaUrl,omitempty"`
}

type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
}

type checkNumbersRequest struct {
	Numbers []string `json:"numbers"`
}

// CreateInstance registers a new instance with the gateway and returns
// its pairing token plus the initial QR code.
func (c *EvolutionClient) CreateInstance(ctx context.Context, name, adapter string, settings *models.InstanceSettings) (*CreateInstanceResult, error) {
	log.Printf("[EvolutionClient] Creating instance: %s (adapter: %s)", name, adapter)

	req := createInstanceRequest{
		InstanceName: name,
		Integration:  adapter,
		QRCode:       true,
	}
	if settings != nil {
		req.RejectCall = settings.RejectCall
		req.MsgCall = settings.MsgCall
		req.GroupsIgnore = settings.GroupsIgnore
		req.AlwaysOnline = settings.AlwaysOnline
		req.ReadMessages = settings.ReadMessages
		req.ReadStatus = settings.ReadStatus
		req.SyncFullHistory = settings.SyncFullHistory
	}

	var resp createInstanceResponse
	if err := c.do(ctx, "create_instance", "POST", "/instance/create", req, &resp, false); err != nil {
		return nil, err
	}

	if resp.Hash == "" {
		return nil, &Error{Kind: KindUnexpected, Op: "create_instance",
			Message: "gateway returned no pairing token"}
	}

	log.Printf("[EvolutionClient] Instance created: %s", name)
	return &CreateInstanceResult{Token: resp.Hash, QRCode: resp.QRCode.Base64}, nil
}

// ConnectionState fetches the gateway-reported state of an instance
func (c *EvolutionClient) ConnectionState(ctx context.Context, name string) (*ConnectionState, error) {
	var resp connectionStateResponse
	if err := c.do(ctx, "connection_state", "GET", "/instance/connectionState/"+name, nil, &resp, false); err != nil {
		return nil, err
	}

	return &ConnectionState{
		State:    resp.Instance.State,
		QRCode:   resp.Instance.QRCode.Base64,
		OwnerJID: resp.Instance.OwnerJID,
	}, nil
}

// Connect asks the gateway to start pairing an instance
func (c *EvolutionClient) Connect(ctx context.Context, name string) error {
	log.Printf("[EvolutionClient] Connecting instance: %s", name)
	return c.do(ctx, "connect", "POST", "/instance/connect/"+name, nil, nil, false)
}

// Logout disconnects an instance's WhatsApp session
func (c *EvolutionClient) Logout(ctx context.Context, name string) error {
	log.Printf("[EvolutionClient] Disconnecting instance: %s", name)
	return c.do(ctx, "logout", "POST", "/instance/logout/"+name, nil, nil, false)
}

// Restart restarts an instance on the gateway
func (c *EvolutionClient) Restart(ctx context.Context, name string) error {
	log.Printf("[EvolutionClient] Restarting instance: %s", name)
	return c.do(ctx, "restart", "POST", "/instance/restart/"+name, nil, nil, false)
}

// Delete removes an instance from the gateway. Deleting an instance the
// gateway no longer knows is not an error.
func (c *EvolutionClient) Delete(ctx context.Context, name string) error {
	log.Printf("[EvolutionClient] Deleting instance: %s", name)
	return c.do(ctx, "delete", "DELETE", "/instance/delete/"+name, nil, nil, true)
}

// SendText sends a text message through an instance and returns the
// gateway message id.
func (c *EvolutionClient) SendText(ctx context.Context, name, number, text, mediaURL string) (string, error) {
	var resp sendTextResponse
	req := sendTextRequest{Number: number, Text: text, MediaURL: mediaURL}
	if err := c.do(ctx, "send_text", "POST", "/message/sendText/"+name, req, &resp, false); err != nil {
		return "", err
	}
	return resp.Key.ID, nil
}

// CheckNumbers asks the gateway which of the given numbers are on WhatsApp
func (c *EvolutionClient) CheckNumbers(ctx context.Context, name string, numbers []string) ([]NumberCheck, error) {
	var resp []NumberCheck
	req := checkNumbersRequest{Numbers: numbers}
	if err := c.do(ctx, "check_numbers", "POST", "/chat/whatsappNumbers/"+name, req, &resp, false); err != nil {
		return nil, err
	}
	return resp, nil
}

// SetSettings forwards instance behavior flags to the gateway
func (c *EvolutionClient) SetSettings(ctx context.Context, name string, settings *models.InstanceSettings) error {
	log.Printf("[EvolutionClient] Updating settings for instance: %s", name)
	return c.do(ctx, "set_settings", "POST", "/settings/set/"+name, settings, nil, false)
}

// do performs one gateway request and classifies the outcome.
// okNotFound treats a 404 as success (idempotent deletes).
func (c *EvolutionClient) do(ctx context.Context, op, method, path string, reqBody, out any, okNotFound bool) error {
	var bodyReader io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("apikey", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.observe(op, time.Since(start))

	if err != nil {
		c.count(op, string(KindUnreachable))
		return &Error{Kind: KindUnreachable, Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.count(op, string(KindUnreachable))
		return &Error{Kind: KindUnreachable, Op: op, Err: err}
	}

	if okNotFound && resp.StatusCode == http.StatusNotFound {
		c.count(op, "ok")
		return nil
	}

	switch {
	case resp.StatusCode >= 500:
		c.count(op, string(KindUnexpected))
		log.Printf("[EvolutionClient] Gateway %s returned status %d: %s", op, resp.StatusCode, gatewayMessage(respBody))
		return &Error{Kind: KindUnexpected, Op: op, StatusCode: resp.StatusCode, Message: gatewayMessage(respBody)}
	case resp.StatusCode >= 400:
		c.count(op, string(KindRejected))
		return &Error{Kind: KindRejected, Op: op, StatusCode: resp.StatusCode, Message: gatewayMessage(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			c.count(op, string(KindUnexpected))
			log.Printf("[EvolutionClient] Gateway %s returned unparseable body: %v", op, err)
			return &Error{Kind: KindUnexpected, Op: op, StatusCode: resp.StatusCode,
				Message: "unparseable response body", Err: err}
		}
	}

	c.count(op, "ok")
	return nil
}

// gatewayMessage digs the human-readable error out of the gateway's
// inconsistent error envelopes.
func gatewayMessage(body []byte) string {
	var envelope struct {
		Message  any    `json:"message"`
		Error    string `json:"error"`
		Response struct {
			Message []string `json:"message"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch msg := envelope.Message.(type) {
		case string:
			if msg != "" {
				return msg
			}
		case []any:
			if len(msg) > 0 {
				if s, ok := msg[0].(string); ok {
					return s
				}
			}
		}
		if len(envelope.Response.Message) > 0 {
			return envelope.Response.Message[0]
		}
		if envelope.Error != "" {
			return envelope.Error
		}
	}
	if len(body) > 200 {
		body = body[:200]
	}
	return string(body)
}

func (c *EvolutionClient) count(op, status string) {
	if c.mets != nil {
		c.mets.GatewayRequests.WithLabelValues(op, status).Inc()
	}
}

func (c *EvolutionClient) observe(op string, d time.Duration) {
	if c.mets != nil {
		c.mets.GatewayLatency.WithLabelValues(op).Observe(d.Seconds())
	}
}
