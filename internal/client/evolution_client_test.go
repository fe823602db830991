package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wenwu/saas-platform/whatsapp-service/internal/models"
)

func newTestClient(url string) *EvolutionClient {
	return NewEvolutionClient(url, "test-key", 2*time.Second, nil)
}

func TestCreateInstance(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/instance/create" {
			t.Errorf("Path = %s, want /instance/create", r.URL.Path)
		}
		if r.Header.Get("apikey") != "test-key" {
			t.Errorf("apikey header = %s, want test-key", r.Header.Get("apikey"))
		}

		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "wa-1", req["instanceName"])
		assert.Equal(t, "WHATSAPP-BAILEYS", req["integration"])
		assert.Equal(t, true, req["qrcode"])

		json.NewEncoder(w).Encode(map[string]any{
			"hash":   "pairing-token",
			"qrcode": map[string]string{"base64": "data:image/png;base64,AAA"},
		})
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).CreateInstance(context.Background(), "wa-1", models.AdapterBaileys, nil)
	require.NoError(t, err)
	assert.Equal(t, "pairing-token", result.Token)
	assert.Equal(t, "data:image/png;base64,AAA", result.QRCode)
}

func TestCreateInstance_MissingTokenIsUnexpected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"qrcode": map[string]string{"base64": "x"}})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateInstance(context.Background(), "wa-1", models.AdapterBaileys, nil)
	require.Error(t, err)
	assert.Equal(t, KindUnexpected, KindOf(err))
}

func TestCreateInstance_RejectedCarriesGatewayMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]any{
			"response": map[string]any{"message": []string{"This name is already in use."}},
		})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateInstance(context.Background(), "wa-1", models.AdapterBaileys, nil)

	var gatewayErr *Error
	require.ErrorAs(t, err, &gatewayErr)
	assert.Equal(t, KindRejected, gatewayErr.Kind)
	assert.Equal(t, http.StatusForbidden, gatewayErr.StatusCode)
	assert.Equal(t, "This name is already in use.", gatewayErr.Message)
}

func TestDo_ServerErrorIsUnexpected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"message": "upstream broke"})
	}))
	defer server.Close()

	err := newTestClient(server.URL).Connect(context.Background(), "wa-1")

	var gatewayErr *Error
	require.ErrorAs(t, err, &gatewayErr)
	assert.Equal(t, KindUnexpected, gatewayErr.Kind)
	assert.Equal(t, "upstream broke", gatewayErr.Message)
}

func TestDo_TransportFailureIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // nothing is listening anymore

	err := newTestClient(server.URL).Connect(context.Background(), "wa-1")
	assert.True(t, IsUnreachable(err))
}

func TestDo_GarbageBodyIsUnexpected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).ConnectionState(context.Background(), "wa-1")
	assert.Equal(t, KindUnexpected, KindOf(err))
}

func TestDelete_GatewayNotFoundIsSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("Method = %s, want DELETE", r.Method)
		}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"message": "instance does not exist"})
	}))
	defer server.Close()

	err := newTestClient(server.URL).Delete(context.Background(), "wa-gone")
	assert.NoError(t, err, "deleting an unknown instance is idempotent")
}

func TestConnectionState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/instance/connectionState/wa-1" {
			t.Errorf("Path = %s, want /instance/connectionState/wa-1", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"instance": map[string]any{
				"state":    "open",
				"ownerJid": "5511888@s.whatsapp.net",
			},
		})
	}))
	defer server.Close()

	state, err := newTestClient(server.URL).ConnectionState(context.Background(), "wa-1")
	require.NoError(t, err)
	assert.Equal(t, "open", state.State)
	assert.Equal(t, "5511888@s.whatsapp.net", state.OwnerJID)
}

func TestSendText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/message/sendText/wa-1" {
			t.Errorf("Path = %s, want /message/sendText/wa-1", r.URL.Path)
		}

		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "5511999", req["number"])
		assert.Equal(t, "hi there", req["text"])

		json.NewEncoder(w).Encode(map[string]any{
			"key": map[string]string{"id": "wamid.HBgL"},
		})
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).SendText(context.Background(), "wa-1", "5511999", "hi there", "")
	require.NoError(t, err)
	assert.Equal(t, "wamid.HBgL", id)
}

func TestCheckNumbers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"jid": "5511999@s.whatsapp.net", "exists": true},
			{"jid": "5511000@s.whatsapp.net", "exists": false},
		})
	}))
	defer server.Close()

	results, err := newTestClient(server.URL).CheckNumbers(context.Background(), "wa-1", []string{"5511999", "5511000"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Exists)
	assert.False(t, results[1].Exists)
}

func TestGatewayMessage_EnvelopeVariants(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"string message", `{"message":"instance not found"}`, "instance not found"},
		{"array message", `{"message":["first","second"]}`, "first"},
		{"nested response", `{"response":{"message":["nested error"]}}`, "nested error"},
		{"error field", `{"error":"Bad Request"}`, "Bad Request"},
		{"raw body fallback", `plain text error`, "plain text error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gatewayMessage([]byte(tt.body)))
		})
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindRejected, Op: "create_instance", StatusCode: 403, Message: "name in use"}
	assert.Contains(t, err.Error(), "create_instance")
	assert.Contains(t, err.Error(), "name in use")

	assert.Equal(t, ErrorKind(""), KindOf(context.Canceled))
}
