package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clestiq/clestiq/pkg/gateway"
	"github.com/clestiq/clestiq/pkg/models"
)

// Chat posts one request to the Gateway with the provisioned key and returns
// the raw response. The caller owns the body.
func (app *TestApp) Chat(req models.ChatRequest) *http.Response {
	app.t.Helper()
	return app.ChatWithKey(req, e2eKey)
}

// ChatWithKey posts one request with an explicit API key; an empty key sends
// no key header at all.
func (app *TestApp) ChatWithKey(req models.ChatRequest, key string) *http.Response {
	app.t.Helper()

	payload, err := json.Marshal(req)
	require.NoError(app.t, err)

	httpReq, err := http.NewRequest(http.MethodPost, app.GatewayURL+"/chat", bytes.NewReader(payload))
	require.NoError(app.t, err)
	httpReq.Header.Set("Content-Type", "application/json")
	if key != "" {
		httpReq.Header.Set(gateway.APIKeyHeader, key)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(app.t, err)
	return resp
}

// decodeChat decodes a success envelope and closes the body.
func decodeChat(t *testing.T, resp *http.Response) models.ChatResponse {
	t.Helper()
	defer resp.Body.Close()
	var body models.ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

// decodeError decodes an error envelope and closes the body.
func decodeError(t *testing.T, resp *http.Response) models.ErrorResponse {
	t.Helper()
	defer resp.Body.Close()
	var body models.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}
