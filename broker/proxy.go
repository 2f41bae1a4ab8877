package broker

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Proxied is a downstream API response relayed verbatim: the provider's
// status and body pass through untranslated, since permission errors and
// partial outages are actionable by the caller.
type Proxied struct {
	Status int
	Body   []byte
}

// SheetValues reads the full value range of a spreadsheet on the user's
// behalf. The access token never leaves the server-side call.
func (b *Broker) SheetValues(ctx context.Context, userID, sheetID string) (*Proxied, error) {
	target := fmt.Sprintf("%s/%s/values/A:Z", b.opts.SheetsBaseURL, url.PathEscape(sheetID))
	return b.proxyGet(ctx, userID, target)
}

// FormResponses fetches the submitted responses of a Google Form on the
// user's behalf.
func (b *Broker) FormResponses(ctx context.Context, userID, formID string) (*Proxied, error) {
	target := fmt.Sprintf("%s/%s/responses", b.opts.FormsBaseURL, url.PathEscape(formID))
	return b.proxyGet(ctx, userID, target)
}

// proxyGet obtains a valid access token and performs one authenticated
// GET against the downstream API, a single attempt with no retries.
func (b *Broker) proxyGet(ctx context.Context, userID, target string) (*Proxied, error) {
	token, err := b.AccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("proxy: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	client := b.opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy: downstream call: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("proxy: read downstream response: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		b.logger.Warn("downstream call failed", "user_id", userID, "status", res.StatusCode)
	}
	return &Proxied{Status: res.StatusCode, Body: body}, nil
}
