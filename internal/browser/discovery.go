package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// chromeTab mirrors a single entry of Chrome's /json target list.
type chromeTab struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// devtoolsWebsocketURL discovers the DevTools websocket endpoint to attach
// to: the browser-wide endpoint by default, or a specific tab's page
// endpoint when tabID is non-empty.
func devtoolsWebsocketURL(ctx context.Context, host string, port int, tabID string) (string, error) {
	listURL := fmt.Sprintf("http://%s:%d/json/list", host, port)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "building target list request")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "listing targets at %s", listURL)
	}
	defer resp.Body.Close()

	var tabs []chromeTab
	if err := json.NewDecoder(resp.Body).Decode(&tabs); err != nil {
		return "", errors.Wrap(err, "decoding target list")
	}

	if tabID == "" {
		versionURL := fmt.Sprintf("http://%s:%d/json/version", host, port)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
		if err != nil {
			return "", errors.Wrap(err, "building version request")
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return "", errors.Wrapf(err, "fetching browser version at %s", versionURL)
		}
		defer resp.Body.Close()
		var v struct {
			WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
			return "", errors.Wrap(err, "decoding browser version")
		}
		if v.WebSocketDebuggerURL == "" {
			return "", errors.New("chrome did not report a browser websocket endpoint")
		}
		return v.WebSocketDebuggerURL, nil
	}

	for _, tab := range tabs {
		if tab.ID == tabID {
			if tab.WebSocketDebuggerURL == "" {
				return "", errors.Errorf("target %s has no websocket debugger url", tabID)
			}
			return tab.WebSocketDebuggerURL, nil
		}
	}
	return "", errors.Errorf("no target with id %s", tabID)
}
