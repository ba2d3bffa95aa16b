package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// encoders build the request body for each supported webhook type.
var encoders = map[string]func(*Alert) ([]byte, error){
	"slack": slackBody,
	"teams": teamsBody,
	"http":  func(a *Alert) ([]byte, error) { return json.Marshal(map[string]*Alert{"alert": a}) },
}

// deliver posts a to every webhook whose URL resolves. Failures are logged.
func (e *Engine) deliver(a *Alert) {
	for _, wh := range e.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		encode, ok := encoders[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}
		body, err := encode(a)
		if err == nil {
			err = e.post(context.Background(), url, body)
		}
		if err != nil {
			slog.Error("alerts: webhook delivery failed", "type", wh.Type, "rule", a.RuleName, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered", "type", wh.Type, "rule", a.RuleName, "state", a.State)
	}
}

func slackBody(a *Alert) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s\n", severityLabel(a.Severity), a.RuleName, a.State)
	fmt.Fprintf(&b, "`%s` (value %s)", a.Condition, strconv.FormatFloat(a.Value, 'g', 4, 64))
	return json.Marshal(map[string]string{"text": b.String()})
}

type teamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func teamsBody(a *Alert) ([]byte, error) {
	facts := []teamsFact{
		{"Condition", a.Condition},
		{"Value", strconv.FormatFloat(a.Value, 'g', 4, 64)},
		{"Severity", a.Severity},
		{"State", a.State},
		{"Fired", a.FiredAt.UTC().Format("2006-01-02 15:04:05Z")},
	}
	return json.Marshal(map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.RuleName,
		"title":      "SPC alert: " + a.RuleName,
		"text":       a.Message,
		"sections":   []map[string]interface{}{{"facts": facts}},
	})
}

func (e *Engine) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s string) string {
	switch s {
	case "critical", "warning":
		return "[" + strings.ToUpper(s) + "]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "D93F0B"
	case "warning":
		return "FBCA04"
	default:
		return "0E8A16"
	}
}
