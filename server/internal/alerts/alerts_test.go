package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/measurestack/measurestack/pkg/spc"
	"github.com/measurestack/measurestack/server/internal/config"
)

func summary(cpk, yield float64) spc.Summary {
	return spc.Summary{Count: 50, Cpk: cpk, YieldPct: yield, Grade: spc.Grade(cpk), OutOfSpecCount: 1}
}

func TestParseCondition(t *testing.T) {
	valid := []string{"cpk < 1.33", "yield_pct <= 99.5", "out_of_spec_count > 0",
		"std_dev >= 0.2", "mean != 10", "count == 0", "grade == poor", "grade != excellent"}
	for _, c := range valid {
		if err := ValidateCondition(c); err != nil {
			t.Errorf("ValidateCondition(%q) = %v", c, err)
		}
	}
	invalid := []string{"", "cpk <", "cpk ~ 1", "cpk < abc", "speed > 1", "grade > poor", "grade == bad"}
	for _, c := range invalid {
		if err := ValidateCondition(c); err == nil {
			t.Errorf("ValidateCondition(%q) = nil, want error", c)
		}
	}
}

func TestConditionEval(t *testing.T) {
	sum := summary(0.8, 96)
	tests := []struct {
		cond string
		want bool
	}{
		{"cpk < 1.33", true},
		{"cpk < 0.5", false},
		{"yield_pct < 99", true},
		{"out_of_spec_count > 0", true},
		{"grade == poor", true},
		{"grade != poor", false},
		{"count >= 50", true},
	}
	for _, tc := range tests {
		t.Run(tc.cond, func(t *testing.T) {
			c, err := parseCondition(tc.cond)
			if err != nil {
				t.Fatal(err)
			}
			if got, _ := c.eval(sum); got != tc.want {
				t.Errorf("eval = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConditionEval_EmptyWorkingSet(t *testing.T) {
	empty := spc.Summary{}
	for _, cond := range []string{"cpk < 1.33", "yield_pct < 99", "grade == poor"} {
		c, _ := parseCondition(cond)
		if got, _ := c.eval(empty); got {
			t.Errorf("%q fired on empty working set", cond)
		}
	}
	c, _ := parseCondition("count == 0")
	if got, _ := c.eval(empty); !got {
		t.Error("count == 0 should fire on empty working set")
	}
}

func TestEngine_FireResolveCooldown(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	e := New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "low-cpk", Condition: "cpk < 1.33", Severity: "critical", Cooldown: time.Minute},
		{Name: "broken", Condition: "nonsense"},
	}})
	e.now = func() time.Time { return now }

	if len(e.rules) != 1 {
		t.Fatalf("rules = %d, want 1 (invalid rule skipped)", len(e.rules))
	}

	e.Evaluate(summary(0.9, 99))
	if e.Firing() != 1 {
		t.Fatalf("Firing = %d, want 1", e.Firing())
	}
	active := e.Active()
	if active[0].Severity != "critical" || active[0].Value != 0.9 {
		t.Errorf("alert = %+v", active[0])
	}

	// still failing: no duplicate alert
	e.Evaluate(summary(0.8, 99))
	if n := len(e.Active()); n != 1 {
		t.Errorf("Active = %d, want 1", n)
	}

	now = now.Add(10 * time.Second)
	e.Evaluate(summary(1.5, 100))
	if e.Firing() != 0 {
		t.Fatalf("Firing = %d after recovery, want 0", e.Firing())
	}
	if a := e.Active(); len(a) != 1 || a[0].State != "resolved" {
		t.Errorf("Active after resolve = %+v", a)
	}

	// within cooldown: suppressed
	now = now.Add(10 * time.Second)
	e.Evaluate(summary(0.9, 99))
	if e.Firing() != 0 {
		t.Error("alert re-fired inside cooldown")
	}

	now = now.Add(2 * time.Minute)
	e.Evaluate(summary(0.9, 99))
	if e.Firing() != 1 {
		t.Error("alert did not re-fire after cooldown")
	}
}

func TestEngine_NoRules(t *testing.T) {
	e := New(config.AlertsConfig{})
	e.Evaluate(summary(0, 0))
	if len(e.Active()) != 0 {
		t.Error("engine without rules produced alerts")
	}
}

func TestEngine_Webhooks(t *testing.T) {
	var mu sync.Mutex
	bodies := map[string]map[string]interface{}{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var m map[string]interface{}
		_ = json.Unmarshal(b, &m)
		mu.Lock()
		bodies[r.URL.Path] = m
		mu.Unlock()
	}))
	defer srv.Close()

	t.Setenv("SLACK_URL", srv.URL+"/slack")
	t.Setenv("TEAMS_URL", srv.URL+"/teams")
	t.Setenv("HOOK_URL", srv.URL+"/http")

	e := New(config.AlertsConfig{
		Rules: []config.AlertRule{{Name: "yield", Condition: "yield_pct < 99"}},
		Webhooks: []config.WebhookConfig{
			{Type: "slack", URLEnv: "SLACK_URL"},
			{Type: "teams", URLEnv: "TEAMS_URL"},
			{Type: "http", URLEnv: "HOOK_URL"},
			{Type: "pager", URLEnv: "HOOK_URL"},
		},
	})
	e.Evaluate(summary(1.5, 90))
	e.Wait()

	mu.Lock()
	defer mu.Unlock()
	if _, ok := bodies["/slack"]["text"]; !ok {
		t.Errorf("slack body = %v", bodies["/slack"])
	}
	if _, ok := bodies["/teams"]["sections"]; !ok || bodies["/teams"]["@type"] != "MessageCard" {
		t.Errorf("teams body = %v", bodies["/teams"])
	}
	alert, ok := bodies["/http"]["alert"].(map[string]interface{})
	if !ok || alert["rule_name"] != "yield" || alert["state"] != "firing" {
		t.Errorf("http body = %v", bodies["/http"])
	}
}

func TestPost_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := New(config.AlertsConfig{})
	if err := e.post(context.Background(), srv.URL, []byte(`{}`)); err == nil {
		t.Error("post: expected error for 502")
	}
}
