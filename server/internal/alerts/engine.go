package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/biomirror/biomirror/pkg/types"
	"github.com/biomirror/biomirror/server/internal/config"
)

const (
	defaultCooldown   = time.Minute
	maxHistoryLen     = 200
	recentWindowHours = 1
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	Condition  string     `json:"condition"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`

	// Output is the reading that fired the alert, or resolved it.
	Output types.Output `json:"output"`
}

// Engine evaluates alert rules against output tuples and delivers webhook
// notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: rule name
	lastFire map[string]time.Time // last fire time per rule (for cooldown)
	history  []*Alert             // recently resolved alerts

	client *http.Client
	now    func() time.Time
	wg     sync.WaitGroup
}

// New creates an Engine from the server alert configuration.
// An Engine with no rules is valid; Record becomes a no-op.
func New(cfg config.AlertsConfig) *Engine {
	e := &Engine{
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	e.SetConfig(cfg)
	return e
}

// SetConfig replaces rules and webhooks. Invalid rules are logged and skipped.
func (e *Engine) SetConfig(cfg config.AlertsConfig) {
	rules := make([]config.AlertRule, 0, len(cfg.Rules))
	names := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if err := ValidateCondition(r.Condition); err != nil {
			slog.Warn("alerts: skipping rule", "rule", r.Name, "err", err)
			continue
		}
		rules = append(rules, r)
		names[r.Name] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	e.webhooks = cfg.Webhooks
	for name := range e.active {
		if !names[name] {
			delete(e.active, name)
		}
	}
}

// Rules returns a copy of the active rule set.
func (e *Engine) Rules() []config.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]config.AlertRule(nil), e.rules...)
}

// Record evaluates every rule against out. Alerts that fire are stored and
// webhook delivery runs asynchronously. Alerts that were firing but whose
// condition is now false are resolved. It satisfies session.Recorder.
func (e *Engine) Record(out types.Output) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, rule := range e.rules {
		fires, value := evalCondition(rule.Condition, out)
		if fires {
			e.fire(rule, value, out, now)
		} else {
			e.resolve(rule, out, now)
		}
	}
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour, newest first.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiredAt.After(out[j].FiredAt) })
	return out
}

// Wait blocks until in-flight webhook deliveries finish.
func (e *Engine) Wait() { e.wg.Wait() }

// fire and resolve are called with e.mu held.
func (e *Engine) fire(rule config.AlertRule, value float64, out types.Output, now time.Time) {
	if _, firing := e.active[rule.Name]; firing {
		return
	}
	cooldown := rule.Cooldown
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	if last, ok := e.lastFire[rule.Name]; ok && now.Sub(last) < cooldown {
		return
	}

	sev := rule.Severity
	if sev == "" {
		sev = "warning"
	}
	a := &Alert{
		ID:        fmt.Sprintf("%s:%d", rule.Name, now.UnixNano()),
		RuleName:  rule.Name,
		Condition: rule.Condition,
		Severity:  sev,
		Value:     value,
		Message:   fmt.Sprintf("[%s] %s: %s (value %.2f)", sev, rule.Name, rule.Condition, value),
		FiredAt:   now,
		State:     StateFiring,
		Output:    out,
	}
	e.active[rule.Name] = a
	e.lastFire[rule.Name] = now

	slog.Warn("alert fired",
		"rule", rule.Name,
		"value", value,
		"severity", sev,
	)
	e.deliverAsync(*a)
}

func (e *Engine) resolve(rule config.AlertRule, out types.Output, now time.Time) {
	a, ok := e.active[rule.Name]
	if !ok {
		return
	}
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	a.Output = out
	delete(e.active, rule.Name)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}

	slog.Info("alert resolved", "rule", rule.Name)
	e.deliverAsync(*a)
}

func (e *Engine) deliverAsync(a Alert) {
	if len(e.webhooks) == 0 {
		return
	}
	hooks := append([]config.WebhookConfig(nil), e.webhooks...)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.deliver(hooks, &a)
	}()
}
