package logx

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	alertLineMax  = 1000
	alertValueMax = 200
)

// leading keys print right after the message, before the sorted remainder.
var alertLeading = []string{"task", "unit", "comp"}

var alertSkipped = map[string]bool{
	zerolog.TimestampFieldName: true,
	zerolog.LevelFieldName:     true,
	zerolog.MessageFieldName:   true,
	zerolog.CallerFieldName:    true,
}

// alertSink condenses warnings and failures to one stderr line each so an
// operator watching a terminal sees failed runs without the debug noise.
type alertSink struct {
	mu      sync.Mutex
	out     io.Writer
	min     zerolog.Level
	limiter *rate.Limiter
}

func (a *alertSink) configure(cfg AlertConfig) {
	rps := max(1, cfg.RatePerSec)
	a.mu.Lock()
	a.min = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	a.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	a.mu.Unlock()
}

func (a *alertSink) Write(p []byte) (int, error) {
	return a.WriteLevel(zerolog.NoLevel, p)
}

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.out == nil || a.limiter == nil || level < a.min || level == zerolog.NoLevel {
		return len(p), nil
	}
	if !a.limiter.Allow() {
		return len(p), nil
	}
	_, _ = io.WriteString(a.out, condense(p)+"\n")
	return len(p), nil
}

// condense renders a zerolog JSON event as "[LEVEL] msg task=.. unit=.. k=v".
// Input that is not JSON is passed through trimmed.
func condense(p []byte) string {
	raw := strings.TrimSpace(string(p))
	var ev map[string]any
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return clip(raw, alertLineMax)
	}

	var b strings.Builder
	if lvl, _ := ev[zerolog.LevelFieldName].(string); lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	msg, _ := ev[zerolog.MessageFieldName].(string)
	b.WriteString(msg)

	seen := map[string]bool{}
	put := func(k string) {
		v, ok := ev[k]
		if !ok || seen[k] || alertSkipped[k] {
			return
		}
		seen[k] = true
		fmt.Fprintf(&b, " %s=%s", k, clip(fmt.Sprint(v), alertValueMax))
	}
	for _, k := range alertLeading {
		put(k)
	}
	rest := make([]string, 0, len(ev))
	for k := range ev {
		rest = append(rest, k)
	}
	sort.Strings(rest)
	for _, k := range rest {
		put(k)
	}
	return clip(b.String(), alertLineMax)
}

func clip(s string, n int) string {
	switch {
	case len(s) <= n:
		return s
	case n < 10:
		return s[:n]
	default:
		return s[:n-3] + "..."
	}
}
