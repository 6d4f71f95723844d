package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/wolfman30/salon-concierge/internal/schedule"
)

var (
	isoDateRE       = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	weekdayRE       = regexp.MustCompile(`\b(sunday|monday|tuesday|wednesday|thursday|friday|saturday|sun|mon|tues|tue|wed|thurs|thu|fri|sat)\b`)
	meridiemRE      = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm|a\.m\.|p\.m\.)(?:[^a-z]|$)`)
	clock24RE       = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)\b`)
	bareAtHourRE    = regexp.MustCompile(`(?:\bat|@|\ba las)\s+(\d{1,2})\b`)
	noonRE          = regexp.MustCompile(`\bnoon\b|\bmediod[ií]a\b`)
	flexiblePhrases = []string{"any time", "anytime", "whenever", "flexible", "no preference", "cualquier hora"}
	spanishMarkers  = []string{"hola", "mañana", "corte", "por favor", "quiero", "cita"}
)

// RuleBasedClient is a deterministic LLMClient that answers extraction
// requests with regular expressions. It backs local development and serves
// as the fallback when the hosted model is unavailable.
type RuleBasedClient struct{}

func NewRuleBasedClient() *RuleBasedClient {
	return &RuleBasedClient{}
}

func (c *RuleBasedClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	if err := ctx.Err(); err != nil {
		return LLMResponse{}, err
	}
	var in extractionInput
	found := false
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ChatRoleUser {
			if err := json.Unmarshal([]byte(req.Messages[i].Content), &in); err != nil {
				return LLMResponse{}, fmt.Errorf("intent: rules client expects a JSON extraction request: %w", err)
			}
			found = true
			break
		}
	}
	if !found {
		return LLMResponse{}, errors.New("intent: rules client requires a user message")
	}
	today, err := schedule.ParseDate(in.Today)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("intent: rules client: %w", err)
	}

	out := extractByRules(in.Text, in.KnownServices, today)
	body, err := json.Marshal(out)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("intent: rules client encode: %w", err)
	}
	return LLMResponse{Text: string(body), StopReason: "end_turn"}, nil
}

func extractByRules(text string, known []string, today schedule.Date) map[string]any {
	lower := strings.ToLower(strings.Join(strings.Fields(text), " "))
	out := map[string]any{}

	if name := matchService(lower, known); name != "" {
		out["service_name"] = name
	}

	switch {
	case isoDateRE.MatchString(lower):
		out["date"] = isoDateRE.FindStringSubmatch(lower)[1]
	case strings.Contains(lower, "day after tomorrow") || strings.Contains(lower, "pasado mañana"):
		out["date"] = today.AddDays(2).String()
	case strings.Contains(lower, "tomorrow") || strings.Contains(lower, "mañana"):
		out["date"] = today.AddDays(1).String()
	case strings.Contains(lower, "today") || strings.Contains(lower, "tonight") || strings.Contains(lower, "hoy"):
		out["date"] = today.String()
	case weekdayRE.MatchString(lower):
		if wd, ok := parseWeekday(weekdayRE.FindStringSubmatch(lower)[1]); ok {
			out["day_of_week"] = strings.ToLower(wd.String())
		}
	}

	if t, ok := matchTime(lower); ok {
		out["time"] = t.String()
	} else {
		for _, phrase := range flexiblePhrases {
			if strings.Contains(lower, phrase) {
				out["is_flexible"] = true
				break
			}
		}
	}

	out["language"] = "en"
	for _, marker := range spanishMarkers {
		if strings.Contains(lower, marker) {
			out["language"] = "es"
			break
		}
	}
	return out
}

// matchService returns the longest known service name mentioned in text.
func matchService(lower string, known []string) string {
	names := append([]string(nil), known...)
	sort.SliceStable(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		n := strings.ToLower(strings.TrimSpace(name))
		if n != "" && strings.Contains(lower, n) {
			return name
		}
	}
	return ""
}

func matchTime(lower string) (schedule.TimeOfDay, bool) {
	if m := meridiemRE.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute := 0
		if m[2] != "" {
			minute, _ = strconv.Atoi(m[2])
		}
		if hour < 1 || hour > 12 {
			return schedule.TimeOfDay{}, false
		}
		pm := strings.HasPrefix(m[3], "p")
		switch {
		case pm && hour != 12:
			hour += 12
		case !pm && hour == 12:
			hour = 0
		}
		return schedule.TimeOfDay{Hour: hour, Minute: minute}, true
	}
	if noonRE.MatchString(lower) {
		return schedule.TimeOfDay{Hour: 12}, true
	}
	if m := clock24RE.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		return schedule.TimeOfDay{Hour: hour, Minute: minute}, true
	}
	if m := bareAtHourRE.FindStringSubmatch(lower); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if hour < 1 || hour > 12 {
			return schedule.TimeOfDay{}, false
		}
		// Salons are closed before 8, so "at 3" means the afternoon.
		if hour < 8 {
			hour += 12
		}
		return schedule.TimeOfDay{Hour: hour}, true
	}
	return schedule.TimeOfDay{}, false
}
