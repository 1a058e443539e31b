package connector

import (
	"encoding/json"
	"strconv"
	"strings"
)

// wireEvent is the tagged-JSON shape a connector may emit verbatim instead
// of plain text, one object per line.
type wireEvent struct {
	Type         string `json:"type"`
	Content      string `json:"content,omitempty"`
	Name         string `json:"name,omitempty"`
	Args         string `json:"args,omitempty"`
	Message      string `json:"message,omitempty"`
	InputTokens  uint64 `json:"input_tokens,omitempty"`
	OutputTokens uint64 `json:"output_tokens,omitempty"`
}

type usageWrapper struct {
	Usage *struct {
		PromptTokens     uint64 `json:"prompt_tokens"`
		CompletionTokens uint64 `json:"completion_tokens"`
	} `json:"usage"`
}

// ParseOutputLine applies the four ordered stdout parsing rules in turn and
// returns the first one that matches. An empty/whitespace-only line that
// matches none of them yields (Event{}, false).
func ParseOutputLine(line string) (Event, bool) {
	if ev, ok := parseTaggedJSON(line); ok {
		return ev, true
	}
	if ev, ok := parseStructuredUsage(line); ok {
		return ev, true
	}
	if ev, ok := parseLooseUsage(line); ok {
		return ev, true
	}
	trimmed := strings.TrimSpace(line)
	if trimmed != "" && !strings.HasPrefix(trimmed, "/") {
		return ContentEvent(trimmed), true
	}
	return Event{}, false
}

// parseTaggedJSON handles rule 1: a line that is itself a tagged JSON
// record matching one of the Event variants.
func parseTaggedJSON(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Event{}, false
	}
	var w wireEvent
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil {
		return Event{}, false
	}
	switch w.Type {
	case "content":
		return ContentEvent(w.Content), true
	case "tool_call":
		return ToolCallEvent(w.Name, w.Args), true
	case "error":
		return ErrorEvent(w.Message), true
	case "usage":
		return UsageEvent(w.InputTokens, w.OutputTokens), true
	case "done":
		return DoneEvent(), true
	default:
		return Event{}, false
	}
}

// parseStructuredUsage handles rule 2: a JSON object carrying a nested
// "usage" object with prompt_tokens/completion_tokens.
func parseStructuredUsage(line string) (Event, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return Event{}, false
	}
	var w usageWrapper
	if err := json.Unmarshal([]byte(trimmed), &w); err != nil || w.Usage == nil {
		return Event{}, false
	}
	if w.Usage.PromptTokens == 0 && w.Usage.CompletionTokens == 0 {
		return Event{}, false
	}
	return UsageEvent(w.Usage.PromptTokens, w.Usage.CompletionTokens), true
}

// usage keywords that gate entry into the loose scan (rule 3); "tokens"
// alone may gate the scan without itself resolving a count.
var usageGateKeywords = []string{"tokens", "input", "output", "prompt", "completion"}

// parseLooseUsage handles rule 3: keyword-gated scan for the first integer
// following an input-like ("input"/"prompt") or output-like
// ("output"/"completion") keyword.
func parseLooseUsage(line string) (Event, bool) {
	lower := strings.ToLower(line)
	gated := false
	for _, kw := range usageGateKeywords {
		if strings.Contains(lower, kw) {
			gated = true
			break
		}
	}
	if !gated {
		return Event{}, false
	}

	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ' ' || r == ':'
	})

	var input, output uint64
	var found bool
	for i, f := range fields {
		lf := strings.ToLower(f)
		switch {
		case strings.Contains(lf, "input") || strings.Contains(lf, "prompt"):
			if n, ok := fieldAsInt(fields, i+1); ok {
				input = n
				found = true
			}
		case strings.Contains(lf, "output") || strings.Contains(lf, "completion"):
			if n, ok := fieldAsInt(fields, i+1); ok {
				output = n
				found = true
			}
		}
	}
	if !found || (input == 0 && output == 0) {
		return Event{}, false
	}
	return UsageEvent(input, output), true
}

func fieldAsInt(fields []string, i int) (uint64, bool) {
	if i < 0 || i >= len(fields) {
		return 0, false
	}
	n, err := strconv.ParseUint(fields[i], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
