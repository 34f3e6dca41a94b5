package agent

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	json "github.com/json-iterator/go"
)

// ErrNoJSON means the model reply contains no JSON object at all.
var ErrNoJSON = errors.New("could not find any JSON in the model response")

// ErrMissingFunction means the JSON object has no "function" field.
var ErrMissingFunction = errors.New("no function specified in action")

// A regex to extract a JSON object from a markdown code block.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

type rawAction struct {
	Function   string         `json:"function"`
	Parameters map[string]any `json:"parameters"`
}

// extractJSON prefers a fenced code block and otherwise slices from the first
// '{' to the last '}'.
func extractJSON(text string) (string, bool) {
	if m := jsonBlockRegex.FindStringSubmatch(text); len(m) > 1 {
		if s, ok := braceSlice(m[1]); ok {
			return s, true
		}
	}
	return braceSlice(text)
}

func braceSlice(text string) (string, bool) {
	first := strings.Index(text, "{")
	last := strings.LastIndex(text, "}")
	if first == -1 || last <= first {
		return "", false
	}
	return text[first : last+1], true
}

// ParseAction converts a model reply into an Action.
//
// A reply naming a function the agent does not implement yields both an
// Action carrying UnknownParams and an *ExecutionError with
// ErrCodeUnknownAction, so callers can choose between strict rejection and
// letting the executor report it.
func ParseAction(reply string) (Action, error) {
	payload, ok := extractJSON(strings.TrimSpace(reply))
	if !ok {
		return Action{}, ErrNoJSON
	}

	var raw rawAction
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Action{}, fmt.Errorf("failed to unmarshal extracted JSON: %w", err)
	}
	name := ActionName(strings.TrimSpace(raw.Function))
	if name == "" {
		return Action{}, ErrMissingFunction
	}

	target := paramsFor(name)
	if target == nil {
		action := Action{Name: name, Params: UnknownParams{Raw: raw.Parameters}}
		return action, &ExecutionError{
			Code:    ErrCodeUnknownAction,
			Action:  name,
			Message: fmt.Sprintf("Unknown function: %s", name),
		}
	}

	if len(raw.Parameters) > 0 {
		coerceNumbers(target, raw.Parameters)
		data, err := json.Marshal(raw.Parameters)
		if err != nil {
			return Action{}, fmt.Errorf("failed to re-encode parameters: %w", err)
		}
		if err := json.Unmarshal(data, target); err != nil {
			return Action{}, fmt.Errorf("invalid parameters for %s: %w", name, err)
		}
	}

	params := reflect.ValueOf(target).Elem().Interface().(ActionParams)
	return Action{Name: name, Params: params}, nil
}

// coerceNumbers rewrites params in place so numeric fields of target accept
// numeric strings, and integer fields accept fractional numbers (rounded).
func coerceNumbers(target ActionParams, params map[string]any) {
	t := reflect.TypeOf(target).Elem()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		v, ok := params[key]
		if !ok {
			continue
		}

		var f float64
		switch n := v.(type) {
		case float64:
			f = n
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
			if err != nil {
				continue
			}
			f = parsed
		default:
			continue
		}

		switch field.Type.Kind() {
		case reflect.Int, reflect.Int64, reflect.Int32:
			params[key] = int64(math.Round(f))
		case reflect.Float64, reflect.Float32:
			params[key] = f
		}
	}
}
