package healer

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var (
	instanceIDPattern = regexp.MustCompile(`^i-\S+$`)
	instanceIDSearch  = regexp.MustCompile(`i-[a-z0-9]+`)
)

// ValidInstanceID reports whether id carries the instance id prefix. Free
// text is searched with the stricter lowercase form.
func ValidInstanceID(id string) bool {
	return instanceIDPattern.MatchString(id)
}

// extractor is one strategy for locating an instance id. Order in
// extractors is policy: structured fields win over free text.
type extractor struct {
	name string
	find func(AlertMessage) (string, bool)
}

var extractors = []extractor{
	{name: "Trigger.Dimensions.InstanceId", find: fromTriggerDimensions},
	{name: "instance_id", find: fromField("instance_id")},
	{name: "InstanceId", find: fromField("InstanceId")},
	{name: RawMessageKey, find: fromRawMessage},
}

// ExtractInstanceID returns the affected instance id, trying each strategy in
// priority order. A missing id is an expected outcome, not an error.
func ExtractInstanceID(msg AlertMessage, logger zerolog.Logger) (string, bool) {
	for _, ex := range extractors {
		id, ok := ex.find(msg)
		if !ok {
			continue
		}
		logger.Info().Str("strategy", ex.name).Str("instance_id", id).Msg("extracted instance id")
		return id, true
	}

	logger.Warn().Msg("could not extract instance id from message")
	return "", false
}

func fromTriggerDimensions(msg AlertMessage) (string, bool) {
	dims, ok := msg.lookup("Trigger", "Dimensions")
	if !ok {
		return "", false
	}

	switch v := dims.(type) {
	case map[string]any:
		return validString(v["InstanceId"])
	case []any:
		// CloudWatch alarm notifications list dimensions as name/value pairs.
		for _, item := range v {
			dim, ok := item.(map[string]any)
			if !ok {
				continue
			}
			name := fmt.Sprint(firstOf(dim, "name", "Name"))
			if name != "InstanceId" {
				continue
			}
			return validString(firstOf(dim, "value", "Value"))
		}
	}
	return "", false
}

func fromField(key string) func(AlertMessage) (string, bool) {
	return func(msg AlertMessage) (string, bool) {
		return validString(msg[key])
	}
}

func fromRawMessage(msg AlertMessage) (string, bool) {
	raw, ok := msg[RawMessageKey]
	if !ok || raw == nil {
		return "", false
	}
	match := instanceIDSearch.FindString(fmt.Sprint(raw))
	if match == "" {
		return "", false
	}
	return match, true
}

func validString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if !ValidInstanceID(s) {
		return "", false
	}
	return s, true
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}
