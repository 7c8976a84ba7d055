package monday

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Dropdown settings_str has appeared in three shapes across boards:
//
//	{"labels": {"1": "Airbnb", "2": "Vrbo"}}          id → name map
//	{"labels": [{"id": 1, "name": "Airbnb"}, ...]}    list of objects
//	{"labels": ["Airbnb", "Vrbo"]}                    bare list of names
//
// ParseSettingsLabels reads any of them; ExtendSettingsLabels rewrites the
// settings while preserving the original shape and existing label ids.

type dropdownSettings struct {
	Labels json.RawMessage `json:"labels"`
}

// ParseSettingsLabels extracts the registered label names from a dropdown
// or status column's settings_str. Unparseable input yields nil.
func ParseSettingsLabels(settingsStr string) []string {
	if settingsStr == "" {
		return nil
	}

	var settings dropdownSettings
	if err := json.Unmarshal([]byte(settingsStr), &settings); err != nil || len(settings.Labels) == 0 {
		return nil
	}

	// id → name map
	var byID map[string]string
	if err := json.Unmarshal(settings.Labels, &byID); err == nil {
		ids := make([]int, 0, len(byID))
		byNum := make(map[int]string, len(byID))
		for id, name := range byID {
			n, err := strconv.Atoi(id)
			if err != nil {
				return mapValuesSorted(byID)
			}
			ids = append(ids, n)
			byNum[n] = name
		}
		sort.Ints(ids)
		names := make([]string, 0, len(ids))
		for _, id := range ids {
			names = append(names, byNum[id])
		}
		return names
	}

	// list of {id, name} objects
	var objects []struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(settings.Labels, &objects); err == nil {
		if allNamed(objects) {
			names := make([]string, 0, len(objects))
			for _, o := range objects {
				names = append(names, o.Name)
			}
			return names
		}
	}

	// bare list of names
	var names []string
	if err := json.Unmarshal(settings.Labels, &names); err == nil {
		return names
	}
	return nil
}

func allNamed(objects []struct {
	Name string `json:"name"`
}) bool {
	for _, o := range objects {
		if o.Name == "" {
			return false
		}
	}
	return len(objects) > 0
}

func mapValuesSorted(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for _, v := range m {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

// HasLabel reports whether wanted is already registered, compared
// case-insensitively on trimmed names.
func HasLabel(labels []string, wanted string) bool {
	target := strings.ToLower(strings.TrimSpace(wanted))
	for _, l := range labels {
		if strings.ToLower(strings.TrimSpace(l)) == target {
			return true
		}
	}
	return false
}

// ExtendSettingsLabels returns a settings_str with wanted appended to the
// registered labels, preserving the original shape and ids. When the
// settings are empty or unparseable it seeds a fresh id → name map from
// defaults plus wanted. The second return is false when wanted was already
// present and no rewrite is needed.
func ExtendSettingsLabels(settingsStr string, defaults []string, wanted string) (string, bool) {
	wanted = strings.TrimSpace(wanted)
	if wanted == "" {
		return settingsStr, false
	}

	if HasLabel(ParseSettingsLabels(settingsStr), wanted) {
		return settingsStr, false
	}

	var settings map[string]json.RawMessage
	if err := json.Unmarshal([]byte(settingsStr), &settings); err != nil || settings == nil {
		settings = map[string]json.RawMessage{}
	}

	raw := settings["labels"]
	settings["labels"] = extendLabelsRaw(raw, defaults, wanted)

	out, err := json.Marshal(settings)
	if err != nil {
		return settingsStr, false
	}
	return string(out), true
}

func extendLabelsRaw(raw json.RawMessage, defaults []string, wanted string) json.RawMessage {
	// id → name map: assign the next free numeric id
	var byID map[string]string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &byID); err == nil && byID != nil {
			byID[strconv.Itoa(nextFreeID(byID))] = wanted
			out, _ := json.Marshal(byID)
			return out
		}
	}

	// list of {id, name} objects: keep existing ids intact
	var objects []map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &objects); err == nil && looksLikeObjects(objects) {
			maxID := 0
			for _, o := range objects {
				if id, ok := o["id"].(float64); ok && int(id) > maxID {
					maxID = int(id)
				}
			}
			objects = append(objects, map[string]interface{}{"id": maxID + 1, "name": wanted})
			out, _ := json.Marshal(objects)
			return out
		}
	}

	// bare list of names
	var names []string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &names); err == nil {
			names = append(names, wanted)
			out, _ := json.Marshal(names)
			return out
		}
	}

	// empty or unrecognized: seed a fresh map from the defaults
	seeded := map[string]string{}
	id := 1
	for _, d := range defaults {
		if strings.EqualFold(strings.TrimSpace(d), wanted) {
			continue
		}
		seeded[strconv.Itoa(id)] = d
		id++
	}
	seeded[strconv.Itoa(id)] = wanted
	out, _ := json.Marshal(seeded)
	return out
}

func looksLikeObjects(objects []map[string]interface{}) bool {
	if len(objects) == 0 {
		return false
	}
	for _, o := range objects {
		if _, ok := o["name"]; !ok {
			return false
		}
	}
	return true
}

func nextFreeID(byID map[string]string) int {
	max := 0
	for id := range byID {
		if n, err := strconv.Atoi(id); err == nil && n > max {
			max = n
		}
	}
	return max + 1
}
