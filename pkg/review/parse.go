package review

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"gazette-ingest/pkg/domain"
)

// bareNone matches an unquoted None used as a JSON value.
var bareNone = regexp.MustCompile(`(:\s*)None(\s*[,}\]\n]|\s*$)`)

// cleanResponse strips markdown fences and, when the rest is not valid JSON,
// quotes bare None values.
func cleanResponse(content string) string {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if !json.Valid([]byte(s)) {
		s = bareNone.ReplaceAllString(s, `${1}"None"${2}`)
	}
	return strings.TrimSpace(s)
}

// decodeObject decodes content into a JSON object. A one-element array
// wrapping the object is accepted.
func decodeObject(content []byte) (map[string]any, error) {
	content = bytes.TrimSpace(content)
	if len(content) == 0 {
		return nil, errors.New("empty response")
	}

	if content[0] == '[' {
		var items []map[string]any
		if err := json.Unmarshal(content, &items); err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return nil, errors.New("empty array response")
		}
		return items[0], nil
	}

	var obj map[string]any
	if err := json.Unmarshal(content, &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("response is not a JSON object")
	}
	return obj, nil
}

// recordStringFields holds the JSON keys of DraftRecord's plain string fields.
var recordStringFields = stringFieldKeys(reflect.TypeOf(domain.DraftRecord{}))

func stringFieldKeys(t reflect.Type) map[string]bool {
	keys := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Type.Kind() != reflect.String {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		keys[name] = true
	}
	return keys
}

// decodeRecord converts a model response into a DraftRecord. Loosely typed
// answers are coerced rather than rejected: "None" or null sections become
// empty, and lists or objects given for a text field are flattened to text.
func decodeRecord(content []byte) (domain.DraftRecord, error) {
	obj, err := decodeObject(content)
	if err != nil {
		return domain.DraftRecord{}, err
	}

	// An object _id (e.g. {"$oid": ...}) is regenerated during normalisation.
	if _, isObj := obj["_id"].(map[string]any); isObj {
		delete(obj, "_id")
	}
	// Token usage is measured by the completer, never taken from the model.
	delete(obj, "total_token_usage")

	stringifyScalars(obj)
	flattenText(obj, recordStringFields)

	for _, nested := range []string{"dates", "impact_score"} {
		m, ok := obj[nested].(map[string]any)
		if !ok {
			delete(obj, nested)
			continue
		}
		stringifyScalars(m)
		flattenText(m, nil)
	}
	if _, ok := obj["phi_theme_categorized"].(map[string]any); !ok {
		delete(obj, "phi_theme_categorized")
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return domain.DraftRecord{}, err
	}

	var rec domain.DraftRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.DraftRecord{}, err
	}
	return rec, nil
}

// stringifyScalars turns numbers and booleans into strings; the record has
// no numeric fields at these levels.
func stringifyScalars(m map[string]any) {
	for k, v := range m {
		switch t := v.(type) {
		case float64:
			m[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			m[k] = strconv.FormatBool(t)
		}
	}
}

// flattenText turns list and object values into strings. Only keys in
// fields are touched; a nil set means every key.
func flattenText(m map[string]any, fields map[string]bool) {
	for k, v := range m {
		if fields != nil && !fields[k] {
			continue
		}
		switch t := v.(type) {
		case []any:
			parts := make([]string, 0, len(t))
			for _, item := range t {
				if item == nil {
					continue
				}
				parts = append(parts, textOf(item))
			}
			m[k] = strings.Join(parts, "; ")
		case map[string]any:
			m[k] = textOf(t)
		}
	}
}

func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// normalizer fills fields the analysts are unreliable about.
type normalizer struct {
	fileName string
	today    string
	newID    func() string
}

func (n normalizer) apply(rec *domain.DraftRecord) {
	if isBlank(rec.Agency) {
		rec.Agency = rec.DepartmentName
	}
	if isBlank(rec.Agency) {
		rec.Agency = domain.NoneValue
	}
	if strings.TrimSpace(rec.DateAdded) == "" {
		rec.DateAdded = n.today
	}
	if strings.TrimSpace(rec.UniqueID) == "" {
		rec.UniqueID = n.newID()
	}
	if strings.TrimSpace(rec.NoticeID) == "" {
		if !isBlank(rec.NoticeNumber) {
			rec.NoticeID = rec.NoticeNumber + "_" + rec.DateAdded
		} else {
			rec.NoticeID = rec.UniqueID
		}
	}
	if strings.TrimSpace(rec.FilePath) == "" {
		rec.FilePath = n.fileName
	}
	if strings.TrimSpace(rec.BlobName) == "" && n.fileName != "" {
		rec.BlobName = fmt.Sprintf("documents/%s/%s", rec.DateAdded, n.fileName)
	}
}

func isBlank(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == domain.NoneValue
}

// verdict is the senior analyst's response.
type verdict struct {
	AllCorrect       *bool             `json:"all_correct"`
	FieldValidations map[string]bool   `json:"field_validations"`
	IssuesFound      domain.StringList `json:"issues_found"`
	CorrectedRecord  json.RawMessage   `json:"corrected_record"`
}

func (v verdict) hasCorrection() bool {
	raw := bytes.TrimSpace(v.CorrectedRecord)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null")) && !bytes.Equal(raw, []byte("{}"))
}

func decodeVerdict(content []byte) (verdict, error) {
	var v verdict
	if err := json.Unmarshal(bytes.TrimSpace(content), &v); err != nil {
		return verdict{}, err
	}
	if v.AllCorrect == nil {
		return verdict{}, errors.New("missing all_correct")
	}
	if !*v.AllCorrect && !v.hasCorrection() {
		return verdict{}, errors.New("record marked incorrect without corrected_record")
	}
	return v, nil
}
