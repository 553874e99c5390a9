package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Browser builds wrote ids as numbers (seed data and Date.now()) and used a
// few field names that have since been renamed. Payloads are rewritten onto
// the current shape before they are decoded into typed records.

var legacyIDFields = []string{"id", "studentId", "hostelId", "currentHostelId", "requestedHostelId"}

var legacyRenames = map[string]string{
	"hostel":      "hostelName",
	"parentName":  "guardianName",
	"parentPhone": "guardianPhone",
}

// nested records normalised with their parent.
var legacyNested = []string{"studentDetails", "student"}

// normalizeLegacyList rewrites a JSON array of records. The payload is
// returned unchanged when nothing needed rewriting.
func normalizeLegacyList(payload []byte) ([]byte, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, err
	}
	changed := false
	for i, raw := range items {
		out, ok, err := normalizeLegacyRecord(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if ok {
			items[i] = out
			changed = true
		}
	}
	if !changed {
		return payload, nil
	}
	return json.Marshal(items)
}

func normalizeLegacyRecord(raw json.RawMessage) (json.RawMessage, bool, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, false, err
	}
	if fields == nil || !normalizeLegacyFields(fields) {
		return raw, false, nil
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func normalizeLegacyFields(fields map[string]any) bool {
	changed := false
	for _, key := range legacyIDFields {
		if n, ok := fields[key].(json.Number); ok {
			fields[key] = legacyNumberString(n)
			changed = true
		}
	}
	for from, to := range legacyRenames {
		v, ok := fields[from]
		if !ok {
			continue
		}
		if _, taken := fields[to]; !taken {
			fields[to] = v
		}
		delete(fields, from)
		changed = true
	}
	if fee, ok := fields["feeDue"].(string); ok {
		fields["feeDue"] = legacyAmount(fee)
		changed = true
	}
	for _, key := range legacyNested {
		if nested, ok := fields[key].(map[string]any); ok && normalizeLegacyFields(nested) {
			changed = true
		}
	}
	return changed
}

// legacyNumberString renders a numeric id the way it reads in decimal, so
// 1 becomes "1" and a Date.now() stamp keeps all of its digits.
func legacyNumberString(n json.Number) string {
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return n.String()
}

// legacyAmount reads display amounts such as "₹15,000" as whole rupees.
func legacyAmount(s string) int {
	if whole, _, ok := strings.Cut(s, "."); ok {
		s = whole
	}
	total := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			total = total*10 + int(r-'0')
		}
	}
	return total
}

// decodeLegacySession accepts the single profile object the browser build
// stored under the session key and turns it into one session.
func decodeLegacySession(payload []byte) (map[string]Session, error) {
	out, _, err := normalizeLegacyRecord(payload)
	if err != nil {
		return nil, err
	}
	var st Student
	if err := json.Unmarshal(out, &st); err != nil {
		return nil, err
	}
	sess := Session{ID: uuid.NewString(), StudentID: st.ID, Student: st}
	return map[string]Session{sess.ID: sess}, nil
}

func isJSONObject(payload []byte) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) > 0 && trimmed[0] == '{'
}
