package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/dukerupert/reunion/internal/media"
	"github.com/dukerupert/reunion/internal/model"
	"github.com/dukerupert/reunion/internal/sanitize"
)

// Parts of a multipart body beyond this are spooled to temp files.
const multipartMemory = 8 << 20

// validationError carries a message safe to show the user.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalid(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// payload is a loosely typed request body: multipart form values, urlencoded
// form values or a decoded JSON object. Nothing in it is trusted until it
// has been through applyMemberFields or sanitize.
type payload struct {
	values map[string]any
	files  map[string][]*multipart.FileHeader
}

func (p payload) file(key string) *multipart.FileHeader {
	if fhs := p.files[key]; len(fhs) > 0 {
		return fhs[0]
	}
	return nil
}

// readPayload parses the request body, capping it at maxBytes.
func readPayload(w http.ResponseWriter, r *http.Request, maxBytes int64) (payload, error) {
	p := payload{values: map[string]any{}}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&p.values); err != nil {
			return p, bodyError(err, "Invalid JSON body")
		}
		if p.values == nil {
			p.values = map[string]any{}
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return p, bodyError(err, "Invalid form data")
		}
		for k, vs := range r.MultipartForm.Value {
			if len(vs) > 0 {
				p.values[k] = vs[0]
			}
		}
		p.files = r.MultipartForm.File
	default:
		if err := r.ParseForm(); err != nil {
			return p, bodyError(err, "Invalid form data")
		}
		for k := range r.PostForm {
			p.values[k] = r.PostForm.Get(k)
		}
	}
	return p, nil
}

func bodyError(err error, message string) error {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return invalid("%s", media.ErrTooLarge.Error())
	}
	return invalid("%s", message)
}

// Caps for sanitized member text.
const (
	maxNameLen             = 100
	maxEmailLen            = 254
	maxPhoneLen            = 20
	maxCityLen             = 100
	maxRelationshipLen     = 50
	maxConnectedThroughLen = 100
	maxFamilyBranchLen     = 100
	maxCaptionLen          = 25
	maxUploaderLen         = 50
	maxAttendees           = 100
	maxGeneration          = 1000
)

type textField struct {
	key      string
	label    string
	max      int
	required bool
	set      func(m *model.FamilyMember, v string)
}

var memberTextFields = []textField{
	{"name", "Name", maxNameLen, true, func(m *model.FamilyMember, v string) { m.Name = v }},
	{"email", "Email", maxEmailLen, true, func(m *model.FamilyMember, v string) { m.Email = v }},
	{"phone", "Phone", maxPhoneLen, true, func(m *model.FamilyMember, v string) { m.Phone = v }},
	{"city", "City", maxCityLen, false, func(m *model.FamilyMember, v string) { m.City = v }},
	{"relationshipType", "Relationship", maxRelationshipLen, true, func(m *model.FamilyMember, v string) { m.RelationshipType = v }},
	{"connectedThrough", "Connected through", maxConnectedThroughLen, true, func(m *model.FamilyMember, v string) { m.ConnectedThrough = v }},
	{"familyBranch", "Family branch", maxFamilyBranchLen, true, func(m *model.FamilyMember, v string) { m.FamilyBranch = v }},
}

// applyMemberFields sanitizes and validates values into m. With partial set
// only the keys present are touched, as for an update; otherwise every
// required field must be present. m is left unchanged on error.
func applyMemberFields(m *model.FamilyMember, values map[string]any, partial bool) error {
	next := *m

	for _, f := range memberTextFields {
		raw, ok := values[f.key]
		if !ok {
			if f.required && !partial {
				return invalid("%s is required", f.label)
			}
			continue
		}
		v := sanitize.Value(raw, f.max)
		if v == "" && f.required {
			return invalid("%s is required", f.label)
		}
		if f.key == "email" && !sanitize.Email(v) {
			return invalid("A valid email address is required")
		}
		f.set(&next, v)
	}

	if raw, ok := values["generation"]; ok && present(raw) {
		n, ok := intValue(raw)
		if !ok || n < 0 || n > maxGeneration {
			return invalid("Generation must be a whole number from 0 to %d", maxGeneration)
		}
		next.Generation = n
	} else if !partial {
		return invalid("Generation is required")
	}

	if raw, ok := values["attendees"]; ok && present(raw) {
		n, ok := intValue(raw)
		if !ok || n < 1 || n > maxAttendees {
			return invalid("Attendees must be between 1 and %d", maxAttendees)
		}
		next.Attendees = n
	} else if !partial {
		next.Attendees = 1
	}

	*m = next
	return nil
}

func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	default:
		return true
	}
}

// Integers beyond this are not exact as JSON numbers.
const maxExactInt = 1 << 53

// intValue accepts a decimal string (form fields) or an integral JSON number
// within ±2^53.
func intValue(v any) (int, bool) {
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil || n > maxExactInt || n < -maxExactInt {
			return 0, false
		}
		return int(n), true
	case float64:
		if x != math.Trunc(x) || math.Abs(x) > maxExactInt {
			return 0, false
		}
		return int(x), true
	default:
		return 0, false
	}
}
