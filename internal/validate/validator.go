package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/at-bus-load/internal/common/logger"
	"github.com/at-bus-load/pkg/atbus/models"
)

// Policy decides what happens to an envelope holding invalid records
type Policy int

const (
	// RejectEnvelope fails the whole envelope when any record is invalid
	RejectEnvelope Policy = iota
	// DropInvalid keeps the valid records and logs the rejected ones
	DropInvalid
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "reject":
		return RejectEnvelope, nil
	case "drop":
		return DropInvalid, nil
	default:
		return RejectEnvelope, fmt.Errorf("unknown validation policy %q", s)
	}
}

func (p Policy) String() string {
	if p == DropInvalid {
		return "drop"
	}
	return "reject"
}

type jsonType int

const (
	jsonString jsonType = iota
	jsonNumber
	jsonInteger
)

func (t jsonType) String() string {
	switch t {
	case jsonNumber:
		return "number"
	case jsonInteger:
		return "integer"
	default:
		return "string"
	}
}

type fieldSpec struct {
	name string
	typ  jsonType
}

type Validator struct {
	validate *validator.Validate
	policy   Policy
	logger   logger.Logger

	stopFields []fieldSpec
	tripFields []fieldSpec
}

func New(policy Policy, log logger.Logger) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(jsonName)
	if err := v.RegisterValidation("gtfs_time", gtfsTime); err != nil {
		panic(fmt.Sprintf("registering gtfs_time validation: %v", err))
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Validator{
		validate:   v,
		policy:     policy,
		logger:     log,
		stopFields: fieldsOf(reflect.TypeOf(models.StopAttributes{})),
		tripFields: fieldsOf(reflect.TypeOf(models.TripAttributes{})),
	}
}

func (v *Validator) Policy() Policy {
	return v.policy
}

// ValidateStops checks a raw stops response body
func (v *Validator) ValidateStops(body []byte) (*models.StopEnvelope, error) {
	return validateEnvelope[models.StopAttributes](v, models.KindStops, v.stopFields, body)
}

// ValidateTrips checks a raw stoptrips response body
func (v *Validator) ValidateTrips(body []byte) (*models.TripEnvelope, error) {
	return validateEnvelope[models.TripAttributes](v, models.KindTrips, v.tripFields, body)
}

func validateEnvelope[A any](v *Validator, kind models.Kind, fields []fieldSpec, body []byte) (*models.Envelope[A], error) {
	verr := &ValidationError{Kind: kind}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil || top == nil {
		verr.add("$", "object", "response body must be a JSON object")
		return nil, verr
	}

	rawData, ok := top["data"]
	if !ok {
		verr.add("data", "required", "Expected 'data' key in the JSON response")
		return nil, verr
	}
	var items []json.RawMessage
	if isNull(rawData) || json.Unmarshal(rawData, &items) != nil {
		verr.add("data", "array", "data must be a JSON array")
		return nil, verr
	}

	env := &models.Envelope[A]{Kind: kind, Next: nextLink(top["links"])}

	for i, item := range items {
		prefix := fmt.Sprintf("data[%d]", i)

		res, violations := checkStructure[A](prefix, item, fields)
		if len(violations) == 0 {
			violations = v.checkSemantics(prefix, kind, res.Type, res.Attributes)
		}

		if len(violations) == 0 {
			env.Data = append(env.Data, *res)
			continue
		}

		verr.Violations = append(verr.Violations, violations...)
		if v.policy == DropInvalid {
			env.Dropped++
			v.logger.Warn("Dropping invalid record",
				"kind", kind,
				"index", i,
				"violations", len(violations),
				"first", violations[0].String())
		}
	}

	if len(verr.Violations) > 0 && v.policy == RejectEnvelope {
		return nil, verr
	}

	return env, nil
}

// checkStructure verifies keys, nesting and JSON value types of one record and
// decodes it once they hold
func checkStructure[A any](prefix string, item json.RawMessage, fields []fieldSpec) (*models.Resource[A], []Violation) {
	verr := &ValidationError{}

	var obj map[string]json.RawMessage
	if isNull(item) || json.Unmarshal(item, &obj) != nil {
		verr.add(prefix, "object", "record must be a JSON object")
		return nil, verr.Violations
	}

	for _, key := range []string{"type", "id"} {
		raw, ok := obj[key]
		if !ok {
			verr.add(prefix+"."+key, "required", key+" is required")
			continue
		}
		if !matchesType(raw, jsonString) {
			verr.add(prefix+"."+key, "string", key+" must be a string")
		}
	}

	rawAttrs, ok := obj["attributes"]
	if !ok {
		verr.add(prefix+".attributes", "required", "attributes is required")
		return nil, verr.Violations
	}
	var attrs map[string]json.RawMessage
	if isNull(rawAttrs) || json.Unmarshal(rawAttrs, &attrs) != nil {
		verr.add(prefix+".attributes", "object", "attributes must be a JSON object")
		return nil, verr.Violations
	}

	for _, f := range fields {
		path := prefix + ".attributes." + f.name
		raw, ok := attrs[f.name]
		if !ok {
			verr.add(path, "required", f.name+" is required")
			continue
		}
		if !matchesType(raw, f.typ) {
			verr.add(path, f.typ.String(), fmt.Sprintf("%s must be a JSON %s", f.name, f.typ))
		}
	}

	if len(verr.Violations) > 0 {
		return nil, verr.Violations
	}

	var res models.Resource[A]
	if err := json.Unmarshal(item, &res); err != nil {
		verr.add(prefix, "decode", err.Error())
		return nil, verr.Violations
	}
	return &res, nil
}

func (v *Validator) checkSemantics(prefix string, kind models.Kind, typeTag string, attrs interface{}) []Violation {
	verr := &ValidationError{}

	if want := kind.TypeTag(); typeTag != want {
		verr.add(prefix+".type", "eq="+want, fmt.Sprintf("Type must be %q", want))
	}

	err := v.validate.Struct(attrs)
	var fieldErrs validator.ValidationErrors
	switch {
	case err == nil:
	case errors.As(err, &fieldErrs):
		for _, fe := range fieldErrs {
			verr.add(prefix+".attributes."+fe.Field(), constraintOf(fe), messageFor(fe))
		}
	default:
		verr.add(prefix+".attributes", "struct", err.Error())
	}

	return verr.Violations
}

func matchesType(raw json.RawMessage, typ jsonType) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || isNull(raw) {
		return false
	}
	switch typ {
	case jsonString:
		return raw[0] == '"'
	case jsonNumber:
		_, err := strconv.ParseFloat(string(raw), 64)
		return err == nil && raw[0] != '"'
	case jsonInteger:
		_, err := strconv.ParseInt(string(raw), 10, 64)
		return err == nil
	}
	return false
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func nextLink(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var links models.Links
	if err := json.Unmarshal(raw, &links); err != nil {
		return ""
	}
	return links.Next
}

func jsonName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func fieldsOf(t reflect.Type) []fieldSpec {
	specs := make([]fieldSpec, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name := jsonName(f)
		if name == "" {
			continue
		}
		var typ jsonType
		switch f.Type.Kind() {
		case reflect.Float32, reflect.Float64:
			typ = jsonNumber
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			typ = jsonInteger
		default:
			typ = jsonString
		}
		specs = append(specs, fieldSpec{name: name, typ: typ})
	}
	return specs
}
