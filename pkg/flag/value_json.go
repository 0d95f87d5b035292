package flag

import (
	"encoding/json"
	"errors"
	"fmt"
)

// valueDoc is the wire shape of a Value. The explicit type tag keeps the
// union closed across storage, cache and hub transports.
type valueDoc struct {
	Type   Kind            `json:"type"`
	Bool   *bool           `json:"bool,omitempty"`
	String *string         `json:"string,omitempty"`
	Number *float64        `json:"number,omitempty"`
	Int    *int64          `json:"int,omitempty"`
	List   []string        `json:"list,omitempty"`
	JSON   json.RawMessage `json:"json,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	doc := valueDoc{Type: v.Kind()}
	switch v.Kind() {
	case KindBool:
		doc.Bool = &v.b
	case KindString, KindVariant:
		doc.String = &v.s
	case KindNumber:
		doc.Number = &v.f
	case KindInteger:
		doc.Int = &v.i
	case KindList:
		doc.List = v.list
	case KindJSON:
		raw, err := json.Marshal(v.obj)
		if err != nil {
			return nil, fmt.Errorf("marshal json value: %w", err)
		}
		doc.JSON = raw
	}
	return json.Marshal(doc)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var doc valueDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if !doc.Type.Valid() {
		return fmt.Errorf("unknown value type %q", doc.Type)
	}

	switch doc.Type {
	case KindNull:
		*v = NullValue()
	case KindBool:
		if doc.Bool == nil {
			return errors.New("bool value missing payload")
		}
		*v = BoolValue(*doc.Bool)
	case KindString:
		if doc.String == nil {
			return errors.New("string value missing payload")
		}
		*v = StringValue(*doc.String)
	case KindVariant:
		if doc.String == nil {
			return errors.New("variant value missing payload")
		}
		*v = VariantValue(*doc.String)
	case KindNumber:
		if doc.Number == nil {
			return errors.New("number value missing payload")
		}
		*v = NumberValue(*doc.Number)
	case KindInteger:
		if doc.Int == nil {
			return errors.New("integer value missing payload")
		}
		*v = IntegerValue(*doc.Int)
	case KindList:
		*v = ListValue(doc.List...)
	case KindJSON:
		var obj map[string]any
		if len(doc.JSON) > 0 {
			if err := json.Unmarshal(doc.JSON, &obj); err != nil {
				return fmt.Errorf("unmarshal json value: %w", err)
			}
		}
		*v = JSONValue(obj)
	}
	return nil
}
