package neopersist

import (
	"fmt"
	"reflect"
	"strings"
)

// entityMetadata holds the parsed `crud` tag information for a specific struct type.
// This metadata is cached by the PersistenceManager to avoid costly reflection on every call.
type entityMetadata struct {
	// Label is the graph node label, defaulting to the struct's name.
	Label string
	// PKField is the name of the struct field marked as the primary key.
	// Empty for relationship structs, which carry no key of their own.
	PKField string
	// PKProp is the property name of the primary key in the database.
	PKProp string
	// Mappings maps struct field names to their corresponding database property names.
	Mappings map[string]string
}

// parseTagsFromType inspects a reflect.Type and extracts persistence metadata
// from `crud` struct tags. Node types must tag exactly one field with `pk`.
func parseTagsFromType(typ reflect.Type) (*entityMetadata, error) {
	meta, err := parseFieldTags(typ)
	if err != nil {
		return nil, err
	}
	if meta.PKField == "" {
		return nil, fmt.Errorf("no primary key ('pk') tag defined for struct %s", meta.Label)
	}
	return meta, nil
}

// parseFieldTags is the key-agnostic half of tag parsing. Relationship structs
// go through it directly since an edge is identified by its endpoints.
func parseFieldTags(typ reflect.Type) (*entityMetadata, error) {
	// If the type is a pointer, get the underlying element's type.
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("type %s is not a struct", typ.Name())
	}

	meta := &entityMetadata{
		Label:    typ.Name(),
		Mappings: make(map[string]string),
	}

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("crud")

		// Skip fields that are not part of the persistence mapping.
		if tag == "" || tag == "-" {
			continue
		}

		isPk := false
		propName := ""
		for _, part := range strings.Split(tag, ",") {
			if part == "pk" {
				isPk = true
			}
			if strings.HasPrefix(part, "property:") {
				propName = strings.TrimPrefix(part, "property:")
			}
		}

		if propName == "" {
			return nil, fmt.Errorf("field %s is missing 'property' tag component", field.Name)
		}

		if isPk {
			if meta.PKField != "" {
				return nil, fmt.Errorf("struct %s declares more than one primary key", typ.Name())
			}
			meta.PKField = field.Name
			meta.PKProp = propName
		}
		meta.Mappings[field.Name] = propName
	}

	return meta, nil
}

// parseTags is a generic convenience wrapper around parseTagsFromType.
func parseTags[T any]() (*entityMetadata, error) {
	var instance T
	return parseTagsFromType(reflect.TypeOf(instance))
}

// propertyValue converts a struct field into a value the driver can send.
// Nil pointers become null, which removes the property on SET.
func propertyValue(field reflect.Value) interface{} {
	if field.Kind() == reflect.Ptr {
		if field.IsNil() {
			return nil
		}
		return field.Elem().Interface()
	}
	return field.Interface()
}

// assignProperty stores a value read from the database into a struct field.
// The driver hands back int64, float64 and []interface{}; they are converted
// to the field's declared numeric or slice type.
func assignProperty(field reflect.Value, value interface{}) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}
	if field.Kind() == reflect.Ptr {
		elem := reflect.New(field.Type().Elem())
		if err := assignProperty(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	src := reflect.ValueOf(value)
	switch {
	case src.Type().AssignableTo(field.Type()):
		field.Set(src)
	case field.Kind() == reflect.Slice && src.Kind() == reflect.Slice:
		out := reflect.MakeSlice(field.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			if err := assignProperty(out.Index(i), src.Index(i).Interface()); err != nil {
				return err
			}
		}
		field.Set(out)
	case isNumeric(src.Kind()) && isNumeric(field.Kind()):
		field.Set(src.Convert(field.Type()))
	default:
		return fmt.Errorf("cannot assign %T to field of type %s", value, field.Type())
	}
	return nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
