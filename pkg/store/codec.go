package store

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Records travel as google.protobuf.Struct both in the journal and over gRPC.

func timeValue(t time.Time) *structpb.Value {
	if t.IsZero() {
		return structpb.NewStringValue("")
	}
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

func stringList(ids []string) *structpb.Value {
	values := make([]*structpb.Value, len(ids))
	for i, id := range ids {
		values[i] = structpb.NewStringValue(id)
	}
	return structpb.NewListValue(&structpb.ListValue{Values: values})
}

// ElementToStruct converts an element to its wire form
func ElementToStruct(el Element) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":         structpb.NewStringValue(el.ID),
		"kind":       structpb.NewStringValue(el.Kind.String()),
		"contents":   structpb.NewStringValue(el.Contents),
		"children":   stringList(el.Children),
		"created_at": timeValue(el.CreatedAt),
	}}
}

// ElementFromStruct parses the wire form of an element
func ElementFromStruct(s *structpb.Struct) (Element, error) {
	f := s.GetFields()
	kind, err := ParseKind(f["kind"].GetStringValue())
	if err != nil {
		return Element{}, err
	}
	created, err := parseTime(f["created_at"].GetStringValue())
	if err != nil {
		return Element{}, fmt.Errorf("element created_at: %w", err)
	}

	el := Element{
		ID:        f["id"].GetStringValue(),
		Kind:      kind,
		Contents:  f["contents"].GetStringValue(),
		CreatedAt: created,
	}
	for _, v := range f["children"].GetListValue().GetValues() {
		el.Children = append(el.Children, v.GetStringValue())
	}
	return el, nil
}

// AnnotationToStruct converts an annotation to its wire form
func AnnotationToStruct(ann Annotation) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":                  structpb.NewStringValue(ann.ID),
		"previous_version_id": structpb.NewStringValue(ann.PreviousVersionID),
		"kind":                structpb.NewStringValue(string(ann.Kind)),
		"contents":            structpb.NewStringValue(ann.Contents),
		"status":              structpb.NewStringValue(string(ann.Status)),
		"created_at":          timeValue(ann.CreatedAt),
	}}
}

// AnnotationFromStruct parses the wire form of an annotation
func AnnotationFromStruct(s *structpb.Struct) (Annotation, error) {
	f := s.GetFields()
	created, err := parseTime(f["created_at"].GetStringValue())
	if err != nil {
		return Annotation{}, fmt.Errorf("annotation created_at: %w", err)
	}

	ann := Annotation{
		ID:                f["id"].GetStringValue(),
		PreviousVersionID: f["previous_version_id"].GetStringValue(),
		Kind:              AnnotationKind(f["kind"].GetStringValue()),
		Contents:          f["contents"].GetStringValue(),
		Status:            AnnotationStatus(f["status"].GetStringValue()),
		CreatedAt:         created,
	}
	if !ann.Kind.Valid() || !ann.Status.Valid() {
		return Annotation{}, fmt.Errorf("%w: kind=%q status=%q", ErrInvalidAnnotation, ann.Kind, ann.Status)
	}
	return ann, nil
}

// MappingToStruct converts an element annotation mapping to its wire form.
// An open interval is encoded as null.
func MappingToStruct(ea ElementAnnotation) *structpb.Struct {
	through := structpb.NewNullValue()
	if !ea.ValidThrough.IsOpen() {
		through = structpb.NewNumberValue(float64(ea.ValidThrough.Number()))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"element_id":    structpb.NewStringValue(ea.ElementID),
		"annotation_id": structpb.NewStringValue(ea.AnnotationID),
		"valid_from":    structpb.NewNumberValue(float64(ea.ValidFrom)),
		"valid_through": through,
	}}
}

// MappingFromStruct parses the wire form of a mapping
func MappingFromStruct(s *structpb.Struct) ElementAnnotation {
	f := s.GetFields()
	ea := ElementAnnotation{
		ElementID:    f["element_id"].GetStringValue(),
		AnnotationID: f["annotation_id"].GetStringValue(),
		ValidFrom:    int(f["valid_from"].GetNumberValue()),
		ValidThrough: Open(),
	}
	if v, ok := f["valid_through"]; ok {
		if _, isNull := v.GetKind().(*structpb.Value_NullValue); !isNull {
			ea.ValidThrough = Closed(int(v.GetNumberValue()))
		}
	}
	return ea
}

// VersionToStruct converts a version to its wire form
func VersionToStruct(v Version) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":             structpb.NewStringValue(v.ID),
		"number":         structpb.NewNumberValue(float64(v.Number)),
		"root_id":        structpb.NewStringValue(v.RootID),
		"format_version": structpb.NewStringValue(v.FormatVersion),
		"created_at":     timeValue(v.CreatedAt),
	}}
}

// VersionFromStruct parses the wire form of a version
func VersionFromStruct(s *structpb.Struct) (Version, error) {
	f := s.GetFields()
	created, err := parseTime(f["created_at"].GetStringValue())
	if err != nil {
		return Version{}, fmt.Errorf("version created_at: %w", err)
	}
	v := Version{
		ID:            f["id"].GetStringValue(),
		Number:        int(f["number"].GetNumberValue()),
		RootID:        f["root_id"].GetStringValue(),
		FormatVersion: f["format_version"].GetStringValue(),
		CreatedAt:     created,
	}
	if v.Number < 1 || v.RootID == "" {
		return Version{}, fmt.Errorf("%w: version %d root %q", ErrInvalidArgument, v.Number, v.RootID)
	}
	return v, nil
}

// MarshalRecord encodes a wire record as protobuf bytes
func MarshalRecord(s *structpb.Struct) ([]byte, error) {
	return proto.Marshal(s)
}

// UnmarshalRecord decodes protobuf bytes produced by MarshalRecord
func UnmarshalRecord(data []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, err
	}
	return s, nil
}
