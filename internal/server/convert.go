package server

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/texttree/pkg/model"
	"github.com/nainya/texttree/pkg/store"
)

// Messages on the wire are google.protobuf.Struct values. The helpers below
// convert between them and the typed results the client returns.

// ElementInfo is an element plus its reconstructed text
type ElementInfo struct {
	ID       string
	Kind     string
	Contents string
	Children []string
	Text     string
	Version  int
}

// EditResult is the outcome of a structural edit
type EditResult struct {
	Version      int
	RootID       string
	Replacements []string
}

// AnnotationInfo is one annotation visible at the current version
type AnnotationInfo struct {
	ID                string
	PreviousVersionID string
	Kind              string
	Contents          string
	Status            string
	CreatedAt         time.Time
}

// VersionSummary describes one allocated version
type VersionSummary struct {
	Number    int
	RootID    string
	CreatedAt time.Time
}

// VersionInfo describes the version state of the document
type VersionInfo struct {
	Current       int
	Latest        int
	RootID        string
	FormatVersion string
	Versions      []VersionSummary
}

func stringList(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func elementMap(el store.Element, text string, version int) map[string]any {
	return map[string]any{
		"id":       el.ID,
		"kind":     el.Kind.String(),
		"contents": el.Contents,
		"children": stringList(el.Children),
		"text":     text,
		"version":  version,
	}
}

func editMap(e model.Edit) map[string]any {
	return map[string]any{
		"version":      e.Version,
		"root_id":      e.RootID,
		"replacements": stringList(e.Replacements),
	}
}

func annotationMap(a store.Annotation) map[string]any {
	return map[string]any{
		"id":                  a.ID,
		"previous_version_id": a.PreviousVersionID,
		"kind":                string(a.Kind),
		"contents":            a.Contents,
		"status":              string(a.Status),
		"created_at":          a.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// reply builds a response Struct; failures are conversion bugs
func reply(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return s, nil
}

// requireString reads a non-empty string field
func requireString(req *structpb.Struct, key string) (string, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	s, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || s.StringValue == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s must be a non-empty string", key)
	}
	return s.StringValue, nil
}

// optionalString reads a string field that may be absent or empty
func optionalString(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

// requireInt reads a whole-number field
func requireInt(req *structpb.Struct, key string) (int, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s is required", key)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", key)
	}
	return int(n.NumberValue), nil
}

// toStatus maps store error categories onto gRPC codes
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrJournalFailed):
		return status.Error(codes.Unavailable, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func getString(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func getInt(s *structpb.Struct, key string) int {
	return int(s.GetFields()[key].GetNumberValue())
}

func getStrings(s *structpb.Struct, key string) []string {
	values := s.GetFields()[key].GetListValue().GetValues()
	if len(values) == 0 {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.GetStringValue()
	}
	return out
}

func getTime(s *structpb.Struct, key string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, getString(s, key))
	if err != nil {
		return time.Time{}
	}
	return t
}

func decodeElement(s *structpb.Struct) ElementInfo {
	return ElementInfo{
		ID:       getString(s, "id"),
		Kind:     getString(s, "kind"),
		Contents: getString(s, "contents"),
		Children: getStrings(s, "children"),
		Text:     getString(s, "text"),
		Version:  getInt(s, "version"),
	}
}

func decodeEdit(s *structpb.Struct) EditResult {
	return EditResult{
		Version:      getInt(s, "version"),
		RootID:       getString(s, "root_id"),
		Replacements: getStrings(s, "replacements"),
	}
}

func decodeAnnotation(s *structpb.Struct) AnnotationInfo {
	return AnnotationInfo{
		ID:                getString(s, "id"),
		PreviousVersionID: getString(s, "previous_version_id"),
		Kind:              getString(s, "kind"),
		Contents:          getString(s, "contents"),
		Status:            getString(s, "status"),
		CreatedAt:         getTime(s, "created_at"),
	}
}

func decodeVersionInfo(s *structpb.Struct) (VersionInfo, error) {
	info := VersionInfo{
		Current:       getInt(s, "current"),
		Latest:        getInt(s, "latest"),
		RootID:        getString(s, "root_id"),
		FormatVersion: getString(s, "format_version"),
	}
	for _, v := range s.GetFields()["versions"].GetListValue().GetValues() {
		vs := v.GetStructValue()
		if vs == nil {
			return VersionInfo{}, fmt.Errorf("version entry is %T, want struct", v.GetKind())
		}
		info.Versions = append(info.Versions, VersionSummary{
			Number:    getInt(vs, "number"),
			RootID:    getString(vs, "root_id"),
			CreatedAt: getTime(vs, "created_at"),
		})
	}
	return info, nil
}
