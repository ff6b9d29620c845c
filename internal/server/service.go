// ABOUTME: Hand-written gRPC service descriptor and client for texttree.v1.Documents
// ABOUTME: Every method is unary and exchanges google.protobuf.Struct messages

package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "texttree.v1.Documents"

// DocumentsServer is the server API for the Documents service
type DocumentsServer interface {
	GetRoot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetElement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetContents(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateElement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteElement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddAfter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddAnnotation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateAnnotation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ChangeAnnotationStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAnnotation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAnnotations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SwitchVersion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetVersionInfo(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var _ DocumentsServer = (*Server)(nil)

type unaryCall func(DocumentsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// unary builds the method descriptor the protoc plugin would generate
func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(DocumentsServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod(name),
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(DocumentsServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// DocumentsServiceDesc describes the Documents service for grpc.Server
var DocumentsServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocumentsServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("GetRoot", DocumentsServer.GetRoot),
		unary("GetElement", DocumentsServer.GetElement),
		unary("GetContents", DocumentsServer.GetContents),
		unary("UpdateElement", DocumentsServer.UpdateElement),
		unary("DeleteElement", DocumentsServer.DeleteElement),
		unary("AddAfter", DocumentsServer.AddAfter),
		unary("AddAnnotation", DocumentsServer.AddAnnotation),
		unary("UpdateAnnotation", DocumentsServer.UpdateAnnotation),
		unary("ChangeAnnotationStatus", DocumentsServer.ChangeAnnotationStatus),
		unary("DeleteAnnotation", DocumentsServer.DeleteAnnotation),
		unary("GetAnnotations", DocumentsServer.GetAnnotations),
		unary("SwitchVersion", DocumentsServer.SwitchVersion),
		unary("GetVersionInfo", DocumentsServer.GetVersionInfo),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "texttree/v1/documents.proto",
}

// RegisterDocumentsServer registers srv with s
func RegisterDocumentsServer(s grpc.ServiceRegistrar, srv DocumentsServer) {
	s.RegisterService(&DocumentsServiceDesc, srv)
}

// Client is a typed client for the Documents service
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps an established connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Root returns the current document element and its text
func (c *Client) Root(ctx context.Context) (ElementInfo, error) {
	out, err := c.invoke(ctx, "GetRoot", nil)
	if err != nil {
		return ElementInfo{}, err
	}
	return decodeElement(out), nil
}

// Element returns any stored element and its text
func (c *Client) Element(ctx context.Context, id string) (ElementInfo, error) {
	out, err := c.invoke(ctx, "GetElement", map[string]any{"id": id})
	if err != nil {
		return ElementInfo{}, err
	}
	return decodeElement(out), nil
}

// Contents returns the reconstructed text of an element
func (c *Client) Contents(ctx context.Context, id string) (string, error) {
	out, err := c.invoke(ctx, "GetContents", map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	return getString(out, "text"), nil
}

func (c *Client) edit(ctx context.Context, method string, req map[string]any) (EditResult, error) {
	out, err := c.invoke(ctx, method, req)
	if err != nil {
		return EditResult{}, err
	}
	return decodeEdit(out), nil
}

// UpdateElement replaces the text of an element
func (c *Client) UpdateElement(ctx context.Context, id, text string) (EditResult, error) {
	return c.edit(ctx, "UpdateElement", map[string]any{"id": id, "text": text})
}

// DeleteElement removes an element from the current tree
func (c *Client) DeleteElement(ctx context.Context, id string) (EditResult, error) {
	return c.edit(ctx, "DeleteElement", map[string]any{"id": id})
}

// AddAfter inserts text after a sibling
func (c *Client) AddAfter(ctx context.Context, siblingID, text string) (EditResult, error) {
	return c.edit(ctx, "AddAfter", map[string]any{"sibling_id": siblingID, "text": text})
}

func (c *Client) annotate(ctx context.Context, method string, req map[string]any) (string, error) {
	out, err := c.invoke(ctx, method, req)
	if err != nil {
		return "", err
	}
	return getString(out, "annotation_id"), nil
}

// AddAnnotation attaches an annotation and returns its id
func (c *Client) AddAnnotation(ctx context.Context, elementID, kind, contents string) (string, error) {
	return c.annotate(ctx, "AddAnnotation", map[string]any{"element_id": elementID, "kind": kind, "contents": contents})
}

// UpdateAnnotation supersedes an annotation and returns the new id
func (c *Client) UpdateAnnotation(ctx context.Context, annotationID, contents string) (string, error) {
	return c.annotate(ctx, "UpdateAnnotation", map[string]any{"annotation_id": annotationID, "contents": contents})
}

// ChangeAnnotationStatus supersedes an annotation and returns the new id
func (c *Client) ChangeAnnotationStatus(ctx context.Context, annotationID, status string) (string, error) {
	return c.annotate(ctx, "ChangeAnnotationStatus", map[string]any{"annotation_id": annotationID, "status": status})
}

// DeleteAnnotation ends an annotation's validity
func (c *Client) DeleteAnnotation(ctx context.Context, annotationID string) error {
	_, err := c.invoke(ctx, "DeleteAnnotation", map[string]any{"annotation_id": annotationID})
	return err
}

// Annotations lists the annotations on an element at the current version
func (c *Client) Annotations(ctx context.Context, elementID string) ([]AnnotationInfo, error) {
	out, err := c.invoke(ctx, "GetAnnotations", map[string]any{"element_id": elementID})
	if err != nil {
		return nil, err
	}
	var anns []AnnotationInfo
	for _, v := range out.GetFields()["annotations"].GetListValue().GetValues() {
		anns = append(anns, decodeAnnotation(v.GetStructValue()))
	}
	return anns, nil
}

// SwitchVersion makes a version current
func (c *Client) SwitchVersion(ctx context.Context, version int) (EditResult, error) {
	return c.edit(ctx, "SwitchVersion", map[string]any{"version": version})
}

// VersionInfo returns the current and latest version and every version's root
func (c *Client) VersionInfo(ctx context.Context) (VersionInfo, error) {
	out, err := c.invoke(ctx, "GetVersionInfo", nil)
	if err != nil {
		return VersionInfo{}, err
	}
	return decodeVersionInfo(out)
}
