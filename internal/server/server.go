// Package server implements the gRPC texttree Documents service
package server

import (
	"context"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nainya/texttree/internal/logger"
	"github.com/nainya/texttree/internal/metrics"
	"github.com/nainya/texttree/pkg/model"
	"github.com/nainya/texttree/pkg/store"
)

// Server implements DocumentsServer over one Model. All calls are
// serialized: the model is the store's single writer.
type Server struct {
	mu      sync.Mutex
	model   *model.Model
	metrics *metrics.Metrics
	log     *logger.Logger

	startTime time.Time
}

// NewServer creates a server for m. metrics may be nil.
func NewServer(m *model.Model, met *metrics.Metrics, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		model:     m,
		metrics:   met,
		log:       log.Component("documents"),
		startTime: time.Now(),
	}
	s.refreshStats()
	return s
}

// NewGRPCServer builds a grpc.Server with the Documents service, the
// standard health service and reflection registered
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	if srv.metrics != nil {
		opts = append(opts, grpc.UnaryInterceptor(MetricsInterceptor(srv.metrics, srv.log)))
	}
	gs := grpc.NewServer(opts...)
	RegisterDocumentsServer(gs, srv)

	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(gs, hs)

	reflection.Register(gs)
	return gs, hs
}

// Uptime returns how long the server has existed
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// refreshStats updates store gauges; callers hold s.mu or own s exclusively
func (s *Server) refreshStats() {
	if s.metrics == nil {
		return
	}
	st := s.model.Store()
	s.metrics.UpdateStoreStats(len(st.Elements()), len(st.Annotations()))
	s.metrics.ObserveVersion(st.LatestVersion())
}

// locked runs fn under the server mutex and maps its error to a status
func (s *Server) locked(ctx context.Context, fn func() (map[string]any, error)) (*structpb.Struct, error) {
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := fn()
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(out)
}

// mutate is locked plus an edit log line and a stats refresh after a successful change
func (s *Server) mutate(ctx context.Context, op string, fn func() (map[string]any, error)) (*structpb.Struct, error) {
	return s.locked(ctx, func() (map[string]any, error) {
		start := time.Now()
		out, err := fn()
		s.log.LogEdit(op, s.model.CurrentVersionNumber(), time.Since(start), err)
		if err == nil {
			s.refreshStats()
		}
		return out, err
	})
}

func (s *Server) element(id string) (map[string]any, error) {
	el, err := s.model.Element(id)
	if err != nil {
		return nil, err
	}
	text, err := s.model.ComputeFullContents(id)
	if err != nil {
		return nil, err
	}
	return elementMap(el, text, s.model.CurrentVersionNumber()), nil
}

// ========== Queries ==========

func (s *Server) GetRoot(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.locked(ctx, func() (map[string]any, error) {
		root, err := s.model.RootElement()
		if err != nil {
			return nil, err
		}
		return s.element(root.ID)
	})
}

func (s *Server) GetElement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	return s.locked(ctx, func() (map[string]any, error) {
		out, err := s.element(id)
		if err != nil {
			return nil, err
		}
		if parent, ok := s.model.Parent(id); ok {
			out["parent_id"] = parent
		}
		return out, nil
	})
}

func (s *Server) GetContents(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	return s.locked(ctx, func() (map[string]any, error) {
		text, err := s.model.ComputeFullContents(id)
		if err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "text": text}, nil
	})
}

func (s *Server) GetAnnotations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "element_id")
	if err != nil {
		return nil, err
	}
	return s.locked(ctx, func() (map[string]any, error) {
		if _, err := s.model.Element(id); err != nil {
			return nil, err
		}
		anns := s.model.AnnotationsFor(id)
		list := make([]any, len(anns))
		for i, a := range anns {
			list[i] = annotationMap(a)
		}
		return map[string]any{"element_id": id, "annotations": list}, nil
	})
}

func (s *Server) GetVersionInfo(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.locked(ctx, func() (map[string]any, error) {
		cur, err := s.model.CurrentVersion()
		if err != nil {
			return nil, err
		}
		st := s.model.Store()
		latest := st.LatestVersion()
		versions := make([]any, 0, latest)
		for n := 1; n <= latest; n++ {
			v, ok := st.GetVersion(n)
			if !ok {
				continue
			}
			versions = append(versions, map[string]any{
				"number":     v.Number,
				"root_id":    v.RootID,
				"created_at": v.CreatedAt.UTC().Format(time.RFC3339Nano),
			})
		}
		return map[string]any{
			"current":        cur.Number,
			"latest":         latest,
			"root_id":        cur.RootID,
			"format_version": cur.FormatVersion,
			"versions":       versions,
		}, nil
	})
}

// ========== Structural edits ==========

func (s *Server) UpdateElement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	text := optionalString(req, "text")
	return s.mutate(ctx, "update_element", func() (map[string]any, error) {
		e, err := s.model.UpdateElement(id, text)
		if err != nil {
			return nil, err
		}
		return editMap(e), nil
	})
}

func (s *Server) DeleteElement(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "id")
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "delete_element", func() (map[string]any, error) {
		e, err := s.model.DeleteElement(id)
		if err != nil {
			return nil, err
		}
		return editMap(e), nil
	})
}

func (s *Server) AddAfter(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireString(req, "sibling_id")
	if err != nil {
		return nil, err
	}
	text := optionalString(req, "text")
	return s.mutate(ctx, "add_after", func() (map[string]any, error) {
		e, err := s.model.AddAfter(id, text)
		if err != nil {
			return nil, err
		}
		return editMap(e), nil
	})
}

func (s *Server) SwitchVersion(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	n, err := requireInt(req, "version")
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "switch_version", func() (map[string]any, error) {
		if err := s.model.SwitchToVersion(n); err != nil {
			return nil, err
		}
		v, err := s.model.CurrentVersion()
		if err != nil {
			return nil, err
		}
		return map[string]any{"version": v.Number, "root_id": v.RootID}, nil
	})
}

// ========== Annotations ==========

func (s *Server) annotationResult(id string) map[string]any {
	return map[string]any{"annotation_id": id, "version": s.model.CurrentVersionNumber()}
}

func (s *Server) AddAnnotation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	elementID, err := requireString(req, "element_id")
	if err != nil {
		return nil, err
	}
	kind, err := requireString(req, "kind")
	if err != nil {
		return nil, err
	}
	contents := optionalString(req, "contents")
	return s.mutate(ctx, "add_annotation", func() (map[string]any, error) {
		id, err := s.model.AddAnnotation(elementID, store.AnnotationKind(kind), contents)
		if err != nil {
			return nil, err
		}
		return s.annotationResult(id), nil
	})
}

func (s *Server) UpdateAnnotation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	annotationID, err := requireString(req, "annotation_id")
	if err != nil {
		return nil, err
	}
	contents := optionalString(req, "contents")
	return s.mutate(ctx, "update_annotation", func() (map[string]any, error) {
		id, err := s.model.UpdateAnnotation(annotationID, contents)
		if err != nil {
			return nil, err
		}
		return s.annotationResult(id), nil
	})
}

func (s *Server) ChangeAnnotationStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	annotationID, err := requireString(req, "annotation_id")
	if err != nil {
		return nil, err
	}
	st, err := requireString(req, "status")
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "change_annotation_status", func() (map[string]any, error) {
		id, err := s.model.ChangeAnnotationStatus(annotationID, store.AnnotationStatus(st))
		if err != nil {
			return nil, err
		}
		return s.annotationResult(id), nil
	})
}

func (s *Server) DeleteAnnotation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	annotationID, err := requireString(req, "annotation_id")
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, "delete_annotation", func() (map[string]any, error) {
		if err := s.model.DeleteAnnotation(annotationID); err != nil {
			return nil, err
		}
		return s.annotationResult(annotationID), nil
	})
}
