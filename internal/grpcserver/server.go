// Package grpcserver implements the WatchService gRPC server.
//
// It delegates all business logic to the runner and handles only the gRPC
// transport concerns: metadata extraction, error mapping, and conversion
// between domain types and Struct messages.
package grpcserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"jobmate/watch-service/internal/model"
	"jobmate/watch-service/internal/runner"
)

// Watches is the subset of the runner the gRPC surface needs.
type Watches interface {
	Create(ctx context.Context, req runner.CreateRequest) (*model.Watch, error)
	Run(ctx context.Context, id string, owner model.Owner) (*runner.RunResult, error)
	Delete(ctx context.Context, id string, owner model.Owner) (bool, error)
	DeleteByToken(ctx context.Context, token string) (bool, error)
}

// Trigger starts an on-demand run over every watch.
type Trigger interface {
	Trigger(ctx context.Context) (*model.BatchReport, error)
}

// Server implements WatchServiceServer.
type Server struct {
	watches Watches
	trigger Trigger
	secret  string
}

// NewServer constructs a Server. An empty secret disables RunAll.
func NewServer(watches Watches, trigger Trigger, secret string) *Server {
	return &Server{watches: watches, trigger: trigger, secret: secret}
}

// ─── RPC implementations ──────────────────────────────────────────────────────

type createWatchRequest struct {
	Name     string            `json:"name"`
	Category model.Category    `json:"category"`
	Criteria []model.Criterion `json:"criteria"`
}

// CreateWatch stores a new watch for the caller.
func (s *Server) CreateWatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner, err := ownerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req createWatchRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	w, err := s.watches.Create(ctx, runner.CreateRequest{
		Owner:       model.Owner{UserID: owner.UserID, GuestEmail: owner.GuestEmail},
		Name:        req.Name,
		Category:    req.Category,
		Criteria:    req.Criteria,
		CreatedByIP: peerAddr(ctx),
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(struct {
		*model.Watch
		DeletionToken string `json:"deletion_token,omitempty"`
	}{w, w.Owner.DeletionToken})
}

type watchIDRequest struct {
	WatchID string `json:"watch_id"`
}

// RunWatch runs one watch and returns only newly seen listings.
func (s *Server) RunWatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner, err := ownerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req watchIDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	res, err := s.watches.Run(ctx, req.WatchID, owner)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(res)
}

// DeleteWatch removes a watch the caller owns.
func (s *Server) DeleteWatch(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	owner, err := ownerFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req watchIDRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	ok, err := s.watches.Delete(ctx, req.WatchID, owner)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return structpb.NewStruct(map[string]any{"deleted": ok})
}

// DeleteByToken removes the guest watch holding the given token.
func (s *Server) DeleteByToken(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	token := in.GetFields()["token"].GetStringValue()
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "token is required")
	}
	ok, err := s.watches.DeleteByToken(ctx, token)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return structpb.NewStruct(map[string]any{"deleted": ok})
}

// RunAll runs every watch. The caller must present x-trigger-secret.
func (s *Server) RunAll(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.secret == "" || s.trigger == nil {
		return nil, status.Error(codes.Unavailable, "manual run trigger is disabled")
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if subtle.ConstantTimeCompare([]byte(first(md, "x-trigger-secret")), []byte(s.secret)) != 1 {
		return nil, status.Error(codes.Unauthenticated, "invalid trigger secret")
	}
	report, err := s.trigger.Trigger(ctx)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(report)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// ownerFromCtx extracts the caller identity forwarded by the Gateway via
// gRPC metadata.
func ownerFromCtx(ctx context.Context) (model.Owner, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return model.Owner{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	owner := model.Owner{
		UserID:        first(md, "x-user-id"),
		GuestEmail:    first(md, "x-guest-email"),
		DeletionToken: first(md, "x-deletion-token"),
	}
	if owner.IsZero() {
		return owner, status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	return owner, nil
}

func first(md metadata.MD, key string) string {
	vals := md.Get(key)
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}

func peerAddr(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	return first(md, "x-forwarded-for")
}

// decode maps a Struct onto a request type through its JSON form.
func decode(in *structpb.Struct, v any) error {
	raw, err := in.MarshalJSON()
	if err != nil {
		return status.Error(codes.InvalidArgument, err.Error())
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Error(codes.InvalidArgument, fmt.Sprintf("invalid request: %v", err))
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	var verr *model.ValidationError
	switch {
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, model.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, model.ErrInvalidCriteria), errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, model.ErrTransientScan):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, model.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	}
	return status.Error(codes.Internal, "internal error")
}
