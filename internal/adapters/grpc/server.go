package grpc

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nimbusworks/console-identity-service/internal/application"
	"github.com/nimbusworks/console-identity-service/internal/domain"
)

// IdentityInternalService is the internal surface region gateways and
// sibling services call to validate tokens and check delivered codes
// without reaching into the console database.
type IdentityInternalService interface {
	ValidateToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ValidateRegionToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExchangeRegionToken(context.Context, *structpb.Struct) (*structpb.Struct, error)
	VerifyCode(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type IdentityInternalServer struct {
	service *application.Service
}

func NewIdentityInternalServer(service *application.Service) *IdentityInternalServer {
	return &IdentityInternalServer{service: service}
}

const fullServiceName = "nimbusworks.identity.v1.IdentityInternalService"

func Register(server grpc.ServiceRegistrar, svc IdentityInternalService) {
	server.RegisterService(&grpc.ServiceDesc{
		ServiceName: fullServiceName,
		HandlerType: (*IdentityInternalService)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "ValidateToken",
				Handler:    structHandler(svc, "ValidateToken", IdentityInternalService.ValidateToken),
			},
			{
				MethodName: "ValidateRegionToken",
				Handler:    structHandler(svc, "ValidateRegionToken", IdentityInternalService.ValidateRegionToken),
			},
			{
				MethodName: "ExchangeRegionToken",
				Handler:    structHandler(svc, "ExchangeRegionToken", IdentityInternalService.ExchangeRegionToken),
			},
			{
				MethodName: "VerifyCode",
				Handler:    structHandler(svc, "VerifyCode", IdentityInternalService.VerifyCode),
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "identity/v1/identity_internal.proto",
	}, svc)
}

func (s *IdentityInternalServer) ValidateToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	if token == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token")
	}

	claims, err := s.service.ValidateAuthToken(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	resp, err := structpb.NewStruct(map[string]any{
		"valid":       true,
		"account_uid": claims.AccountUID.String(),
		"account_id":  claims.AccountID,
		"expires_at":  claims.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *IdentityInternalServer) ValidateRegionToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	regionRaw := stringField(req, "region_uid")
	if token == "" || regionRaw == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token or region_uid")
	}
	regionUID, err := uuid.Parse(regionRaw)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid region_uid")
	}

	claims, err := s.service.ValidateRegionToken(ctx, regionUID, token)
	if err != nil {
		if errors.Is(err, domain.ErrRegionNotFound) {
			return nil, status.Error(codes.NotFound, "region not found")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	resp, err := structpb.NewStruct(map[string]any{
		"valid":         true,
		"account_uid":   claims.AccountUID.String(),
		"account_id":    claims.AccountID,
		"user_cr_uid":   claims.UserCrUID.String(),
		"user_cr_name":  claims.UserCrName,
		"workspace_uid": claims.WorkspaceUID.String(),
		"workspace_id":  claims.WorkspaceID,
		"expires_at":    claims.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func (s *IdentityInternalServer) ExchangeRegionToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	token := stringField(req, "token")
	regionRaw := stringField(req, "region_uid")
	if token == "" || regionRaw == "" {
		return nil, status.Error(codes.InvalidArgument, "missing token or region_uid")
	}

	claims, err := s.service.ValidateAuthToken(ctx, token)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	res, err := s.service.ExchangeRegionToken(ctx, claims.AccountUID, application.RegionTokenRequest{
		RegionUID:   regionRaw,
		WorkspaceID: stringField(req, "workspace_id"),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, domain.ErrRegionNotFound), errors.Is(err, domain.ErrWorkspaceNotFound):
			return nil, status.Error(codes.NotFound, err.Error())
		default:
			return nil, status.Error(codes.Internal, "exchange failed")
		}
	}

	resp, err := structpb.NewStruct(map[string]any{
		"token":         res.Token,
		"expires_in":    res.ExpiresIn,
		"region_domain": res.RegionDomain,
		"user_cr_name":  res.UserCrName,
		"workspace_id":  res.WorkspaceID,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

// VerifyCode burns a delivered verification code on behalf of the internal
// service that owns the purpose, such as alert-contact binding.
func (s *IdentityInternalServer) VerifyCode(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	err := s.service.VerifyCode(ctx, application.VerifyCodeRequest{
		Identifier: stringField(req, "identifier"),
		Purpose:    stringField(req, "purpose"),
		Code:       stringField(req, "code"),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidInput):
			return nil, status.Error(codes.InvalidArgument, err.Error())
		case errors.Is(err, domain.ErrCodeExpired):
			return nil, status.Error(codes.DeadlineExceeded, "code expired")
		case errors.Is(err, domain.ErrVerificationFailed):
			return nil, status.Error(codes.Unauthenticated, "verification failed")
		default:
			return nil, status.Error(codes.Internal, "verify failed")
		}
	}

	resp, err := structpb.NewStruct(map[string]any{"valid": true})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "build response: %v", err)
	}
	return resp, nil
}

func stringField(req *structpb.Struct, key string) string {
	v := req.GetFields()[key]
	if v == nil {
		return ""
	}
	return v.GetStringValue()
}

func structHandler(
	svc IdentityInternalService,
	method string,
	invoke func(IdentityInternalService, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := &structpb.Struct{}
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return invoke(svc, ctx, req)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + fullServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			typed, ok := req.(*structpb.Struct)
			if !ok {
				return nil, status.Error(codes.InvalidArgument, "invalid request type")
			}
			return invoke(svc, ctx, typed)
		}
		return interceptor(ctx, req, info, handler)
	}
}
