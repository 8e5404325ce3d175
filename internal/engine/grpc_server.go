package engine

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/aegis-vault/internal/domain"
	"github.com/xela07ax/aegis-vault/internal/infra/auth"
)

const (
	GatewayServiceName = "aegis.vault.v1.VaultGateway"
	submitActionMethod = "/" + GatewayServiceName + "/SubmitAction"
)

// GRPCGatewayServer тот же пайплайн Submit, что и HTTP, для агентов на gRPC.
// Контракт на structpb.Struct: поля как в SubmitBody плюс vault_id.
type GRPCGatewayServer struct {
	engine *Engine
}

func NewGRPCGatewayServer(e *Engine) *GRPCGatewayServer {
	return &GRPCGatewayServer{engine: e}
}

func (s *GRPCGatewayServer) SubmitAction(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := submitRequestFromStruct(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	req.Caller = auth.CallerFromContext(ctx)

	out, err := s.engine.Submit(ctx, req)
	if err != nil {
		return nil, status.Error(grpcCode(err), err.Error())
	}

	return structpb.NewStruct(map[string]interface{}{
		"kind":        string(out.Kind),
		"action_id":   out.ActionID,
		"reason":      out.Reason,
		"daily_spent": strconv.FormatUint(out.DailySpent, 10),
		"balance":     strconv.FormatUint(out.Balance, 10),
	})
}

func submitRequestFromStruct(in *structpb.Struct) (domain.SubmitRequest, error) {
	m := in.AsMap()
	str := func(key string) string {
		v, _ := m[key].(string)
		return v
	}

	amount, err := parseAmount(m["amount"])
	if err != nil {
		return domain.SubmitRequest{}, err
	}

	req := domain.SubmitRequest{
		VaultID:     str("vault_id"),
		Amount:      amount,
		Target:      str("target"),
		Kind:        domain.ActionKind(str("kind")),
		Description: str("description"),
	}
	if req.VaultID == "" {
		return req, fmt.Errorf("vault_id is required")
	}
	if p, ok := in.GetFields()["payload"]; ok {
		raw, err := p.MarshalJSON()
		if err != nil {
			return req, fmt.Errorf("payload: %w", err)
		}
		req.Payload = raw
	}
	return req, nil
}

// parseAmount строка без потерь, число только если точно представимо в double
func parseAmount(v interface{}) (uint64, error) {
	switch a := v.(type) {
	case string:
		return strconv.ParseUint(a, 10, 64)
	case float64:
		if a < 0 || a != math.Trunc(a) || a > 1<<53 {
			return 0, fmt.Errorf("amount %v is not an exact unsigned integer, send it as a string", a)
		}
		return uint64(a), nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("amount has unsupported type %T", v)
	}
}

func grpcCode(err error) codes.Code {
	switch domain.Classify(err) {
	case domain.ClassValidation:
		return codes.InvalidArgument
	case domain.ClassAuth:
		return codes.PermissionDenied
	case domain.ClassNotFound:
		return codes.NotFound
	case domain.ClassTemporal, domain.ClassState:
		return codes.FailedPrecondition
	case domain.ClassPolicy, domain.ClassArithmetic:
		return codes.ResourceExhausted
	case domain.ClassExecution, domain.ClassUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// RegisterGatewayService ручная регистрация сервиса без сгенерированного кода
func RegisterGatewayService(s grpc.ServiceRegistrar, srv *GRPCGatewayServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: GatewayServiceName,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "SubmitAction",
			Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &structpb.Struct{}
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.SubmitAction(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: submitActionMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.SubmitAction(ctx, req.(*structpb.Struct))
				})
			},
		}},
		Metadata: "aegis/vault/v1/gateway.proto",
	}, srv)
}

// SubmitActionClient вызов шлюза с клиентской стороны (SDK агентов, тесты)
func SubmitActionClient(ctx context.Context, cc grpc.ClientConnInterface, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := &structpb.Struct{}
	if err := cc.Invoke(ctx, submitActionMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
