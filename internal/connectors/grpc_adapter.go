package connectors

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/aegis-vault/internal/domain"
)

const (
	TransferServiceName = "aegis.transfer.v1.TransferService"
	transferMethod      = "/" + TransferServiceName + "/Execute"
)

// GRPCAdapter исполняет переводы через внешний коннектор.
// Контракт на structpb.Struct, поэтому сгенерированный клиент не нужен.
type GRPCAdapter struct {
	conn    grpc.ClientConnInterface
	timeout time.Duration
}

// NewGRPCAdapter создает экземпляр адаптера
func NewGRPCAdapter(conn grpc.ClientConnInterface, timeout time.Duration) *GRPCAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &GRPCAdapter{conn: conn, timeout: timeout}
}

// Execute реализует engine.Executor
func (a *GRPCAdapter) Execute(ctx context.Context, t domain.Transfer) error {
	req, err := transferToStruct(t)
	if err != nil {
		return err
	}

	// Даже если ReliabilityWrapper имеет свой таймаут, адаптер должен иметь свой предел
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, transferMethod, req, resp); err != nil {
		if status.Code(err) == codes.ResourceExhausted {
			return &ThrottleError{RetryAfter: time.Second, Cause: err}
		}
		return fmt.Errorf("connector call failed: %w", err)
	}

	return checkTransferResponse(resp)
}

func transferToStruct(t domain.Transfer) (*structpb.Struct, error) {
	capID, err := t.Capability()
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"capability_id": capID,
		"vault_id":      t.VaultID,
		"action_id":     t.ActionID,
		"kind":          string(t.Kind),
		// uint64 не влезает в double без потерь, поэтому сумма идет строкой
		"amount": fmt.Sprintf("%d", t.Amount),
		"target": t.Target,
		"source": "aegis-engine",
	}
	if len(t.Payload) > 0 {
		fields["payload"] = string(t.Payload)
	}

	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to create proto struct: %w", err)
	}
	return s, nil
}

func checkTransferResponse(resp *structpb.Struct) error {
	m := resp.AsMap()
	code, _ := m["status_code"].(float64)
	msg, _ := m["error_message"].(string)

	switch {
	case code == 0:
		return nil
	case code == 429:
		retryMs, _ := m["retry_after_ms"].(float64)
		return &ThrottleError{
			RetryAfter: time.Duration(retryMs) * time.Millisecond,
			Cause:      fmt.Errorf("connector returned error [%d]: %s", int(code), msg),
		}
	case code >= 400 && code < 500:
		return fmt.Errorf("%w [%d]: %s", ErrTransferRejected, int(code), msg)
	default:
		return fmt.Errorf("connector returned error [%d]: %s", int(code), msg)
	}
}

// TransferHandler серверная сторона контракта
type TransferHandler func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)

// RegisterTransferService регистрирует реализацию коннектора на gRPC сервере (стенды, тесты)
func RegisterTransferService(s grpc.ServiceRegistrar, h TransferHandler) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: TransferServiceName,
		HandlerType: (*interface{})(nil),
		Methods: []grpc.MethodDesc{{
			MethodName: "Execute",
			Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &structpb.Struct{}
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return h(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: h, FullMethod: transferMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return h(ctx, req.(*structpb.Struct))
				})
			},
		}},
		Metadata: "aegis/transfer/v1/transfer.proto",
	}, h)
}
