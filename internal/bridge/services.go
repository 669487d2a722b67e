package bridge

import (
	"context"
	"fmt"

	"imagebatch/internal/auth"
	"imagebatch/internal/domain"
	"imagebatch/internal/orchestrator"
	"imagebatch/internal/registry"
)

// Services is the Backend wired to the in-process components.
type Services struct {
	Auth      *auth.Authenticator
	Batches   *orchestrator.Service
	Submitter *orchestrator.Submitter
	Registry  *registry.Service
}

var _ Backend = (*Services)(nil)

func (s *Services) Register(ctx context.Context, in domain.NewUser) (*domain.User, error) {
	return s.Auth.Register(ctx, in)
}

func (s *Services) Login(ctx context.Context, username, password string) (*auth.LoginResult, error) {
	return s.Auth.Login(ctx, username, password)
}

func (s *Services) Logout(ctx context.Context, token string) error {
	return s.Auth.Logout(ctx, token)
}

// ProcessBatch submits on behalf of the user owning token.
func (s *Services) ProcessBatch(ctx context.Context, token string, in BatchRequest) (*orchestrator.Summary, error) {
	userID, err := s.Auth.Verify(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.Submitter.Submit(ctx, orchestrator.Submission{
		UserID:          userID,
		BatchName:       in.BatchName,
		OutputFormat:    in.OutputFormat,
		CompressionType: in.CompressionType,
		Images:          in.Images,
	})
}

func (s *Services) NodeMetrics(ctx context.Context) ([]domain.NodeMetric, error) {
	return s.Registry.NodeMetrics(ctx)
}

func (s *Services) BatchMetrics(ctx context.Context, batchID int64) (*domain.BatchMetrics, error) {
	if batchID <= 0 {
		return nil, fmt.Errorf("batch_id: %w", domain.ErrMissingField)
	}
	return s.Batches.BatchMetrics(ctx, batchID)
}

func (s *Services) Heartbeat(ctx context.Context, hb domain.Heartbeat) (bool, error) {
	return s.Registry.ReceiveHeartbeat(ctx, hb)
}
