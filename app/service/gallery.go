package service

import (
	"context"
	"time"

	"github.com/framefolio/ms-go-downloads/app/entity"
	"github.com/framefolio/ms-go-downloads/app/factory"
	"github.com/framefolio/ms-go-downloads/app/provider"
	"github.com/framefolio/ms-go-downloads/config"
	"github.com/sirupsen/logrus"
)

const defaultPurgeBatchSize = int32(500)

type paymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	FindByPaymentID(ctx context.Context, paymentID string) (*entity.Payment, error)
	MarkCompleted(ctx context.Context, payment *entity.Payment, status int32, now time.Time) (bool, error)
	ListBySession(ctx context.Context, sessionID string) ([]*entity.Payment, error)
	TotalPaid(ctx context.Context, sessionID string) (int64, error)
}

type paymentEventRepository interface {
	Create(ctx context.Context, event *entity.PaymentEvent) error
}

type webhookEventRepository interface {
	Admit(ctx context.Context, event *entity.WebhookEvent) error
	MarkProcessed(ctx context.Context, eventID string, processedAt time.Time) error
	Release(ctx context.Context, eventID string) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time, limit int32) (int64, error)
}

type downloadPolicyRepository interface {
	FindBySession(ctx context.Context, sessionID string) (*entity.DownloadPolicy, error)
	Save(ctx context.Context, policy *entity.DownloadPolicy) error
	SetFreeConsumed(ctx context.Context, sessionID string, consumed int32) error
	ConsumeFree(ctx context.Context, sessionID string) (bool, error)
	ConsumePurchased(ctx context.Context, sessionID string) (bool, error)
	AdmitGrant(ctx context.Context, grant *entity.DownloadGrant) error
	ReleaseGrant(ctx context.Context, paymentID string) error
	GrantPurchased(ctx context.Context, policy *entity.DownloadPolicy, quantity int32) error
}

type notificationSink interface {
	Enqueue(item Notification) bool
}

type GalleryService struct {
	paymentRepo  paymentRepository
	auditRepo    paymentEventRepository
	webhookRepo  webhookEventRepository
	policyRepo   downloadPolicyRepository
	verifier     provider.Verifier
	notifier     notificationSink
	downloadsCfg config.DownloadsConfig
	logger       logrus.FieldLogger
}

func NewGalleryService(
	paymentRepo paymentRepository,
	auditRepo paymentEventRepository,
	webhookRepo webhookEventRepository,
	policyRepo downloadPolicyRepository,
	verifier provider.Verifier,
	notifier notificationSink,
	downloadsCfg config.DownloadsConfig,
) *GalleryService {
	return &GalleryService{
		paymentRepo:  paymentRepo,
		auditRepo:    auditRepo,
		webhookRepo:  webhookRepo,
		policyRepo:   policyRepo,
		verifier:     verifier,
		notifier:     notifier,
		downloadsCfg: downloadsCfg,
		logger:       factory.NewModuleLogger("gallery-service"),
	}
}

func (s *GalleryService) GetSessionPayments(ctx context.Context, sessionID string) ([]*entity.Payment, int64, error) {
	payments, err := s.paymentRepo.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	total, err := s.paymentRepo.TotalPaid(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	return payments, total, nil
}

func (s *GalleryService) TotalPaid(ctx context.Context, sessionID string) (int64, error) {
	return s.paymentRepo.TotalPaid(ctx, sessionID)
}

func (s *GalleryService) purgeBatchSize() int32 {
	if s.downloadsCfg.PurgeBatchSize > 0 {
		return s.downloadsCfg.PurgeBatchSize
	}
	return defaultPurgeBatchSize
}
