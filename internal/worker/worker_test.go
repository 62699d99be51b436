package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meshmarket/backend/internal/commission"
	"github.com/meshmarket/backend/internal/models"
	"github.com/meshmarket/backend/pkg/queue"
)

type fakeConversionStore struct {
	conv    *models.Conversion
	getErr  error
	settled []uuid.UUID
	failed  []uuid.UUID
}

func (s *fakeConversionStore) GetByID(_ context.Context, id uuid.UUID) (*models.Conversion, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	if s.conv == nil || s.conv.ID != id {
		return nil, nil
	}
	return s.conv, nil
}

func (s *fakeConversionStore) Settle(_ context.Context, id uuid.UUID, _ commission.Split) error {
	s.settled = append(s.settled, id)
	return nil
}

func (s *fakeConversionStore) MarkFailed(_ context.Context, id uuid.UUID) error {
	s.failed = append(s.failed, id)
	return nil
}

type fakeLinkStore struct {
	link *models.AffiliateLink
}

func (s *fakeLinkStore) GetByID(_ context.Context, id uuid.UUID) (*models.AffiliateLink, error) {
	if s.link == nil || s.link.ID != id {
		return nil, nil
	}
	return s.link, nil
}

type capturingPublisher struct {
	topics []string
	events []string
}

func (p *capturingPublisher) PublishTopicEvent(topic, event string, _ []byte) error {
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func conversionJob(t *testing.T, conversionID, linkID uuid.UUID) *queue.Job {
	t.Helper()
	payload, err := json.Marshal(queue.ConversionPayload{ConversionID: conversionID, LinkID: linkID})
	require.NoError(t, err)
	return &queue.Job{ID: uuid.New().String(), Type: queue.JobTypeConversion, Payload: payload}
}

func TestProcessSettlesAndPublishes(t *testing.T) {
	linkID := uuid.New()
	campaignID := uuid.New()
	conv := &models.Conversion{ID: uuid.New(), LinkID: linkID, SalePrice: 100, Currency: "USD", Status: models.ConversionStatusPending}
	store := &fakeConversionStore{conv: conv}
	links := &fakeLinkStore{link: &models.AffiliateLink{ID: linkID, CampaignID: &campaignID, AffiliateID: uuid.New(), TrackingCode: "ab12cd34"}}
	pub := &capturingPublisher{}
	p := NewConversionProcessor(store, links, commission.NewLedger(0, 0), nil, pub, zap.NewNop())

	err := p.Process(context.Background(), conversionJob(t, conv.ID, linkID))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{conv.ID}, store.settled)
	require.Len(t, pub.topics, 1)
	assert.Equal(t, "campaign:"+campaignID.String(), pub.topics[0])
	assert.Equal(t, "conversion-recorded", pub.events[0])
}

func TestProcessSurfacesStoreErrorForRetry(t *testing.T) {
	storeErr := errors.New("connection reset")
	store := &fakeConversionStore{getErr: storeErr}
	p := NewConversionProcessor(store, &fakeLinkStore{}, commission.NewLedger(0, 0), nil, nil, zap.NewNop())

	err := p.Process(context.Background(), conversionJob(t, uuid.New(), uuid.New()))
	require.Error(t, err)
	// A transient repository failure must keep its cause so the retry
	// path is diagnosable, and must not read as a missing conversion.
	assert.ErrorIs(t, err, storeErr)
	assert.NotContains(t, err.Error(), "not found")
	assert.Empty(t, store.failed)
}

func TestProcessUnknownConversion(t *testing.T) {
	store := &fakeConversionStore{}
	p := NewConversionProcessor(store, &fakeLinkStore{}, commission.NewLedger(0, 0), nil, nil, zap.NewNop())

	err := p.Process(context.Background(), conversionJob(t, uuid.New(), uuid.New()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestProcessInvalidPriceMarksFailedWithoutRetry(t *testing.T) {
	conv := &models.Conversion{ID: uuid.New(), LinkID: uuid.New(), SalePrice: -1, Status: models.ConversionStatusPending}
	store := &fakeConversionStore{conv: conv}
	p := NewConversionProcessor(store, &fakeLinkStore{}, commission.NewLedger(0, 0), nil, nil, zap.NewNop())

	err := p.Process(context.Background(), conversionJob(t, conv.ID, conv.LinkID))
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{conv.ID}, store.failed)
	assert.Empty(t, store.settled)
}

func TestProcessAlreadySettledIsNoop(t *testing.T) {
	conv := &models.Conversion{ID: uuid.New(), LinkID: uuid.New(), SalePrice: 100, Status: models.ConversionStatusCompleted}
	store := &fakeConversionStore{conv: conv}
	pub := &capturingPublisher{}
	p := NewConversionProcessor(store, &fakeLinkStore{}, commission.NewLedger(0, 0), nil, pub, zap.NewNop())

	err := p.Process(context.Background(), conversionJob(t, conv.ID, conv.LinkID))
	require.NoError(t, err)
	assert.Empty(t, store.settled)
	assert.Empty(t, pub.topics)
}
