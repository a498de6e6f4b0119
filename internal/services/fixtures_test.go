package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventhub-backend/database"
	"eventhub-backend/internal/models"
	"eventhub-backend/internal/platform/metrics"
)

// setupTestDB returns a migrated in-memory database
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.Initialize(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, zap.NewNop()))
	return db
}

// fixtures creates users, vendors and listings through the real services
type fixtures struct {
	t        *testing.T
	db       *sqlx.DB
	identity *IdentityService
	catalog  *CatalogService
}

func newFixtures(t *testing.T, db *sqlx.DB) *fixtures {
	return &fixtures{
		t:        t,
		db:       db,
		identity: NewIdentityService(db, zap.NewNop(), metrics.NewManager("test"), NoopPublisher{}),
		catalog:  NewCatalogService(db, zap.NewNop(), nil, 0),
	}
}

func (f *fixtures) client(id string) *models.User {
	f.t.Helper()
	claims := &SessionClaims{Email: id + "@example.com", FirstName: "Test", LastName: id}
	claims.Subject = id
	user, err := f.identity.CurrentUser(context.Background(), claims)
	require.NoError(f.t, err)
	return user
}

func (f *fixtures) vendor(id, businessName string) *models.User {
	f.t.Helper()
	f.client(id)
	user, err := f.identity.UpdateRole(context.Background(), id, models.UpdateRoleRequest{
		Role:         models.UserRoleVendor,
		BusinessName: businessName,
	})
	require.NoError(f.t, err)
	return user
}

func (f *fixtures) listing(vendorUserID, name, price string) *models.ServiceListing {
	f.t.Helper()
	listing, err := f.catalog.CreateListing(context.Background(), vendorUserID, models.ListingInput{
		Name:     name,
		Category: "Catering",
		Price:    decimal.RequireFromString(price),
		Location: "Nairobi",
	})
	require.NoError(f.t, err)
	return listing
}

type publishedEvent struct {
	Subject string
	Event   interface{}
}

// recordingPublisher captures published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Subject: subject, Event: event})
	return nil
}

func (p *recordingPublisher) subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Subject
	}
	return out
}

type notification struct {
	UserID  string
	Message WebSocketMessage
}

// recordingNotifier captures realtime pushes
type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) SendToUser(userID string, message WebSocketMessage) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{UserID: userID, Message: message})
}

func (n *recordingNotifier) forUser(userID, eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.UserID == userID && s.Message.Type == eventType {
			count++
		}
	}
	return count
}

func mustDate(t *testing.T, value string) *models.FlexibleDate {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", value)
	require.NoError(t, err)
	return &models.FlexibleDate{Time: parsed}
}
