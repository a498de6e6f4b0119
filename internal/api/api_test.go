package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"eventhub-backend/database"
	"eventhub-backend/internal/middleware"
	"eventhub-backend/internal/platform/metrics"
	"eventhub-backend/internal/services"
)

const testWebhookSecret = "whsec_dGVzdC1zZWNyZXQ="

type mockMediaStore struct {
	mock.Mock
}

func (m *mockMediaStore) Upload(ctx context.Context, originalName, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, originalName, contentType, data)
	return args.String(0), args.Error(1)
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Details []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"details"`
}

type APITestSuite struct {
	suite.Suite
	db       *sqlx.DB
	auth     *services.AuthService
	verifier *services.WebhookVerifier
	media    *mockMediaStore
	metrics  *metrics.Manager
	router   *gin.Engine
}

func (s *APITestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	db, err := database.Initialize(":memory:", log)
	s.Require().NoError(err)
	s.Require().NoError(database.Migrate(db, log))
	s.db = db

	s.auth, err = services.NewAuthService("", "api-test-secret", "")
	s.Require().NoError(err)
	s.verifier, err = services.NewWebhookVerifier(testWebhookSecret, time.Minute)
	s.Require().NoError(err)

	s.media = &mockMediaStore{}
	s.metrics = metrics.NewManager("test")
	pricing := services.NewPricing(decimal.RequireFromString("0.05"))

	identity := services.NewIdentityService(db, log, s.metrics, services.NoopPublisher{})
	ws := services.NewWebSocketService(s.auth, log, nil, true)
	s.T().Cleanup(ws.Close)
	chat := services.NewChatService(db, log, s.metrics, ws)
	ws.AttachChat(chat)

	s.router = SetupRouter(Dependencies{
		DB:              db,
		Log:             log,
		Metrics:         s.metrics,
		Auth:            middleware.NewAuthMiddleware(s.auth, identity, log),
		AllowAllOrigins: true,
		MaxFileSize:     1 << 20,
		Identity:        identity,
		Webhooks:        s.verifier,
		Catalog:         services.NewCatalogService(db, log, s.media, 1<<20),
		Favorites:       services.NewFavoriteService(db, log, s.metrics),
		Cart:            services.NewCartService(db, log, pricing),
		Bookings:        services.NewBookingService(db, log, s.metrics, services.NoopPublisher{}, pricing),
		Chat:            chat,
		WebSocket:       ws,
	})
}

func (s *APITestSuite) TearDownTest() {
	s.db.Close()
}

func (s *APITestSuite) token(userID string) string {
	claims := services.SessionClaims{Email: userID + "@example.com", FirstName: "Test", LastName: userID}
	claims.Subject = userID
	token, err := s.auth.GenerateToken(claims, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *APITestSuite) do(method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(userID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *APITestSuite) decode(w *httptest.ResponseRecorder, into interface{}) envelope {
	var env envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if into != nil {
		s.Require().NoError(json.Unmarshal(env.Data, into))
	}
	return env
}

func (s *APITestSuite) signIn(userID string) {
	w := s.do(http.MethodGet, "/api/v1/users/me", userID, nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
}

func (s *APITestSuite) becomeVendor(userID, business string) {
	s.signIn(userID)
	w := s.do(http.MethodPut, "/api/v1/users/me/role", userID, gin.H{"role": "VENDOR", "businessName": business})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
}

func (s *APITestSuite) createListing(vendorID string, price string) string {
	w := s.do(http.MethodPost, "/api/v1/listings", vendorID, gin.H{
		"name":     "Garden Catering",
		"category": "Catering",
		"price":    price,
		"location": "Nairobi",
	})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var listing struct {
		ID string `json:"id"`
	}
	s.decode(w, &listing)
	return listing.ID
}

func (s *APITestSuite) TestHealthAndMetrics() {
	w := s.do(http.MethodGet, "/health", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"status":"ok"`)

	w = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), "test_http_requests_total")
}

func (s *APITestSuite) TestProtectedRoutesRequireToken() {
	for _, path := range []string{"/api/v1/cart", "/api/v1/bookings", "/api/v1/favorites", "/api/v1/conversations"} {
		w := s.do(http.MethodGet, path, "", nil)
		s.Equal(http.StatusUnauthorized, w.Code, path)
	}

	w := s.do(http.MethodGet, "/api/v1/nowhere", "", nil)
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *APITestSuite) TestWebhookRequiresValidSignature() {
	payload := []byte(`{"type":"user.created","data":{"id":"user_hook","first_name":"Amina","email_addresses":[{"id":"e1","email_address":"AMINA@Example.com"}],"primary_email_address_id":"e1"}}`)

	send := func(signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/identity", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		now := time.Now()
		req.Header.Set(services.HeaderWebhookID, "msg_1")
		req.Header.Set(services.HeaderWebhookTimestamp, strconv.FormatInt(now.Unix(), 10))
		if signature == "" {
			var err error
			signature, err = s.verifier.Sign("msg_1", now, payload)
			s.Require().NoError(err)
		}
		req.Header.Set(services.HeaderWebhookSignature, signature)
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	w := send("v1,bm90LWEtc2lnbmF0dXJl")
	s.Equal(http.StatusUnauthorized, w.Code)

	w = send("")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var email string
	s.Require().NoError(s.db.Get(&email, "SELECT email FROM users WHERE id = ?", "user_hook"))
	s.Equal("amina@example.com", email)
}

func (s *APITestSuite) TestValidationDetailsUseJSONNames() {
	s.signIn("client-1")
	w := s.do(http.MethodPost, "/api/v1/cart", "client-1", gin.H{})
	s.Equal(http.StatusBadRequest, w.Code)

	env := s.decode(w, nil)
	s.False(env.Success)
	s.Require().NotEmpty(env.Details)
	s.Equal("serviceId", env.Details[0].Field)
}

func (s *APITestSuite) TestClientCannotManageListings() {
	s.signIn("client-1")
	w := s.do(http.MethodPost, "/api/v1/listings", "client-1", gin.H{"name": "Nope", "category": "Catering", "price": "10"})
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodGet, "/api/v1/vendor/bookings", "client-1", nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *APITestSuite) TestBookingFlow() {
	s.becomeVendor("vendor-1", "Garden Events")
	s.signIn("client-1")
	listingID := s.createListing("vendor-1", "125.00")

	// public browse works without a token
	w := s.do(http.MethodGet, "/api/v1/listings?category=Catering&minPrice=100", "", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"total":1`)

	w = s.do(http.MethodGet, "/api/v1/listings?minPrice=abc", "", nil)
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/categories", "", nil)
	s.Equal(http.StatusOK, w.Code)
	s.JSONEq(`{"categories":[{"category":"Catering","count":1}]}`, w.Body.String())

	// favorites
	w = s.do(http.MethodPost, "/api/v1/favorites/toggle", "client-1", gin.H{"serviceId": listingID})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), `"action":"added"`)

	w = s.do(http.MethodGet, "/api/v1/favorites/count", "client-1", nil)
	s.JSONEq(`{"count":1}`, w.Body.String())
	w = s.do(http.MethodGet, "/api/v1/favorites/check/"+listingID, "client-1", nil)
	s.JSONEq(`{"isFavorite":true}`, w.Body.String())

	// cart
	w = s.do(http.MethodPost, "/api/v1/cart", "client-1", gin.H{"serviceId": listingID, "quantity": 2})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodGet, "/api/v1/cart/count", "client-1", nil)
	s.JSONEq(`{"count":2}`, w.Body.String())

	var cart struct {
		ID    string          `json:"id"`
		Total decimal.Decimal `json:"total"`
	}
	w = s.do(http.MethodGet, "/api/v1/cart", "client-1", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &cart)
	s.True(decimal.RequireFromString("262.50").Equal(cart.Total), cart.Total.String())

	// checkout
	w = s.do(http.MethodPost, "/api/v1/checkout", "client-1", gin.H{"cartId": cart.ID, "eventType": "Wedding", "eventDate": "2026-12-12"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var booking struct {
		ID     string          `json:"id"`
		Status string          `json:"status"`
		Total  decimal.Decimal `json:"total"`
		Items  []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	s.decode(w, &booking)
	s.Equal("PENDING", booking.Status)
	s.True(decimal.RequireFromString("262.50").Equal(booking.Total))
	s.Require().Len(booking.Items, 1)

	// the cart is empty now
	w = s.do(http.MethodPost, "/api/v1/checkout", "client-1", gin.H{"cartId": cart.ID, "eventType": "Wedding"})
	s.Equal(http.StatusUnprocessableEntity, w.Code)

	// vendor confirms the line
	w = s.do(http.MethodPut, "/api/v1/booking-items/"+booking.Items[0].ID+"/status", "vendor-1", gin.H{"status": "CONFIRMED"})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.Contains(w.Body.String(), `"bookingStatus":"CONFIRMED"`)

	w = s.do(http.MethodGet, "/api/v1/vendor/bookings", "vendor-1", nil)
	s.Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), booking.ID)

	// strangers cannot see it
	s.signIn("client-2")
	w = s.do(http.MethodGet, "/api/v1/bookings/"+booking.ID, "client-2", nil)
	s.Equal(http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/bookings/"+booking.ID+"/cancel", "client-1", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodPost, "/api/v1/bookings/"+booking.ID+"/cancel", "client-1", nil)
	s.Equal(http.StatusConflict, w.Code)
}

func (s *APITestSuite) TestMediaUpload() {
	s.becomeVendor("vendor-1", "Garden Events")
	listingID := s.createListing("vendor-1", "50")

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
	s.media.On("Upload", mock.Anything, "photo.png", "image/png", png).
		Return("https://media.example.com/listings/photo.png", nil).Once()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", "photo.png")
	s.Require().NoError(err)
	_, err = part.Write(png)
	s.Require().NoError(err)
	s.Require().NoError(writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings/"+listingID+"/media", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+s.token("vendor-1"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	s.Contains(w.Body.String(), "https://media.example.com/listings/photo.png")
	s.media.AssertExpectations(s.T())
}

func (s *APITestSuite) TestConversationFlow() {
	s.signIn("client-1")
	s.becomeVendor("vendor-1", "Garden Events")

	w := s.do(http.MethodPost, "/api/v1/conversations", "client-1", gin.H{"recipientId": "vendor-1"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var conv struct {
		ID string `json:"id"`
	}
	s.decode(w, &conv)

	// reopening from the other side returns the same conversation
	w = s.do(http.MethodPost, "/api/v1/conversations", "vendor-1", gin.H{"recipientId": "client-1"})
	s.Require().Equal(http.StatusOK, w.Code)
	s.Contains(w.Body.String(), conv.ID)

	w = s.do(http.MethodPost, "/api/v1/conversations/"+conv.ID+"/messages", "client-1", gin.H{"content": "Are you free on the 12th?"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/messages/unread-count", "vendor-1", nil)
	s.JSONEq(`{"count":1}`, w.Body.String())

	w = s.do(http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", "vendor-1", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/v1/messages/unread-count", "vendor-1", nil)
	s.JSONEq(`{"count":0}`, w.Body.String())

	s.signIn("client-2")
	w = s.do(http.MethodGet, "/api/v1/conversations/"+conv.ID+"/messages", "client-2", nil)
	s.Equal(http.StatusForbidden, w.Code)
}

func TestAPITestSuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func TestHandleErrorHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/boom", func(c *gin.Context) {
		handleError(c, zap.NewNop(), errors.New("sqlite: disk I/O error"), "missing")
	})
	router.GET("/missing", func(c *gin.Context) {
		handleError(c, zap.NewNop(), services.ErrNotFound, "Listing not found")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "sqlite")
	assert.Contains(t, w.Body.String(), genericErrorMessage)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Listing not found"}`, w.Body.String())
}
