package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/redisclient"
	"storefront-service/internal/service"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testServer struct {
	router *gin.Engine
	repo   *store.MemoryStore
	redis  *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	util.SetLogger(zap.NewNop())
	ctx := context.Background()

	repo := store.NewMemoryStore()
	seed, err := store.LoadSeed(nil)
	require.NoError(t, err)
	require.NoError(t, store.ApplySeed(ctx, repo, seed))
	require.NoError(t, repo.UpsertSettings(ctx, map[string]string{
		models.SettingStoreWhatsApp: "081234567890",
	}))

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	rc := redisclient.NewFromRedis(rdb, redisclient.Options{ClaimTTL: time.Minute, ResellerTTL: time.Minute})

	access := service.NewAccessService(repo)
	_, _, err = access.BootstrapDeveloper(ctx, "root", "root-password")
	require.NoError(t, err)

	resolver := service.NewResellerResolver(repo, rc)
	engine := service.NewReservationEngine()
	recorder := service.NewRecorder(repo, engine, nil)

	h := NewHandler(Services{
		Checkout:  service.NewCheckoutService(repo, rc, resolver, engine, recorder, nil, service.CheckoutConfig{}),
		Catalog:   service.NewCatalogService(repo),
		Resellers: service.NewResellerService(repo, resolver),
		Recorder:  recorder,
		Access:    access,
		Auth:      service.NewAuthService(repo, rc, service.AuthConfig{Secret: "test-secret", MaxAttempts: 3}),
		Settings:  service.NewSettingsService(repo),
		Checks:    map[string]Pinger{"redis": rc},
	})
	router := gin.New()
	h.SetupRoutes(router)

	return &testServer{router: router, repo: repo, redis: mr}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (s *testServer) createProduct(t *testing.T, token string, stock int) int64 {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/admin/products", token, gin.H{
		"name":  "Kopi Gayo",
		"price": "25000",
		"stock": stock,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(t, w)["id"].(float64))
}

func TestHealthAndReadiness(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	s.redis.Close()
	w = s.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "down", decode(t, w)["checks"].(map[string]interface{})["redis"])
}

func TestAdminRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/admin/products", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHENTICATED", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/api/v1/admin/products", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token := s.login(t, "root", "root-password")
	w = s.do(t, http.MethodGet, "/api/v1/admin/me", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.DeveloperRole, decode(t, w)["role"])
}

func TestLoginFailuresAreThrottled(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "root", "password": "wrong-password"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", decode(t, w)["code"])
	}
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": "root", "password": "root-password"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestCheckoutOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "root", "root-password")
	productID := s.createProduct(t, token, 3)

	body := gin.H{"productId": productID, "quantity": 2, "customerName": "Budi", "customerPhone": "08111111111"}
	w := s.do(t, http.MethodPost, "/api/v1/checkout", "", body, "Idempotency-Key", "key-1")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := decode(t, w)
	assert.Equal(t, "50000", first["totalPrice"])
	assert.Contains(t, first["whatsappUrl"], "https://wa.me/6281234567890?text=")

	w = s.do(t, http.MethodPost, "/api/v1/checkout", "", body, "Idempotency-Key", "key-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	replay := decode(t, w)
	assert.Equal(t, true, replay["replayed"])
	assert.Equal(t, first["orderNumber"], replay["orderNumber"])

	w = s.do(t, http.MethodPost, "/api/v1/checkout", "", body, "Idempotency-Key", "key-2")
	require.Equal(t, http.StatusConflict, w.Code)
	problem := decode(t, w)
	assert.Equal(t, "INSUFFICIENT_STOCK", problem["code"])
	details := problem["details"].(map[string]interface{})
	assert.Equal(t, float64(1), details["available"])

	w = s.do(t, http.MethodPost, "/api/v1/checkout", "", gin.H{"productId": productID, "quantity": 1, "customerEmail": "nope"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_FAILED", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", productID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["stock"])
}

func TestMalformedBodyIsRejected(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, w)["code"])
}

func TestValidateReseller(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "root", "root-password")

	w := s.do(t, http.MethodPost, "/api/v1/admin/resellers", token, gin.H{"name": "Ani", "phone": "0899", "unique_id": "ANI01"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/resellers/validate/ANI01", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	assert.Equal(t, true, resp["valid"])
	assert.Equal(t, "Ani", resp["reseller"].(map[string]interface{})["name"])
	assert.NotContains(t, resp["reseller"], "phone")

	w = s.do(t, http.MethodGet, "/api/v1/resellers/validate/ani01", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, false, decode(t, w)["valid"])
}

func TestTransactionStatusOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "root", "root-password")
	productID := s.createProduct(t, token, 5)

	w := s.do(t, http.MethodPost, "/api/v1/checkout", "", gin.H{"productId": productID, "quantity": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	txnID := int64(decode(t, w)["transactionId"].(float64))
	path := fmt.Sprintf("/api/v1/admin/transactions/%d", txnID)

	w = s.do(t, http.MethodPatch, path+"/status", token, gin.H{"status": "shipped"})
	require.Equal(t, http.StatusConflict, w.Code)
	problem := decode(t, w)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", problem["code"])
	assert.Equal(t, []interface{}{"CONFIRMED", "CANCELLED"}, problem["details"].(map[string]interface{})["allowed"])

	w = s.do(t, http.MethodPatch, path+"/status", token, gin.H{"status": "CANCELLED", "notes": "customer asked"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "CANCELLED", decode(t, w)["status"])

	w = s.do(t, http.MethodGet, fmt.Sprintf("/api/v1/admin/products/%d", productID), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(5), decode(t, w)["stock"])

	w = s.do(t, http.MethodGet, "/api/v1/admin/transactions?status=cancelled", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["transactions"], 1)

	w = s.do(t, http.MethodGet, "/api/v1/admin/transactions?from=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStaffCannotManageCatalog(t *testing.T) {
	s := newTestServer(t)
	root := s.login(t, "root", "root-password")

	staff, err := s.repo.GetRoleByName(context.Background(), "STAFF")
	require.NoError(t, err)
	w := s.do(t, http.MethodPost, "/api/v1/admin/users", root, gin.H{"username": "kasir", "password": "kasir-password", "role_id": staff.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, decode(t, w), "password_hash")

	token := s.login(t, "kasir", "kasir-password")
	w = s.do(t, http.MethodPost, "/api/v1/admin/products", token, gin.H{"name": "Teh", "price": "1000"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", decode(t, w)["code"])

	w = s.do(t, http.MethodGet, "/api/v1/admin/dashboard", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSettingsOverHTTP(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "root", "root-password")

	w := s.do(t, http.MethodPut, "/api/v1/admin/settings", token, gin.H{"store_name": "Warung Baru", "locale": "en"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/settings", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	settings := decode(t, w)
	assert.Equal(t, "Warung Baru", settings["store_name"])
	assert.Equal(t, "en", settings["locale"])

	w = s.do(t, http.MethodPut, "/api/v1/admin/settings", token, gin.H{"locale": "fr"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc"))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken("Bearer "))
	assert.Equal(t, "", bearerToken(""))
}
