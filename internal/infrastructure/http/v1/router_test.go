package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pestctl/internal/core/apperror"
	"pestctl/internal/core/security"
	"pestctl/internal/domain/auth"
	"pestctl/internal/domain/inmem"
	v1 "pestctl/internal/infrastructure/http/v1"
	"pestctl/internal/infrastructure/storage/postgres"
	"pestctl/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiFixture struct {
	*inmem.Fixture
	router http.Handler
	jwt    *auth.JWTService
	idem   *memIdempotency
}

func newAPI(t *testing.T) *apiFixture {
	t.Helper()
	f := inmem.NewFixture()
	jwt := auth.NewJWTService(auth.DefaultJWTConfig("test-secret-of-sufficient-length"))
	idem := newMemIdempotency()

	router := v1.NewRouter(v1.RouterConfig{
		Engine:       f.Engine.Engine,
		Logger:       logger.Default(),
		JWTValidator: jwt,
		Idempotency:  idem,
	})
	return &apiFixture{Fixture: f, router: router, jwt: jwt, idem: idem}
}

func (a *apiFixture) token(t *testing.T, who auth.Identity) string {
	t.Helper()
	who.CompanyID = a.CompanyID.String()
	tok, _, err := a.jwt.GenerateAccessToken(who, "s-1")
	require.NoError(t, err)
	return tok
}

func (a *apiFixture) admin(t *testing.T) string {
	return a.token(t, auth.Identity{UserID: "admin-1", Role: string(security.RoleAdmin)})
}

func (a *apiFixture) technician(t *testing.T) string {
	return a.token(t, auth.Identity{
		UserID:       "tech-1",
		TechnicianID: a.TechnicianID.String(),
		Role:         string(security.RoleTechnician),
	})
}

func (a *apiFixture) do(t *testing.T, method, path, token string, body any, headers ...string) *httptest.ResponseRecorder {
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
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func receiptBody(itemID string, qty string) map[string]any {
	return map[string]any{
		"destination": map[string]any{"kind": "WAREHOUSE"},
		"reference":   "INV-42",
		"lines": []map[string]any{{
			"item_id":     itemID,
			"qty":         qty,
			"unit":        "kg",
			"rate":        "120",
			"batch_no":    "LOT-A",
			"expiry_date": "2027-06-30T00:00:00Z",
		}},
	}
}

func TestHealth(t *testing.T) {
	api := newAPI(t)

	w := api.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = api.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_RequiresToken(t *testing.T) {
	api := newAPI(t)

	w := api.do(t, http.MethodGet, "/api/v1/movements", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(apperror.CodeUnauthorized), decode(t, w)["code"])

	w = api.do(t, http.MethodGet, "/api/v1/movements", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAPI_ReceiptIssueApproveFlow(t *testing.T) {
	api := newAPI(t)
	admin := api.admin(t)
	itemID := api.Item.ID.String()

	w := api.do(t, http.MethodPost, "/api/v1/movements/receipts", admin, receiptBody(itemID, "10"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	receipt := decode(t, w)
	assert.Equal(t, "COMPLETED", receipt["status"])
	assert.Equal(t, "RECEIPT", receipt["kind"])
	assert.Contains(t, receipt, "totals")
	sourceBatch := receipt["lines"].([]any)[0].(map[string]any)["batch_id"].(string)

	issue := map[string]any{
		"source":      map[string]any{"kind": "WAREHOUSE"},
		"destination": map[string]any{"kind": "TECHNICIAN", "id": api.TechnicianID.String()},
		"lines":       []map[string]any{{"item_id": itemID, "qty": "2500", "unit": "GRAM"}},
	}
	w = api.do(t, http.MethodPost, "/api/v1/movements/issues", admin, issue)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	issued := decode(t, w)
	assert.Equal(t, "AWAITING_APPROVAL", issued["status"])
	approvalID := issued["approval_id"].(string)

	tech := api.technician(t)
	w = api.do(t, http.MethodGet, "/api/v1/approvals?status=PENDING", tech, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["total_count"])

	w = api.do(t, http.MethodPost, "/api/v1/approvals/"+approvalID+"/approve", tech, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "APPROVED", decode(t, w)["status"])

	w = api.do(t, http.MethodPost, "/api/v1/approvals/"+approvalID+"/approve", tech, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, string(apperror.CodeAlreadyProcessed), decode(t, w)["code"])

	w = api.do(t, http.MethodGet, "/api/v1/stock/batches/"+sourceBatch, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7.5", decode(t, w)["current_qty"])

	w = api.do(t, http.MethodGet, "/api/v1/stock/batches/"+sourceBatch+"/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["balanced"])

	w = api.do(t, http.MethodGet, "/api/v1/stock/ledger?batch_id="+sourceBatch, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode(t, w)["total_count"])

	w = api.do(t, http.MethodGet, "/api/v1/stock/batches?location_kind=TECHNICIAN&location_id="+api.TechnicianID.String(), admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total_count"])
}

func TestAPI_PartialAcceptAndReject(t *testing.T) {
	api := newAPI(t)
	admin := api.admin(t)
	tech := api.technician(t)
	itemID := api.Item.ID.String()

	w := api.do(t, http.MethodPost, "/api/v1/movements/receipts", admin, receiptBody(itemID, "10"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sourceBatch := decode(t, w)["lines"].([]any)[0].(map[string]any)["batch_id"].(string)

	issueTo := func(lines ...map[string]any) string {
		t.Helper()
		w := api.do(t, http.MethodPost, "/api/v1/movements/issues", admin, map[string]any{
			"source":      map[string]any{"kind": "WAREHOUSE"},
			"destination": map[string]any{"kind": "TECHNICIAN", "id": api.TechnicianID.String()},
			"lines":       lines,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		return decode(t, w)["approval_id"].(string)
	}

	approvalID := issueTo(
		map[string]any{"item_id": itemID, "qty": "4", "unit": "KG"},
		map[string]any{"item_id": itemID, "qty": "1", "unit": "KG"},
	)
	w = api.do(t, http.MethodGet, "/api/v1/approvals/"+approvalID, tech, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var keep, drop string
	for _, raw := range decode(t, w)["items"].([]any) {
		it := raw.(map[string]any)
		if it["original_qty"] == "4" {
			keep = it["id"].(string)
		} else {
			drop = it["id"].(string)
		}
	}
	require.NotEmpty(t, keep)
	require.NotEmpty(t, drop)

	w = api.do(t, http.MethodPost, "/api/v1/approvals/"+approvalID+"/partial", tech, map[string]any{
		"lines": []map[string]any{
			{"approval_item_id": keep, "status": "MAYBE", "qty": "1"},
			{"approval_item_id": drop, "status": "REJECTED"},
		},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
	assert.Equal(t, string(apperror.CodeValidation), decode(t, w)["code"])

	w = api.do(t, http.MethodPost, "/api/v1/approvals/"+approvalID+"/partial", tech, map[string]any{
		"lines": []map[string]any{
			{"approval_item_id": keep, "status": "APPROVED", "qty": "2500", "unit": "GRAM"},
			{"approval_item_id": drop, "status": "REJECTED"},
		},
		"reason": "short delivery",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resolved := decode(t, w)
	assert.Equal(t, "PARTIALLY_APPROVED", resolved["status"])
	assert.Equal(t, "short delivery", resolved["rejection_reason"])

	// 10 received, 5 issued, 1.5 and 1 returned.
	w = api.do(t, http.MethodGet, "/api/v1/stock/batches/"+sourceBatch, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7.5", decode(t, w)["current_qty"])

	rejectID := issueTo(map[string]any{"item_id": itemID, "qty": "2", "unit": "KG"})
	w = api.do(t, http.MethodPost, "/api/v1/approvals/"+rejectID+"/reject", tech, map[string]any{"reason": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())

	w = api.do(t, http.MethodPost, "/api/v1/approvals/"+rejectID+"/reject", tech, map[string]any{"reason": "damaged drum"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "REJECTED", decode(t, w)["status"])

	w = api.do(t, http.MethodGet, "/api/v1/stock/batches/"+sourceBatch, admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "7.5", decode(t, w)["current_qty"])

	w = api.do(t, http.MethodGet, "/api/v1/stock/batches/"+sourceBatch+"/reconcile", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["balanced"])
}

func TestAPI_InsufficientStock(t *testing.T) {
	api := newAPI(t)

	issue := map[string]any{
		"source":      map[string]any{"kind": "WAREHOUSE"},
		"destination": map[string]any{"kind": "BRANCH", "id": api.BranchID.String()},
		"lines":       []map[string]any{{"item_id": api.Item.ID.String(), "qty": "1", "unit": "KG"}},
	}
	w := api.do(t, http.MethodPost, "/api/v1/movements/issues", api.admin(t), issue)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, string(apperror.CodeInsufficientStock), body["code"])
	assert.Equal(t, "1", body["details"].(map[string]any)["shortfall"])
}

func TestAPI_BindingValidation(t *testing.T) {
	api := newAPI(t)
	admin := api.admin(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"zero quantity", receiptBody(api.Item.ID.String(), "0")},
		{"bad item id", receiptBody("not-a-uuid", "1")},
		{"no lines", map[string]any{"destination": map[string]any{"kind": "WAREHOUSE"}}},
		{"unknown location kind", map[string]any{
			"destination": map[string]any{"kind": "MOON"},
			"lines":       []map[string]any{{"item_id": api.Item.ID.String(), "qty": "1", "unit": "KG"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(t, http.MethodPost, "/api/v1/movements/receipts", admin, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, string(apperror.CodeValidation), decode(t, w)["code"])
		})
	}
}

func TestAPI_ItemWritesAreAdminOnly(t *testing.T) {
	api := newAPI(t)
	item := map[string]any{
		"name":      "Fipronil 2.5% EC",
		"category":  "chemical",
		"base_unit": "L",
		"gst_rate":  "18",
		"conversions": []map[string]any{
			{"from_unit": "L", "to_unit": "ML", "factor": "1000"},
		},
	}

	w := api.do(t, http.MethodPost, "/api/v1/items", api.technician(t), item)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, http.MethodPost, "/api/v1/items", api.admin(t), item)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "L", created["base_unit"])

	w = api.do(t, http.MethodGet, "/api/v1/items/"+created["id"].(string), api.technician(t), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPI_IdempotentReplay(t *testing.T) {
	api := newAPI(t)
	admin := api.admin(t)
	body := receiptBody(api.Item.ID.String(), "3")

	first := api.do(t, http.MethodPost, "/api/v1/movements/receipts", admin, body, "X-Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	second := api.do(t, http.MethodPost, "/api/v1/movements/receipts", admin, body, "X-Idempotency-Key", "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	w := api.do(t, http.MethodGet, "/api/v1/movements?kind=RECEIPT", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["total_count"], "replay must not post a second receipt")
}

// memIdempotency keeps completed responses in memory.
type memIdempotency struct {
	mu   sync.Mutex
	done map[string]*postgres.IdempotencyReplay
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{done: make(map[string]*postgres.IdempotencyReplay)}
}

func (m *memIdempotency) AcquireKey(_ context.Context, key, userID, _, _ string) (*postgres.IdempotencyReplay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done[userID+"/"+key], nil
}

func (m *memIdempotency) CompleteKey(_ context.Context, key, userID string, status int, contentType string, response any) error {
	body, err := json.Marshal(response)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done[userID+"/"+key] = &postgres.IdempotencyReplay{StatusCode: status, ContentType: contentType, Body: body}
	return nil
}

func (m *memIdempotency) FailKey(context.Context, string, string, int, string, any) error {
	return nil
}
