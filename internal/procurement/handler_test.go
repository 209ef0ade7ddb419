package procurement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/sitetrack/internal/platform/httpx"
	"github.com/odyssey-erp/sitetrack/internal/rbac"
	"github.com/odyssey-erp/sitetrack/internal/shared"
)

const handlerPolicy = `
roles:
  - name: manager
    permissions:
      - procurement-orders/view
      - procurement-orders/create
      - procurement-orders/submit
      - procurement-orders/approve
      - procurement-orders/reject
      - procurement-orders/order
      - procurement-orders/cancel
      - procurement-orders/deliver
      - procurement-orders/receive
      - procurement-orders/resolve
  - name: site
    permissions: [procurement-orders/view, procurement-orders/deliver, procurement-orders/receive]
  - name: viewer
    permissions: [procurement-orders/view]
`

type handlerFixture struct {
	*serviceFixture
	router http.Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newServiceFixture(t)
	policy, err := rbac.ParsePolicy(strings.NewReader(handlerPolicy))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.svc, rbac.Middleware{Service: rbac.NewService(policy), Logger: logger})

	r := chi.NewRouter()
	r.Route("/orders", h.MountRoutes)
	return &handlerFixture{serviceFixture: f, router: r}
}

type call struct {
	method  string
	path    string
	body    any
	role    string
	token   string
	headers map[string]string
}

func (f *handlerFixture) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if c.body != nil {
		raw, ok := c.body.(string)
		if !ok {
			data, err := json.Marshal(c.body)
			require.NoError(t, err)
			raw = string(data)
		}
		body = bytes.NewBufferString(raw)
	}
	req := httptest.NewRequest(c.method, c.path, body)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(shared.CSRFHeader, c.token)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.role != "" {
		sess := shared.NewDetachedSession("sess-1", "1", c.role)
		req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) httpx.ProblemDetail {
	t.Helper()
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestHandlerRequiresSession(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, call{method: http.MethodGet, path: "/orders/"})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerCreateOrder(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, call{
		method: http.MethodPost,
		path:   "/orders/",
		role:   roleManager,
		token:  "tok",
		body: map[string]any{
			"vendor_id":  4,
			"project_id": 9,
			"tax_amount": "5.00",
			"items": []map[string]any{
				{"description": "Rebar 12mm", "quantity": "10", "unit_price": "4.25"},
			},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Order OrderView  `json:"order"`
		Items []ItemView `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, string(StatusDraft), resp.Order.Status)
	require.Equal(t, fmt.Sprintf("#%d", resp.Order.ID), resp.Order.Number)
	require.Len(t, resp.Items, 1)
}

func TestHandlerCreateOrderValidation(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, call{
		method: http.MethodPost,
		path:   "/orders/",
		role:   roleManager,
		token:  "tok",
		body:   map[string]any{"vendor_id": 4, "project_id": 9, "items": []any{}},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p := decodeProblem(t, rec)
	require.Equal(t, string(KindValidation), p.Type)
	require.Len(t, p.InvalidParams, 1)
	require.Equal(t, "items", p.InvalidParams[0].Name)
}

func TestHandlerCreateOrderDuplicateNumber(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedDelivered("10")

	rec := f.do(t, call{
		method: http.MethodPost,
		path:   "/orders/",
		role:   roleManager,
		token:  "tok",
		body: map[string]any{
			"po_number":  "PO-1001",
			"vendor_id":  4,
			"project_id": 9,
			"items": []map[string]any{
				{"description": "Rebar 12mm", "quantity": "10", "unit_price": "4.25"},
			},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	p := decodeProblem(t, rec)
	require.Equal(t, string(KindValidation), p.Type)
	require.Len(t, p.InvalidParams, 1)
	require.Equal(t, "po_number", p.InvalidParams[0].Name)
}

func TestHandlerRejectsUnknownFields(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, call{
		method: http.MethodPost,
		path:   "/orders/",
		role:   roleManager,
		token:  "tok",
		body:   `{"vendor_id": 4, "surprise": true}`,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerCreateNeedsCreatePermission(t *testing.T) {
	f := newHandlerFixture(t)
	rec := f.do(t, call{method: http.MethodPost, path: "/orders/", role: roleSite, token: "tok", body: map[string]any{}})
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerTransitionForbiddenForSiteRole(t *testing.T) {
	f := newHandlerFixture(t)
	order := f.repo.seed(Order{Status: StatusPending, DeliveryStatus: DeliveryPending, ProjectID: 9})

	rec := f.do(t, call{
		method: http.MethodPost,
		path:   fmt.Sprintf("/orders/%d/transition", order.ID),
		role:   roleSite,
		token:  "tok",
		body:   map[string]any{"status": "approved"},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Equal(t, string(KindForbidden), decodeProblem(t, rec).Type)
}

func TestHandlerTransitionNeedsCSRFToken(t *testing.T) {
	f := newHandlerFixture(t)
	order := f.repo.seed(Order{Status: StatusPending, DeliveryStatus: DeliveryPending, ProjectID: 9})

	rec := f.do(t, call{
		method: http.MethodPost,
		path:   fmt.Sprintf("/orders/%d/transition", order.ID),
		role:   roleManager,
		body:   map[string]any{"status": "approved"},
	})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, call{
		method: http.MethodPost,
		path:   fmt.Sprintf("/orders/%d/transition", order.ID),
		role:   roleManager,
		token:  "tok",
		body:   map[string]any{"status": "Approved"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, _, err := f.repo.GetOrder(t.Context(), order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, stored.Status)
}

func TestHandlerInvalidTransitionIsConflict(t *testing.T) {
	f := newHandlerFixture(t)
	order := f.repo.seed(Order{Status: StatusDraft, DeliveryStatus: DeliveryPending, ProjectID: 9})

	rec := f.do(t, call{
		method: http.MethodPost,
		path:   fmt.Sprintf("/orders/%d/transition", order.ID),
		role:   roleManager,
		token:  "tok",
		body:   map[string]any{"status": "RECEIVED"},
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(KindInvalidTransition), decodeProblem(t, rec).Type)
}

func TestHandlerReceiptOverReceiveNamesItem(t *testing.T) {
	f := newHandlerFixture(t)
	order, item := f.seedDelivered("10")

	rec := f.do(t, call{
		method: http.MethodPost,
		path:   fmt.Sprintf("/orders/%d/receipts", order.ID),
		role:   roleSite,
		token:  "tok",
		body: map[string]any{
			"items": map[string]any{fmt.Sprint(item.ID): map[string]any{"quantity_received_now": "12"}},
		},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	p := decodeProblem(t, rec)
	require.Equal(t, string(KindQuantityOutOfRange), p.Type)
	require.Len(t, p.InvalidParams, 1)
	require.Equal(t, item.ID, p.InvalidParams[0].ItemID)
}

func TestHandlerReceiptReplayIsConflict(t *testing.T) {
	f := newHandlerFixture(t)
	order, item := f.seedDelivered("10")
	receipt := call{
		method:  http.MethodPost,
		path:    fmt.Sprintf("/orders/%d/receipts", order.ID),
		role:    roleSite,
		token:   "tok",
		headers: map[string]string{IdempotencyHeader: "receipt-1"},
		body: map[string]any{
			"items": map[string]any{fmt.Sprint(item.ID): map[string]any{"quantity_received_now": "4"}},
		},
	}

	rec := f.do(t, receipt)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var result ReceiptResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, StatusPartiallyReceived, result.Status)
	require.Equal(t, DeliveryPartial, result.DeliveryStatus)

	rec = f.do(t, receipt)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerGetOrderAndNotFound(t *testing.T) {
	f := newHandlerFixture(t)
	order, _ := f.seedDelivered("10")

	rec := f.do(t, call{method: http.MethodGet, path: fmt.Sprintf("/orders/%d", order.ID), role: roleViewer})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, call{method: http.MethodGet, path: "/orders/999", role: roleViewer})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, call{method: http.MethodGet, path: "/orders/abc", role: roleViewer})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerListOrders(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedDelivered("10")
	f.repo.seed(Order{Status: StatusDraft, DeliveryStatus: DeliveryPending, ProjectID: 9})

	rec := f.do(t, call{method: http.MethodGet, path: "/orders/?status=draft", role: roleViewer})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var page struct {
		Orders     []OrderView       `json:"orders"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Orders, 1)
	require.Equal(t, string(StatusDraft), page.Orders[0].Status)
}
