package integration_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type expenseBody struct {
	ID       string  `json:"id"`
	Amount   float64 `json:"amount"`
	TypeID   string  `json:"typeId"`
	TypeName string  `json:"typeName"`
	Reason   string  `json:"reason"`
	Date     string  `json:"date"`
	UserID   string  `json:"userId"`
}

type expenseList struct {
	Items      []expenseBody `json:"items"`
	Count      int           `json:"count"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	TotalPages int           `json:"totalPages"`
}

func createType(t *testing.T, a app, adminToken, name string) string {
	t.Helper()

	w, _ := doRequest(a.router, http.MethodPost, "/api/expense-types", `{"name":"`+name+`"}`, withBearer(adminToken))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out struct {
		ID string `json:"id"`
	}
	mustReadJSON(t, w, &out)
	return out.ID
}

func createExpense(t *testing.T, a app, token, body string) expenseBody {
	t.Helper()

	w, _ := doRequest(a.router, http.MethodPost, "/api/expenses", body, withBearer(token))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var out expenseBody
	mustReadJSON(t, w, &out)
	return out
}

func TestExpenses_CRUDAndScoping(t *testing.T) {
	forEachStore(t, func(t *testing.T, a app) {
		admin := login(t, a, adminEmail, adminPassword)
		feed := createType(t, a, admin.Token, "Feed")
		fuel := createType(t, a, admin.Token, "Fuel")

		ana := register(t, a, "Ana", "ana@x.com", "secret1")
		ben := register(t, a, "Ben", "ben@x.com", "secret1")

		e := createExpense(t, a, ana.Token, `{"amount":42.5,"typeId":"`+feed+`","reason":"  hay bales ","date":"2025-03-10"}`)
		assert.Equal(t, 42.5, e.Amount)
		assert.Equal(t, "Feed", e.TypeName)
		assert.Equal(t, "hay bales", e.Reason)
		assert.Equal(t, ana.User.ID, e.UserID)

		// Ben cannot see, change or delete Ana's row; all look like a missing row
		for _, tc := range []struct{ method, body string }{
			{http.MethodGet, ""},
			{http.MethodPut, `{"amount":1,"typeId":"` + feed + `","reason":"mine"}`},
			{http.MethodDelete, ""},
		} {
			w, _ := doRequest(a.router, tc.method, "/api/expenses/"+e.ID, tc.body, withBearer(ben.Token))
			assert.Equal(t, http.StatusNotFound, w.Code, tc.method)
		}

		w, _ := doRequest(a.router, http.MethodGet, "/api/expenses", "", withBearer(ben.Token))
		require.Equal(t, http.StatusOK, w.Code)
		var benList expenseList
		mustReadJSON(t, w, &benList)
		assert.Zero(t, benList.Total)

		// owner update; omitted date keeps the stored one
		w, _ = doRequest(a.router, http.MethodPut, "/api/expenses/"+e.ID,
			`{"amount":50,"typeId":"`+fuel+`","reason":"diesel"}`, withBearer(ana.Token))
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var updated expenseBody
		mustReadJSON(t, w, &updated)
		assert.Equal(t, 50.0, updated.Amount)
		assert.Equal(t, "Fuel", updated.TypeName)
		assert.Equal(t, e.Date, updated.Date)

		w, _ = doRequest(a.router, http.MethodGet, "/api/expenses/"+e.ID, "", withBearer(ana.Token))
		require.Equal(t, http.StatusOK, w.Code)

		w, _ = doRequest(a.router, http.MethodDelete, "/api/expenses/"+e.ID, "", withBearer(ana.Token))
		assert.Equal(t, http.StatusNoContent, w.Code)

		w, _ = doRequest(a.router, http.MethodGet, "/api/expenses/"+e.ID, "", withBearer(ana.Token))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestExpenses_InputErrors(t *testing.T) {
	forEachStore(t, func(t *testing.T, a app) {
		admin := login(t, a, adminEmail, adminPassword)
		feed := createType(t, a, admin.Token, "Feed")
		ana := register(t, a, "Ana", "ana@x.com", "secret1")

		cases := []struct {
			name     string
			method   string
			path     string
			body     string
			wantCode int
			wantErr  string
		}{
			{name: "unknown_type", method: http.MethodPost, path: "/api/expenses",
				body: `{"amount":1,"typeId":"` + uuid.NewString() + `","reason":"x"}`, wantCode: http.StatusBadRequest, wantErr: "invalid_type"},
			{name: "zero_amount", method: http.MethodPost, path: "/api/expenses",
				body: `{"amount":0,"typeId":"` + feed + `","reason":"x"}`, wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
			{name: "bad_date", method: http.MethodPost, path: "/api/expenses",
				body: `{"amount":1,"typeId":"` + feed + `","reason":"x","date":"10/03/2025"}`, wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
			{name: "non_uuid_id", method: http.MethodGet, path: "/api/expenses/42", wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
			{name: "limit_too_large", method: http.MethodGet, path: "/api/expenses?limit=101", wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
			{name: "bad_type_filter", method: http.MethodGet, path: "/api/expenses?type=feed", wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
			{name: "bad_start_date", method: http.MethodGet, path: "/api/expenses?startDate=yesterday", wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
			{name: "page_offset_overflow", method: http.MethodGet, path: "/api/expenses?page=9223372036854775807&limit=2", wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
			{name: "amount_over_numeric_12_2", method: http.MethodPost, path: "/api/expenses",
				body: `{"amount":10000000000,"typeId":"` + feed + `","reason":"x"}`, wantCode: http.StatusBadRequest, wantErr: "invalid_request"},
		}

		for _, tc := range cases {
			w, _ := doRequest(a.router, tc.method, tc.path, tc.body, withBearer(ana.Token))
			require.Equal(t, tc.wantCode, w.Code, "%s: %s", tc.name, w.Body.String())

			var e errorBody
			mustReadJSON(t, w, &e)
			assert.Equal(t, tc.wantErr, e.Error.Code, tc.name)
		}

		w, _ := doRequest(a.router, http.MethodGet, "/api/expenses", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestExpenses_ListPagingAndFilters(t *testing.T) {
	forEachStore(t, func(t *testing.T, a app) {
		admin := login(t, a, adminEmail, adminPassword)
		feed := createType(t, a, admin.Token, "Feed")
		fuel := createType(t, a, admin.Token, "Fuel")
		ana := register(t, a, "Ana", "ana@x.com", "secret1")

		for day := 1; day <= 7; day++ {
			typeID := feed
			if day%2 == 0 {
				typeID = fuel
			}
			createExpense(t, a, ana.Token, fmt.Sprintf(`{"amount":%d,"typeId":"%s","reason":"day %d","date":"2025-01-%02d"}`, day, typeID, day, day))
		}

		w, _ := doRequest(a.router, http.MethodGet, "/api/expenses", "", withBearer(ana.Token))
		require.Equal(t, http.StatusOK, w.Code)
		var first expenseList
		mustReadJSON(t, w, &first)
		assert.Equal(t, 7, first.Total)
		assert.Equal(t, 5, first.Count)
		assert.Equal(t, 1, first.Page)
		assert.Equal(t, 5, first.Limit)
		assert.Equal(t, 2, first.TotalPages)
		assert.Equal(t, 7.0, first.Items[0].Amount, "newest first")

		w, _ = doRequest(a.router, http.MethodGet, "/api/expenses?page=2", "", withBearer(ana.Token))
		var second expenseList
		mustReadJSON(t, w, &second)
		assert.Equal(t, 2, second.Count)
		assert.Equal(t, 1.0, second.Items[1].Amount)

		w, _ = doRequest(a.router, http.MethodGet, "/api/expenses?type="+fuel+"&limit=10", "", withBearer(ana.Token))
		var fuelOnly expenseList
		mustReadJSON(t, w, &fuelOnly)
		assert.Equal(t, 3, fuelOnly.Total)

		w, _ = doRequest(a.router, http.MethodGet, "/api/expenses?startDate=2025-01-03&endDate=2025-01-05&limit=10", "", withBearer(ana.Token))
		var window expenseList
		mustReadJSON(t, w, &window)
		assert.Equal(t, 3, window.Total, "endDate is inclusive")
	})
}

func TestExpenseTypes_CacheAndConflicts(t *testing.T) {
	forEachStore(t, func(t *testing.T, a app) {
		admin := login(t, a, adminEmail, adminPassword)
		ana := register(t, a, "Ana", "ana@x.com", "secret1")

		feed := createType(t, a, admin.Token, "Feed")

		w, _ := doRequest(a.router, http.MethodGet, "/api/expense-types", "", withBearer(ana.Token))
		require.Equal(t, http.StatusOK, w.Code)
		etag := w.Header().Get("ETag")
		require.NotEmpty(t, etag)

		w, _ = doRequest(a.router, http.MethodGet, "/api/expense-types", "", withBearer(ana.Token), withHeader("If-None-Match", etag))
		assert.Equal(t, http.StatusNotModified, w.Code)

		// a write invalidates the cached list
		createType(t, a, admin.Token, "Seeds")
		w, _ = doRequest(a.router, http.MethodGet, "/api/expense-types", "", withBearer(ana.Token), withHeader("If-None-Match", etag))
		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEqual(t, etag, w.Header().Get("ETag"))

		var list struct {
			Items []struct {
				Name string `json:"name"`
			} `json:"items"`
			Count int `json:"count"`
		}
		mustReadJSON(t, w, &list)
		require.Equal(t, 2, list.Count)
		assert.Equal(t, "Feed", list.Items[0].Name)
		assert.Equal(t, "Seeds", list.Items[1].Name)

		w, _ = doRequest(a.router, http.MethodPost, "/api/expense-types", `{"name":"feed"}`, withBearer(admin.Token))
		assert.Equal(t, http.StatusConflict, w.Code)

		createExpense(t, a, ana.Token, `{"amount":3,"typeId":"`+feed+`","reason":"hay"}`)

		w, _ = doRequest(a.router, http.MethodDelete, "/api/expense-types/"+feed, "", withBearer(admin.Token))
		require.Equal(t, http.StatusConflict, w.Code)
		var e errorBody
		mustReadJSON(t, w, &e)
		assert.Equal(t, "type_in_use", e.Error.Code)

		w, _ = doRequest(a.router, http.MethodPut, "/api/expense-types/"+feed, `{"name":"Animal feed"}`, withBearer(admin.Token))
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w, _ = doRequest(a.router, http.MethodDelete, "/api/expense-types/"+uuid.NewString(), "", withBearer(admin.Token))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestOpsEndpoints(t *testing.T) {
	forEachStore(t, func(t *testing.T, a app) {
		w, _ := doRequest(a.router, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, w.Code)

		w, _ = doRequest(a.router, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

		doRequest(a.router, http.MethodGet, "/api/auth/me", "")

		w, _ = doRequest(a.router, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `farmhub_auth_decisions_total{outcome="unauthenticated",reason="no_token"}`)
		assert.Contains(t, w.Body.String(), "farmhub_db_query_duration_seconds")

		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

		w, _ = doRequest(a.router, http.MethodGet, "/docs/openapi.yaml", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/api/expenses/{id}")

		w, _ = doRequest(a.router, http.MethodGet, "/docs", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "FarmHub API Docs")
	})
}
