package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/farmhub/internal/domain/expense"
	"github.com/geocoder89/farmhub/internal/http/handlers"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bindErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			JSON   string                `json:"json"`
			Field  string                `json:"field"`
			Fields []handlers.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

func postExpenseBody(t *testing.T, body string) (*httptest.ResponseRecorder, bindErrorResponse) {
	t.Helper()

	r := gin.New()
	r.POST("/expenses", func(ctx *gin.Context) {
		var req expense.CreateRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodPost, "/expenses", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp bindErrorResponse
	if w.Code != http.StatusCreated {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	}
	return w, resp
}

func rulesByField(fields []handlers.FieldError) map[string]string {
	out := map[string]string{}
	for _, f := range fields {
		out[f.Field] = f.Rule
	}
	return out
}

func TestBindJSON_FieldRules(t *testing.T) {
	typeID := newUUID()

	tests := []struct {
		name      string
		body      string
		wantRules map[string]string
	}{
		{
			name:      "missing_and_malformed",
			body:      `{"amount":0,"typeId":"feed"}`,
			wantRules: map[string]string{"amount": "required", "typeId": "uuid", "reason": "required"},
		},
		{
			name:      "bad_date",
			body:      `{"amount":3,"typeId":"` + typeID + `","reason":"hay","date":"10/03/2025"}`,
			wantRules: map[string]string{"date": "date"},
		},
		{
			name:      "amount_over_column_precision",
			body:      `{"amount":10000000000,"typeId":"` + typeID + `","reason":"tractor"}`,
			wantRules: map[string]string{"amount": "lte"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := postExpenseBody(t, tt.body)

			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, "invalid_request", resp.Error.Code)

			got := rulesByField(resp.Error.Details.Fields)
			assert.Equal(t, tt.wantRules, got)
			for _, f := range resp.Error.Details.Fields {
				assert.NotEmpty(t, f.Message, "field %q", f.Field)
			}
		})
	}
}

func TestBindJSON_AcceptsBoundaryValues(t *testing.T) {
	typeID := newUUID()

	for _, body := range []string{
		`{"amount":9999999999.99,"typeId":"` + typeID + `","reason":"max"}`,
		`{"amount":0.01,"typeId":"` + typeID + `","reason":"min","date":"2025-03-10T08:30:00Z"}`,
		`{"amount":1,"typeId":"` + typeID + `","reason":"bare day","date":"2025-03-10"}`,
	} {
		w, _ := postExpenseBody(t, body)
		assert.Equal(t, http.StatusCreated, w.Code, body)
	}

	assert.Equal(t, 9999999999.99, expense.MaxAmount)
}

func TestBindJSON_TypeMismatchNamesJSONField(t *testing.T) {
	w, resp := postExpenseBody(t, `{"amount":"ten","typeId":"`+newUUID()+`","reason":"hay"}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_json_type", resp.Error.Details.JSON)
	assert.Equal(t, "amount", resp.Error.Details.Field)
	require.Len(t, resp.Error.Details.Fields, 1)
	assert.Equal(t, "type", resp.Error.Details.Fields[0].Rule)
}

func TestBindJSON_BadSyntax(t *testing.T) {
	w, resp := postExpenseBody(t, `{"amount":1,,}`)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_json_syntax", resp.Error.Details.JSON)
}

func TestRespondFieldErrors_FillsMessages(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(ctx *gin.Context) {
		handlers.RespondFieldErrors(ctx, "Invalid query parameters",
			handlers.FieldError{Field: "limit", Rule: "range", Param: "1 100"})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp bindErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Error.Details.Fields, 1)
	assert.Equal(t, "must be between 1 and 100", resp.Error.Details.Fields[0].Message)
}
