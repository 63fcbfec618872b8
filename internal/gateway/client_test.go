package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Latasoft/CitySoccer-sub001/internal/models"
)

func testIntent() *models.PaymentIntent {
	return &models.PaymentIntent{
		OrderRef:   "CS-1-test",
		Amount:     30000,
		Currency:   "CLP",
		ResourceID: 5,
		Date:       "2025-03-01",
		StartTime:  "18:00",
		EndTime:    "19:00",
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	var gotAuth string
	var gotBody createSessionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions", r.URL.Path)
		user, _, _ := r.BasicAuth()
		gotAuth = user
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(createSessionResponse{
			SessionID:   "sess_123",
			CheckoutURL: "https://pay.example.com/sess_123",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", "https://citysoccer.example.com/return", time.Second)
	session, err := client.CreateCheckoutSession(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Equal(t, "sess_123", session.GatewaySessionID)
	assert.Equal(t, "https://pay.example.com/sess_123", session.CheckoutURL)

	assert.Equal(t, "sk_test", gotAuth)
	assert.Equal(t, "CS-1-test", gotBody.OrderRef)
	assert.Equal(t, int64(30000), gotBody.Amount)
	assert.Equal(t, "https://citysoccer.example.com/return", gotBody.ReturnURL)
}

func TestCreateCheckoutSession_ProviderRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid currency", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", "", time.Second)
	_, err := client.CreateCheckoutSession(context.Background(), testIntent())

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, KindRejected, gwErr.Kind)
}

func TestCreateCheckoutSession_MalformedResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "plain text"},
		{"missing session_id", `{"checkout_url":"https://pay.example.com/x"}`},
		{"missing checkout_url", `{"session_id":"sess_123"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client := NewClient(srv.URL, "sk_test", "", time.Second)
			_, err := client.CreateCheckoutSession(context.Background(), testIntent())

			var gwErr *Error
			require.ErrorAs(t, err, &gwErr)
			assert.Equal(t, KindMalformedResponse, gwErr.Kind)
		})
	}
}

func TestCreateCheckoutSession_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "sk_test", "", 20*time.Millisecond)
	_, err := client.CreateCheckoutSession(context.Background(), testIntent())

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, KindTimeout, gwErr.Kind)
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		reported     string
		wantState    string
		wantTerminal bool
	}{
		{"approved", models.IntentApproved, true},
		{"successful", models.IntentApproved, true},
		{"paid", models.IntentApproved, true},
		{"rejected", models.IntentRejected, true},
		{"failed", models.IntentRejected, true},
		{"declined", models.IntentRejected, true},
		{"expired", models.IntentExpired, true},
		{"timeout", models.IntentExpired, true},
		{"pending", "", false},
		{"processing_v2", "", false},
		{"", "", false},
		{"APPROVED", "", false}, // matching is case-sensitive
	}
	for _, tt := range tests {
		t.Run("status_"+tt.reported, func(t *testing.T) {
			state, terminal := MapProviderStatus(tt.reported)
			assert.Equal(t, tt.wantTerminal, terminal)
			assert.Equal(t, tt.wantState, state)
		})
	}
}
