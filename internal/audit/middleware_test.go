package audit

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joaoPTcunha/shopify-gesfaturacao-sub000/internal/auth"
)

func TestAuditLogsSubjectAndStatus(t *testing.T) {
	var buf bytes.Buffer
	mw := Middleware{Logger: zerolog.New(&buf)}

	handler := mw.Audit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/orders/42/sync", nil)
	req = req.WithContext(auth.WithSubject(req.Context(), "ops"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ops", entry["subject"])
	assert.Equal(t, string(ActorKindOperator), entry["actor_kind"])
	assert.Equal(t, float64(http.StatusAccepted), entry["status"])
	assert.Equal(t, "/v1/admin/orders/42/sync", entry["path"])
}

func TestAuditUnknownActor(t *testing.T) {
	var buf bytes.Buffer
	mw := Middleware{Logger: zerolog.New(&buf)}

	handler := mw.Audit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/admin/orders", nil))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, string(ActorKindUnknown), entry["actor_kind"])
	assert.Equal(t, "", entry["subject"])
}
