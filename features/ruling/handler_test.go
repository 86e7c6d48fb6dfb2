package ruling_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eratner15/tariff-engineer/features/ruling"
)

func TestHandler_Get(t *testing.T) {
	tests := []struct {
		name       string
		id         string
		setup      func(*MockRepo)
		wantStatus int
		wantCode   string
	}{
		{
			name: "Found",
			id:   "N330123",
			setup: func(r *MockRepo) {
				r.On("Get", context.Background(), "N330123").Return(&ruling.Record{ID: "N330123", Category: "Footwear"}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "Not Found",
			id:   "N999999",
			setup: func(r *MockRepo) {
				r.On("Get", context.Background(), "N999999").Return(nil, ruling.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "Invalid ID",
			id:         "bogus",
			setup:      func(r *MockRepo) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
		},
		{
			name: "Store Error",
			id:   "N330124",
			setup: func(r *MockRepo) {
				r.On("Get", context.Background(), "N330124").Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepo)
			tt.setup(repo)
			h := ruling.NewHandler(ruling.NewStore(repo, nil))

			req := httptest.NewRequest(http.MethodGet, "/rulings/"+tt.id, nil)
			req.SetPathValue("id", tt.id)
			w := httptest.NewRecorder()

			h.Get(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, body["error"].(map[string]interface{})["code"])
			} else {
				assert.Equal(t, tt.id, body["data"].(map[string]interface{})["id"])
			}
		})
	}
}

func TestHandler_List(t *testing.T) {
	repo := new(MockRepo)
	repo.On("SearchByHTSPrefix", context.Background(), "6404.19", 20).Return([]ruling.Record{{ID: "N1"}, {ID: "N2"}}, nil)
	h := ruling.NewHandler(ruling.NewStore(repo, nil))

	req := httptest.NewRequest(http.MethodGet, "/rulings?hts=6404.19&limit=20", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data  []ruling.Record `json:"data"`
		Total int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	repo.AssertExpectations(t)
}

func TestHandler_List_InvalidPrefix(t *testing.T) {
	h := ruling.NewHandler(ruling.NewStore(new(MockRepo), nil))

	for _, q := range []string{"", "shoe", "6404.1.2.3", "6"} {
		req := httptest.NewRequest(http.MethodGet, "/rulings?hts="+q, nil)
		w := httptest.NewRecorder()
		h.List(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}
