package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteJSONError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	WriteJSONError(rec, http.StatusBadRequest, "test error")

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content-type = %s, want application/json", ct)
	}

	var resp ErrorBody
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Error != "test error" {
		t.Errorf("error = %s, want 'test error'", resp.Error)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status_code = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestWriteJSON(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	data := map[string]string{"message": "hello"}
	WriteJSON(rec, http.StatusCreated, data)

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusCreated)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["message"] != "hello" {
		t.Errorf("message = %s, want 'hello'", resp["message"])
	}
}

func TestWriteJSONOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	data := map[string]int{"count": 42}
	WriteJSONOK(rec, data)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp["count"] != 42 {
		t.Errorf("count = %d, want 42", resp["count"])
	}
}

func TestStatusHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		write      func(w http.ResponseWriter)
		wantStatus int
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "invalid input") }, http.StatusBadRequest},
		{"unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "missing token") }, http.StatusUnauthorized},
		{"forbidden", func(w http.ResponseWriter) { Forbidden(w, "not allowed") }, http.StatusForbidden},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "Mission not found") }, http.StatusNotFound},
		{"method not allowed", MethodNotAllowed, http.StatusMethodNotAllowed},
		{"conflict", func(w http.ResponseWriter) { Conflict(w, "Mission with this ID already exists") }, http.StatusConflict},
		{"unprocessable", func(w http.ResponseWriter) { UnprocessableEntity(w, "confidence out of range") }, http.StatusUnprocessableEntity},
		{"rate limited", func(w http.ResponseWriter) { TooManyRequests(w, "rate limit exceeded") }, http.StatusTooManyRequests},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "internal error") }, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}

			var resp ErrorBody
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status_code field = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if resp.Error == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}

func TestReadJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"smoke","value":0.9}`))
		rec := httptest.NewRecorder()

		var p payload
		if err := ReadJSON(rec, req, &p); err != nil {
			t.Fatalf("ReadJSON returned error: %v", err)
		}
		if p.Name != "smoke" || p.Value != 0.9 {
			t.Errorf("decoded %+v", p)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":`))
		rec := httptest.NewRecorder()

		var p payload
		if err := ReadJSON(rec, req, &p); err == nil {
			t.Fatal("ReadJSON should reject malformed JSON")
		}
	})

	t.Run("trailing garbage", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(`{"name":"a"} {"name":"b"}`))
		rec := httptest.NewRecorder()

		var p payload
		if err := ReadJSON(rec, req, &p); err == nil {
			t.Fatal("ReadJSON should reject trailing values")
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		big := `{"name":"` + strings.Repeat("x", 1<<20) + `"}`
		req := httptest.NewRequest("POST", "/", strings.NewReader(big))
		rec := httptest.NewRecorder()

		var p payload
		if err := ReadJSON(rec, req, &p); err == nil {
			t.Fatal("ReadJSON should reject bodies over the size cap")
		}
	})
}
