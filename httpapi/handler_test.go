package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"sagaflow/engine"
)

func TestNewRouter_CreatesUserOnSuccess(t *testing.T) {
	runner := func(req CreateUserRequest) (any, error) {
		return map[string]any{"name": req.Name}, nil
	}
	router := NewRouter(runner, nil)

	body, _ := json.Marshal(CreateUserRequest{Name: "Ada", Email: "ada@example.com"})
	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestNewRouter_RejectsMalformedBody(t *testing.T) {
	router := NewRouter(func(CreateUserRequest) (any, error) { return nil, nil }, nil)

	req := httptest.NewRequest(http.MethodPost, "/users", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestMapSagaError_PicksMostSpecificStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"critical", &engine.WorkflowFailedError{Cause: &engine.CriticalStepError{StepName: "a", Cause: errBoom}}, http.StatusInternalServerError},
		{"timeout", &engine.WorkflowFailedError{Cause: &engine.StepTimeoutError{StepName: "a", Timeout: "1s"}}, http.StatusGatewayTimeout},
		{"interrupted", &engine.WorkflowFailedError{Cause: &engine.WorkflowInterruptedError{StepName: "a", Cause: errBoom}}, http.StatusServiceUnavailable},
		{"generic", &engine.WorkflowFailedError{Cause: errBoom}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := mapSagaError(tt.err)
			if status != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, status)
			}
		})
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
