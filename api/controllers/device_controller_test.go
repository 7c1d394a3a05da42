package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestHandleDevicesEmpty tests the device list before anything is discovered
func TestHandleDevicesEmpty(t *testing.T) {
	router, _ := setupRouter(t)

	req, _ := http.NewRequest("GET", "/api/cast/v1/devices", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status code 200, got %d", w.Code)
	}
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	data, ok := response["data"].([]interface{})
	if !ok {
		t.Fatalf("Response should contain a data array, got %v", response)
	}
	if len(data) != 0 {
		t.Errorf("Expected empty device list, got %d entries", len(data))
	}
}

// TestHandleDeviceNotFound tests the single-device lookup miss
func TestHandleDeviceNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	req, _ := http.NewRequest("GET", "/api/cast/v1/devices/dev_missing000000000", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", w.Code)
	}
	var response map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if response["error"] != "Device not found" {
		t.Errorf("Expected error message, got %v", response["error"])
	}
}

// TestHandleForgetNotFound tests forgetting an unknown device
func TestHandleForgetNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	req, _ := http.NewRequest("DELETE", "/api/cast/v1/devices/dev_missing000000000", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status code 404, got %d", w.Code)
	}
}

// TestHandleSearchInvalidBody tests search with a malformed body
func TestHandleSearchInvalidBody(t *testing.T) {
	router, _ := setupRouter(t)

	req, _ := http.NewRequest("POST", "/api/cast/v1/search", bytes.NewBufferString("invalid json"))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status code 400, got %d", w.Code)
	}
}

// TestHandleSearchBeforeDiscoveryStarts tests that search reports a server
// error while discovery is not running
func TestHandleSearchBeforeDiscoveryStarts(t *testing.T) {
	router, _ := setupRouter(t)

	req, _ := http.NewRequest("POST", "/api/cast/v1/search", nil)
	req.RemoteAddr = "127.0.0.1:12345"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status code 500, got %d", w.Code)
	}
}
