package sync

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"doltsync/core/syncer"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

func setupApp(t *testing.T, svc *Service) *fiber.App {
	app := fiber.New()
	api := app.Group("/api/v1")
	f := &Feature{service: svc, handler: NewHandler(svc)}
	assert.NoError(t, f.Load(api))
	return app
}

func TestHandleSyncTable(t *testing.T) {
	source := &fakeSource{head: "c2", columns: []string{"id", "status"}, rows: orderRecords(2)}
	svc, _ := setupService(t, source, &fakeAdapter{}, syncer.Config{BatchSize: 100, OnConflict: "update"})
	app := setupApp(t, svc)

	req := httptest.NewRequest("POST", "/api/v1/sync/orders", nil)
	resp, err := app.Test(req, 2000)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var result syncer.Result
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "orders", result.Table)
	assert.Equal(t, int64(2), result.RowsApplied)
	assert.Equal(t, "c2", result.FinalCommit)
}

func TestHandleSyncTableBadRef(t *testing.T) {
	source := &fakeSource{head: "c2", columns: []string{"id", "status"}}
	svc, _ := setupService(t, source, &fakeAdapter{}, syncer.Config{BatchSize: 100, OnConflict: "update"})
	app := setupApp(t, svc)

	req := httptest.NewRequest("POST", "/api/v1/sync/orders", strings.NewReader(`{"to": "nope"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 2000)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHandleSyncTableBadBody(t *testing.T) {
	source := &fakeSource{head: "c2", columns: []string{"id", "status"}}
	svc, _ := setupService(t, source, &fakeAdapter{}, syncer.Config{BatchSize: 100, OnConflict: "update"})
	app := setupApp(t, svc)

	req := httptest.NewRequest("POST", "/api/v1/sync/orders", strings.NewReader(`{not json`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 2000)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleSyncAll(t *testing.T) {
	source := &fakeSource{head: "c2", columns: []string{"id", "status"}, rows: orderRecords(2)}
	svc, _ := setupService(t, source, &fakeAdapter{}, syncer.Config{BatchSize: 100, OnConflict: "update"})
	app := setupApp(t, svc)

	req := httptest.NewRequest("POST", "/api/v1/sync", strings.NewReader(`{"tables": ["orders", "customers"]}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Outcomes []struct {
			Table string `json:"table"`
			Error string `json:"error"`
		} `json:"outcomes"`
		Failed int `json:"failed"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Outcomes, 2)
	assert.Equal(t, 0, body.Failed)
}

func TestHandleSyncConflict(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	source := &fakeSource{head: "c2", columns: []string{"id", "status"}, rows: orderRecords(1)}
	svc, _ := setupService(t, source, &fakeAdapter{block: block, started: started}, syncer.Config{BatchSize: 100, OnConflict: "update"})
	app := setupApp(t, svc)

	done := make(chan int, 1)
	go func() {
		resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/sync/orders", nil), 10000)
		if err != nil {
			done <- 0
			return
		}
		done <- resp.StatusCode
	}()
	<-started

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/sync/orders", nil), 2000)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	close(block)
	assert.Equal(t, 200, <-done)
}

func TestHandleCursors(t *testing.T) {
	source := &fakeSource{head: "c2", columns: []string{"id", "status"}, rows: orderRecords(1)}
	svc, _ := setupService(t, source, &fakeAdapter{}, syncer.Config{BatchSize: 100, OnConflict: "update"})
	app := setupApp(t, svc)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/sync/orders", nil), 2000)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/cursors", nil), 2000)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var body struct {
		Cursors []struct {
			Table      string `json:"table"`
			TargetID   string `json:"target_id"`
			LastCommit string `json:"last_commit"`
		} `json:"cursors"`
		Running []string `json:"running"`
	}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Cursors, 1)
	assert.Equal(t, "orders", body.Cursors[0].Table)
	assert.Equal(t, "c2", body.Cursors[0].LastCommit)
	assert.Empty(t, body.Running)

	// Reset and confirm the cursor is gone.
	req := httptest.NewRequest("POST", "/api/v1/cursors/reset", strings.NewReader(`{"table": "orders"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req, 2000)
	assert.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	cursors, err := svc.Cursors(req.Context())
	assert.NoError(t, err)
	assert.Empty(t, cursors)
}

func TestHandleResetCursorValidation(t *testing.T) {
	source := &fakeSource{head: "c2", columns: []string{"id", "status"}}
	svc, _ := setupService(t, source, &fakeAdapter{}, syncer.Config{BatchSize: 100, OnConflict: "update"})
	app := setupApp(t, svc)

	req := httptest.NewRequest("POST", "/api/v1/cursors/reset", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 2000)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}
