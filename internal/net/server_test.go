package net

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tradingboard/internal/clock"
	"tradingboard/internal/common"
	"tradingboard/internal/engine"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tomb "gopkg.in/tomb.v2"
)

// --- Setup & Helpers --------------------------------------------------------

var epoch = time.Date(2024, 3, 4, 14, 0, 0, 0, time.UTC)

type testEnv struct {
	board *engine.Board
	clock *clock.Fake
	http  *httptest.Server
}

func createTestEnv(t *testing.T) *testEnv {
	t.Helper()
	settings := engine.DefaultSettings()
	settings.Seed = 11
	settings.InitialOrders = 0
	settings.StartPaused = true

	clk := clock.NewFake(epoch)
	board := engine.NewBoard(settings, clk)
	srv := New("127.0.0.1:0", board, []string{"*"}, prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, board.Start(ctx))
	tb, _ := tomb.WithContext(ctx)
	srv.Start(tb)
	httpSrv := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		httpSrv.Close()
		cancel()
		_ = tb.Wait()
		_ = board.Stop()
	})
	return &testEnv{board: board, clock: clk, http: httpSrv}
}

func (e *testEnv) insert(t *testing.T, borrower string, side common.Side) common.Order {
	t.Helper()
	order, err := e.board.Insert(common.Order{
		Borrower: borrower,
		Facility: "Revolver",
		Dealer:   "Barclays",
		Rating:   "B+",
		Amount:   decimal.NewFromInt(10_000_000),
		Price:    decimal.RequireFromString("98.50"),
		Side:     side,
	})
	require.NoError(t, err)
	return order
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := make(map[string]any)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func readReport(t *testing.T, conn *websocket.Conn, want ReportMessageType) Report {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var report Report
		require.NoError(t, json.Unmarshal(data, &report))
		if report.Type == want {
			return report
		}
	}
}

// --- Tests ------------------------------------------------------------------

func TestServer_BookFiltersByQuery(t *testing.T) {
	env := createTestEnv(t)
	env.insert(t, "Acme Corp", common.Bid)
	env.insert(t, "Tech Holdings", common.Ask)

	code, body := env.do(t, http.MethodGet, "/api/v1/book?q=acme", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paused", body["feed"])
	rows := body["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme Corp", rows[0].(map[string]any)["borrower"])

	_, body = env.do(t, http.MethodGet, "/api/v1/book", "")
	assert.Len(t, body["rows"].([]any), 2)
}

func TestServer_FeedControl(t *testing.T) {
	env := createTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/v1/feed/resume", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", body["feed"])

	_, body = env.do(t, http.MethodPost, "/api/v1/feed/toggle", "")
	assert.Equal(t, "paused", body["feed"])

	_, body = env.do(t, http.MethodGet, "/api/v1/feed", "")
	assert.Equal(t, "paused", body["feed"])
}

func TestServer_ExecutionFlow(t *testing.T) {
	env := createTestEnv(t)
	order := env.insert(t, "Acme Corp", common.Bid)

	code, body := env.do(t, http.MethodPost, "/api/v1/orders/missing/select", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, engine.ErrOrderNotFound.Error(), body["error"])

	code, body = env.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/select", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "$10M", body["quantity"])

	code, _ = env.do(t, http.MethodPost, "/api/v1/orders/"+order.ID+"/select", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = env.do(t, http.MethodPut, "/api/v1/execution/quantity", `{"quantity":"$4M"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "$4M", body["quantity"])

	code, _ = env.do(t, http.MethodPost, "/api/v1/execution/confirm", "")
	require.Equal(t, http.StatusOK, code)

	env.clock.Advance(time.Second)

	_, body = env.do(t, http.MethodGet, "/api/v1/execution", "")
	last := body["last"].(map[string]any)
	assert.Equal(t, order.ID, last["orderId"])
	assert.Equal(t, "4000000", last["quantity"])
	assert.Equal(t, "lift", last["action"])

	code, _ = env.do(t, http.MethodPost, "/api/v1/execution/cancel", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestServer_WebSocketStreamsFilteredBookAndExecutions(t *testing.T) {
	env := createTestEnv(t)
	acme := env.insert(t, "Acme Corp", common.Ask)
	env.insert(t, "Tech Holdings", common.Bid)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	report := readReport(t, conn, BookReport)
	assert.Len(t, report.Rows, 2)

	require.NoError(t, conn.WriteJSON(Message{Type: QueryMessage, Query: "ACME"}))
	report = readReport(t, conn, BookReport)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, acme.ID, report.Rows[0].ID)

	require.NoError(t, conn.WriteJSON(Message{Type: SelectMessage, ID: acme.ID}))
	report = readReport(t, conn, WorkflowReport)
	assert.Equal(t, engine.ConfirmPending, report.Workflow.State)

	require.NoError(t, conn.WriteJSON(Message{Type: ConfirmMessage}))
	report = readReport(t, conn, WorkflowReport)
	assert.Equal(t, engine.Submitting, report.Workflow.State)

	env.clock.Advance(time.Second)

	// The execution and the book without the filled order arrive in either
	// order.
	var exec *common.Execution
	var emptied bool
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for exec == nil || !emptied {
		var report Report
		require.NoError(t, conn.ReadJSON(&report))
		switch report.Type {
		case ExecutionReport:
			exec = report.Execution
		case BookReport:
			emptied = len(report.Rows) == 0
		}
	}
	assert.Equal(t, acme.ID, exec.OrderID)
	assert.Equal(t, "hit", exec.Action)
}

func TestServer_WebSocketRejectsBadMessages(t *testing.T) {
	env := createTestEnv(t)
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"op":"explode"}`)))
	report := readReport(t, conn, ErrorReport)
	assert.Equal(t, ErrInvalidMessageType.Error(), report.Error)
}

func TestServer_StopsReceivingBooksAfterRun(t *testing.T) {
	settings := engine.DefaultSettings()
	settings.InitialOrders = 0
	settings.StartPaused = true
	board := engine.NewBoard(settings, clock.NewFake(epoch))
	srv := New("127.0.0.1:0", board, []string{"*"}, prometheus.NewRegistry())
	require.NoError(t, board.Start(context.Background()))
	t.Cleanup(func() { _ = board.Stop() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err := board.Insert(common.Order{Borrower: "Acme Corp", Side: common.Bid})
	require.NoError(t, err)
	select {
	case <-srv.hub.updates:
		t.Fatal("stopped server still subscribed to the book")
	default:
	}
}

func TestParseMessage(t *testing.T) {
	msg, err := parseMessage([]byte(`{"op":"quantity","quantity":"$5M"}`))
	require.NoError(t, err)
	assert.Equal(t, QuantityMessage, msg.Type)
	assert.Equal(t, "$5M", msg.Quantity)

	_, err = parseMessage([]byte(`{"op":"select"}`))
	assert.ErrorIs(t, err, ErrMissingOrderID)

	_, err = parseMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(engine.ErrOrderNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(engine.ErrWorkflowBusy))
	assert.Equal(t, http.StatusConflict, statusFor(engine.ErrNotPending))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(engine.ErrBoardClosed))
}
