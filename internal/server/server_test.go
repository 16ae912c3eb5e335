package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"supply_tracker/internal/accounts"
	"supply_tracker/internal/export"
	"supply_tracker/internal/sheets"
	"supply_tracker/internal/supply"
	"supply_tracker/internal/writeback"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var sheetHeader = []string{
	"Nama Vendor", supply.ColDocumentNumber, supply.ColItemNumber, supply.ColDocumentDate,
	supply.ColRemainingQty, supply.ColNetValue, supply.ColETAVendor, supply.ColVendorRemark,
}

func sheetRows() [][]string {
	return [][]string{
		{"PT Maju", "4500001", "10", "2024-01-10", "5", "1.000.000", "", ""},
		{"CV Jaya", "4500002", "10", "2024-02-11", "2", "500.000", "2024-03-01", ""},
		{"PT Maju", "4500003", "20", "2023-12-01", "1", "250.000", "", "menunggu stok"},
	}
}

type fakeNotifier struct {
	vendor string
	edits  int
}

func (f *fakeNotifier) NotifySave(_ context.Context, vendor string, edits int) {
	f.vendor = vendor
	f.edits = edits
}

type fixture struct {
	store    *sheets.MemoryTable
	notifier *fakeNotifier
	server   *Server
	router   *gin.Engine
}

func newFixture(t *testing.T, mode writeback.Mode) *fixture {
	t.Helper()
	return newFixtureWithRows(t, mode, sheetRows())
}

func newFixtureWithRows(t *testing.T, mode writeback.Mode, rows [][]string) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	book, err := accounts.FromRows([][]string{{"Username", "Password"}, {"PT Maju", "maju"}, {"CV Jaya", "jaya"}})
	require.NoError(t, err)

	store := sheets.NewMemoryTable(sheetHeader, rows)
	notifier := &fakeNotifier{}
	srv := New(store, book, writeback.NewCommitter(store, mode), notifier, Config{JWTSecret: []byte("test-secret")})
	return &fixture{store: store, notifier: notifier, server: srv, router: srv.Router()}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) login(t *testing.T, user, pass string) string {
	t.Helper()
	w := f.do(t, http.MethodPost, "/api/portal/login", map[string]string{"username": user, "password": pass}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Token
}

func decodeTable(t *testing.T, w *httptest.ResponseRecorder) tableResponse {
	t.Helper()
	var resp tableResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, writeback.ModeReplace)
	w := f.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	f := newFixture(t, writeback.ModeReplace)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(requestIDHeader))
}

func TestMonitoringFilters(t *testing.T) {
	f := newFixture(t, writeback.ModeReplace)

	w := f.do(t, http.MethodGet, "/api/monitoring", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	all := decodeTable(t, w)
	assert.Len(t, all.Rows, 3)
	assert.Equal(t, []string{"CV Jaya", "PT Maju"}, all.Vendors)
	assert.Equal(t, []string{"2023", "2024"}, all.Years)
	assert.Equal(t, "3 Baris", all.Scorecard.Items)
	assert.Equal(t, "1.750.000 IDR", all.Scorecard.NetValue)
	assert.Equal(t, "Nama Vendor", all.Columns[0].Key)
	assert.Empty(t, all.Warning)

	w = f.do(t, http.MethodGet, "/api/monitoring?status=unresponded&vendor=PT+Maju&year=2024", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	narrowed := decodeTable(t, w)
	require.Len(t, narrowed.Rows, 1)
	assert.Equal(t, 0, narrowed.Rows[0].Index)
	assert.Equal(t, "4500001/10", narrowed.Rows[0].Key)
	assert.Equal(t, 1, narrowed.Totals.RowCount)

	w = f.do(t, http.MethodGet, "/api/monitoring?status=maybe", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMonitoringFetchFailureRendersEmptyTable(t *testing.T) {
	f := newFixture(t, writeback.ModeReplace)
	f.store.FetchFunc = func(context.Context) error { return errors.New("timeout") }

	w := f.do(t, http.MethodGet, "/api/monitoring", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeTable(t, w)
	assert.Empty(t, resp.Rows)
	assert.Equal(t, supply.UserMessage(supply.ErrFetch), resp.Warning)
}

func TestMonitoringExport(t *testing.T) {
	f := newFixture(t, writeback.ModeReplace)

	w := f.do(t, http.MethodGet, "/api/monitoring/export?status=responded", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.ContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), export.FileName)

	book, err := excelize.OpenReader(w.Body)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows(export.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 3, "header plus the two responded rows")
}

func TestPortalLogin(t *testing.T) {
	f := newFixture(t, writeback.ModeReplace)

	w := f.do(t, http.MethodGet, "/api/portal/vendors", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"vendors":["CV Jaya","PT Maju"]}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/portal/login", map[string]string{"username": "PT Maju", "password": "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/portal/login", map[string]string{"password": "x"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.NotEmpty(t, f.login(t, "PT Maju", "maju"))
}

func TestPortalRequiresToken(t *testing.T) {
	f := newFixture(t, writeback.ModeReplace)

	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/portal/orders", nil, "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/portal/orders", nil, "garbage").Code)

	expired, err := f.server.issueToken("PT Maju", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, f.do(t, http.MethodGet, "/api/portal/orders", nil, expired).Code)
}

func TestPortalOrdersAreScoped(t *testing.T) {
	f := newFixture(t, writeback.ModeReplace)
	token := f.login(t, "PT Maju", "maju")

	w := f.do(t, http.MethodGet, "/api/portal/orders", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decodeTable(t, w)
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, 0, resp.Rows[0].Index)
	assert.Equal(t, 2, resp.Rows[1].Index)
	assert.Equal(t, []string{"2023", "2024"}, resp.Years)
	assert.Empty(t, resp.Vendors)

	editable := map[string]bool{}
	for _, col := range resp.Columns {
		editable[col.Key] = col.Editable
	}
	assert.True(t, editable[supply.ColETAVendor])
	assert.True(t, editable[supply.ColVendorRemark])
	assert.False(t, editable[supply.ColDocumentNumber])

	w = f.do(t, http.MethodGet, "/api/portal/orders?year=2023", nil, token)
	resp = decodeTable(t, w)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, 2, resp.Rows[0].Index)
}

func TestPortalSave(t *testing.T) {
	for _, mode := range []writeback.Mode{writeback.ModeReplace, writeback.ModePatch} {
		t.Run(string(mode), func(t *testing.T) {
			f := newFixture(t, mode)
			token := f.login(t, "PT Maju", "maju")

			body := map[string]interface{}{"edits": []map[string]interface{}{
				{"index": 0, "key": "4500001/10", "eta_vendor": "2024-05-20", "remark": "kirim minggu depan"},
			}}
			w := f.do(t, http.MethodPut, "/api/portal/orders", body, token)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var resp saveResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, mode, resp.Mode)
			assert.Equal(t, 1, resp.Edits)

			_, rows := f.store.Snapshot()
			assert.Equal(t, []string{"PT Maju", "4500001", "10", "2024-01-10", "5", "1.000.000", "2024-05-20", "kirim minggu depan"}, rows[0])
			assert.Equal(t, sheetRows()[1:], rows[1:])
			assert.Equal(t, "PT Maju", f.notifier.vendor)
			assert.Equal(t, 1, f.notifier.edits)
		})
	}
}

func TestPortalSaveRejections(t *testing.T) {
	tests := []struct {
		name string
		edit map[string]interface{}
		want int
	}{
		{name: "other vendor's row", edit: map[string]interface{}{"index": 1, "remark": "mine now"}, want: http.StatusForbidden},
		{name: "unknown row", edit: map[string]interface{}{"index": 42, "remark": "x"}, want: http.StatusBadRequest},
		{name: "moved row", edit: map[string]interface{}{"index": 0, "key": "4500009/10", "remark": "x"}, want: http.StatusConflict},
		{name: "bad date", edit: map[string]interface{}{"index": 0, "eta_vendor": "soon"}, want: http.StatusBadRequest},
		{name: "out of range date", edit: map[string]interface{}{"index": 0, "eta_vendor": "2031-01-01"}, want: http.StatusBadRequest},
		{name: "missing index", edit: map[string]interface{}{"remark": "x"}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, writeback.ModeReplace)
			token := f.login(t, "PT Maju", "maju")

			w := f.do(t, http.MethodPut, "/api/portal/orders", map[string]interface{}{"edits": []map[string]interface{}{tt.edit}}, token)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
			assert.Equal(t, 0, f.store.ReplaceCalls)
		})
	}
}

func TestPortalSaveKeepsExistingETAOutsideWindow(t *testing.T) {
	rows := sheetRows()
	rows[0][6] = "2019-06-01"

	t.Run("unchanged ETA with new remark", func(t *testing.T) {
		f := newFixtureWithRows(t, writeback.ModeReplace, rows)
		token := f.login(t, "PT Maju", "maju")

		edit := map[string]interface{}{"index": 0, "eta_vendor": "01/06/2019", "remark": "stok datang"}
		w := f.do(t, http.MethodPut, "/api/portal/orders", map[string]interface{}{"edits": []map[string]interface{}{edit}}, token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		_, stored := f.store.Snapshot()
		assert.Equal(t, "2019-06-01", stored[0][6])
		assert.Equal(t, "stok datang", stored[0][7])
	})

	t.Run("new ETA outside window", func(t *testing.T) {
		f := newFixtureWithRows(t, writeback.ModeReplace, rows)
		token := f.login(t, "PT Maju", "maju")

		edit := map[string]interface{}{"index": 0, "eta_vendor": "2019-07-01", "remark": "stok datang"}
		w := f.do(t, http.MethodPut, "/api/portal/orders", map[string]interface{}{"edits": []map[string]interface{}{edit}}, token)
		assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		assert.Equal(t, 0, f.store.ReplaceCalls)
	})
}

func TestPortalSaveWriteFailure(t *testing.T) {
	f := newFixture(t, writeback.ModeReplace)
	token := f.login(t, "PT Maju", "maju")
	f.store.ReplaceFunc = func(context.Context, []string, [][]string) error { return errors.New("quota") }

	w := f.do(t, http.MethodPut, "/api/portal/orders", map[string]interface{}{"edits": []map[string]interface{}{{"index": 0, "remark": "x"}}}, token)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), supply.UserMessage(supply.ErrWrite))
	assert.Equal(t, 1, f.store.ReplaceCalls)
	assert.Empty(t, f.notifier.vendor)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, statusFor(supply.ErrWrite))
	assert.Equal(t, http.StatusBadGateway, statusFor(supply.ErrAuth))
	assert.Equal(t, http.StatusBadGateway, statusFor(supply.ErrHeader))
	assert.Equal(t, http.StatusConflict, statusFor(supply.ErrConflict))
	assert.Equal(t, http.StatusForbidden, statusFor(supply.ErrForbidden))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
