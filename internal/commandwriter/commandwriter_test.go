package commandwriter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatacontrols/bms-core/internal/ctlerr"
)

func sinkAlwaysOK(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
}

func sinkAlwaysStatus(t *testing.T, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.ReadAll(r.Body)
		w.WriteHeader(status)
	}))
}

func TestWriteCommand_BothSinksSucceed(t *testing.T) {
	a, b := sinkAlwaysOK(t), sinkAlwaysOK(t)
	defer a.Close()
	defer b.Close()

	c := New(Config{SinkURLs: []string{a.URL, b.URL}, Database: "bms"}, nil, nil)
	result, err := c.WriteCommand(context.Background(), Command{EquipmentID: "boiler-1", CommandType: "firingRate", Value: 72.5})
	require.NoError(t, err)
	assert.Equal(t, 2, result.SuccessCount())
}

func TestWriteCommand_OneSinkDownStillSucceeds(t *testing.T) {
	good := sinkAlwaysOK(t)
	defer good.Close()

	c := New(Config{SinkURLs: []string{good.URL, "http://127.0.0.1:1"}, Database: "bms", SinkTimeout: time.Second}, nil, nil)
	result, err := c.WriteCommand(context.Background(), Command{EquipmentID: "boiler-1", CommandType: "firingRate", Value: 72.5})
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount())
}

func TestWriteCommand_BothSinksReject4xxIsPermanent(t *testing.T) {
	a := sinkAlwaysStatus(t, http.StatusBadRequest)
	b := sinkAlwaysStatus(t, http.StatusBadRequest)
	defer a.Close()
	defer b.Close()

	c := New(Config{SinkURLs: []string{a.URL, b.URL}, Database: "bms"}, nil, nil)
	_, err := c.WriteCommand(context.Background(), Command{EquipmentID: "boiler-1", CommandType: "firingRate", Value: 72.5})
	require.Error(t, err)
	kind, ok := ctlerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ctlerr.Permanent, kind)
}

func TestWriteCommand_BothSinksUnreachableIsTransient(t *testing.T) {
	c := New(Config{
		SinkURLs:    []string{"http://127.0.0.1:1", "http://127.0.0.1:2"},
		Database:    "bms",
		SinkTimeout: time.Second,
	}, nil, nil)
	_, err := c.WriteCommand(context.Background(), Command{EquipmentID: "boiler-1", CommandType: "firingRate", Value: 72.5})
	require.Error(t, err)
	kind, ok := ctlerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, ctlerr.Transient, kind)
}

func TestEncodeLine_NumericField(t *testing.T) {
	line := encodeLine(Command{
		EquipmentID: "boiler-1",
		LocationID:  "site one",
		CommandType: "firingRate",
		Source:      "scheduler",
		Value:       72.5,
		Time:        time.Unix(0, 1700000000000000000),
	})
	assert.Contains(t, line, "equipment_id=boiler-1")
	assert.Contains(t, line, `location_id=site\ one`)
	assert.Contains(t, line, "value=72.5")
	assert.NotContains(t, line, "string_value")
	assert.Contains(t, line, "1700000000000000000")
}

func TestEncodeLine_BooleanField(t *testing.T) {
	line := encodeLine(Command{EquipmentID: "boiler-1", CommandType: "unitEnable", Value: true, Time: time.Now()})
	assert.Contains(t, line, "value=1")
	assert.Contains(t, line, `string_value="true"`)
}

func TestEncodeLine_ObjectField(t *testing.T) {
	line := encodeLine(Command{
		EquipmentID: "boiler-1",
		CommandType: "schedule",
		Value:       map[string]any{"days": []string{"mon", "tue"}},
		Time:        time.Now(),
	})
	assert.Contains(t, line, "string_value=")
	assert.Contains(t, line, "value=")
}

func TestEncodeLine_EscapesQuotesInDetails(t *testing.T) {
	line := encodeLine(Command{
		EquipmentID: "boiler-1",
		CommandType: "firingRate",
		Value:       1.0,
		Details:     `say "hi"`,
		Time:        time.Now(),
	})
	assert.Contains(t, line, `details="say \"hi\""`)
}
