package services

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ufDayPath(day time.Time) string {
	return fmt.Sprintf("/uf/%04d/%02d/dias/%02d", day.Year(), int(day.Month()), day.Day())
}

func TestUFClientParsesChileanValue(t *testing.T) {
	today := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ufDayPath(today), r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, `{"UFs":[{"Fecha":"2024-06-01","Valor":"39.383,07"}]}`)
	}))
	defer server.Close()

	client := NewUFClientWithBase("test-key", server.URL, func() time.Time { return today }, testLogger())
	rate, err := client.CurrentRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 39383.07, rate)
}

func TestUFClientFallsBackToYesterday(t *testing.T) {
	today := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case ufDayPath(today):
			// Not published yet.
			w.WriteHeader(http.StatusNotFound)
		case ufDayPath(yesterday):
			fmt.Fprint(w, `{"UFs":[{"Fecha":"2024-05-31","Valor":"39.370,00"}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewUFClientWithBase("test-key", server.URL, func() time.Time { return today }, testLogger())
	rate, err := client.CurrentRate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 39370.0, rate)
}

func TestUFClientFailsWhenBothDaysUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewUFClientWithBase("test-key", server.URL, nil, testLogger())
	_, err := client.CurrentRate(context.Background())
	assert.Error(t, err)
}

func TestUFClientRejectsEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"UFs":[]}`)
	}))
	defer server.Close()

	client := NewUFClientWithBase("test-key", server.URL, nil, testLogger())
	_, err := client.CurrentRate(context.Background())
	assert.Error(t, err)
}
