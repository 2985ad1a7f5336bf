package leadlovers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yYagoKn/drp/internal/integrations"
	"github.com/yYagoKn/drp/internal/models"

	"github.com/stretchr/testify/require"
)

func TestDeliver(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sink, err := New(srv.URL, "ll-token", WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	require.Equal(t, "leadlovers", sink.Name())

	lead := models.LeadRecord{
		ID:          "lead-1",
		Code:        "ABCDE",
		Phone:       "5511999990000",
		Name:        "Ana Souza",
		Attribution: models.NewAttribution("ig", "launch", "", "", ""),
	}
	require.NoError(t, sink.Deliver(context.Background(), lead))
	require.JSONEq(t, `{
		"token": "ll-token",
		"phone": "5511999990000",
		"name": "Ana Souza",
		"code": "ABCDE",
		"utm_source": "ig",
		"utm_campaign": "launch",
		"utm_medium": null,
		"utm_content": null,
		"utm_term": null
	}`, body)
}

func TestDeliver_NonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink, err := New(srv.URL, "ll-token", WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	err = sink.Deliver(context.Background(), models.LeadRecord{Phone: "5511999990000"})
	var statusErr *integrations.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New("", "tok")
	require.Error(t, err)
}
