package uscis

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"casetrack-backend/lib/casestatus"
	"casetrack-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const testCaseNumber = "WAC2190012345"

type fakeApi struct {
	t             *testing.T
	tokenRequests int
	caseRequests  int
	token         string
	statusCode    int
	statusBody    string
}

func (f *fakeApi) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests++
		require.NoError(f.t, r.ParseForm())
		require.Equal(f.t, "client_credentials", r.FormValue("grant_type"))
		require.Equal(f.t, "case-status", r.FormValue("scope"))
		require.NotEmpty(f.t, r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"access_token": %q}`, f.token)
	})
	mux.HandleFunc("/case-status/", func(w http.ResponseWriter, r *http.Request) {
		f.caseRequests++
		if r.Header.Get("Authorization") != "Bearer "+f.token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(f.statusCode)
		fmt.Fprint(w, f.statusBody)
	})
	return mux
}

func newTestClient(t *testing.T, baseUrl string, retries int, mock casestatus.Mock) *Client {
	t.Helper()
	return NewClient(Options{
		Config: Config{
			ClientId:     "id",
			ClientSecret: "secret",
			TokenUrl:     baseUrl + "/oauth/token",
			ApiBaseUrl:   baseUrl + "/case-status",
			ScrapeUrl:    baseUrl + "/casestatus/mycasestatus.do",
		},
		Timeout: time.Second * 5,
		Retries: retries,
		Mock:    mock,
	})
}

// an address nothing is listening on, for connection-refused paths
func deadAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return "http://" + addr
}

func TestFetchStatusLive(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:uscis")
	defer cleanup()

	api := &fakeApi{
		t:          t,
		token:      "tok-1",
		statusCode: http.StatusOK,
		statusBody: `{
			"case_status": "Case Was Approved",
			"last_updated": "2026-08-01",
			"office": "California Service Center",
			"details": "Your case was approved."
		}`,
	}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	client := newTestClient(t, server.URL, 3, casestatus.Mock{})
	res, err := client.FetchStatus(context.Background(), testCaseNumber)
	require.NoError(t, err)
	require.Equal(t, casestatus.OriginLive, res.Origin)
	require.Equal(t, "Case Was Approved", res.Record.Status)
	require.Equal(t, testCaseNumber, res.Record.CaseNumber)
	require.Equal(t, "California Service Center", res.Record.Office)
	require.Equal(t, "I-140", res.Record.FormType)
	require.Equal(t, "Immigrant Petition for Alien Worker", res.Record.CaseType)
	require.NotNil(t, res.Record.LastUpdated)
	require.Equal(t, "2026-08-01", res.Record.LastUpdated.Format("2006-01-02"))
	require.Equal(t, 1, api.tokenRequests)
}

func TestFetchStatusReusesToken(t *testing.T) {
	api := &fakeApi{t: t, token: "tok-1", statusCode: http.StatusOK, statusBody: `{"status": "Pending Review"}`}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	client := newTestClient(t, server.URL, 3, casestatus.Mock{})
	_, err := client.FetchStatus(context.Background(), testCaseNumber)
	require.NoError(t, err)
	_, err = client.FetchStatus(context.Background(), testCaseNumber)
	require.NoError(t, err)
	require.Equal(t, 1, api.tokenRequests)
}

func TestFetchStatusRefreshesExpiredToken(t *testing.T) {
	api := &fakeApi{t: t, token: "tok-1", statusCode: http.StatusOK, statusBody: `{"status": "Pending Review"}`}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	client := newTestClient(t, server.URL, 3, casestatus.Mock{})
	_, err := client.FetchStatus(context.Background(), testCaseNumber)
	require.NoError(t, err)

	// server rotates the token, the cached one now comes back 401
	api.token = "tok-2"
	res, err := client.FetchStatus(context.Background(), testCaseNumber)
	require.NoError(t, err)
	require.Equal(t, casestatus.OriginLive, res.Origin)
	require.Equal(t, 2, api.tokenRequests)
}

func TestFetchStatusCaseNotFound(t *testing.T) {
	api := &fakeApi{t: t, token: "tok-1", statusCode: http.StatusNotFound}
	server := httptest.NewServer(api.handler())
	defer server.Close()

	// mock data must not mask an explicit negative
	client := newTestClient(t, server.URL, 3, casestatus.Mock{Enabled: true})
	_, err := client.FetchStatus(context.Background(), testCaseNumber)
	require.ErrorIs(t, err, casestatus.ErrCaseNotFound)
	require.Equal(t, 1, api.caseRequests)
}

func TestFetchStatusFallsBackToMock(t *testing.T) {
	client := newTestClient(t, deadAddr(t), 1, casestatus.Mock{
		Enabled:           true,
		Status:            "Pending Review",
		Position:          1500,
		TotalApplications: 5000,
		ProcessingRate:    50,
	})

	res, err := client.FetchStatus(context.Background(), testCaseNumber)
	require.NoError(t, err)
	require.Equal(t, casestatus.OriginFallback, res.Origin)
	require.Equal(t, "Pending Review", res.Record.Status)
	require.NotNil(t, res.Queue)
}

func TestFetchStatusSourceUnavailable(t *testing.T) {
	client := newTestClient(t, deadAddr(t), 1, casestatus.Mock{Enabled: false})

	_, err := client.FetchStatus(context.Background(), testCaseNumber)
	require.ErrorIs(t, err, casestatus.ErrSourceUnavailable)
}

func TestFetchStatusScrapeFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"access_token": "tok"}`)
	})
	mux.HandleFunc("/case-status/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/casestatus/mycasestatus.do", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, testCaseNumber, r.FormValue("appReceiptNum"))
		fmt.Fprint(w, `<html><body>
			<div class="rows text-center">
				<h1>Case Was Received</h1>
				<p>We received your Form I-140 and mailed a receipt notice.</p>
			</div>
		</body></html>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t, server.URL, 1, casestatus.Mock{})
	res, err := client.FetchStatus(context.Background(), testCaseNumber)
	require.NoError(t, err)
	require.Equal(t, casestatus.OriginLive, res.Origin)
	require.Equal(t, "Case Was Received", res.Record.Status)
	require.Contains(t, res.Record.Details, "receipt notice")
}

func TestParseScrapedStatusNotFound(t *testing.T) {
	markup := `<div class="rows text-center">
		<h1>Case Not Found</h1>
		<p>The receipt number you entered cannot be found at this time.</p>
	</div>`
	_, err := parseScrapedStatus([]byte(markup), testCaseNumber)
	require.ErrorIs(t, err, casestatus.ErrCaseNotFound)
}

func TestParseScrapedStatusMissingBlock(t *testing.T) {
	_, err := parseScrapedStatus([]byte(`<html><body><p>maintenance</p></body></html>`), testCaseNumber)
	require.ErrorIs(t, err, casestatus.ErrSourceUnavailable)
}

func TestParseApiResponseKeyFallbacks(t *testing.T) {
	record, err := parseApiResponse([]byte(`{
		"caseStatus": "Case Was Received",
		"lastUpdated": "2026-01-15",
		"serviceCenter": "Nebraska Service Center",
		"formType": "I-485"
	}`), testCaseNumber)
	require.NoError(t, err)
	require.Equal(t, "Case Was Received", record.Status)
	require.Equal(t, "Nebraska Service Center", record.Office)
	require.Equal(t, "I-485", record.FormType)
	require.Equal(t, "Application to Register Permanent Residence", record.CaseType)
}

func TestParseApiResponseNoStatus(t *testing.T) {
	_, err := parseApiResponse([]byte(`{"message": "ok"}`), testCaseNumber)
	require.Error(t, err)
}
