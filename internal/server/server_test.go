package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shpitdev/product-data-enhancer/internal/app"
	"github.com/shpitdev/product-data-enhancer/internal/completion"
	"github.com/shpitdev/product-data-enhancer/internal/server"
	"github.com/shpitdev/product-data-enhancer/pkg/pipeline/core"
)

func newTestServer(t *testing.T, c completion.Completer) *httptest.Server {
	t.Helper()
	srv := server.New(app.Deps{
		Completer: c,
		Provider:  "openai",
		Model:     "gpt-4o",
		Logger:    log.New(io.Discard, "", 0),
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func standardizer() completion.Completer {
	return completion.Func(func(_ context.Context, _, user string) (string, error) {
		if strings.HasSuffix(user, "Input: \"down\"\nOutput:") {
			return "", &core.ServiceError{Provider: "openai", StatusCode: 500, Message: "boom"}
		}
		return `["Veg Pizza", "Pizza"]`, nil
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestStandardizeRawCSV(t *testing.T) {
	ts := newTestServer(t, standardizer())

	resp, err := http.Post(ts.URL+"/v1/standardize", "text/csv", strings.NewReader("dish_name\nveg piz\ndown\n"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	want := "dish_name,level1_standard_name,level2_standard_name\nveg piz,Veg Pizza,Pizza\ndown,down,Error\n"
	if body != want {
		t.Fatalf("unexpected body:\n%s\nwant:\n%s", body, want)
	}
	if got := resp.Header.Get("Content-Disposition"); got != "attachment; filename=processed_data.csv" {
		t.Fatalf("unexpected Content-Disposition: %q", got)
	}
	if resp.Header.Get("X-Rows") != "2" || resp.Header.Get("X-Degraded-Rows") != "1" {
		t.Fatalf("unexpected row headers: rows=%q degraded=%q", resp.Header.Get("X-Rows"), resp.Header.Get("X-Degraded-Rows"))
	}
	if resp.Header.Get("X-Run-Id") == "" {
		t.Fatalf("missing X-Run-Id")
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected Content-Type: %q", resp.Header.Get("Content-Type"))
	}
}

func TestExtractMultipartUpload(t *testing.T) {
	svc := completion.Func(func(context.Context, string, string) (string, error) {
		return "```json\n{\"cuisine\":\"Italian\",\"main_ingredients\":[\"dough\"],\"cooking_method\":\"baked\",\"dietary_labels\":[\"vegetarian\",\"\"]}\n```", nil
	})
	ts := newTestServer(t, svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "menu.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = io.WriteString(fw, "dish_name,description\nfocaccia,flat oven bread\n")
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	resp, err := http.Post(ts.URL+"/v1/extract", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	body := readBody(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%s", resp.StatusCode, body)
	}
	want := "dish_name,description,cuisine,main_ingredients,cooking_method,dietary_labels\n" +
		"focaccia,flat oven bread,Italian,dough,baked,vegetarian\n"
	if body != want {
		t.Fatalf("unexpected body:\n%s\nwant:\n%s", body, want)
	}
}

func TestRejections(t *testing.T) {
	calls := 0
	svc := completion.Func(func(context.Context, string, string) (string, error) {
		calls++
		return "{}", nil
	})
	ts := newTestServer(t, svc)

	cases := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{name: "missing column", method: http.MethodPost, path: "/v1/extract", body: "dish_name\nx\n", wantStatus: http.StatusBadRequest, wantBody: `"description"`},
		{name: "empty body", method: http.MethodPost, path: "/v1/standardize", body: "", wantStatus: http.StatusBadRequest, wantBody: "read input csv"},
		{name: "ragged csv", method: http.MethodPost, path: "/v1/standardize", body: "dish_name\na,b\n", wantStatus: http.StatusBadRequest, wantBody: "read input csv"},
		{name: "wrong method", method: http.MethodGet, path: "/v1/standardize", wantStatus: http.StatusMethodNotAllowed},
		{name: "unknown path", method: http.MethodPost, path: "/v1/summarize", body: "dish_name\nx\n", wantStatus: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, err := http.NewRequest(tc.method, ts.URL+tc.path, strings.NewReader(tc.body))
			if err != nil {
				t.Fatalf("new request: %v", err)
			}
			req.Header.Set("Content-Type", "text/csv")
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("do: %v", err)
			}
			defer resp.Body.Close()

			body := readBody(t, resp)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status=%d want=%d body=%s", resp.StatusCode, tc.wantStatus, body)
			}
			if tc.wantBody != "" && !strings.Contains(body, tc.wantBody) {
				t.Fatalf("body %q does not contain %q", body, tc.wantBody)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("rejected requests must not call the completion service, got %d calls", calls)
	}
}

func TestMultipartMissingFileField(t *testing.T) {
	ts := newTestServer(t, standardizer())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("other", "dish_name\nx\n")
	_ = mw.Close()

	resp, err := http.Post(ts.URL+"/v1/standardize", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d want=400", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, standardizer())
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if body := readBody(t, resp); resp.StatusCode != http.StatusOK || strings.TrimSpace(body) != "ok" {
		t.Fatalf("status=%d body=%q", resp.StatusCode, body)
	}
}

func TestOperations(t *testing.T) {
	ts := newTestServer(t, standardizer())
	resp, err := http.Get(ts.URL + "/v1/operations")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Operations []struct {
			Name     string   `json:"name"`
			Title    string   `json:"title"`
			Path     string   `json:"path"`
			Required []string `json:"required_columns"`
			Added    []string `json:"added_columns"`
		} `json:"operations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Operations) != 2 {
		t.Fatalf("expected 2 operations, got %#v", payload.Operations)
	}
	if payload.Operations[0].Title != "Standardize Product Names" || payload.Operations[1].Path != "/v1/extract" {
		t.Fatalf("unexpected operations: %#v", payload.Operations)
	}
	if len(payload.Operations[1].Added) != 4 {
		t.Fatalf("extract should add 4 columns: %#v", payload.Operations[1])
	}
}

func TestOversizeUploadIsRejected(t *testing.T) {
	calls := 0
	ts := newTestServer(t, completion.Func(func(context.Context, string, string) (string, error) {
		calls++
		return "", nil
	}))

	big := "dish_name\n" + strings.Repeat("veg piz\n", (33<<20)/8)

	var multipartBody bytes.Buffer
	mw := multipart.NewWriter(&multipartBody)
	fw, err := mw.CreateFormFile("file", "menu.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = io.WriteString(fw, big)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	cases := []struct {
		name        string
		contentType string
		body        io.Reader
	}{
		{name: "raw csv", contentType: "text/csv", body: strings.NewReader(big)},
		{name: "multipart", contentType: mw.FormDataContentType(), body: bytes.NewReader(multipartBody.Bytes())},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/v1/standardize", tc.contentType, tc.body)
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			defer resp.Body.Close()
			body := readBody(t, resp)
			if resp.StatusCode != http.StatusRequestEntityTooLarge {
				t.Fatalf("status=%d want=413 body=%s", resp.StatusCode, body)
			}
		})
	}
	if calls != 0 {
		t.Fatalf("oversize uploads must not reach the completion service, got %d calls", calls)
	}
}
