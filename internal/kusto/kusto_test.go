package kusto

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"kubeagent/internal/faults"
	"kubeagent/internal/metrics"
)

type staticToken struct {
	token  string
	err    error
	scopes []string
}

func (s *staticToken) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	s.scopes = opts.Scopes
	if s.err != nil {
		return azcore.AccessToken{}, s.err
	}
	return azcore.AccessToken{Token: s.token}, nil
}

const sampleResult = `{"tables":[{"name":"PrimaryResult",
 "columns":[{"name":"name","type":"string"},{"name":"count_","type":"long"}],
 "rows":[["GET /health",42],["POST /login",3]]}]}`

func queryServer(t *testing.T, status int, body string, gotQuery *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/apps/app-1/query" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if gotQuery != nil {
			*gotQuery = r.URL.Query().Get("query")
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// assertQueries checks that exactly one query was counted, with result.
func assertQueries(t *testing.T, m *metrics.Metrics, result string) {
	t.Helper()
	expected := `
# HELP kubeagent_kusto_queries_total Application Insights queries, by result
# TYPE kubeagent_kusto_queries_total counter
kubeagent_kusto_queries_total{result="` + result + `"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "kubeagent_kusto_queries_total"); err != nil {
		t.Error(err)
	}
}

func TestQuery(t *testing.T) {
	var got string
	srv := queryServer(t, http.StatusOK, sampleResult, &got)
	cred := &staticToken{token: "tok"}
	m := metrics.New()
	c := &Client{Endpoint: srv.URL + "/", AppID: "app-1", Credential: cred, Metrics: m}

	query := "requests\n| where timestamp > ago(1h)\n| summarize count() by name"
	table, err := c.Query(context.Background(), query)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got != query {
		t.Errorf("server saw query %q, want %q", got, query)
	}
	if len(cred.scopes) != 1 || cred.scopes[0] != Scope {
		t.Errorf("token scopes = %v", cred.scopes)
	}
	if table.Name != "PrimaryResult" || len(table.Columns) != 2 || len(table.Rows) != 2 {
		t.Fatalf("table = %+v", table)
	}
	assertQueries(t, m, "ok")
}

func TestQuery_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		tokenErr  error
		wantKind  faults.Kind
		wantInErr string
	}{
		{name: "token", tokenErr: errors.New("login cancelled"), wantInErr: "access token"},
		{name: "http status", status: http.StatusBadRequest, body: `{"error":{"code":"BadArgumentError"}}`,
			wantKind: faults.TransportFailed, wantInErr: "BadArgumentError"},
		{name: "not json", status: http.StatusOK, body: "<html>", wantInErr: "decode"},
		{name: "missing tables", status: http.StatusOK, body: `{"error":"x"}`, wantInErr: "no tables"},
		{name: "empty tables", status: http.StatusOK, body: `{"tables":[]}`, wantInErr: "empty tables"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := queryServer(t, tt.status, tt.body, nil)
			m := metrics.New()
			c := &Client{Endpoint: srv.URL, AppID: "app-1", Credential: &staticToken{token: "tok", err: tt.tokenErr}, Metrics: m}

			_, err := c.Query(context.Background(), "requests | take 1")
			if err == nil {
				t.Fatal("Query error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantInErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantInErr)
			}
			if tt.wantKind != 0 && !faults.Is(err, tt.wantKind) {
				t.Errorf("kind = %v, want %v", faults.KindOf(err), tt.wantKind)
			}
			assertQueries(t, m, "error")
		})
	}
}

func TestTranslate(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"gpt-4o","choices":[{"index":0,"finish_reason":"stop",
			"message":{"role":"assistant","content":"`+"```kql\\nexceptions | take 5\\n```"+`"}}]}`)
	}))
	t.Cleanup(srv.Close)

	client := openai.NewClient(option.WithBaseURL(srv.URL+"/"), option.WithAPIKey("k"), option.WithMaxRetries(0))
	tr := NewTranslator(client, "kql-deploy", "exceptions(timestamp, type, outerMessage)")

	query, err := tr.Translate(context.Background(), "show me the latest exceptions")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if query != "exceptions | take 5" {
		t.Errorf("query = %q", query)
	}
	if body["model"] != "kql-deploy" {
		t.Errorf("model = %v", body["model"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", msgs)
	}
	system, _ := msgs[0].(map[string]any)
	if content, _ := system["content"].(string); !strings.Contains(content, "outerMessage") {
		t.Errorf("system prompt lacks schema: %q", content)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"requests | take 1", "requests | take 1"},
		{"  requests | take 1\n", "requests | take 1"},
		{"```\nrequests | take 1\n```", "requests | take 1"},
		{"```kusto\nrequests\n| take 1\n```", "requests\n| take 1"},
		{"```requests | take 1```", "requests | take 1"},
	}
	for _, tt := range tests {
		if got := stripFences(tt.in); got != tt.want {
			t.Errorf("stripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	out := Render(&Table{
		Columns: []Column{{Name: "name"}, {Name: "count_"}, {Name: "ratio"}},
		Rows:    [][]any{{"GET /health", float64(42), 0.5}, {nil, float64(3), true}},
	})
	for _, want := range []string{"name", "count_", "GET /health", "42", "0.5", "true"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered table lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "42.0") || strings.Contains(out, "<nil>") {
		t.Errorf("unexpected cell formatting:\n%s", out)
	}
}

func TestLoop(t *testing.T) {
	var translated []string
	loop := &Loop{
		In: strings.NewReader("\n  count requests \nbroken\nEXIT\nnever read\n"),
		Translate: func(_ context.Context, text string) (string, error) {
			translated = append(translated, text)
			if text == "broken" {
				return "", errors.New("model unavailable")
			}
			return "requests | count", nil
		},
		Query: func(context.Context, string) (*Table, error) {
			return &Table{Columns: []Column{{Name: "Count"}}, Rows: [][]any{{float64(7)}}}, nil
		},
	}
	var out strings.Builder
	loop.Out = &out

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Join(translated, ",") != "count requests,broken" {
		t.Errorf("translated = %q", translated)
	}
	for _, want := range []string{"requests | count", "The query result is:", "Get exception: model unavailable"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output lacks %q:\n%s", want, out.String())
		}
	}
}

func TestLoop_ExitIgnoresCaseAndSpace(t *testing.T) {
	for _, line := range []string{"exit", "EXIT", "  exit \t", "\tExIt  "} {
		t.Run(line, func(t *testing.T) {
			translated := 0
			loop := &Loop{
				In:  strings.NewReader(line + "\nrequests | take 1\n"),
				Out: io.Discard,
				Translate: func(context.Context, string) (string, error) {
					translated++
					return "", nil
				},
				Query: func(context.Context, string) (*Table, error) { return &Table{}, nil },
			}
			if err := loop.Run(context.Background()); err != nil {
				t.Fatalf("Run: %v", err)
			}
			if translated != 0 {
				t.Errorf("Translate called %d times after %q, want 0", translated, line)
			}
		})
	}
}

func TestLoop_CancelWhileWaitingForInput(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	loop := &Loop{
		In:        pr,
		Out:       io.Discard,
		Translate: func(context.Context, string) (string, error) { return "", nil },
		Query:     func(context.Context, string) (*Table, error) { return &Table{}, nil },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run still waiting for input after cancellation")
	}
}

func TestLoop_QueryErrorContinuesUntilEOF(t *testing.T) {
	queries := 0
	var out strings.Builder
	loop := &Loop{
		In:        strings.NewReader("a\nb"),
		Out:       &out,
		Translate: func(_ context.Context, text string) (string, error) { return text, nil },
		Query: func(context.Context, string) (*Table, error) {
			queries++
			return nil, errors.New("response has no tables")
		},
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if queries != 2 {
		t.Errorf("queries = %d, want 2", queries)
	}
	if strings.Count(out.String(), "Get exception: response has no tables") != 2 {
		t.Errorf("output:\n%s", out.String())
	}
}
