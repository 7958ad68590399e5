package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"chatledger/pkg/models"
	"chatledger/pkg/simulator"
	"chatledger/pkg/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store, *simulator.Simulator) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	sim := simulator.New(st, simulator.Config{
		MinReplyDelay: 20 * time.Millisecond,
		MaxReplyDelay: 40 * time.Millisecond,
	})
	t.Cleanup(sim.Close)
	srv := httptest.NewServer(Handler(st, sim))
	t.Cleanup(srv.Close)
	return srv, st, sim
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestOpenSendAndReadFlow(t *testing.T) {
	srv, st, _ := newTestServer(t)
	client := srv.Client()

	// first open seeds a pre-read greeting
	var opened struct {
		Thread   string           `json:"thread"`
		Messages []models.Message `json:"messages"`
	}
	code := doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/t1/messages?name=Maria", nil, &opened)
	if code != http.StatusOK {
		t.Fatalf("open: expected 200, got %d", code)
	}
	if len(opened.Messages) != 1 || opened.Messages[0].Sender != models.SenderCounterparty {
		t.Fatalf("unexpected seeded log: %+v", opened.Messages)
	}
	if !opened.Messages[0].Read {
		t.Fatalf("greeting must be pre-read")
	}

	// send a message
	var sent models.Message
	code = doJSON(t, client, http.MethodPost, srv.URL+"/v1/threads/t1/messages",
		map[string]any{"body": "Hello"}, &sent)
	if code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", code)
	}
	if sent.Sender != models.SenderUser || sent.Body != "Hello" {
		t.Fatalf("unexpected stored message: %+v", sent)
	}

	// a synthetic reply lands after the delay
	deadline := time.Now().Add(2 * time.Second)
	for {
		msgs, err := st.ListMessages("t1")
		if err != nil {
			t.Fatalf("ListMessages: %v", err)
		}
		if len(msgs) >= 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for reply, have %d messages", len(msgs))
		}
		time.Sleep(5 * time.Millisecond)
	}

	var unread struct {
		Unread int `json:"unread"`
	}
	doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/t1/unread", nil, &unread)
	if unread.Unread != 1 {
		t.Fatalf("expected 1 unread, got %d", unread.Unread)
	}

	code = doJSON(t, client, http.MethodPost, srv.URL+"/v1/threads/t1/read", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("read: expected 200, got %d", code)
	}
	doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/t1/unread", nil, &unread)
	if unread.Unread != 0 {
		t.Fatalf("expected 0 unread after mark, got %d", unread.Unread)
	}
}

func TestSendRejectsEmptyAndOversized(t *testing.T) {
	srv, _, _ := newTestServer(t)
	client := srv.Client()

	code := doJSON(t, client, http.MethodPost, srv.URL+"/v1/threads/t1/messages",
		map[string]any{"body": "   "}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("empty send: expected 400, got %d", code)
	}

	atts := make([]models.Attachment, models.MaxAttachments+1)
	for i := range atts {
		atts[i] = models.Attachment{Payload: []byte{1}}
	}
	code = doJSON(t, client, http.MethodPost, srv.URL+"/v1/threads/t1/messages",
		map[string]any{"body": "x", "attachments": atts}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("oversized send: expected 400, got %d", code)
	}
}

func TestUpdateAndDeleteMessage(t *testing.T) {
	srv, st, _ := newTestServer(t)
	client := srv.Client()

	m, err := st.AppendMessage("t1", models.Message{Sender: models.SenderUser, Body: "orig"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	url := fmt.Sprintf("%s/v1/threads/t1/messages/%s", srv.URL, m.ID)
	code := doJSON(t, client, http.MethodPatch, url, map[string]any{"body": "edited"}, nil)
	if code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", code)
	}
	msgs, _ := st.ListMessages("t1")
	if msgs[0].Body != "edited" {
		t.Fatalf("patch not applied: %+v", msgs[0])
	}

	code = doJSON(t, client, http.MethodDelete, url, nil, nil)
	if code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", code)
	}
	code = doJSON(t, client, http.MethodDelete, url, nil, nil)
	if code != http.StatusNotFound {
		t.Fatalf("second delete: expected 404, got %d", code)
	}
}

func TestClearThread(t *testing.T) {
	srv, st, _ := newTestServer(t)
	client := srv.Client()

	if _, err := st.AppendMessage("t1", models.Message{Sender: models.SenderUser, Body: "x"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	code := doJSON(t, client, http.MethodDelete, srv.URL+"/v1/threads/t1", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("clear: expected 200, got %d", code)
	}
	code = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/threads/t1", nil, nil)
	if code != http.StatusNotFound {
		t.Fatalf("clear absent: expected 404, got %d", code)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	srv, st, _ := newTestServer(t)
	client := srv.Client()

	if _, err := st.AppendMessage("t1", models.Message{Sender: models.SenderUser, Body: "find me"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	code := doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/t1/search", nil, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("missing q: expected 400, got %d", code)
	}

	var res struct {
		Messages []models.Message `json:"messages"`
	}
	code = doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/t1/search?q=FIND", nil, &res)
	if code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d", code)
	}
	if len(res.Messages) != 1 || res.Messages[0].Body != "find me" {
		t.Fatalf("unexpected search result: %+v", res.Messages)
	}
}

func TestStatsEndpoint(t *testing.T) {
	srv, st, _ := newTestServer(t)
	client := srv.Client()

	if _, err := st.AppendMessage("t1", models.Message{Sender: models.SenderUser, Body: "u"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := st.AppendMessage("t1", models.Message{Sender: models.SenderCounterparty, Body: "c"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	var stats models.Statistics
	code := doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/t1/stats", nil, &stats)
	if code != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", code)
	}
	if stats.TotalMessages != 2 || stats.UserMessages != 1 || stats.CounterpartyMessages != 1 || stats.UnreadCount != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTypingEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	client := srv.Client()

	var typ struct {
		Typing bool `json:"typing"`
	}
	doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/t1/typing", nil, &typ)
	if typ.Typing {
		t.Fatalf("idle thread should not be typing")
	}

	doJSON(t, client, http.MethodPost, srv.URL+"/v1/threads/t1/messages", map[string]any{"body": "hi"}, nil)
	doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/t1/typing", nil, &typ)
	if !typ.Typing {
		t.Fatalf("typing should be active while a reply is pending")
	}

	doJSON(t, client, http.MethodPost, srv.URL+"/v1/threads/t1/close", nil, nil)
	doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/t1/typing", nil, &typ)
	if typ.Typing {
		t.Fatalf("close should cancel pending replies")
	}
}

func TestExportImportEndpoints(t *testing.T) {
	srv, st, _ := newTestServer(t)
	client := srv.Client()

	for _, id := range []string{"a", "b"} {
		if _, err := st.AppendMessage(id, models.Message{Sender: models.SenderUser, Body: "m-" + id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var snap models.Snapshot
	code := doJSON(t, client, http.MethodGet, srv.URL+"/v1/export", nil, &snap)
	if code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d", code)
	}
	if len(snap.AllThreads) != 2 || snap.ExportDate == "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// reset, then restore from the snapshot
	code = doJSON(t, client, http.MethodPost, srv.URL+"/v1/admin/reset", nil, nil)
	if code != http.StatusOK {
		t.Fatalf("reset: expected 200, got %d", code)
	}
	if metas, _ := st.ListThreads(); len(metas) != 0 {
		t.Fatalf("store should be empty after reset")
	}

	code = doJSON(t, client, http.MethodPost, srv.URL+"/v1/import", snap, nil)
	if code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d", code)
	}
	msgs, _ := st.ListMessages("a")
	if len(msgs) != 1 || msgs[0].Body != "m-a" {
		t.Fatalf("import did not restore thread a: %+v", msgs)
	}

	// single-thread export shape
	var one models.Snapshot
	code = doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads/a/export", nil, &one)
	if code != http.StatusOK {
		t.Fatalf("thread export: expected 200, got %d", code)
	}
	if one.ThreadID != "a" || len(one.Messages) != 1 {
		t.Fatalf("unexpected thread snapshot: %+v", one)
	}

	// malformed snapshot is rejected
	code = doJSON(t, client, http.MethodPost, srv.URL+"/v1/import", map[string]any{"bogus": true}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad import: expected 400, got %d", code)
	}
}

func TestImportCancelsPendingReplies(t *testing.T) {
	srv, st, sim := newTestServer(t)
	client := srv.Client()

	code := doJSON(t, client, http.MethodPost, srv.URL+"/v1/threads/t1/messages",
		map[string]any{"body": "hi"}, nil)
	if code != http.StatusOK {
		t.Fatalf("send: expected 200, got %d", code)
	}
	if !sim.Typing("t1") {
		t.Fatalf("reply should be pending before import")
	}

	snap := models.Snapshot{
		AllThreads: map[string][]models.Message{
			"a": {{ID: "m1", Sender: models.SenderUser, Body: "restored", TS: 10, Read: true}},
		},
	}
	code = doJSON(t, client, http.MethodPost, srv.URL+"/v1/import", snap, nil)
	if code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d", code)
	}
	if sim.Typing("t1") {
		t.Fatalf("whole-store import must cancel pending replies")
	}

	// past the max reply delay the forfeited reply must not resurface
	time.Sleep(100 * time.Millisecond)
	if msgs, _ := st.ListMessages("t1"); len(msgs) != 0 {
		t.Fatalf("stale reply appended into restored store: %+v", msgs)
	}
	metas, _ := st.ListThreads()
	if len(metas) != 1 || metas[0].ID != "a" {
		t.Fatalf("expected only the restored thread, got %+v", metas)
	}
}

func TestListThreads(t *testing.T) {
	srv, st, _ := newTestServer(t)
	client := srv.Client()

	for _, id := range []string{"x", "y"} {
		if _, err := st.AppendMessage(id, models.Message{Sender: models.SenderUser, Body: "m"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var res struct {
		Threads []models.ThreadMeta `json:"threads"`
	}
	code := doJSON(t, client, http.MethodGet, srv.URL+"/v1/threads", nil, &res)
	if code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", code)
	}
	if len(res.Threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(res.Threads))
	}
}
