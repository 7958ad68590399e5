package store

import (
	"path/filepath"
	"reflect"
	"testing"

	"chatledger/pkg/models"
)

func TestExportImportThreadRoundTrip(t *testing.T) {
	st := openTestStore(t)
	for _, b := range []string{"one", "two", "three"} {
		if _, err := st.AppendMessage("t1", models.Message{Sender: models.SenderUser, Body: b}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	before, _ := st.ListMessages("t1")

	snap, err := st.ExportThread("t1")
	if err != nil {
		t.Fatalf("ExportThread: %v", err)
	}
	if snap.ThreadID != "t1" || snap.ExportDate == "" {
		t.Fatalf("unexpected snapshot header: %+v", snap)
	}
	if len(snap.Messages) != 3 {
		t.Fatalf("expected 3 messages in snapshot, got %d", len(snap.Messages))
	}

	if _, err := st.ClearThread("t1"); err != nil {
		t.Fatalf("ClearThread: %v", err)
	}
	if err := st.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	after, err := st.ListMessages("t1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("round trip changed the log:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestImportWholeStoreReplaces(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.AppendMessage("stale", models.Message{Sender: models.SenderUser, Body: "old"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	snap := models.Snapshot{
		AllThreads: map[string][]models.Message{
			"a": {{ID: "m1", Sender: models.SenderCounterparty, Body: "hi", TS: 10, Read: true}},
			"b": {
				{ID: "m2", Sender: models.SenderUser, Body: "q", TS: 20, Read: true},
				{ID: "m3", Sender: models.SenderCounterparty, Body: "r", TS: 30},
			},
		},
		ExportDate: "2026-01-01T00:00:00Z",
	}
	if err := st.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}

	if msgs, _ := st.ListMessages("stale"); len(msgs) != 0 {
		t.Fatalf("whole-store import must replace previous content")
	}
	a, _ := st.ListMessages("a")
	if len(a) != 1 || a[0].ID != "m1" || a[0].TS != 10 || !a[0].Read {
		t.Fatalf("thread a not restored verbatim: %+v", a)
	}
	b, _ := st.ListMessages("b")
	if len(b) != 2 || b[0].ID != "m2" || b[1].ID != "m3" {
		t.Fatalf("thread b not restored: %+v", b)
	}

	metas, err := st.ListThreads()
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 thread metas, got %d", len(metas))
	}
}

func TestImportPreservesOrderWithOutOfOrderStamps(t *testing.T) {
	st := openTestStore(t)
	snap := models.Snapshot{
		ThreadID: "t1",
		Messages: []models.Message{
			{ID: "m1", Sender: models.SenderUser, Body: "first", TS: 300, Read: true},
			{ID: "m2", Sender: models.SenderCounterparty, Body: "second", TS: 100},
			{ID: "m3", Sender: models.SenderUser, Body: "third", TS: 200, Read: true},
		},
	}
	if err := st.ImportSnapshot(snap); err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	msgs, err := st.ListMessages("t1")
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	// slice order wins over stamps, and stamps survive untouched
	for i, want := range []struct {
		id string
		ts int64
	}{{"m1", 300}, {"m2", 100}, {"m3", 200}} {
		if msgs[i].ID != want.id || msgs[i].TS != want.ts {
			t.Fatalf("position %d: expected %s/%d, got %s/%d", i, want.id, want.ts, msgs[i].ID, msgs[i].TS)
		}
	}
}

func TestImportRejectsEmptySnapshot(t *testing.T) {
	st := openTestStore(t)
	if err := st.ImportSnapshot(models.Snapshot{}); err == nil {
		t.Fatalf("expected error for snapshot with neither shape")
	}
}

func TestExportAllCoversEveryThread(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	st, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	for _, id := range []string{"x", "y"} {
		if _, err := st.AppendMessage(id, models.Message{Sender: models.SenderUser, Body: "m-" + id}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	snap, err := st.ExportAll()
	if err != nil {
		t.Fatalf("ExportAll: %v", err)
	}
	if !snap.WholeStore() {
		t.Fatalf("expected a whole-store snapshot")
	}
	if len(snap.AllThreads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(snap.AllThreads))
	}
	if snap.AllThreads["x"][0].Body != "m-x" || snap.AllThreads["y"][0].Body != "m-y" {
		t.Fatalf("unexpected snapshot content: %+v", snap.AllThreads)
	}
}
