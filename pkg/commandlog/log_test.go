package commandlog

import (
	"context"
	"testing"

	"github.com/Kernelock/voltdb/pkg/ids"
	"github.com/Kernelock/voltdb/pkg/sps"
)

func openTestLog(t *testing.T, mode sps.LogMode) *BoltLog {
	t.Helper()
	l, err := Open(t.TempDir(), mode)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestAppendSync_PersistsEntry(t *testing.T) {
	l := openTestLog(t, sps.ModeSync)

	entry := sps.LogEntry{H: 1, T: 1, U: 100, Payload: []byte("fragment-a")}
	if err := l.AppendSync(context.Background(), entry); err != nil {
		t.Fatalf("AppendSync() error = %v", err)
	}

	entries, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("ReadAll() returned %d entries, want 1", len(entries))
	}
	if entries[0].H != 1 || entries[0].U != 100 || string(entries[0].Payload) != "fragment-a" {
		t.Errorf("ReadAll()[0] = %+v, want H=1 U=100 Payload=fragment-a", entries[0])
	}
}

func TestAppend_ResolvesFutureAndPersists(t *testing.T) {
	l := openTestLog(t, sps.ModeAsync)

	entry := sps.LogEntry{H: 2, T: 2, U: 200, Payload: []byte("fragment-b")}
	future := l.Append(context.Background(), entry)
	if err := future.Error(); err != nil {
		t.Fatalf("future.Error() = %v", err)
	}

	entries, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(entries) != 1 || entries[0].H != 2 {
		t.Fatalf("ReadAll() = %+v, want one entry with H=2", entries)
	}
}

func TestReadAll_OrdersByHandle(t *testing.T) {
	l := openTestLog(t, sps.ModeSync)
	ctx := context.Background()

	for _, h := range []ids.SpHandle{3, 1, 2} {
		entry := sps.LogEntry{H: h, T: ids.TxnID(h), U: ids.UniqueID(h)}
		if err := l.AppendSync(ctx, entry); err != nil {
			t.Fatalf("AppendSync(H=%d) error = %v", h, err)
		}
	}

	entries, err := l.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("ReadAll() returned %d entries, want 3", len(entries))
	}
	for i, want := range []ids.SpHandle{1, 2, 3} {
		if entries[i].H != want {
			t.Errorf("entries[%d].H = %d, want %d", i, entries[i].H, want)
		}
	}
}

func TestWriteFaultLog_Persists(t *testing.T) {
	l := openTestLog(t, sps.ModeSync)

	fault := sps.FaultLogEntry{
		LeaderHSId:  1,
		ReplicaSet:  []ids.SiteID{1, 2, 3},
		PartitionID: 7,
		HFault:      42,
	}
	if err := l.WriteFaultLog(context.Background(), fault); err != nil {
		t.Fatalf("WriteFaultLog() error = %v", err)
	}
}

func TestMode_ReturnsConfiguredMode(t *testing.T) {
	l := openTestLog(t, sps.ModeAsync)
	if l.Mode() != sps.ModeAsync {
		t.Errorf("Mode() = %v, want ModeAsync", l.Mode())
	}
}
