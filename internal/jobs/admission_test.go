package jobs

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestAdmissionTable_ReserveRelease(t *testing.T) {
	tbl := NewAdmissionTable()
	if !tbl.Reserve("/a.mkv") {
		t.Fatalf("first reserve should succeed")
	}
	if tbl.Reserve("/a.mkv") {
		t.Fatalf("second reserve should fail while owned")
	}
	if !tbl.Contains("/a.mkv") || tbl.Len() != 1 {
		t.Fatalf("table should contain path")
	}
	if !tbl.Release("/a.mkv") {
		t.Fatalf("release should report presence")
	}
	if tbl.Release("/a.mkv") {
		t.Fatalf("second release should report absence")
	}
	if !tbl.Reserve("/a.mkv") {
		t.Fatalf("reserve after release should succeed")
	}
}

func TestAdmissionTable_ConcurrentReserveAdmitsOne(t *testing.T) {
	tbl := NewAdmissionTable()
	const callers = 64
	var wins int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if tbl.Reserve("/tv/show/ep1.mkv") {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	close(start)
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestAdmissionTable_PathsSorted(t *testing.T) {
	tbl := NewAdmissionTable()
	tbl.Reserve("/b")
	tbl.Reserve("/a")
	got := tbl.Paths()
	if len(got) != 2 || got[0] != "/a" || got[1] != "/b" {
		t.Fatalf("Paths = %v", got)
	}
}

func TestStage_Transitions(t *testing.T) {
	ok := [][2]Stage{
		{StageQueued, StageRunning},
		{StageQueued, StageFailed},
		{StageRunning, StageCompleted},
		{StageRunning, StageFailed},
	}
	for _, tr := range ok {
		if !tr[0].CanTransition(tr[1]) {
			t.Fatalf("%s -> %s should be allowed", tr[0], tr[1])
		}
	}
	bad := [][2]Stage{
		{StageQueued, StageCompleted},
		{StageCompleted, StageRunning},
		{StageFailed, StageQueued},
		{StageRunning, StageQueued},
	}
	for _, tr := range bad {
		if tr[0].CanTransition(tr[1]) {
			t.Fatalf("%s -> %s should be rejected", tr[0], tr[1])
		}
	}
	if !StageCompleted.Terminal() || !StageFailed.Terminal() || StageRunning.Terminal() {
		t.Fatalf("terminal flags wrong")
	}
}
