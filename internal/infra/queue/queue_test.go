package queue

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewQueue(client, Config{
		BackoffBase: 10 * time.Millisecond,
		BackoffCap:  50 * time.Millisecond,
	})
}

func TestQueue_EnqueueClaimAck(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	id, deduped, err := q.Enqueue(ctx, EnqueueOptions{
		Name:     "scrape-marketplace",
		Data:     JobData{ItemID: "75192-1", URL: "https://marketplace.example/i/75192-1"},
		Priority: PriorityNormal,
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if deduped || id == "" {
		t.Fatalf("want fresh enqueue, got id=%q deduped=%v", id, deduped)
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if job == nil || job.ID != id {
		t.Fatalf("claimed wrong job: %+v", job)
	}
	if job.State != StateActive || job.AttemptsMade != 1 {
		t.Fatalf("claimed job state=%s attempts=%d", job.State, job.AttemptsMade)
	}
	if job.Data.ItemID != "75192-1" {
		t.Fatalf("payload lost: %+v", job.Data)
	}

	if err := q.Ack(ctx, job.ID, `{"notFound":false}`); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Completed != 1 || counts.Waiting != 0 || counts.Active != 0 {
		t.Fatalf("counts after ack: %+v", counts)
	}
}

func TestQueue_PriorityOrdering(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	// Enqueued LOW, HIGH, NORMAL: the first claim must return the HIGH job.
	for _, p := range []Priority{PriorityLow, PriorityHigh, PriorityNormal} {
		if _, _, err := q.Enqueue(ctx, EnqueueOptions{
			Name:     "scrape-metadata_site",
			Data:     JobData{SetNumber: "1000" + p.String()},
			Priority: p,
		}); err != nil {
			t.Fatalf("Enqueue(%v): %v", p, err)
		}
	}

	var got []Priority
	for {
		job, err := q.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if job == nil {
			break
		}
		got = append(got, job.Priority)
	}
	want := []Priority{PriorityHigh, PriorityNormal, PriorityLow}
	if len(got) != len(want) {
		t.Fatalf("claimed %d jobs, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("claim order %v, want %v", got, want)
		}
	}
}

func TestQueue_Dedup(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	opts := EnqueueOptions{Name: "scrape-reddit", Data: JobData{SetNumber: "77243"}}
	if _, deduped, err := q.Enqueue(ctx, opts); err != nil || deduped {
		t.Fatalf("first enqueue: deduped=%v err=%v", deduped, err)
	}
	if _, deduped, err := q.Enqueue(ctx, opts); err != nil || !deduped {
		t.Fatalf("second enqueue should dedup: deduped=%v err=%v", deduped, err)
	}

	// Completing the job releases the dedup slot.
	job, err := q.Claim(ctx)
	if err != nil || job == nil {
		t.Fatalf("Claim: job=%v err=%v", job, err)
	}
	if err := q.Ack(ctx, job.ID, ""); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	if _, deduped, err := q.Enqueue(ctx, opts); err != nil || deduped {
		t.Fatalf("enqueue after ack should succeed: deduped=%v err=%v", deduped, err)
	}
}

func TestQueue_FailRetriesThenTerminal(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	if _, _, err := q.Enqueue(ctx, EnqueueOptions{
		Name: "scrape-marketplace",
		Data: JobData{ItemID: "75313-1"},
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Exhaust all three attempts.
	for attempt := 1; attempt <= 3; attempt++ {
		if _, err := q.PromoteDelayed(ctx); err != nil {
			t.Fatalf("PromoteDelayed: %v", err)
		}
		job := waitClaim(t, q)
		if job.AttemptsMade != attempt {
			t.Fatalf("attempt %d: job.AttemptsMade=%d", attempt, job.AttemptsMade)
		}
		if err := q.Fail(ctx, job, "HTTP 503: upstream unavailable"); err != nil {
			t.Fatalf("Fail: %v", err)
		}
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Failed != 1 || counts.Delayed != 0 || counts.Waiting != 0 {
		t.Fatalf("counts after exhaustion: %+v", counts)
	}

	failed, err := q.List(ctx, StateFailed, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(failed) != 1 || !strings.Contains(failed[0].FailedReason, "503") {
		t.Fatalf("failed job: %+v", failed)
	}
}

// waitClaim promotes and claims until a job shows up, bounded by the retry
// backoff cap used in tests.
func waitClaim(t *testing.T, q *Queue) *Job {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := q.PromoteDelayed(ctx); err != nil {
			t.Fatalf("PromoteDelayed: %v", err)
		}
		job, err := q.Claim(ctx)
		if err != nil {
			t.Fatalf("Claim: %v", err)
		}
		if job != nil {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no job became claimable")
	return nil
}

func TestQueue_ConcurrentClaimsNoDoubleDispatch(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	const jobs = 20
	for i := 0; i < jobs; i++ {
		if _, _, err := q.Enqueue(ctx, EnqueueOptions{
			Name: "scrape-reddit",
			Data: JobData{SetNumber: "600" + string(rune('a'+i))},
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := q.Claim(ctx)
				if err != nil {
					t.Errorf("Claim: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != jobs {
		t.Fatalf("claimed %d distinct jobs, want %d", len(seen), jobs)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("job %s claimed %d times", id, n)
		}
	}
}

func TestQueue_ObliterateMakesAckNoOp(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	for i := 0; i < 10; i++ {
		if _, _, err := q.Enqueue(ctx, EnqueueOptions{
			Name: "scrape-marketplace",
			Data: JobData{ItemID: "7000" + string(rune('a'+i))},
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	// Two jobs mid-flight when the wipe happens.
	inFlight1, _ := q.Claim(ctx)
	inFlight2, _ := q.Claim(ctx)
	if inFlight1 == nil || inFlight2 == nil {
		t.Fatal("claims failed")
	}

	if _, err := q.Obliterate(ctx); err != nil {
		t.Fatalf("Obliterate: %v", err)
	}

	counts, err := q.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Waiting+counts.Active+counts.Delayed != 0 {
		t.Fatalf("counts after obliterate: %+v", counts)
	}

	// The executing jobs' terminal updates are silently dropped.
	if err := q.Ack(ctx, inFlight1.ID, "done"); err != ErrJobGone {
		t.Fatalf("Ack after obliterate: %v", err)
	}
	if err := q.Fail(ctx, inFlight2, "boom"); err != ErrJobGone {
		t.Fatalf("Fail after obliterate: %v", err)
	}

	// Fresh enqueues work immediately, including ones that previously
	// occupied a dedup slot.
	if _, deduped, err := q.Enqueue(ctx, EnqueueOptions{
		Name: "scrape-marketplace",
		Data: JobData{ItemID: inFlight1.Data.ItemID},
	}); err != nil || deduped {
		t.Fatalf("enqueue after obliterate: deduped=%v err=%v", deduped, err)
	}
}

func TestQueue_DelayedJobNotClaimableUntilPromoted(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	if _, _, err := q.Enqueue(ctx, EnqueueOptions{
		Name:  "scrape-metadata_site",
		Data:  JobData{SetNumber: "10294"},
		Delay: time.Hour,
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if job != nil {
		t.Fatalf("delayed job claimed early: %+v", job)
	}

	counts, _ := q.Counts(ctx)
	if counts.Delayed != 1 {
		t.Fatalf("counts: %+v", counts)
	}
}

func TestQueue_WorkerStatus(t *testing.T) {
	ctx := context.Background()
	q := newTestQueue(t)

	status, err := q.WorkerStatus(ctx)
	if err != nil {
		t.Fatalf("WorkerStatus: %v", err)
	}
	if status.IsAlive {
		t.Fatal("no heartbeats yet, IsAlive should be false")
	}

	if err := q.Heartbeat(ctx, "worker-1", false, true); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	status, err = q.WorkerStatus(ctx)
	if err != nil {
		t.Fatalf("WorkerStatus: %v", err)
	}
	if !status.IsAlive || !status.IsRunning || status.IsPaused {
		t.Fatalf("status: %+v", status)
	}
}
