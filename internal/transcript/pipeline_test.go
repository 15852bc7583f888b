package transcript

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/config"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
	apperrors "github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

func testPipeline(t *testing.T, gw gateway.Client, batch int) *Pipeline {
	t.Helper()
	return NewPipeline(gw, config.TranscriptConfig{
		Dir:           t.TempDir(),
		FetchBatch:    batch,
		MaxEntryChars: 4000,
	}, zap.NewNop())
}

func seedHistory(fake *gateway.Fake, channelID string, n int) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := make([]gateway.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, gateway.Message{
			ID:        strconv.Itoa(i + 1),
			ChannelID: channelID,
			AuthorID:  "u1",
			AuthorTag: "user#1",
			Content:   fmt.Sprintf("message %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	fake.SeedMessages(channelID, msgs)
}

func TestCapturePagination(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		count int
		batch int
	}{
		{name: "empty channel", count: 0, batch: 10},
		{name: "single partial page", count: 4, batch: 10},
		{name: "exact page boundary", count: 20, batch: 10},
		{name: "multiple pages with remainder", count: 25, batch: 10},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			fake := gateway.NewFake()
			seedHistory(fake, "chan", test.count)
			pipeline := testPipeline(t, fake, test.batch)

			msgs, err := pipeline.Capture(context.Background(), "chan")
			if err != nil {
				t.Fatalf("Capture: %v", err)
			}
			if len(msgs) != test.count {
				t.Fatalf("message count: got %d, want %d", len(msgs), test.count)
			}
			for i := 1; i < len(msgs); i++ {
				if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
					t.Fatalf("messages not chronological at index %d", i)
				}
			}
		})
	}
}

func TestCaptureFailureAborts(t *testing.T) {
	t.Parallel()
	fake := gateway.NewFake()
	fake.FetchMessagesErr = errors.New("rate limited")
	pipeline := testPipeline(t, fake, 10)

	_, err := pipeline.Capture(context.Background(), "chan")
	if !apperrors.HasCode(err, apperrors.CodeCaptureFailed) {
		t.Fatalf("expected CAPTURE_FAILED, got %v", err)
	}
}

func TestSaveSanitizesContent(t *testing.T) {
	t.Parallel()
	fake := gateway.NewFake()
	pipeline := testPipeline(t, fake, 10)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	messages := []gateway.Message{
		{ID: "1", AuthorTag: "user#1", Content: "hello there", CreatedAt: base},
		{ID: "2", AuthorTag: "<script>alert(1)</script>", Content: `<img src=x onerror="alert(1)">`, CreatedAt: base.Add(time.Minute)},
		{ID: "3", AuthorTag: "user#2", Content: "plain follow-up", CreatedAt: base.Add(2 * time.Minute)},
	}

	path, err := pipeline.Save("ticket-9", "owner#1", "support#1", messages)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	document := string(data)

	if got := strings.Count(document, `class="msg"`); got != len(messages) {
		t.Errorf("rendered entries: got %d, want %d", got, len(messages))
	}
	if strings.Contains(document, "<script>") || strings.Contains(document, "<img") {
		t.Error("raw markup from message content survived into the document")
	}
	if !strings.Contains(document, "hello there") {
		t.Error("plain content missing from document")
	}
	first := strings.Index(document, "hello there")
	last := strings.Index(document, "plain follow-up")
	if first < 0 || last < 0 || first > last {
		t.Error("messages not rendered in chronological order")
	}
}

func TestSaveOverwritesPriorArtifact(t *testing.T) {
	t.Parallel()
	fake := gateway.NewFake()
	pipeline := testPipeline(t, fake, 10)

	now := time.Now()
	first, err := pipeline.Save("ticket-3", "owner", "closer", []gateway.Message{{ID: "1", AuthorTag: "a", Content: "first pass", CreatedAt: now}})
	if err != nil {
		t.Fatalf("first Save: %v", err)
	}
	second, err := pipeline.Save("ticket-3", "owner", "closer", []gateway.Message{{ID: "1", AuthorTag: "a", Content: "second pass", CreatedAt: now}})
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if first != second {
		t.Fatalf("artifact path changed: %q vs %q", first, second)
	}
	data, _ := os.ReadFile(second)
	if strings.Contains(string(data), "first pass") {
		t.Error("prior artifact content not overwritten")
	}
}

func TestDeliverDirect(t *testing.T) {
	t.Parallel()
	fake := gateway.NewFake()
	pipeline := testPipeline(t, fake, 10)
	path, err := pipeline.Save("ticket-1", "owner", "closer", nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfg := &domain.WorkspaceConfig{FallbackChannelID: "fallback"}
	tier, err := pipeline.Deliver(context.Background(), cfg, "owner1", "ticket-1", path)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if tier != TierDirect {
		t.Fatalf("tier: got %d, want %d", tier, TierDirect)
	}
	if len(fake.DMs["owner1"]) != 1 {
		t.Errorf("owner DM count: got %d, want 1", len(fake.DMs["owner1"]))
	}
}

func TestDeliverFallbackWithTimedDeletion(t *testing.T) {
	t.Parallel()
	fake := gateway.NewFake()
	fake.SendDMErr = errors.New("dms disabled")
	pipeline := testPipeline(t, fake, 10)
	defer pipeline.Shutdown()

	path, err := pipeline.Save("ticket-2", "owner", "closer", nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	cfg := &domain.WorkspaceConfig{FallbackChannelID: "fallback", TranscriptAutoDeleteMinutes: 1}
	tier, err := pipeline.Deliver(context.Background(), cfg, "owner1", "ticket-2", path)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if tier != TierFallback {
		t.Fatalf("tier: got %d, want %d", tier, TierFallback)
	}

	posts := fake.SentMessages("fallback")
	if len(posts) != 1 {
		t.Fatalf("fallback posts: got %d, want 1", len(posts))
	}
	if !strings.Contains(posts[0], "<@owner1>") {
		t.Errorf("fallback post does not mention the owner: %q", posts[0])
	}

	// the artifact on durable storage remains valid regardless of deletion
	if _, err := os.Stat(path); err != nil {
		t.Errorf("stored artifact missing: %v", err)
	}
}

func TestDeliverStorageOnlyWithoutFallbackChannel(t *testing.T) {
	t.Parallel()
	fake := gateway.NewFake()
	fake.SendDMErr = errors.New("dms disabled")
	pipeline := testPipeline(t, fake, 10)

	path, err := pipeline.Save("ticket-4", "owner", "closer", nil)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	tier, err := pipeline.Deliver(context.Background(), &domain.WorkspaceConfig{}, "owner1", "ticket-4", path)
	if err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if tier != TierStorageOnly {
		t.Fatalf("tier: got %d, want %d", tier, TierStorageOnly)
	}
}
