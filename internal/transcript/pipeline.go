// Package transcript implements the capture, rendering, storage, and
// guaranteed-delivery pipeline for ticket transcripts.
package transcript

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-orchestrator/internal/config"
	"github.com/spec-kit/ticket-orchestrator/internal/domain"
	"github.com/spec-kit/ticket-orchestrator/internal/gateway"
	apperrors "github.com/spec-kit/ticket-orchestrator/pkg/util/errorutil"
)

// Delivery tiers reported by Deliver.
const (
	TierDirect      = 1
	TierFallback    = 2
	TierStorageOnly = 3
)

// Pipeline captures channel history, renders the sanitized artifact, writes
// it to durable storage, and delivers it to the ticket owner with tiered
// fallback.
type Pipeline struct {
	gw        gateway.Client
	dir       string
	batchSize int
	sanitize  *sanitizer
	logger    *zap.Logger

	mu             sync.Mutex
	pendingDeletes []*time.Timer
}

// NewPipeline constructs the pipeline.
func NewPipeline(gw gateway.Client, cfg config.TranscriptConfig, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		gw:        gw,
		dir:       cfg.Dir,
		batchSize: cfg.FetchBatch,
		sanitize:  newSanitizer(cfg.MaxEntryChars),
		logger:    logger,
	}
}

// Capture retrieves the full channel history in bounded batches, walking
// backward from the most recent message, and returns it oldest first. Any
// page failure aborts the capture.
func (p *Pipeline) Capture(ctx context.Context, channelID string) ([]gateway.Message, error) {
	var all []gateway.Message
	beforeID := ""
	for {
		page, err := p.gw.FetchMessages(ctx, channelID, p.batchSize, beforeID)
		if err != nil {
			return nil, apperrors.NewCaptureFailed(fmt.Errorf("fetch history page: %w", err))
		}
		if len(page) == 0 {
			break
		}
		all = append(all, page...)
		beforeID = page[len(page)-1].ID
		if len(page) < p.batchSize {
			break
		}
	}

	// pages arrive newest first; emit chronological order
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all, nil
}

// Save renders the transcript and writes it to durable storage keyed by
// channel name, overwriting any prior artifact for that name. It returns the
// artifact path.
func (p *Pipeline) Save(channelName, ownerLabel, closerLabel string, messages []gateway.Message) (string, error) {
	document := p.render(channelName, ownerLabel, closerLabel, messages)
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("create transcript dir: %w", err)
	}
	path := filepath.Join(p.dir, channelName+".html")
	if err := os.WriteFile(path, []byte(document), 0o644); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// Deliver attempts tiered delivery of a stored artifact: direct message to
// the owner, then the workspace fallback channel (with timed deletion), then
// storage-only degradation. The returned tier records which path succeeded.
// Failures are non-fatal to closure; the caller logs and moves on.
func (p *Pipeline) Deliver(ctx context.Context, cfg *domain.WorkspaceConfig, ownerID, channelName, artifactPath string) (int, error) {
	content, err := os.ReadFile(artifactPath)
	if err != nil {
		return TierStorageOnly, apperrors.NewDeliveryFailed(fmt.Errorf("read artifact: %w", err))
	}
	file := gateway.FileUpload{Name: channelName + "-transcript.html", Content: content}

	dmText := fmt.Sprintf("Your ticket %s has been closed. The transcript is attached.", channelName)
	if err := p.gw.SendDirectMessage(ctx, ownerID, dmText, &file); err == nil {
		return TierDirect, nil
	} else {
		p.logger.Warn("direct transcript delivery failed, trying fallback",
			zap.String("ticket", channelName), zap.String("owner_id", ownerID), zap.Error(err))
	}

	if cfg == nil || cfg.FallbackChannelID == "" {
		p.logger.Warn("no fallback channel configured; transcript retrievable from storage only",
			zap.String("ticket", channelName), zap.String("artifact", artifactPath))
		return TierStorageOnly, nil
	}

	mention := fmt.Sprintf("<@%s> I couldn't send your transcript via DM. Here it is instead:", ownerID)
	msg, err := p.gw.SendFile(ctx, cfg.FallbackChannelID, mention, file)
	if err != nil {
		return TierStorageOnly, apperrors.NewDeliveryFailed(fmt.Errorf("fallback post: %w", err))
	}

	p.scheduleFallbackDelete(cfg.FallbackChannelID, msg.ID, cfg.TranscriptAutoDelete())
	return TierFallback, nil
}

// scheduleFallbackDelete bounds how long a transcript stays publicly visible
// in the fallback channel.
func (p *Pipeline) scheduleFallbackDelete(channelID, messageID string, delay time.Duration) {
	timer := time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := p.gw.DeleteMessage(ctx, channelID, messageID); err != nil {
			p.logger.Warn("fallback transcript deletion failed",
				zap.String("channel_id", channelID), zap.String("message_id", messageID), zap.Error(err))
		}
	})
	p.mu.Lock()
	p.pendingDeletes = append(p.pendingDeletes, timer)
	p.mu.Unlock()
}

// Shutdown cancels pending fallback deletions.
func (p *Pipeline) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, timer := range p.pendingDeletes {
		timer.Stop()
	}
	p.pendingDeletes = nil
}
