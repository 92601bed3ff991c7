package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pranavraok/hostelvoice-api/internal/models"
	appErrors "github.com/pranavraok/hostelvoice-api/pkg/errors"
)

// noteDelimiter visually separates note sections in a merged issue.
const noteDelimiter = "\n\n---\n\n"

type mergeIssueRepository interface {
	GetByID(ctx context.Context, id string) (*models.Issue, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Issue, error)
	ApplyMerge(ctx context.Context, masterID, notes string, images models.StringList, duplicates []models.DuplicateClosure) error
}

type mergeAuditor interface {
	Record(ctx context.Context, actorID, action, resource, resourceID string, payload interface{})
}

type mergeNotifier interface {
	NotifyOne(ctx context.Context, userID string, typ models.NotificationType, title, message string, referenceID *string)
	NotifyMany(ctx context.Context, userIDs []string, typ models.NotificationType, title, message string, referenceID *string)
}

// IssueMergeService consolidates independently reported duplicates of the same
// real-world problem into a single master issue.
type IssueMergeService struct {
	repo     mergeIssueRepository
	audit    mergeAuditor
	notifier mergeNotifier
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewIssueMergeService constructs the merge engine.
func NewIssueMergeService(repo mergeIssueRepository, audit mergeAuditor, notifier mergeNotifier, metrics *MetricsService, logger *zap.Logger) *IssueMergeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssueMergeService{
		repo:     repo,
		audit:    audit,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// MergeIssuesRequest describes one merge invocation.
type MergeIssuesRequest struct {
	ActorID           string          `json:"-"`
	ActorRole         models.UserRole `json:"-"`
	MasterIssueID     string          `json:"master_issue_id"`
	DuplicateIssueIDs []string        `json:"duplicate_issue_ids"`
	MergeNotes        string          `json:"merge_notes,omitempty"`
}

// Merge validates the request, combines the duplicates into the master issue,
// closes the duplicates with a pointer back to the master, records one audit
// entry and notifies every affected reporter.
//
// Validation fails fast with no mutation. Once mutation starts, the master
// update and duplicate closures land atomically; audit and notifications are
// best-effort follow-ups that never fail the merge.
func (s *IssueMergeService) Merge(ctx context.Context, req MergeIssuesRequest) (*models.MergeResult, error) {
	if !req.ActorRole.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only staff may merge issues")
	}

	duplicateIDs := filterDuplicateIDs(req.MasterIssueID, req.DuplicateIssueIDs)
	if len(duplicateIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one duplicate issue is required")
	}

	master, err := s.repo.GetByID(ctx, req.MasterIssueID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "master issue not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load master issue")
	}
	if master.Status == models.IssueStatusClosed {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "cannot merge into a closed issue")
	}

	// Partial resolution is tolerated: ids that do not resolve are dropped.
	duplicates, err := s.repo.GetByIDs(ctx, duplicateIDs)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duplicate issues")
	}
	if len(duplicates) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no duplicate issues found")
	}

	mergedAt := s.now()
	combinedNotes := combineNotes(master, duplicates, req.MergeNotes, mergedAt)
	combinedImages := combineImages(master, duplicates)
	recipients := collectReporters(master, duplicates)

	closures := make([]models.DuplicateClosure, 0, len(duplicates))
	mergedIDs := make([]string, 0, len(duplicates))
	for _, dup := range duplicates {
		closures = append(closures, models.DuplicateClosure{
			ID:    dup.ID,
			Notes: fmt.Sprintf("Merged into issue %s", master.ID),
		})
		mergedIDs = append(mergedIDs, dup.ID)
	}

	if err := s.repo.ApplyMerge(ctx, master.ID, combinedNotes, combinedImages, closures); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply merge")
	}

	if s.audit != nil {
		s.audit.Record(ctx, req.ActorID, models.AuditActionIssueMerge, "issue", master.ID, map[string]interface{}{
			"merged_issue_ids": mergedIDs,
			"merge_notes":      req.MergeNotes,
		})
	}
	if s.metrics != nil {
		s.metrics.RecordIssueMerge(len(duplicates))
	}

	notified := s.notifyReporters(ctx, master, recipients, req.ActorID, len(duplicates))

	refreshed, err := s.repo.GetByID(ctx, master.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "merge applied but failed to reload master issue")
	}

	s.logger.Info("issues merged",
		zap.String("master_id", master.ID),
		zap.Int("merged_count", len(duplicates)),
		zap.String("actor_id", req.ActorID))

	return &models.MergeResult{
		Master:          refreshed,
		MergedCount:     len(duplicates),
		MergedIssueIDs:  mergedIDs,
		NotifiedUserIDs: notified,
	}, nil
}

// filterDuplicateIDs removes blanks, repeats and the master id itself while
// preserving first-appearance order. A self-merge is silently dropped rather
// than rejected.
func filterDuplicateIDs(masterID string, ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	filtered := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == masterID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		filtered = append(filtered, id)
	}
	return filtered
}

// combineNotes builds the master's new notes field. The section order is
// fixed: original master notes, operator merge notes, each duplicate's notes,
// then a generated summary line. Operators reading the thread see the story
// in the order it happened.
func combineNotes(master *models.Issue, duplicates []models.Issue, mergeNotes string, mergedAt time.Time) string {
	var sections []string

	if strings.TrimSpace(master.Notes) != "" {
		sections = append(sections, fmt.Sprintf("Original notes:\n%s", master.Notes))
	}
	if strings.TrimSpace(mergeNotes) != "" {
		sections = append(sections, fmt.Sprintf("Merge notes (%s):\n%s", mergedAt.Format(time.RFC3339), mergeNotes))
	}
	for _, dup := range duplicates {
		if strings.TrimSpace(dup.Notes) == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("From %q (%s):\n%s", dup.Title, dup.ID, dup.Notes))
	}

	refs := make([]string, 0, len(duplicates))
	for _, dup := range duplicates {
		refs = append(refs, fmt.Sprintf("%q (%s)", dup.Title, dup.ID))
	}
	sections = append(sections, fmt.Sprintf("Merged %d duplicate issue(s) on %s: %s",
		len(duplicates), mergedAt.Format(time.RFC3339), strings.Join(refs, ", ")))

	return strings.Join(sections, noteDelimiter)
}

// combineImages unions image references from the master and every duplicate,
// keeping first-appearance order and truncating to the fixed ceiling. The
// membership set makes the ordering guaranteed rather than incidental.
func combineImages(master *models.Issue, duplicates []models.Issue) models.StringList {
	seen := make(map[string]struct{})
	combined := make(models.StringList, 0, len(master.Images))

	add := func(refs models.StringList) {
		for _, ref := range refs {
			if len(combined) >= models.MaxIssueImages {
				return
			}
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			combined = append(combined, ref)
		}
	}

	add(master.Images)
	for _, dup := range duplicates {
		add(dup.Images)
	}
	return combined
}

// collectReporters unions the duplicate reporters, excluding the master's own
// reporter, who receives a distinctly worded notification instead.
func collectReporters(master *models.Issue, duplicates []models.Issue) []string {
	seen := make(map[string]struct{}, len(duplicates))
	reporters := make([]string, 0, len(duplicates))
	for _, dup := range duplicates {
		if dup.ReportedBy == "" || dup.ReportedBy == master.ReportedBy {
			continue
		}
		if _, ok := seen[dup.ReportedBy]; ok {
			continue
		}
		seen[dup.ReportedBy] = struct{}{}
		reporters = append(reporters, dup.ReportedBy)
	}
	return reporters
}

func (s *IssueMergeService) notifyReporters(ctx context.Context, master *models.Issue, recipients []string, actorID string, mergedCount int) []string {
	if s.notifier == nil {
		return nil
	}
	notified := make([]string, 0, len(recipients)+1)

	if len(recipients) > 0 {
		s.notifier.NotifyMany(ctx, recipients,
			models.NotificationTypeIssue,
			"Your issue was merged",
			fmt.Sprintf("Your reported issue was merged into %q. Follow further updates there.", master.Title),
			&master.ID)
		notified = append(notified, recipients...)
	}

	// The master's reporter gets a distinct message, unless they performed
	// the merge themselves.
	if master.ReportedBy != "" && master.ReportedBy != actorID {
		s.notifier.NotifyOne(ctx, master.ReportedBy,
			models.NotificationTypeIssue,
			"Duplicates merged into your report",
			fmt.Sprintf("%d duplicate report(s) were merged into your issue %q.", mergedCount, master.Title),
			&master.ID)
		notified = append(notified, master.ReportedBy)
	}
	return notified
}
