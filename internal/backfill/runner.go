package backfill

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/MikeSquared-Agency/historico/internal/csvrows"
	"github.com/MikeSquared-Agency/historico/internal/history"
	"github.com/MikeSquared-Agency/historico/internal/slack"
)

// Config holds the backfill command configuration.
type Config struct {
	Dir          string
	UserID       int64
	DryRun       bool
	StatePath    string // default: ~/.historico/backfill-state.json
	Source       string // source label carried on import events (default: "backfill")
	SlackToken   string // optional: Slack bot token for posting summaries
	SlackChannel string // optional: Slack channel for summaries
}

// Importer persists one CSV export for a user.
type Importer interface {
	CheckUser(ctx context.Context, userID int64) error
	Import(ctx context.Context, userID int64, src io.Reader, source string) (*history.ImportResult, error)
}

// Runner imports every CSV export under a directory, one transaction per
// file, remembering finished files so an interrupted run can resume.
type Runner struct {
	cfg      Config
	importer Importer
	slack    *slack.Poster
	logger   *slog.Logger
}

// NewRunner creates a backfill runner.
func NewRunner(cfg Config, importer Importer, logger *slog.Logger) *Runner {
	r := &Runner{
		cfg:      cfg,
		importer: importer,
		logger:   logger,
	}

	if cfg.SlackToken != "" && cfg.SlackChannel != "" {
		r.slack = slack.NewPoster(cfg.SlackToken, cfg.SlackChannel, logger)
	}

	return r
}

func (r *Runner) sourceLabel() string {
	if r.cfg.Source != "" {
		return r.cfg.Source
	}
	return "backfill"
}

// Run executes the backfill. A failed file is recorded and skipped; it is
// retried on the next run since it is never marked processed.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if state.Dir == "" {
		state.Dir = r.cfg.Dir
		state.UserID = r.cfg.UserID
	} else if state.Dir != r.cfg.Dir || state.UserID != r.cfg.UserID {
		r.logger.Warn("state file belongs to a different run",
			"state", state.Path(),
			"state_dir", state.Dir,
			"state_user_id", state.UserID,
		)
	}

	// Dry runs never reach Import, so the owner is checked up front.
	if err := r.importer.CheckUser(ctx, r.cfg.UserID); err != nil {
		return nil, fmt.Errorf("user %d: %w", r.cfg.UserID, err)
	}

	files, err := discoverFiles(r.cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("discover files: %w", err)
	}

	report := &Report{DryRun: r.cfg.DryRun}
	var pending []string
	for _, path := range files {
		if state.IsProcessed(path) {
			report.Skipped++
			continue
		}
		pending = append(pending, path)
	}

	state.FilesRemaining = len(pending)
	r.logger.Info("files discovered",
		"dir", r.cfg.Dir,
		"total", len(files),
		"pending", len(pending),
		"dry_run", r.cfg.DryRun,
	)

	for _, path := range pending {
		select {
		case <-ctx.Done():
			r.logger.Info("backfill interrupted, saving state")
			r.save(state)
			r.postSummary(ctx, report)
			return report, ctx.Err()
		default:
		}

		sum := r.importFile(ctx, path)
		report.add(sum)

		if sum.Err != nil {
			r.logger.Error("import failed", "path", path, "error", sum.Err)
			state.AddError(fmt.Sprintf("import %s: %v", path, sum.Err))
		} else {
			r.logger.Info("file imported",
				"path", path,
				"conversations", sum.Conversations,
				"messages", sum.Messages,
				"skipped_rows", sum.SkippedRows,
				"dry_run", r.cfg.DryRun,
			)
			if !r.cfg.DryRun {
				state.MarkProcessed(path)
				state.ConversationsImported += sum.Conversations
				state.MessagesImported += sum.Messages
			}
		}
		state.FilesRemaining--
		r.save(state)
	}

	r.postSummary(ctx, report)

	r.logger.Info("backfill complete",
		"files", len(report.Files),
		"already_processed", report.Skipped,
		"conversations", report.Conversations,
		"messages", report.Messages,
		"failed", report.Failed,
		"dry_run", r.cfg.DryRun,
	)
	return report, nil
}

// importFile imports one export. Dry runs parse and group the file without
// writing anything.
func (r *Runner) importFile(ctx context.Context, path string) FileSummary {
	sum := FileSummary{Path: path}

	f, err := os.Open(path)
	if err != nil {
		sum.Err = err
		return sum
	}
	defer f.Close()

	if r.cfg.DryRun {
		batch, err := history.Group(csvrows.NewReader(f).All())
		if err != nil {
			sum.Err = err
			return sum
		}
		sum.Conversations = len(batch.Conversations)
		sum.Messages = batch.Messages()
		sum.SkippedRows = batch.SkippedRows
		return sum
	}

	res, err := r.importer.Import(ctx, r.cfg.UserID, f, r.sourceLabel())
	if err != nil {
		sum.Err = err
		return sum
	}
	sum.Conversations = res.Conversations
	sum.Messages = res.Messages
	sum.SkippedRows = res.SkippedRows
	return sum
}

func (r *Runner) save(state *BackfillState) {
	if r.cfg.DryRun {
		return
	}
	if err := state.Save(); err != nil {
		r.logger.Warn("failed to save backfill state", "path", state.Path(), "error", err)
	}
}

// postSummary posts the run summary to Slack. If Slack is not configured,
// it logs the summary instead.
func (r *Runner) postSummary(ctx context.Context, report *Report) {
	if len(report.Files) == 0 {
		return
	}

	summary := r.slackSummary(report)
	if r.slack == nil {
		r.logger.Info("backfill summary (no Slack configured)", "summary", FormatSummary(report))
		return
	}

	if _, err := r.slack.PostSummary(ctx, summary); err != nil {
		r.logger.Warn("failed to post backfill summary to Slack, logging instead",
			"error", err,
			"summary", FormatSummary(report),
		)
	}
}

func (r *Runner) slackSummary(report *Report) slack.Summary {
	title := "Backfill of " + r.cfg.Dir
	if report.DryRun {
		title += " (dry run)"
	}
	s := slack.Summary{
		Title: title,
		Stats: []string{
			fmt.Sprintf("Files imported: %d", len(report.Files)-report.Failed),
			fmt.Sprintf("Conversations: %d", report.Conversations),
			fmt.Sprintf("Messages: %d", report.Messages),
		},
	}
	for _, f := range report.Files {
		if f.Err != nil {
			s.Failures = append(s.Failures, fmt.Sprintf("%s: %v", filepath.Base(f.Path), f.Err))
		}
	}
	return s
}

// FormatSummary renders a report as plain text, one line per file.
func FormatSummary(report *Report) string {
	var sb strings.Builder
	sb.WriteString("=== Backfill Summary ===\n")
	for _, f := range report.Files {
		name := filepath.Base(f.Path)
		if f.Err != nil {
			fmt.Fprintf(&sb, "  - %s: FAILED (%v)\n", name, f.Err)
			continue
		}
		fmt.Fprintf(&sb, "  - %s: %d conversations, %d messages", name, f.Conversations, f.Messages)
		if f.SkippedRows > 0 {
			fmt.Fprintf(&sb, " (%d rows skipped)", f.SkippedRows)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Files processed: %d\n", len(report.Files))
	fmt.Fprintf(&sb, "Already processed: %d\n", report.Skipped)
	fmt.Fprintf(&sb, "Conversations: %d\n", report.Conversations)
	fmt.Fprintf(&sb, "Messages: %d\n", report.Messages)
	fmt.Fprintf(&sb, "Failed: %d\n", report.Failed)
	if report.DryRun {
		sb.WriteString("Mode: DRY RUN (no DB writes)\n")
	}
	return sb.String()
}

// discoverFiles returns every .csv file under dir in lexical order.
func discoverFiles(dir string) ([]string, error) {
	root := expandHome(dir)
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), ".csv") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
