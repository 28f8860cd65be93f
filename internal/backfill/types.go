package backfill

// FileSummary is the outcome of importing one export file.
type FileSummary struct {
	Path          string
	Conversations int
	Messages      int
	SkippedRows   int
	Err           error
}

// Report totals a backfill run.
type Report struct {
	Files         []FileSummary
	Skipped       int // already processed in an earlier run
	Conversations int
	Messages      int
	Failed        int
	DryRun        bool
}

func (r *Report) add(fs FileSummary) {
	r.Files = append(r.Files, fs)
	if fs.Err != nil {
		r.Failed++
		return
	}
	r.Conversations += fs.Conversations
	r.Messages += fs.Messages
}
