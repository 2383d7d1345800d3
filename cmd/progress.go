package cmd

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// progressObserver shows a progress bar over the tasks of a single run
type progressObserver struct {
	bar *progressbar.ProgressBar
}

func newProgressObserver(out io.Writer, total int, title string) *progressObserver {
	return &progressObserver{
		bar: progressbar.NewOptions(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription(title),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (p *progressObserver) TaskStarted(name string) {
	p.bar.Describe(name)
}

func (p *progressObserver) TaskFinished(name string, err error) {
	_ = p.bar.Add(1)
}

func (p *progressObserver) finish() {
	_ = p.bar.Finish()
}
