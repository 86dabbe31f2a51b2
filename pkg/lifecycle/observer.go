package lifecycle

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Observer receives progress from an in-flight build. Implementations must
// tolerate being called from the build's goroutine.
type Observer interface {
	// BuildStarted is called once the builder container has launched.
	BuildStarted(name string)
	// Output receives one line of builder output.
	Output(line string)
	// BuildFinished is called exactly once with the terminal status and,
	// on failure, the captured error text.
	BuildFinished(status, errText string)
}

// NopObserver discards all progress events.
type NopObserver struct{}

func (NopObserver) BuildStarted(string)       {}
func (NopObserver) Output(string)             {}
func (NopObserver) BuildFinished(_, _ string) {}

// ConsoleObserver renders build progress as a terminal spinner, with the
// builder's own output echoed below it when verbose.
type ConsoleObserver struct {
	Verbose bool
	bar     *progressbar.ProgressBar
}

func (o *ConsoleObserver) BuildStarted(name string) {
	o.bar = progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Building "+name),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(65*1000000), // 65ms
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
	)
}

func (o *ConsoleObserver) Output(line string) {
	if o.bar != nil {
		_ = o.bar.Add(1)
	}
	if o.Verbose {
		fmt.Println(line)
	}
}

func (o *ConsoleObserver) BuildFinished(status, errText string) {
	if o.bar != nil {
		_ = o.bar.Finish()
	}
	if errText != "" {
		fmt.Fprintln(os.Stderr, errText)
	}
	fmt.Printf("Build %s\n", status)
}
