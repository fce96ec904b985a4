// Package browser drives a single Chrome tab for the downloader: navigate,
// run a script in the page, collect the file the script downloads.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// Lifecycle event names reported by Chrome for the main frame
const (
	lifecycleInit        = "init"
	lifecycleNetworkIdle = "networkIdle"
)

// finishedQueueSize bounds download events waiting for the collector
const finishedQueueSize = 16

// ErrClosed is returned when the browser goes away mid-operation
var ErrClosed = errors.New("browser closed")

// Page is the browser capability the downloader needs
type Page interface {
	// Navigate loads url and returns once the network has gone idle
	Navigate(ctx context.Context, url string) error
	// Evaluate runs script in the page, awaiting it if it returns a promise.
	// Downloads that began before the call are discarded.
	Evaluate(ctx context.Context, script string) error
	// AwaitDownload returns the contents of the next completed download.
	// A zero timeout waits until ctx is done.
	AwaitDownload(ctx context.Context, timeout time.Duration) ([]byte, error)
	// Close shuts the browser down
	Close() error
}

// Options configure the launched browser
type Options struct {
	ProfileDir        string
	UserAgent         string
	ExecPath          string
	NavigationTimeout time.Duration
	Headless          bool
}

type startedDownload struct {
	name string
	gen  uint64
}

// finished is a completed or canceled download waiting to be collected
type finished struct {
	guid     string
	canceled bool
	gen      uint64
}

type download struct {
	data []byte
	err  error
}

// ChromePage is a Page backed by a chromedp browser with a persistent profile
type ChromePage struct {
	ctx        context.Context
	cancel     context.CancelFunc
	log        *logrus.Logger
	opts       Options
	stagingDir string

	mu        sync.Mutex
	mainFrame cdp.FrameID
	loaderID  cdp.LoaderID
	waiting   bool
	idle      chan struct{}
	gen       uint64
	started   map[string]startedDownload
	finished  chan finished
	downloads chan download

	closeOnce sync.Once
	closeErr  error
}

var _ Page = (*ChromePage)(nil)

// Launch starts Chrome bound to the profile directory and opens one tab.
// Cancelling ctx kills the browser.
func Launch(ctx context.Context, opts Options, log *logrus.Logger) (*ChromePage, error) {
	if opts.ProfileDir == "" {
		return nil, fmt.Errorf("browser profile directory is required")
	}

	stagingDir, err := os.MkdirTemp("", "paipu-download-*")
	if err != nil {
		return nil, fmt.Errorf("error creating download staging directory: %w", err)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserDataDir(opts.ProfileDir),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(log.Printf),
		chromedp.WithErrorf(log.Errorf),
	)

	p := newChromePage(browserCtx, func() {
		browserCancel()
		allocCancel()
	}, opts, stagingDir, log)

	// Start the browser before attaching listeners
	if err := chromedp.Run(browserCtx); err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	chromedp.ListenTarget(browserCtx, p.handleEvent)

	err = chromedp.Run(browserCtx,
		page.SetLifecycleEventsEnabled(true),
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(stagingDir).
			WithEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			p.mu.Lock()
			p.mainFrame = tree.Frame.ID
			p.mu.Unlock()
			return nil
		}),
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}

	log.WithFields(logrus.Fields{
		"profile":  opts.ProfileDir,
		"headless": opts.Headless,
	}).Debug("Browser launched")

	return p, nil
}

// newChromePage wires the page state and starts the download collector,
// which runs until ctx is done
func newChromePage(ctx context.Context, cancel context.CancelFunc, opts Options, stagingDir string, log *logrus.Logger) *ChromePage {
	p := &ChromePage{
		ctx:        ctx,
		cancel:     cancel,
		log:        log,
		opts:       opts,
		stagingDir: stagingDir,
		idle:       make(chan struct{}, 1),
		started:    make(map[string]startedDownload),
		finished:   make(chan finished, finishedQueueSize),
		downloads:  make(chan download, 4),
	}
	go p.collectLoop()
	return p
}

// handleEvent runs on the chromedp event loop and must not block
func (p *ChromePage) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventLifecycleEvent:
		p.mu.Lock()
		defer p.mu.Unlock()
		if e.FrameID != p.mainFrame || !p.waiting {
			return
		}
		switch e.Name {
		case lifecycleInit:
			p.loaderID = e.LoaderID
		case lifecycleNetworkIdle:
			if p.loaderID != "" && e.LoaderID == p.loaderID {
				p.waiting = false
				select {
				case p.idle <- struct{}{}:
				default:
				}
			}
		}

	case *browser.EventDownloadWillBegin:
		p.mu.Lock()
		p.started[e.GUID] = startedDownload{name: e.SuggestedFilename, gen: p.gen}
		p.mu.Unlock()
		p.log.WithFields(logrus.Fields{
			"guid":     e.GUID,
			"filename": e.SuggestedFilename,
			"url":      e.URL,
		}).Debug("Download started")

	case *browser.EventDownloadProgress:
		switch e.State {
		case browser.DownloadProgressStateCompleted:
			p.finish(e.GUID, false)
		case browser.DownloadProgressStateCanceled:
			p.finish(e.GUID, true)
		}
	}
}

// finish queues a download for the collector, tagged with the task it began in
func (p *ChromePage) finish(guid string, canceled bool) {
	p.mu.Lock()
	gen := p.gen
	if s, ok := p.started[guid]; ok {
		gen = s.gen
	}
	p.mu.Unlock()

	select {
	case p.finished <- finished{guid: guid, canceled: canceled, gen: gen}:
	default:
		p.log.WithField("guid", guid).Warn("Download queue full, dropping download")
	}
}

// collectLoop handles finished downloads one at a time, in event order
func (p *ChromePage) collectLoop() {
	for {
		select {
		case f := <-p.finished:
			p.collect(f)
		case <-p.ctx.Done():
			return
		}
	}
}

// collect reads a finished download out of the staging directory and hands it
// to AwaitDownload unless it belongs to an earlier task
func (p *ChromePage) collect(f finished) {
	d := download{}
	path := filepath.Join(p.stagingDir, f.guid)
	if f.canceled {
		d.err = fmt.Errorf("download %s was canceled", f.guid)
	} else if data, err := os.ReadFile(path); err != nil {
		d.err = fmt.Errorf("error reading download %s: %w", f.guid, err)
	} else {
		d.data = data
	}
	os.Remove(path)

	p.mu.Lock()
	defer p.mu.Unlock()
	name := p.started[f.guid].name
	delete(p.started, f.guid)

	entry := p.log.WithFields(logrus.Fields{
		"guid":     f.guid,
		"filename": name,
		"bytes":    len(d.data),
	})
	if f.gen != p.gen {
		entry.Warn("Discarding download from an earlier page")
		return
	}

	// checked and queued under one lock so expectDownload cannot interleave
	select {
	case p.downloads <- d:
		entry.Debug("Download completed")
	default:
		entry.Warn("Too many unclaimed downloads, dropping download")
	}
}

// expectDownload starts a new task: downloads that began earlier no longer
// count
func (p *ChromePage) expectDownload() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gen++
	for {
		select {
		case <-p.downloads:
		default:
			return
		}
	}
}

// run executes actions on the tab, aborting when ctx is done
func (p *ChromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the main frame's network to go idle,
// bounded by the navigation timeout
func (p *ChromePage) Navigate(ctx context.Context, url string) error {
	if p.opts.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.NavigationTimeout)
		defer cancel()
	}

	p.mu.Lock()
	p.loaderID = ""
	p.waiting = true
	select {
	case <-p.idle:
	default:
	}
	p.mu.Unlock()

	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	select {
	case <-p.idle:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for network idle on %s: %w", url, ctx.Err())
	case <-p.ctx.Done():
		return fmt.Errorf("waiting for network idle on %s: %w", url, ErrClosed)
	}
}

// Evaluate runs script in the page context
func (p *ChromePage) Evaluate(ctx context.Context, script string) error {
	p.expectDownload()

	err := p.run(ctx, chromedp.Evaluate(script, nil, func(params *runtime.EvaluateParams) *runtime.EvaluateParams {
		return params.WithAwaitPromise(true)
	}))
	if err != nil {
		return fmt.Errorf("failed to evaluate page script: %w", err)
	}
	return nil
}

// AwaitDownload blocks until the next download completes
func (p *ChromePage) AwaitDownload(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case d := <-p.downloads:
		return d.data, d.err
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for download: %w", ctx.Err())
	case <-p.ctx.Done():
		return nil, fmt.Errorf("waiting for download: %w", ErrClosed)
	}
}

// Close shuts the browser down and removes the staging directory. Safe to
// call more than once.
func (p *ChromePage) Close() error {
	p.closeOnce.Do(func() {
		if p.ctx.Err() == nil {
			if err := chromedp.Cancel(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
				p.closeErr = fmt.Errorf("failed to close browser: %w", err)
			}
		}
		p.cancel()
		os.RemoveAll(p.stagingDir)
	})
	return p.closeErr
}
