package fetch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer fetches a page through a real browser. It exists as an
// interface so tests can substitute a fake and never launch Chrome.
type Renderer interface {
	// Render loads the page headless and returns the rendered HTML.
	Render(ctx context.Context, rawURL string) (string, error)

	// RenderInteractive loads the page in a visible browser window and
	// alternates between confirm and accept: confirm blocks until the
	// operator signals that the challenge is cleared (its error aborts
	// the whole attempt), then the rendered HTML is read and offered
	// to accept. The loop repeats until accept approves the content.
	// The browser stays open across iterations so operator progress
	// (a solved challenge, a set cookie) is not lost.
	RenderInteractive(ctx context.Context, rawURL string, confirm func(context.Context) error, accept func(content string) bool) (string, error)
}

// ChromeRenderer drives a local Chrome via chromedp.
type ChromeRenderer struct {
	timeout time.Duration

	// settle is how long to wait after the document is ready, giving
	// client-side rendering a chance to fill the results in.
	settle time.Duration
}

// RendererOption configures a ChromeRenderer.
type RendererOption func(*ChromeRenderer)

// WithRenderTimeout sets the per-page rendering timeout.
func WithRenderTimeout(d time.Duration) RendererOption {
	return func(r *ChromeRenderer) {
		r.timeout = d
	}
}

// WithSettle sets the post-load settle time.
func WithSettle(d time.Duration) RendererOption {
	return func(r *ChromeRenderer) {
		r.settle = d
	}
}

// NewChromeRenderer creates a renderer with sane defaults.
func NewChromeRenderer(opts ...RendererOption) *ChromeRenderer {
	r := &ChromeRenderer{
		timeout: 60 * time.Second,
		settle:  2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render implements Renderer.
func (r *ChromeRenderer) Render(ctx context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	timeoutCtx, timeoutCancel := context.WithTimeout(browserCtx, r.timeout)
	defer timeoutCancel()

	var html string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(r.settle),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", rawURL, err)
	}
	return html, nil
}

// RenderInteractive implements Renderer. No timeout wraps the confirm
// wait; the operator decides how long the challenge takes. Individual
// page reads after each confirmation are still bounded.
func (r *ChromeRenderer) RenderInteractive(ctx context.Context, rawURL string, confirm func(context.Context) error, accept func(string) bool) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Flag("headless", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
	); err != nil {
		return "", fmt.Errorf("opening %s for manual intervention: %w", rawURL, err)
	}

	for {
		if err := confirm(browserCtx); err != nil {
			return "", err
		}

		readCtx, readCancel := context.WithTimeout(browserCtx, r.timeout)
		var html string
		err := chromedp.Run(readCtx, chromedp.OuterHTML("html", &html))
		readCancel()
		if err != nil {
			return "", fmt.Errorf("reading %s after manual intervention: %w", rawURL, err)
		}
		if accept(html) {
			return html, nil
		}
	}
}

// ManualGate is the human barrier behind the manual-intervention tier.
// Wait blocks until the operator signals to continue; it returns
// ErrManualAborted when the operator gives up, or the context error
// when the crawl is cancelled.
type ManualGate interface {
	Wait(ctx context.Context, rawURL string) error
}

// PromptGate reads the operator's decision from a terminal. Pressing
// Enter continues; "q" or "abort" gives up on the URL.
type PromptGate struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPromptGate creates a gate reading from in and prompting on out.
func NewPromptGate(in io.Reader, out io.Writer) *PromptGate {
	return &PromptGate{in: bufio.NewReader(in), out: out}
}

// Wait implements ManualGate.
func (g *PromptGate) Wait(ctx context.Context, rawURL string) error {
	fmt.Fprintf(g.out, "\nBlocked page opened in browser:\n  %s\nSolve the challenge, then press Enter to continue (q to abort): ", rawURL)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := g.in.ReadString('\n')
		ch <- result{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.err != nil && res.line == "" {
			return ErrManualAborted
		}
		switch strings.ToLower(strings.TrimSpace(res.line)) {
		case "q", "quit", "abort":
			return ErrManualAborted
		}
		return nil
	}
}
