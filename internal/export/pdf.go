package export

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

const pdfTimeout = 45 * time.Second

// pageSetup is a printed page in inches.
type pageSetup struct {
	Width, Height            float64
	Top, Bottom, Left, Right float64
}

// tradePaperback is roughly A5, the size most self-published novels print at.
var tradePaperback = pageSetup{Width: 5.83, Height: 8.27, Top: 0.7, Bottom: 0.8, Left: 0.6, Right: 0.6}

// chromePath finds a Chrome binary, preferring WRITEPAD_CHROME_PATH.
func chromePath() (string, bool) {
	if p := strings.TrimSpace(os.Getenv("WRITEPAD_CHROME_PATH")); p != "" {
		return p, true
	}
	for _, name := range []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p, true
		}
	}
	return "", false
}

// pageFooter centres "Title · n" at the bottom of every page.
func pageFooter(title string) string {
	return `<div style="width:100%;font-size:8px;font-family:Georgia,serif;text-align:center;color:#555;">` +
		html.EscapeString(title) + ` &middot; <span class="pageNumber"></span></div>`
}

// exportPDF prints the manuscript with headless Chrome.
func exportPDF(parent context.Context, manuscript, title string) (*Result, error) {
	chrome, ok := chromePath()
	if !ok {
		return nil, fmt.Errorf("%w: chromium not installed", ErrPDFDependencyMissing)
	}

	ctx, cancel := context.WithTimeout(parent, pdfTimeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(chrome),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	setup := tradePaperback
	var pdf []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate("data:text/html;charset=utf-8,"+url.PathEscape(manuscript)),
		chromedp.WaitReady("body"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			pdf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(setup.Width).
				WithPaperHeight(setup.Height).
				WithMarginTop(setup.Top).
				WithMarginBottom(setup.Bottom).
				WithMarginLeft(setup.Left).
				WithMarginRight(setup.Right).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate("<span></span>").
				WithFooterTemplate(pageFooter(title)).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chrome pdf generation failed: %w", err)
	}

	return &Result{
		Data:     pdf,
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

const maxFilenameRunes = 50

// sanitizeFilename keeps letters and digits from a novel title, joining words
// with single dashes. Non-Latin titles survive; an empty result becomes
// "manuscript".
func sanitizeFilename(title string) string {
	var b strings.Builder
	runes, pendingDash := 0, false
loop:
	for _, r := range title {
		if runes == maxFilenameRunes {
			break
		}
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			if pendingDash && runes > 0 {
				b.WriteByte('-')
				runes++
				if runes == maxFilenameRunes {
					break loop
				}
			}
			pendingDash = false
			b.WriteRune(r)
			runes++
		case unicode.IsSpace(r):
			pendingDash = true
		}
	}
	if b.Len() == 0 {
		return "manuscript"
	}
	return b.String()
}
