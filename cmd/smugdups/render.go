package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"smugdups/internal/dups"
)

const (
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiRed    = "\x1b[31m"
	ansiReset  = "\x1b[0m"
)

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func shouldColorize(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}

func paint(colorize bool, color, s string) string {
	if !colorize {
		return s
	}
	return color + s + ansiReset
}

// progressPrinter draws a single updating status line on a terminal and
// nothing otherwise.
type progressPrinter struct {
	w       io.Writer
	enabled bool
	width   int
}

func newProgressPrinter(f *os.File) *progressPrinter {
	return &progressPrinter{w: f, enabled: isTerminal(f)}
}

func (p *progressPrinter) update(pr dups.Progress) {
	if !p.enabled {
		return
	}
	line := fmt.Sprintf("[%s] %3d%% %s", pr.Phase, pr.Percent(), pr.Message)
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	p.width = len(line)
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
}

func (p *progressPrinter) done() {
	if p.enabled && p.width > 0 {
		fmt.Fprintln(p.w)
		p.width = 0
	}
}

func renderAlbums(albums []*dups.Album) string {
	rows := make([][]string, 0, len(albums))
	for _, a := range albums {
		rows = append(rows, []string{a.ID, a.Name, a.URLPath, strconv.Itoa(a.ImageCount)})
	}
	return renderTable([]string{"ID", "Name", "Path", "Images"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight})
}

func renderGroup(index int, g *dups.DuplicateGroup) string {
	rows := make([][]string, 0, len(g.Images))
	for i, img := range g.Images {
		keep := ""
		if img.ID == g.KeeperID {
			keep = "keep"
		}
		date := ""
		if !img.Date.IsZero() {
			date = img.Date.Format("2006-01-02 15:04")
		}
		gps := ""
		if img.HasGPS() {
			gps = "yes"
		}
		album := img.AlbumName
		if album == "" {
			album = img.AlbumID
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			keep,
			img.FileName,
			album,
			date,
			gps,
			humanize.Bytes(uint64(img.Size)),
			strconv.Itoa(g.Scores[img.ID]),
		})
	}
	title := fmt.Sprintf("Group %d  %s\n", index, g.Hash)
	return title + renderTable(
		[]string{"#", "", "File", "Album", "Date", "GPS", "Size", "Score"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func renderScan(w io.Writer, res *dups.ScanResult) {
	for i, g := range res.Groups {
		fmt.Fprintln(w, renderGroup(i+1, g))
		fmt.Fprintln(w)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "Skipped album %s: %v\n", f.AlbumID, f.Err)
	}
	if len(res.Excluded) > 0 {
		fmt.Fprintf(w, "Excluded %d album(s) by filter\n", len(res.Excluded))
	}
	savings := dups.CalculateSavings(res.Groups)
	fmt.Fprintf(w, "Scanned %d image(s) in %d album(s): %d duplicate group(s), %d extra copies, %s reclaimable\n",
		res.ImagesScanned, len(res.AlbumsScanned), savings.Groups, savings.Duplicates, savings.Human())
	if res.Cancelled {
		fmt.Fprintln(w, "Scan cancelled; results cover the albums scanned so far.")
	}
}

func renderReport(w io.Writer, report *dups.Report) {
	colorize := shouldColorize(w)
	rows := make([][]string, 0)
	for _, out := range report.Groups {
		for _, res := range out.Images {
			status := string(res.Status)
			switch res.Status {
			case dups.OutcomeMoved, dups.OutcomeDeleted:
				status = paint(colorize, ansiGreen, status)
			case dups.OutcomeUnverified:
				status = paint(colorize, ansiYellow, status)
			case dups.OutcomeFailed:
				status = paint(colorize, ansiRed, status)
			}
			errText := ""
			if res.Err != nil {
				errText = res.Err.Error()
			}
			rows = append(rows, []string{res.Image.FileName, res.Image.AlbumID, string(res.Action), status, errText})
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(w, renderTable([]string{"File", "From", "Action", "Status", "Error"}, rows, nil))
	}
	if report.ReviewAlbum != nil {
		fmt.Fprintf(w, "Review album: %s\n", report.ReviewAlbum.Name)
	}
	fmt.Fprintf(w, "Moved %d, deleted %d, unverified %d, failed %d, skipped %d group(s)\n",
		report.Moved, report.Deleted, report.Unverified, report.Failed, report.Skipped)
	if report.Cancelled {
		fmt.Fprintln(w, "Cancelled; remaining groups were left untouched.")
	}
}

func renderRuns(runs []*dups.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := ""
		if r.FinishedAt.Valid {
			duration = r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
		}
		rows = append(rows, []string{
			"#" + strconv.FormatInt(r.ID, 10),
			r.Operation,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			humanize.Time(r.StartedAt),
			r.Status,
			duration,
		})
	}
	return renderTable([]string{"Run", "Operation", "Started", "", "Status", "Duration"}, rows, nil)
}
