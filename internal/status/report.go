// Package status reports where the artifacts of the processed visits are:
// in the BIDS tree, in the working folder, in the verified store and in the
// remote mirror, together with the last recorded resolution.
package status

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/ledger"
)

// Lister lists remote names below a prefix, implemented by the S3 mirror.
type Lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

// History returns the last event per "contrast/kind", implemented by the
// ledger.
type History interface {
	Latest(ctx context.Context, participant, session string) (map[string]ledger.Event, error)
}

// Entry is the state of one artifact.
type Entry struct {
	Key      bids.Key
	Raw      bool
	Working  bool
	Verified bool
	Mirrored bool
	// Last is the most recent ledger event, zero if none.
	Last ledger.Event
}

// Visit groups the entries of one subject and session.
type Visit struct {
	Subject bids.Subject
	Entries []Entry
}

// Report is the state of all visits found.
type Report struct {
	Visits []Visit
}

// Collector gathers a Report from the folders of a layout.
type Collector struct {
	Layout  bids.Layout
	Mirror  Lister
	History History
}

// Subjects finds the visits in the BIDS tree, the working folder and the
// verified store. An empty participant selects all of them.
func (c *Collector) Subjects(participant string) ([]bids.Subject, error) {
	pattern := participant
	if pattern == "" {
		pattern = "sub-*"
	}
	roots := []string{c.Layout.BIDS, c.Layout.VerifiedRoot()}
	if c.Layout.Results != "" {
		roots = append(roots, filepath.Join(c.Layout.Results, "data_processed"))
	}
	seen := map[bids.Subject]bool{}
	for _, root := range roots {
		matches, err := filepath.Glob(filepath.Join(root, pattern, "ses-*"))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if st, err := os.Stat(m); err != nil || !st.IsDir() {
				continue
			}
			s := bids.Subject{Participant: filepath.Base(filepath.Dir(m)), Session: filepath.Base(m)}
			if s.Validate() == nil {
				seen[s] = true
			}
		}
	}
	subjects := make([]bids.Subject, 0, len(seen))
	for s := range seen {
		subjects = append(subjects, s)
	}
	sort.Slice(subjects, func(i, j int) bool {
		return subjects[i].String() < subjects[j].String()
	})
	return subjects, nil
}

func scanDir(dir string, s bids.Subject, found map[bids.Key]bool) {
	for _, datatype := range []string{"anat", "dwi"} {
		entries, err := os.ReadDir(filepath.Join(dir, datatype))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if k, ok := bids.ParseFileName(s, e.Name()); ok {
				found[k] = true
			}
		}
	}
}

// Visit collects the entries of one subject and session.
func (c *Collector) Visit(ctx context.Context, s bids.Subject) (Visit, error) {
	raw, working, verified, mirrored := map[bids.Key]bool{}, map[bids.Key]bool{}, map[bids.Key]bool{}, map[bids.Key]bool{}
	scanDir(c.Layout.SessionDir(s), s, raw)
	scanDir(filepath.Join(c.Layout.VerifiedRoot(), s.Participant, s.Session), s, verified)
	if c.Layout.Results != "" {
		scanDir(filepath.Join(c.Layout.Results, "data_processed", s.Participant, s.Session), s, working)
	}
	if c.Mirror != nil {
		names, err := c.Mirror.List(ctx, s.Participant+"/"+s.Session+"/")
		if err != nil {
			return Visit{}, fmt.Errorf("list mirror: %w", err)
		}
		for _, n := range names {
			if k, ok := bids.ParseFileName(s, n[strings.LastIndex(n, "/")+1:]); ok {
				mirrored[k] = true
			}
		}
	}
	var last map[string]ledger.Event
	if c.History != nil {
		var err error
		if last, err = c.History.Latest(ctx, s.Participant, s.Session); err != nil {
			return Visit{}, fmt.Errorf("read ledger: %w", err)
		}
	}

	contrasts := map[bids.Contrast]bool{}
	for _, m := range []map[bids.Key]bool{raw, working, verified, mirrored} {
		for k := range m {
			contrasts[k.Contrast] = true
		}
	}
	sorted := make([]bids.Contrast, 0, len(contrasts))
	for ct := range contrasts {
		sorted = append(sorted, ct)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	v := Visit{Subject: s}
	for _, ct := range sorted {
		for _, kind := range bids.Kinds {
			k := bids.NewKey(s, ct, kind)
			v.Entries = append(v.Entries, Entry{
				Key:      k,
				Raw:      kind == bids.RawImage && raw[k],
				Working:  working[k],
				Verified: verified[k],
				Mirrored: mirrored[k],
				Last:     last[ct.String()+"/"+kind.String()],
			})
		}
	}
	return v, nil
}

// Collect builds the report of all visits of participant, or of every
// participant when it is empty.
func (c *Collector) Collect(ctx context.Context, participant string) (*Report, error) {
	subjects, err := c.Subjects(participant)
	if err != nil {
		return nil, err
	}
	r := &Report{}
	for _, s := range subjects {
		v, err := c.Visit(ctx, s)
		if err != nil {
			return nil, err
		}
		r.Visits = append(r.Visits, v)
	}
	return r, nil
}

func mark(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}

// Outcome describes the last ledger event of an entry.
func (e Entry) Outcome() string {
	if e.Last.Outcome == "" {
		return ""
	}
	return e.Last.Outcome + " " + e.Last.RecordedAt.Local().Format(time.DateTime)
}

// Summary counts visits and verified artifacts.
func (r *Report) Summary() string {
	verified, total := 0, 0
	for _, v := range r.Visits {
		for _, e := range v.Entries {
			if e.Key.Kind == bids.RawImage {
				continue
			}
			total++
			if e.Verified {
				verified++
			}
		}
	}
	p := message.NewPrinter(language.English)
	return p.Sprintf("%d visits, %d of %d derived artifacts verified", len(r.Visits), verified, total)
}

// WriteTable prints one row per artifact.
func (r *Report) WriteTable(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Participant", "Session", "Contrast", "Artifact", "BIDS", "Working", "Verified", "Mirror", "Last"})
	table.SetAutoFormatHeaders(false)
	for _, v := range r.Visits {
		for _, e := range v.Entries {
			rawCell := mark(e.Raw)
			if e.Key.Kind != bids.RawImage {
				rawCell = ""
			}
			table.Append([]string{
				v.Subject.Participant,
				v.Subject.Session,
				e.Key.Contrast.String(),
				e.Key.Kind.String(),
				rawCell,
				mark(e.Working),
				mark(e.Verified),
				mark(e.Mirrored),
				e.Outcome(),
			})
		}
	}
	table.Render()
	fmt.Fprintln(w, r.Summary())
}
