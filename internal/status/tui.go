package status

import (
	"fmt"
	"os"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/nifti"
)

// TUI browses a report as a tree of participant, session, contrast and
// artifact.
type TUI struct {
	report  *Report
	layout  bids.Layout
	tree    *tview.TreeView
	details *tview.TextView
	flex    *tview.Flex
	app     *tview.Application
}

// NewTUI builds the views of a report. TextColor is a tcell color name,
// empty keeps the default.
func NewTUI(r *Report, layout bids.Layout, textColor string) *TUI {
	t := &TUI{report: r, layout: layout}
	t.details = tview.NewTextView().SetTextAlign(tview.AlignLeft).SetDynamicColors(true)
	t.details.SetBorder(true).SetTitle("Artifact")
	if textColor != "" {
		t.details.SetTextColor(tcell.GetColor(textColor))
	}
	t.tree = tview.NewTreeView()
	t.tree.SetBorder(true).SetTitle(r.Summary())

	root := tview.NewTreeNode("Visits").SetSelectable(false)
	t.tree.SetRoot(root).SetCurrentNode(root)
	participants := map[string]*tview.TreeNode{}
	for _, v := range r.Visits {
		pnode, ok := participants[v.Subject.Participant]
		if !ok {
			pnode = tview.NewTreeNode(v.Subject.Participant).SetSelectable(true)
			participants[v.Subject.Participant] = pnode
			root.AddChild(pnode)
		}
		snode := tview.NewTreeNode(v.Subject.Session).SetSelectable(true)
		pnode.AddChild(snode)
		var cnode *tview.TreeNode
		for _, e := range v.Entries {
			if cnode == nil || cnode.GetReference() != e.Key.Contrast {
				cnode = tview.NewTreeNode(e.Key.Contrast.String()).SetReference(e.Key.Contrast).SetSelectable(true)
				snode.AddChild(cnode)
			}
			cnode.AddChild(tview.NewTreeNode(label(e)).SetReference(e).SetColor(color(e)).SetSelectable(true))
		}
	}

	t.tree.SetChangedFunc(func(node *tview.TreeNode) {
		if e, ok := node.GetReference().(Entry); ok {
			t.details.Clear()
			fmt.Fprint(t.details, t.describe(e))
		}
	})
	t.tree.SetSelectedFunc(func(node *tview.TreeNode) {
		if len(node.GetChildren()) > 0 {
			node.SetExpanded(!node.IsExpanded())
		}
	})

	t.flex = tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(t.tree, 0, 1, true).
		AddItem(t.details, 0, 1, false)
	return t
}

func label(e Entry) string {
	s := e.Key.Kind.String()
	if o := e.Outcome(); o != "" {
		s += " [gray](" + o + ")[-]"
	}
	return s
}

func color(e Entry) tcell.Color {
	switch {
	case e.Verified || (e.Key.Kind == bids.RawImage && e.Raw):
		return tcell.ColorGreen
	case e.Working:
		return tcell.ColorYellow
	}
	return tcell.ColorRed
}

func yesNo(b bool) string {
	if b {
		return "[green]yes[-]"
	}
	return "[red]no[-]"
}

// describe lists the locations of an artifact and the header of the first
// readable copy.
func (t *TUI) describe(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", e.Key.FileName())
	var paths []string
	if e.Key.Kind == bids.RawImage {
		fmt.Fprintf(&b, "BIDS:     %s %s\n", yesNo(e.Raw), t.layout.Raw(e.Key))
		paths = append(paths, t.layout.Raw(e.Key))
	}
	fmt.Fprintf(&b, "Working:  %s %s\n", yesNo(e.Working), t.layout.Working(e.Key))
	fmt.Fprintf(&b, "Verified: %s %s\n", yesNo(e.Verified), t.layout.Verified(e.Key))
	fmt.Fprintf(&b, "Mirror:   %s\n", yesNo(e.Mirrored))
	paths = append(paths, t.layout.Working(e.Key), t.layout.Verified(e.Key))
	if e.Last.Outcome != "" {
		fmt.Fprintf(&b, "\nLast run %s: %s at %s\n", e.Last.RunID, e.Last.Outcome, e.Last.RecordedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(&b, "sha256 %s\n", e.Last.SHA256)
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if h, err := nifti.ReadHeader(p); err == nil {
			fmt.Fprintf(&b, "\nDimensions: %s\nPixel size [mm]: %s\n", h.Dimensions(), h.PixelSize())
		}
		break
	}
	return b.String()
}

// Run shows the tree until q or Ctrl-C is pressed.
func (t *TUI) Run() error {
	t.app = tview.NewApplication()
	t.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyRune && event.Rune() == 'q' {
			t.app.Stop()
			return nil
		}
		return event
	})
	if err := t.app.SetRoot(t.flex, true).SetFocus(t.tree).EnableMouse(true).Run(); err != nil {
		return fmt.Errorf("the -tui mode is only available in a proper terminal: %w", err)
	}
	return nil
}
