package btree

import (
	"fmt"
	"io"
	"os"

	"selvi/disk"
)

// Print dumps the tree to standard output, one node per line, for debugging.
func (t *BTree) Print() {
	t.rootLatch.RLock()
	root := t.rootPageID
	t.rootLatch.RUnlock()

	if root == disk.InvalidPageID {
		fmt.Println("empty tree")
		return
	}
	t.printNode(os.Stdout, root)
}

func (t *BTree) printNode(w io.Writer, pageId disk.PageID) {
	page, h := t.fetchNode(pageId)
	if h.PageType == leafPageType {
		leaf := t.leafView(page)
		fmt.Fprintf(w, "leaf %v parent: %v next: %v keys: ", pageId, leaf.GetParent(), leaf.GetNextPageID())
		for i := 0; i < leaf.GetSize(); i++ {
			fmt.Fprintf(w, "%v,", leaf.KeyAt(i))
		}
		fmt.Fprintln(w)
		t.pool.UnpinPage(pageId, false)
		return
	}

	internal := t.internalView(page)
	fmt.Fprintf(w, "internal %v parent: %v entries: ", pageId, internal.GetParent())
	for i := 0; i < internal.GetSize(); i++ {
		if i == 0 {
			fmt.Fprintf(w, "[_ %v],", internal.ChildAt(i))
		} else {
			fmt.Fprintf(w, "[%v %v],", internal.KeyAt(i), internal.ChildAt(i))
		}
	}
	fmt.Fprintln(w)

	size := internal.GetSize()
	children := make([]disk.PageID, 0, size)
	for i := 0; i < size; i++ {
		children = append(children, internal.ChildAt(i))
	}
	t.pool.UnpinPage(pageId, false)

	for _, child := range children {
		t.printNode(w, child)
	}
}

// Draw emits a Graphviz rendering of the tree.
func (t *BTree) Draw(w io.Writer) {
	t.rootLatch.RLock()
	root := t.rootPageID
	t.rootLatch.RUnlock()

	fmt.Fprintln(w, "digraph G {")
	if root != disk.InvalidPageID {
		t.drawNode(w, root)
	}
	fmt.Fprintln(w, "}")
}

func (t *BTree) drawNode(w io.Writer, pageId disk.PageID) {
	page, h := t.fetchNode(pageId)

	if h.PageType == leafPageType {
		leaf := t.leafView(page)
		fmt.Fprintf(w, "  leaf_%v [shape=record label=\"", pageId)
		for i := 0; i < leaf.GetSize(); i++ {
			if i > 0 {
				fmt.Fprint(w, "|")
			}
			fmt.Fprintf(w, "%v", leaf.KeyAt(i))
		}
		fmt.Fprintln(w, "\"];")
		if next := leaf.GetNextPageID(); next != disk.InvalidPageID {
			fmt.Fprintf(w, "  leaf_%v -> leaf_%v;\n", pageId, next)
			fmt.Fprintf(w, "  {rank=same leaf_%v leaf_%v};\n", pageId, next)
		}
		t.pool.UnpinPage(pageId, false)
		return
	}

	internal := t.internalView(page)
	size := internal.GetSize()
	children := make([]disk.PageID, 0, size)
	fmt.Fprintf(w, "  int_%v [shape=record label=\"", pageId)
	for i := 0; i < size; i++ {
		if i > 0 {
			fmt.Fprintf(w, "|%v", internal.KeyAt(i))
		} else {
			fmt.Fprint(w, "_")
		}
		children = append(children, internal.ChildAt(i))
	}
	fmt.Fprintln(w, "\"];")
	t.pool.UnpinPage(pageId, false)

	for _, child := range children {
		_, ch := t.fetchNode(child)
		t.pool.UnpinPage(child, false)
		if ch.PageType == leafPageType {
			fmt.Fprintf(w, "  int_%v -> leaf_%v;\n", pageId, child)
		} else {
			fmt.Fprintf(w, "  int_%v -> int_%v;\n", pageId, child)
		}
		t.drawNode(w, child)
	}
}
