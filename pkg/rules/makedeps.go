package rules

import (
	"fmt"
	"io"
	"strings"
)

// Makedeps writes a Make dependency rule naming every file merged into
// doc as a prerequisite of target.
func Makedeps(w io.Writer, doc *Document, target string) error {
	deps := doc.Includes()
	_, err := fmt.Fprintf(w, "%s: %s\n", escapeMake(target), escapeList(deps))
	return err
}

func escapeList(paths []string) string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = escapeMake(p)
	}
	return strings.Join(out, " ")
}

func escapeMake(p string) string {
	return strings.ReplaceAll(p, " ", `\ `)
}
