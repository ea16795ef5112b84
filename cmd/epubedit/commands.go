package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/yuanying/epubedit/internal/book"
	"github.com/yuanying/epubedit/internal/config"
	"github.com/yuanying/epubedit/internal/css"
	"github.com/yuanying/epubedit/internal/epub"
	"github.com/yuanying/epubedit/internal/importer"
	"github.com/yuanying/epubedit/internal/markup"
)

var (
	errMalformed   = errors.New("book has documents that are not well-formed")
	errNotChanged  = errors.New("operation refused")
	errWrongKind   = errors.New("file has the wrong kind")
	errNoSelection = errors.New("no matching rule")
	errMissing     = errors.New("stylesheets reference files that are not in the book")
)

func newNewCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "new TITLE",
		Short: "Create an empty book with one chapter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := book.New(opts.Workdir, args[0], opts.bookOptions())
			if err != nil {
				return err
			}
			if _, err := b.CreateEmptyHTMLFile(nil); err != nil {
				return err
			}
			opts.Logger.Info("Created book", zap.String("title", args[0]), zap.String("dir", opts.Workdir))
			return opts.save(b)
		},
	}
}

func newImportCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import SOURCE",
		Short: "Lay out an EPUB file or an unpacked EPUB directory in the working directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			im := importer.New(importer.Options{Workers: opts.Config.Book.Workers, Log: opts.Logger})
			info, err := os.Stat(args[0])
			if err != nil {
				return fmt.Errorf("%w: %s", epub.ErrCannotOpenFile, args[0])
			}
			if info.IsDir() {
				_, err = im.Import(cmd.Context(), args[0], opts.Workdir)
			} else {
				_, err = im.ImportEPUB(cmd.Context(), args[0], opts.Workdir)
			}
			return err
		},
	}
}

func newSpineCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "spine",
		Short: "List the chapters in reading order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i, r := range b.SpineResources() {
				fmt.Fprintf(out, "%3d %s\n", i+1, r.Filename())
			}
			return nil
		},
	}
}

func newTOCCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toc",
		Short: "Print the table of contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			toc, err := b.TOC()
			if err != nil {
				return err
			}
			printNavPoints(cmd.OutOrStdout(), toc.NavPoints, 0)
			return nil
		},
	}
}

func printNavPoints(w io.Writer, points []epub.NavPoint, depth int) {
	for _, p := range points {
		target := p.ContentPath
		if p.Fragment != "" {
			target += "#" + p.Fragment
		}
		fmt.Fprintf(w, "%s%s -> %s\n", strings.Repeat("  ", depth), p.Label, target)
		printNavPoints(w, p.Children, depth+1)
	}
}

func newCheckCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report malformed documents and missing stylesheet targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var errs error
			bad := 0
			for _, r := range b.HTMLResources() {
				if !b.IsWellFormed(r) {
					fmt.Fprintf(out, "%s: not well-formed\n", r.Filename())
					bad++
				}
			}
			if bad > 0 {
				errs = multierr.Append(errs, fmt.Errorf("%w: %d", errMalformed, bad))
			}

			missing := b.MissingStylesheetTargets()
			count := 0
			for _, file := range book.SortedKeys(missing) {
				for _, target := range missing[file] {
					fmt.Fprintf(out, "%s: missing %s\n", file, target)
					count++
				}
			}
			if count > 0 {
				errs = multierr.Append(errs, fmt.Errorf("%w: %d", errMissing, count))
			}
			return errs
		},
	}
}

func newQueryCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "query ids|classes|images|stylesheets|words",
		Short:     "List what the chapters of the book use",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"ids", "classes", "images", "stylesheets", "words"},
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch args[0] {
			case "ids":
				printIndex(out, b.IDsByFile(), nil)
			case "classes":
				printIndex(out, b.FilesByClass(), nil)
			case "images":
				printIndex(out, b.FilesByImage(), func(name string) string {
					r, ok := b.Resource(name)
					if !ok {
						return name
					}
					w, h, err := b.ImageDimensions(r)
					if err != nil {
						return name
					}
					return fmt.Sprintf("%s (%dx%d)", name, w, h)
				})
			case "stylesheets":
				printIndex(out, b.StylesheetsByFile(), nil)
			case "words":
				for _, w := range b.Words() {
					fmt.Fprintln(out, w)
				}
			}
			return nil
		},
	}
}

func printIndex(w io.Writer, index map[string][]string, label func(string) string) {
	for _, key := range book.SortedKeys(index) {
		name := key
		if label != nil {
			name = label(key)
		}
		fmt.Fprintf(w, "%s: %s\n", name, strings.Join(index[key], ", "))
	}
}

func newReformatCSSCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reformat-css FILE...",
		Short: "Rewrite the rules of stylesheets and of style blocks in a uniform layout",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			singleLine, _ := cmd.Flags().GetBool("single-line")
			multiLine := opts.Config.CSS.MultiLine && !singleLine

			b, err := opts.openBook()
			if err != nil {
				return err
			}
			for _, name := range args {
				r, err := resource(b, name)
				if err != nil {
					return err
				}
				if r.Kind() != book.KindCSS && r.Kind() != book.KindHTML {
					return fmt.Errorf("%w: %s is %s", errWrongKind, name, r.Kind())
				}
				isStylesheet := r.Kind() == book.KindCSS
				r.Rewrite(func(text string) (string, bool) {
					formatted := css.New(text, isStylesheet, opts.Logger).Reformat(multiLine)
					if formatted == text {
						return text, false
					}
					b.SetModified(true)
					return formatted, true
				})
			}
			return opts.save(b)
		},
	}
	cmd.Flags().Bool("single-line", false, "Keep each rule on a single line")
	return cmd
}

// parseSelector splits "p.note" into its element and class names.
func parseSelector(s string) (element, class string) {
	element, class, _ = strings.Cut(s, ".")
	return element, class
}

// styleArgs checks the argument count of a style command. ELEMENT[.CLASS]
// follows FILE unless --at is given; trailing arguments come last.
func styleArgs(cmd *cobra.Command, args []string, trailing int) (selector string, rest []string, err error) {
	at, _ := cmd.Flags().GetInt("at")
	want := 2 + trailing
	if at >= 0 {
		want--
	}
	if len(args) != want {
		return "", nil, fmt.Errorf("accepts %d arg(s), received %d", want, len(args))
	}
	if at < 0 {
		selector = args[1]
	}
	return selector, args[len(args)-trailing:], nil
}

// styleTarget returns the element and class to look a rule up for: the
// selector argument, or the element around --at in the --doc chapter.
func styleTarget(cmd *cobra.Command, b *book.Book, file, selector string) (element, class string, err error) {
	at, _ := cmd.Flags().GetInt("at")
	if at < 0 {
		element, class = parseSelector(selector)
		return element, class, nil
	}
	docName, _ := cmd.Flags().GetString("doc")
	if docName == "" {
		docName = file
	}
	doc, err := resource(b, docName)
	if err != nil {
		return "", "", err
	}
	text := doc.Text()
	if !markup.InBody(text, at) || markup.InClosingTag(text, at) {
		return "", "", fmt.Errorf("%w: offset %d of %s is not inside an element", errNoSelection, at, docName)
	}
	el := markup.StyleElementAt(text, at)
	if el.Name == "" {
		return "", "", fmt.Errorf("%w: no element at offset %d of %s", errNoSelection, at, docName)
	}
	return el.Name, el.Class, nil
}

func addStyleTargetFlags(cmd *cobra.Command) {
	cmd.Flags().Int("at", -1, "Use the element around this byte offset of the --doc chapter")
	cmd.Flags().String("doc", "", "Chapter the --at offset refers to (default: FILE)")
}

func describe(element, class string) string {
	if class == "" {
		return element
	}
	return element + "." + class
}

func newFindStyleCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "find-style FILE [ELEMENT[.CLASS]]",
		Short: "Print the rule of a stylesheet that best matches an element",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, _, err := styleArgs(cmd, args, 0)
			if err != nil {
				return err
			}
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			r, err := resource(b, args[0])
			if err != nil {
				return err
			}
			element, class, err := styleTarget(cmd, b, args[0], selector)
			if err != nil {
				return err
			}
			info := css.New(r.Text(), r.Kind() == book.KindCSS, opts.Logger)
			sel := info.FindSelectorFor(element, class)
			if sel == nil {
				return fmt.Errorf("%w: %s in %s", errNoSelection, describe(element, class), args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (line %d)\n", sel.OriginalText, sel.Line)
			for _, p := range info.Properties(sel) {
				if !p.HasValue {
					fmt.Fprintf(out, "  %s\n", p.Name)
					continue
				}
				fmt.Fprintf(out, "  %s: %s\n", p.Name, p.Value)
			}
			return nil
		},
	}
	addStyleTargetFlags(cmd)
	return cmd
}

func newSetStyleCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-style FILE [ELEMENT[.CLASS]] PROPERTY VALUE",
		Short: "Toggle a property on the rule of a stylesheet that best matches an element",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, rest, err := styleArgs(cmd, args, 2)
			if err != nil {
				return err
			}
			name, value := rest[0], rest[1]
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			r, err := resource(b, args[0])
			if err != nil {
				return err
			}
			if r.Kind() != book.KindCSS {
				return fmt.Errorf("%w: %s is %s", errWrongKind, args[0], r.Kind())
			}
			element, class, err := styleTarget(cmd, b, args[0], selector)
			if err != nil {
				return err
			}
			sel := css.New(r.Text(), true, opts.Logger).FindSelectorFor(element, class)
			if sel == nil {
				return fmt.Errorf("%w: %s in %s", errNoSelection, describe(element, class), args[0])
			}
			text, ok := css.FormatStyleAt(r.Text(), sel.OpenBrace, name, value)
			if !ok {
				return fmt.Errorf("%w: cannot change %s of %s", errNotChanged, name, describe(element, class))
			}
			r.SetText(text)
			b.SetModified(true)
			return opts.save(b)
		},
	}
	addStyleTargetFlags(cmd)
	return cmd
}

func newSplitCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split FILE",
		Short: "Split a chapter at an offset or at its split markers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, _ := cmd.Flags().GetInt("at")
			markers, _ := cmd.Flags().GetBool("markers")
			if (at >= 0) == markers {
				return fmt.Errorf("exactly one of --at or --markers is required")
			}

			b, err := opts.openBook()
			if err != nil {
				return err
			}
			r, err := resource(b, args[0])
			if err != nil {
				return err
			}
			if r.Kind() != book.KindHTML {
				return fmt.Errorf("%w: %s is %s", errWrongKind, args[0], r.Kind())
			}

			out := cmd.OutOrStdout()
			if markers {
				created, err := b.SplitOnMarkers(r)
				if err != nil {
					return err
				}
				for _, c := range created {
					fmt.Fprintln(out, c.Filename())
				}
			} else {
				created, ok, err := b.SplitAt(r, at)
				if err != nil {
					return err
				}
				if !ok {
					reason := "outside the body"
					if markup.InTag(r.Text(), at) {
						reason = "inside a tag"
					}
					return fmt.Errorf("%w: offset %d of %s is %s", errNotChanged, at, args[0], reason)
				}
				fmt.Fprintln(out, created.Filename())
			}
			return opts.save(b)
		},
	}
	cmd.Flags().Int("at", -1, "Byte offset of the split point in the chapter text")
	cmd.Flags().Bool("markers", false, "Split at every split marker")
	return cmd
}

func newMergeCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merge PRIMARY SECONDARY",
		Short: "Append the body of SECONDARY to PRIMARY and delete SECONDARY",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			primary, err := resource(b, args[0])
			if err != nil {
				return err
			}
			secondary, err := resource(b, args[1])
			if err != nil {
				return err
			}
			if !b.Merge(primary, secondary) {
				return fmt.Errorf("%w: cannot merge %s into %s", errNotChanged, args[1], args[0])
			}
			return opts.save(b)
		},
	}
}

func newDeleteCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete FILE",
		Short: "Delete a file and print the chapter to continue editing at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			r, err := resource(b, args[0])
			if err != nil {
				return err
			}
			if r == b.NCX() || r == b.OPF().Resource {
				return fmt.Errorf("%w: %s describes the book", errNotChanged, args[0])
			}
			if spine := b.SpineResources(); len(spine) == 1 && spine[0] == r {
				return fmt.Errorf("%w: %s is the only chapter", errNotChanged, args[0])
			}

			next := b.PreviousResource(r)
			if err := b.DeleteResource(r); err != nil {
				return err
			}
			if next == r {
				next = b.PreviousResource(nil)
			}
			if next != nil {
				fmt.Fprintln(cmd.OutOrStdout(), next.Filename())
			}
			return opts.save(b)
		},
	}
}

func newMoveCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "move FILE AFTER",
		Short: "Move a chapter right after another in reading order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			from, err := resource(b, args[0])
			if err != nil {
				return err
			}
			to, err := resource(b, args[1])
			if err != nil {
				return err
			}
			if err := b.MoveAfter(from, to); err != nil {
				return err
			}
			return opts.save(b)
		},
	}
}

func newRenameCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename FILE NEWNAME",
		Short: "Rename a file and every reference to it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := opts.openBook()
			if err != nil {
				return err
			}
			r, err := resource(b, args[0])
			if err != nil {
				return err
			}
			name := book.SanitizeFilename(args[1])
			ok, err := b.RenameResource(r, name)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: cannot rename %s to %s", errNotChanged, args[0], strconv.Quote(name))
			}
			fmt.Fprintln(cmd.OutOrStdout(), name)
			return opts.save(b)
		},
	}
}

func newConfigCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.Dump(opts.Config)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	})
	return cmd
}
