package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yuanying/epubedit/internal/book"
	"github.com/yuanying/epubedit/internal/config"
)

var errUnknownFile = errors.New("no such file in book")

type cliOptions struct {
	Config  *config.Config
	Logger  *zap.Logger
	Workdir string
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}
	cmd := &cobra.Command{
		Use:   "epubedit",
		Short: "Edit unpacked EPUB books",
		Long: `epubedit keeps an EPUB book unpacked in a working directory and
edits it: chapters can be split, merged, moved and renamed while every
link, stylesheet reference and table of contents entry that points at
them is kept valid.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			o, err := readCLIOptions(cmd)
			if err != nil {
				return err
			}
			*opts = *o
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.Logger != nil {
				_ = opts.Logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Configuration file (default: built-in configuration)")
	cmd.PersistentFlags().StringP("workdir", "w", ".", "Directory holding the unpacked book")

	cmd.AddCommand(
		newNewCmd(opts),
		newImportCmd(opts),
		newSpineCmd(opts),
		newTOCCmd(opts),
		newCheckCmd(opts),
		newQueryCmd(opts),
		newReformatCSSCmd(opts),
		newFindStyleCmd(opts),
		newSetStyleCmd(opts),
		newSplitCmd(opts),
		newMergeCmd(opts),
		newDeleteCmd(opts),
		newMoveCmd(opts),
		newRenameCmd(opts),
		newConfigCmd(opts),
	)
	return cmd
}

func readCLIOptions(cmd *cobra.Command) (*cliOptions, error) {
	path, _ := cmd.Flags().GetString("config")
	workdir, _ := cmd.Flags().GetString("workdir")
	if workdir == "" {
		return nil, fmt.Errorf("--workdir must not be empty")
	}

	cfg, err := config.LoadConfiguration(path)
	if err != nil {
		return nil, err
	}
	log, err := cfg.Logging.Prepare()
	if err != nil {
		return nil, err
	}
	return &cliOptions{Config: cfg, Logger: log, Workdir: workdir}, nil
}

func (o *cliOptions) bookOptions() book.Options {
	return book.Options{Workers: o.Config.Book.Workers, Log: o.Logger}
}

func (o *cliOptions) openBook() (*book.Book, error) {
	return book.Open(o.Workdir, o.bookOptions())
}

// resource looks a file of b up by name.
func resource(b *book.Book, filename string) (*book.Resource, error) {
	r, ok := b.Resource(filename)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownFile, filename)
	}
	return r, nil
}

// save writes b back to the working directory if anything changed.
func (o *cliOptions) save(b *book.Book) error {
	if !b.IsModified() {
		o.Logger.Debug("Book unchanged, nothing to save")
		return nil
	}
	if err := b.SaveAll(); err != nil {
		return fmt.Errorf("failed to save book: %w", err)
	}
	b.SetModified(false)
	o.Logger.Debug("Book saved", zap.String("dir", o.Workdir))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
