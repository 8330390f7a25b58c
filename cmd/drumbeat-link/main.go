// Command drumbeat-link commits a file of object links to a DRUMBEAT link
// set.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/drumbeat/internal/links"
	"github.com/systemshift/drumbeat/internal/server/logging"
)

const defaultPredicate = "http://www.w3.org/2002/07/owl#sameAs"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type commitOptions struct {
	linkSet      string
	from         string
	to           string
	predicate    string
	clearBefore  bool
	notifyRemote bool
	timeout      time.Duration
	logLevel     string
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "drumbeat-link",
		Short:         "Link objects across DRUMBEAT data sources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var opts commitOptions
	commit := &cobra.Command{
		Use:   "commit FILE",
		Short: "Commit the links listed in FILE (or - for stdin)",
		Long: `Each non-empty line of FILE is "fromId toId [predicate]".
Lines starting with # are ignored. The predicate defaults to --predicate.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return runCommit(cmd.Context(), opts, in, cmd.OutOrStdout())
		},
	}
	f := commit.Flags()
	f.StringVar(&opts.linkSet, "linkset", "", "Link set data set URI")
	f.StringVar(&opts.from, "from", "", "Data source URI of the link subjects")
	f.StringVar(&opts.to, "to", "", "Data source URI of the link objects")
	f.StringVar(&opts.predicate, "predicate", defaultPredicate, "Default link predicate")
	f.BoolVar(&opts.clearBefore, "clear-before", true, "Replace the link set instead of merging")
	f.BoolVar(&opts.notifyRemote, "notify-remote", true, "Ask the server to notify subscribers")
	f.DurationVar(&opts.timeout, "timeout", 60*time.Second, "Commit request timeout")
	f.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	for _, name := range []string{"linkset", "from", "to"} {
		_ = commit.MarkFlagRequired(name)
	}
	cmd.AddCommand(commit)

	return cmd
}

func runCommit(ctx context.Context, opts commitOptions, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := logging.New(opts.logLevel, false)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	batches, err := readPairs(in, opts.predicate)
	if err != nil {
		return err
	}

	m := links.New(opts.linkSet, opts.from, opts.to,
		links.WithClearBefore(opts.clearBefore),
		links.WithNotifyRemote(opts.notifyRemote),
		links.WithLogger(logger))

	predicates := make([]string, 0, len(batches))
	for p := range batches {
		predicates = append(predicates, p)
	}
	sort.Strings(predicates)
	for _, p := range predicates {
		if err := m.AddLinks(p, batches[p]); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	if err := m.Commit(ctx); err != nil {
		return err
	}
	logger.Info("committed link set", zap.String("linkSet", opts.linkSet), zap.Int("links", m.Pending().Len()))
	fmt.Fprintf(out, "committed %d links to %s\n", m.Pending().Len(), opts.linkSet)
	m.Rollback()
	return nil
}

// readPairs groups the lines of r by predicate.
func readPairs(r io.Reader, predicate string) (map[string][]links.Pair, error) {
	out := map[string][]links.Pair{}
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		p := predicate
		switch len(fields) {
		case 2:
		case 3:
			p = fields[2]
		default:
			return nil, fmt.Errorf("line %d: want \"fromId toId [predicate]\", got %q", line, text)
		}
		out[p] = append(out[p], links.Pair{From: fields[0], To: fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
