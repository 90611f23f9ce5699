package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tuannm99/novagather/internal"
	"github.com/tuannm99/novagather/internal/cluster"
	"github.com/tuannm99/novagather/internal/gather"
	"github.com/tuannm99/novagather/internal/logging"
	"github.com/tuannm99/novagather/internal/metrics"
	"github.com/tuannm99/novagather/internal/reduce"
	"github.com/tuannm99/novagather/internal/sample"
	"github.com/tuannm99/novagather/server/gatherwire"
)

const prompt = "novagather> "

// session holds the REPL's per-query settings.
type session struct {
	coord    *gather.Coordinator
	routing  *cluster.RoutingTable
	orderCol int
	desc     bool
	limit    int
	showMeta bool
}

func (s *session) run(ctx context.Context, query string) error {
	var opts []reduce.Option
	if s.orderCol >= 0 {
		opts = append(opts, reduce.WithComparator(reduce.ByColumn(s.orderCol, s.desc)))
	}
	opts = append(opts, reduce.WithSchema(sample.Schema))

	out, err := s.coord.Gather(ctx, gather.Request{Query: query, Limit: s.limit}, opts...)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, out, s.showMeta)
}

// meta handles a backslash command. It reports false on quit.
func (s *session) meta(line string, h *History) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "\\q", "quit", "exit":
		return false
	case "\\help":
		fmt.Println(`meta commands:
  \q | quit | exit       quit
  \history               print history
  \nodes                 list routable nodes
  \refresh               reload cluster state
  \order <col> [desc]    k-way merge sorted node results by column
  \order off             keep arrival order
  \limit <n>             keep at most n rows (0 = all)
  \meta                  toggle metadata output
  \help                  show help

queries (sample executor):
  scan | fail <message> | sleep <duration>`)
	case "\\history":
		h.Print(os.Stdout, 50)
	case "\\nodes":
		for _, n := range s.routing.Nodes() {
			fmt.Printf("%s\t%s\n", n.ID, n.Addr)
		}
	case "\\refresh":
		if err := s.routing.Refresh(); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	case "\\order":
		s.setOrder(fields[1:])
	case "\\limit":
		if len(fields) != 2 {
			fmt.Println("usage: \\limit <n>")
			break
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil || n < 0 {
			fmt.Printf("bad limit %q\n", fields[1])
			break
		}
		s.limit = n
	case "\\meta":
		s.showMeta = !s.showMeta
		fmt.Printf("metadata output: %v\n", s.showMeta)
	default:
		fmt.Printf("unknown command: %s\n", line)
	}
	return true
}

func (s *session) setOrder(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: \\order <col> [desc] | \\order off")
		return
	}
	if args[0] == "off" {
		s.orderCol = -1
		return
	}
	col := sample.Schema.ColumnIndex(args[0])
	if col < 0 {
		fmt.Printf("unknown column %q\n", args[0])
		return
	}
	s.orderCol = col
	s.desc = len(args) > 1 && strings.EqualFold(args[1], "desc")
}

func isMetaCommand(line string) bool {
	return strings.HasPrefix(line, "\\") || line == "quit" || line == "exit"
}

func main() {
	var (
		cfgPath  = flag.String("config", "", "YAML config file")
		histPath = flag.String("history", defaultHistoryPath(), "history file path")
		histMax  = flag.Int("history-max", 2000, "max history lines loaded into memory")
		oneShot  = flag.String("c", "", "run one query and exit")
	)
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log)

	insts := make(cluster.StaticSource, len(cfg.Broker.Nodes))
	for i, n := range cfg.Broker.Nodes {
		insts[i] = cluster.Instance{ID: n.ID, Addr: n.Addr, Enabled: true}
	}
	routing := cluster.NewRoutingTable(insts, nil)
	if err := routing.Refresh(); err != nil {
		fmt.Fprintf(os.Stderr, "routing: %v\n", err)
		os.Exit(1)
	}

	m := metrics.New(nil)
	if cfg.Broker.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", m.Handler())
			if err := http.ListenAndServe(cfg.Broker.MetricsAddr, mux); err != nil {
				slog.Error("client: metrics server", "err", err)
			}
		}()
	}

	pool := gatherwire.NewPool(cfg.Broker.DialTimeout, cfg.Broker.NodeTimeout, cfg.Node.MaxFrameSize)
	defer func() { _ = pool.Close() }()

	s := &session{
		coord: gather.New(pool, routing,
			gather.WithNodeTimeout(cfg.Broker.NodeTimeout),
			gather.WithMetrics(m),
		),
		routing:  routing,
		orderCol: -1,
	}
	ctx := context.Background()

	if q := strings.TrimSpace(*oneShot); q != "" {
		if err := s.run(ctx, q); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	h := NewHistory(*histPath)
	_ = h.Load(*histMax)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = rl.Close() }()

	for _, line := range h.lines {
		_ = rl.SaveHistory(line)
	}

	fmt.Printf("broker over %d nodes\n", len(routing.Nodes()))
	fmt.Println("type \\help for help")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			// EOF
			fmt.Println()
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isMetaCommand(line) {
			if !s.meta(line, h) {
				return
			}
			continue
		}

		_ = h.Append(line)
		_ = rl.SaveHistory(compactOneLine(line))

		if err := s.run(ctx, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}
