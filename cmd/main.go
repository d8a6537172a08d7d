package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/siemvaessen/zieook-sub000"
	"github.com/siemvaessen/zieook-sub000/config"
	"github.com/siemvaessen/zieook-sub000/model"
	"github.com/siemvaessen/zieook-sub000/sampler"
	"github.com/siemvaessen/zieook-sub000/tasks"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("tenant",
		readline.PcItem("create"),
		readline.PcItem("list"),
	),
	readline.PcItem("use"),
	readline.PcItem("rate"),
	readline.PcItem("rating"),
	readline.PcItem("ratings"),
	readline.PcItem("top",
		readline.PcItem("rated"),
		readline.PcItem("viewed"),
		readline.PcItem("sources"),
	),
	readline.PcItem("recommend"),
	readline.PcItem("tasks",
		readline.PcItem("collection"),
		readline.PcItem("recommender"),
		readline.PcItem("statistics"),
	),
	readline.PcItem("repair"),
	readline.PcItem("recount"),
	readline.PcItem("epoch"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const usage = `commands:
  tenant create <name> | tenant list
  use <tenant>
  rate <collection> <user> <item> <value> [ts]
  rating <collection> <user> <item>
  ratings <collection> <user> [size]
  top rated|viewed|sources <collection> [size]
  recommend <collection> <recommender> <subject> [size] [policy]
  tasks <type> [dimension]
  repair | recount <user> | epoch
  exit | quit`

type session struct {
	engine *zieook.Engine
	tenant string
}

func (s *session) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help":
		fmt.Println(usage)
	case "tenant":
		if len(args) == 2 && args[0] == "create" {
			return s.engine.CreateTenant(ctx, args[1])
		}
		infos, err := s.engine.Tenants(ctx)
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Printf("%s\t%s\n", info.Name, info.Created)
		}
	case "use":
		if len(args) != 1 {
			return fmt.Errorf("usage: use <tenant>")
		}
		s.tenant = args[0]
	case "rate":
		if len(args) < 4 {
			return fmt.Errorf("usage: rate <collection> <user> <item> <value> [ts]")
		}
		user, item, err := parseIDPair(args[1], args[2])
		if err != nil {
			return err
		}
		value, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return err
		}
		r := model.Rating{Collection: args[0], User: user, Item: item, Value: value}
		if len(args) > 4 {
			if r.Stamp, err = strconv.ParseUint(args[4], 10, 64); err != nil {
				return err
			}
		}
		return s.engine.PutRating(ctx, s.tenant, r)
	case "rating":
		if len(args) != 3 {
			return fmt.Errorf("usage: rating <collection> <user> <item>")
		}
		user, item, err := parseIDPair(args[1], args[2])
		if err != nil {
			return err
		}
		r, err := s.engine.GetRating(ctx, s.tenant, args[0], user, item)
		if err != nil {
			return err
		}
		fmt.Printf("user %d item %d value %g ts %d\n", r.User, r.Item, r.Value, r.Stamp)
	case "ratings":
		if len(args) < 2 {
			return fmt.Errorf("usage: ratings <collection> <user> [size]")
		}
		user, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return err
		}
		size := 20
		if len(args) > 2 {
			if size, err = strconv.Atoi(args[2]); err != nil {
				return err
			}
		}
		rs, err := s.engine.GetRatings(ctx, s.tenant, args[0], user, size)
		if err != nil {
			return err
		}
		for _, r := range rs {
			fmt.Printf("item %d value %g ts %d\n", r.Item, r.Value, r.Stamp)
		}
	case "top":
		if len(args) < 2 {
			return fmt.Errorf("usage: top rated|viewed|sources <collection> [size]")
		}
		size := 10
		if len(args) > 2 {
			var err error
			if size, err = strconv.Atoi(args[2]); err != nil {
				return err
			}
		}
		var rows []model.GroupedData
		var err error
		switch args[0] {
		case "rated":
			rows, err = s.engine.TopRated(ctx, s.tenant, args[1], size, 0)
		case "viewed":
			rows, err = s.engine.TopViewed(ctx, s.tenant, args[1], size, 0)
		case "sources":
			rows, err = s.engine.TopSources(ctx, s.tenant, args[1], size, 0)
		default:
			return fmt.Errorf("unknown dimension %s", args[0])
		}
		if err != nil {
			return err
		}
		for i, g := range rows {
			fmt.Printf("%d.\titem %d count %d ts %d\n", i+1, g.Item, g.Count, g.Stamp)
		}
	case "recommend":
		if len(args) < 3 {
			return fmt.Errorf("usage: recommend <collection> <recommender> <subject> [size] [policy]")
		}
		subject, err := strconv.ParseUint(args[2], 10, 64)
		if err != nil {
			return err
		}
		size := 10
		if len(args) > 3 {
			if size, err = strconv.Atoi(args[3]); err != nil {
				return err
			}
		}
		policy := sampler.Ordered
		if len(args) > 4 {
			if policy, err = sampler.ParsePolicy(args[4]); err != nil {
				return err
			}
		}
		entries, err := s.engine.Recommend(ctx, s.tenant, args[0], args[1], subject, size, policy)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Printf("item %d rank %d score %g\n", e.Item, e.Rank, e.Score)
		}
	case "tasks":
		if len(args) < 1 {
			return fmt.Errorf("usage: tasks <type> [dimension]")
		}
		typ, err := tasks.ParseType(args[0])
		if err != nil {
			return err
		}
		q := tasks.Query{Type: typ, Tenant: s.tenant}
		if len(args) > 1 {
			q.Dimension = args[1]
		}
		ids, err := s.engine.SearchTasks(ctx, q)
		if err != nil {
			return err
		}
		for _, id := range ids {
			t, err := s.engine.GetTask(ctx, id)
			if err != nil {
				return err
			}
			fmt.Printf("%d\t%s/%s next %d start %d %s\n", t.ID, t.Tenant, t.Dimension, t.Next, t.Start, t.Result)
		}
	case "repair":
		n, err := s.engine.RepairIndexes(ctx, s.tenant)
		if err != nil {
			return err
		}
		fmt.Printf("%d index rows inserted\n", n)
	case "recount":
		if len(args) != 1 {
			return fmt.Errorf("usage: recount <user>")
		}
		user, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return err
		}
		c, err := s.engine.RecountUser(ctx, s.tenant, user)
		if err != nil {
			return err
		}
		fmt.Printf("ratings %d views %d recommends %d last %d\n", c.Ratings, c.Views, c.Recommends, c.LastRating)
	case "epoch":
		ts, err := s.engine.Epoch(ctx, s.tenant)
		if err != nil {
			return err
		}
		fmt.Println(ts)
	default:
		return fmt.Errorf("command unknown: %s", cmd)
	}
	return nil
}

func parseIDPair(a, b string) (uint64, uint64, error) {
	first, err := strconv.ParseUint(a, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	second, err := strconv.ParseUint(b, 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-2)
	}
	if len(os.Args) > 1 {
		cfg.Dir = os.Args[1]
	}

	reg := prometheus.NewRegistry()
	engine, err := zieook.Open(cfg.Dir, zieook.Options{
		SyncWrites:  cfg.SyncWrites,
		SamplerSeed: cfg.SamplerSeed,
		LogLevel:    cfg.Level(),
		Metrics:     reg,
	})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.Metrics.Addr, mux); err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
			}
		}()
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     "/tmp/zieook.history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	ctx := context.Background()
	s := &session{engine: engine}
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Fields(line)
		cmd := args[0]
		args = args[1:]

		if cmd == "exit" || cmd == "quit" {
			break
		}
		if s.tenant == "" && cmd != "help" && cmd != "tenant" && cmd != "use" {
			_, _ = fmt.Fprintln(os.Stderr, "no tenant selected, run: use <tenant>")
			continue
		}
		if err := s.run(ctx, cmd, args); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
	}
	if err := engine.Close(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
}
