package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lucab/strata"
	"github.com/lucab/strata/core"
	"github.com/lucab/strata/db"
	"github.com/lucab/strata/tbl"
)

const (
	PromptColor  = "\033[36m" // Cyan
	ErrorColor   = "\033[31m" // Red
	SuccessColor = "\033[32m" // Green
	ResetColor   = "\033[0m"
	BoldColor    = "\033[1m"
)

// Version is set at build time via -ldflags
var Version = "dev"

// CLI holds the interactive session state
type CLI struct {
	instance    *strata.Instance
	history     []string
	historyFile string
}

func main() {
	dir := flag.String("dir", "", "Data directory (empty runs in memory)")
	userName := flag.String("name", "strata", "Author name for commits")
	userEmail := flag.String("email", "cli@strata.local", "Author email for commits")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	printBanner()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}
	identity := core.Identity{Name: *userName, Email: *userEmail}

	var instance *strata.Instance
	var err error
	if *dir == "" {
		fmt.Printf("%sUsing in-memory storage%s\n", SuccessColor, ResetColor)
		instance, err = strata.OpenMemory(identity, log)
	} else {
		fmt.Printf("%sUsing data directory: %s%s\n", SuccessColor, *dir, ResetColor)
		instance, err = strata.Open(*dir, identity, log)
	}
	if err != nil {
		fmt.Printf("%sError: %v%s\n", ErrorColor, err, ResetColor)
		os.Exit(1)
	}
	defer instance.Close()

	cli := &CLI{
		instance:    instance,
		history:     make([]string, 0),
		historyFile: getHistoryPath(),
	}
	cli.loadHistory()

	// One-shot mode: run the command given on the command line and exit.
	if args := flag.Args(); len(args) > 0 {
		if err := cli.dispatch(args); err != nil {
			fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
			os.Exit(1)
		}
		return
	}

	cli.run()
}

func printBanner() {
	fmt.Println()
	bannerWidth := 39 // inner width of the banner box
	versionLine := fmt.Sprintf("strata v%s", Version)
	padding := bannerWidth - len(versionLine) - 2 // -2 for "  " margins
	if padding < 0 {
		padding = 0
	}
	leftPad := padding / 2
	rightPad := padding - leftPad

	fmt.Printf("%s%s╔═══════════════════════════════════════╗%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s║ %*s%s%*s ║%s\n", BoldColor, PromptColor, leftPad, "", versionLine, rightPad, "", ResetColor)
	fmt.Printf("%s%s║   Versioned Tabular Data Store        ║%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Printf("%s%s╚═══════════════════════════════════════╝%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println()
	fmt.Println("Type help for commands, quit to exit")
	fmt.Println()
}

func (cli *CLI) run() {
	reader := bufio.NewReader(os.Stdin)

	for {
		fmt.Print(cli.getPrompt())

		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Printf("\n%sGoodbye!%s\n", SuccessColor, ResetColor)
			cli.saveHistory()
			return
		}
		input = strings.TrimSpace(strings.TrimSuffix(strings.TrimSuffix(input, "\n"), "\r"))
		if input == "" {
			continue
		}

		if input == "quit" || input == "exit" || input == "q" {
			fmt.Printf("%sGoodbye!%s\n", SuccessColor, ResetColor)
			cli.saveHistory()
			return
		}

		cli.addToHistory(input)
		if err := cli.dispatch(strings.Fields(input)); err != nil {
			fmt.Printf("%s✗ Error: %v%s\n", ErrorColor, err, ResetColor)
		}
	}
}

func (cli *CLI) getPrompt() string {
	return fmt.Sprintf("%sstrata (%s)>%s ", PromptColor, cli.instance.Repo.CurrentBranch(), ResetColor)
}

func (cli *CLI) dispatch(args []string) error {
	repo := cli.instance.Repo
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "help", "h", "?":
		cli.printHelp()
		return nil

	case "history":
		cli.printHistory()
		return nil

	case "clear", "cls":
		fmt.Print("\033[H\033[2J")
		return nil

	case "status":
		return cli.showStatus()

	case "tables":
		return cli.showTables()

	case "rows":
		if len(rest) < 1 {
			return fmt.Errorf("usage: rows <table> [rev]")
		}
		rev := ""
		if len(rest) > 1 {
			rev = rest[1]
		}
		return cli.showRows(rest[0], rev)

	case "log":
		limit := 10
		if len(rest) > 0 {
			n, err := strconv.Atoi(rest[0])
			if err != nil {
				return fmt.Errorf("usage: log [limit]")
			}
			limit = n
		}
		return cli.showLog(limit)

	case "branch":
		if len(rest) < 1 {
			return fmt.Errorf("usage: branch <name> [start-point]")
		}
		opts := db.BranchOptions{}
		if len(rest) > 1 {
			opts.StartPoint = rest[1]
		}
		if err := repo.Branch(rest[0], opts); err != nil {
			return err
		}
		fmt.Printf("%s✓ Created branch %s%s\n", SuccessColor, rest[0], ResetColor)
		return nil

	case "branches":
		return cli.showBranches()

	case "checkout":
		if len(rest) != 1 {
			return fmt.Errorf("usage: checkout <branch>")
		}
		if err := repo.Checkout(rest[0]); err != nil {
			return err
		}
		fmt.Printf("%s✓ Switched to %s%s\n", SuccessColor, rest[0], ResetColor)
		return nil

	case "add":
		if err := repo.Add(rest...); err != nil {
			return err
		}
		fmt.Printf("%s✓ Staged%s\n", SuccessColor, ResetColor)
		return nil

	case "reset":
		hard := false
		names := rest
		if len(rest) > 0 && rest[0] == "--hard" {
			hard = true
			names = rest[1:]
		}
		if err := repo.Reset(hard, names...); err != nil {
			return err
		}
		fmt.Printf("%s✓ Reset%s\n", SuccessColor, ResetColor)
		return nil

	case "commit":
		if len(rest) < 2 || rest[0] != "-m" {
			return fmt.Errorf("usage: commit -m <message>")
		}
		txn, err := repo.Commit(strings.Join(rest[1:], " "), db.CommitOptions{})
		if err != nil {
			return err
		}
		fmt.Printf("%s✓ Committed %s%s\n", SuccessColor, txn.Hash, ResetColor)
		return nil

	case "diff":
		if len(rest) == 1 {
			return cli.showRowDiff(rest[0])
		}
		return cli.showWorkingDiff()

	case "merge":
		if len(rest) < 1 {
			return fmt.Errorf("usage: merge [--ff-only|--manual] <branch>")
		}
		opts := db.DefaultMergeOptions()
		source := rest[0]
		switch rest[0] {
		case "--ff-only", "--manual":
			if len(rest) < 2 {
				return fmt.Errorf("usage: merge [--ff-only|--manual] <branch>")
			}
			if rest[0] == "--ff-only" {
				opts.Strategy = db.FastForwardOnly
			} else {
				opts.Strategy = db.Manual
			}
			source = rest[1]
		}
		return cli.doMerge(source, opts)

	case "import":
		if len(rest) < 3 {
			return fmt.Errorf("usage: import <table> <source> <pk-column> [pk-column...]")
		}
		res, err := repo.ImportCSV(context.Background(), rest[0], rest[1], db.ImportOptions{
			PrimaryKey: rest[2:],
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s✓ Imported %d rows into %s%s\n", SuccessColor, res.Rows, res.Table, ResetColor)
		return nil

	case "export":
		if len(rest) != 2 {
			return fmt.Errorf("usage: export <table> <dest>")
		}
		if err := repo.ExportCSV(context.Background(), rest[0], "", rest[1], nil); err != nil {
			return err
		}
		fmt.Printf("%s✓ Exported %s to %s%s\n", SuccessColor, rest[0], rest[1], ResetColor)
		return nil

	default:
		return fmt.Errorf("unknown command %q (type help for commands)", cmd)
	}
}

func (cli *CLI) printHelp() {
	fmt.Println()
	fmt.Printf("%s%sRepository:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println("  status                      Working set vs branch tip")
	fmt.Println("  tables                      List tables")
	fmt.Println("  rows <table> [rev]          Print a table's rows")
	fmt.Println("  log [limit]                 Commit history")
	fmt.Println("  diff [table]                Working set changes")
	fmt.Println()
	fmt.Printf("%s%sVersioning:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println("  add [table...]              Stage changes")
	fmt.Println("  reset [--hard] [table...]   Unstage (and discard) changes")
	fmt.Println("  commit -m <message>         Commit staged changes")
	fmt.Println("  branch <name> [start]       Create a branch")
	fmt.Println("  branches                    List branches")
	fmt.Println("  checkout <branch>           Switch branches")
	fmt.Println("  merge [--ff-only|--manual] <branch>")
	fmt.Println()
	fmt.Printf("%s%sData movement:%s\n", BoldColor, PromptColor, ResetColor)
	fmt.Println("  import <table> <source> <pk>...   CSV import (local, s3://, http://)")
	fmt.Println("  export <table> <dest>             CSV export")
	fmt.Println()
}

func (cli *CLI) showStatus() error {
	st, err := cli.instance.Repo.Status()
	if err != nil {
		return err
	}
	fmt.Printf("On branch %s%s%s\n", BoldColor, st.Branch, ResetColor)
	if st.Clean {
		fmt.Println("Nothing to commit, working set clean")
		return nil
	}
	for _, t := range st.Tables {
		if t.State == db.StateClean {
			continue
		}
		marker := ""
		switch {
		case t.Staged && t.Unstaged:
			marker = " (staged, unstaged edits)"
		case t.Staged:
			marker = " (staged)"
		}
		fmt.Printf("  %-10s %s%s\n", t.State, t.Name, marker)
	}
	return nil
}

func (cli *CLI) showTables() error {
	infos, err := cli.instance.Repo.Tables()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No tables")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("  %-24s %8d rows  %s\n", info.Name, info.Rows, info.Hash)
	}
	return nil
}

func (cli *CLI) showRows(table, rev string) error {
	repo := cli.instance.Repo
	schema, err := repo.Schema(table)
	if err != nil {
		return err
	}
	rows, err := repo.Rows(table, rev)
	if err != nil {
		return err
	}
	var header []string
	for _, col := range schema.Columns {
		header = append(header, col.Name)
	}
	fmt.Println("  " + strings.Join(header, " | "))
	for _, row := range rows {
		var cells []string
		for _, v := range row {
			cells = append(cells, v.Format())
		}
		fmt.Println("  " + strings.Join(cells, " | "))
	}
	fmt.Printf("%d rows\n", len(rows))
	return nil
}

func (cli *CLI) showLog(limit int) error {
	entries, err := cli.instance.Repo.Log("", limit)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s%s%s %s\n", PromptColor, e.Hash, ResetColor,
			e.Commit.When.Local().Format("2006-01-02 15:04:05"))
		fmt.Printf("  %s <%s>\n", e.Commit.Author, e.Commit.Email)
		fmt.Printf("  %s\n\n", e.Commit.Message)
	}
	return nil
}

func (cli *CLI) showBranches() error {
	list, err := cli.instance.Repo.Branches()
	if err != nil {
		return err
	}
	for _, b := range list {
		marker := " "
		if b.Current {
			marker = "*"
		}
		fmt.Printf("%s %-20s %s\n", marker, b.Name, b.Hash)
	}
	return nil
}

func (cli *CLI) showWorkingDiff() error {
	deltas, err := cli.instance.Repo.DiffWorking()
	if err != nil {
		return err
	}
	if len(deltas) == 0 {
		fmt.Println("No changes")
		return nil
	}
	for _, d := range deltas {
		note := ""
		if d.SchemaChanged {
			note = " (schema changed)"
		}
		fmt.Printf("  %-10s %s%s\n", d.Kind, d.Name, note)
	}
	return nil
}

func (cli *CLI) showRowDiff(table string) error {
	changes, err := cli.instance.Repo.DiffRowsWorking(table)
	if err != nil {
		return err
	}
	for _, c := range changes {
		switch c.Kind {
		case tbl.Added:
			fmt.Printf("%s+ %s%s\n", SuccessColor, formatRow(c.New), ResetColor)
		case tbl.Removed:
			fmt.Printf("%s- %s%s\n", ErrorColor, formatRow(c.Old), ResetColor)
		default:
			fmt.Printf("%s- %s%s\n", ErrorColor, formatRow(c.Old), ResetColor)
			fmt.Printf("%s+ %s%s\n", SuccessColor, formatRow(c.New), ResetColor)
		}
	}
	fmt.Printf("%d changes\n", len(changes))
	return nil
}

func formatRow(row core.Row) string {
	var cells []string
	for _, v := range row {
		cells = append(cells, v.Format())
	}
	return strings.Join(cells, " | ")
}

func (cli *CLI) doMerge(source string, opts db.MergeOptions) error {
	res, err := cli.instance.Repo.Merge(source, opts)
	if err != nil {
		return err
	}
	switch {
	case res.UpToDate:
		fmt.Println("Already up to date")
	case res.FastForward:
		fmt.Printf("%s✓ Fast-forwarded to %s%s\n", SuccessColor, res.Transaction.Hash, ResetColor)
	case res.Pending:
		fmt.Printf("%s%d conflicts; merge %s is pending%s\n", ErrorColor, res.Unresolved, res.MergeID, ResetColor)
		for _, c := range res.Conflicts {
			fmt.Printf("  %s: ours=%s theirs=%s\n", c.Table, formatRow(c.Ours), formatRow(c.Theirs))
		}
	default:
		fmt.Printf("%s✓ Merged %s (%d rows, %d conflicts auto-resolved)%s\n",
			SuccessColor, res.Transaction.Hash, res.MergedRows, len(res.Conflicts), ResetColor)
	}
	return nil
}

func (cli *CLI) addToHistory(cmd string) {
	// Don't add duplicates of the last command
	if len(cli.history) > 0 && cli.history[len(cli.history)-1] == cmd {
		return
	}
	cli.history = append(cli.history, cmd)

	// Limit history size
	if len(cli.history) > 1000 {
		cli.history = cli.history[len(cli.history)-1000:]
	}
}

func (cli *CLI) printHistory() {
	if len(cli.history) == 0 {
		fmt.Println("No command history")
		return
	}
	start := 0
	if len(cli.history) > 20 {
		start = len(cli.history) - 20
	}
	for i := start; i < len(cli.history); i++ {
		fmt.Printf("  %3d  %s\n", i+1, cli.history[i])
	}
}

func getHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".strata_history")
}

func (cli *CLI) loadHistory() {
	if cli.historyFile == "" {
		return
	}
	file, err := os.Open(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		cli.history = append(cli.history, scanner.Text())
	}
}

func (cli *CLI) saveHistory() {
	if cli.historyFile == "" {
		return
	}
	file, err := os.Create(cli.historyFile)
	if err != nil {
		return
	}
	defer file.Close()

	// Save last 1000 entries
	start := 0
	if len(cli.history) > 1000 {
		start = len(cli.history) - 1000
	}
	for i := start; i < len(cli.history); i++ {
		_, _ = file.WriteString(cli.history[i] + "\n")
	}
}
